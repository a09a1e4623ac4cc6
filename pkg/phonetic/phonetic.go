// Package phonetic spots target vocabulary in transcribed learner speech.
//
// Speech-to-text often misspells words a learner is still unsure of
// ("exosted" for "exhausted", "wipe doubt" for "wiped out"). A [Spotter]
// finds the closest n-gram for each target word using Double Metaphone
// phonetic codes combined with Jaro-Winkler similarity:
//
//  1. Phonetic candidates: an n-gram whose Double Metaphone codes overlap the
//     word's codes is accepted when its Jaro-Winkler score reaches the
//     phonetic threshold.
//
//  2. Fuzzy fallback: without a phonetic candidate, an n-gram is accepted when
//     its pure Jaro-Winkler score reaches the higher fuzzy threshold.
//
// N-grams have the word's token count, plus one and minus one, so split and
// merged tokens are found too.
package phonetic

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.80
	defaultFuzzyThreshold    = 0.90
)

// Option is a functional option for configuring a [Spotter].
type Option func(*Spotter)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a
// phonetically matching n-gram. Default: 0.80.
func WithPhoneticThreshold(threshold float64) Option {
	return func(s *Spotter) { s.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score when no phonetic
// candidate exists. Default: 0.90.
func WithFuzzyThreshold(threshold float64) Option {
	return func(s *Spotter) { s.fuzzyThreshold = threshold }
}

// Hit is the best sighting of one target word.
type Hit struct {
	Word string

	// Heard is the learner's n-gram closest to Word. Empty when not found.
	Heard string

	// Score is the Jaro-Winkler similarity of Heard to Word; 1 for exact.
	Score float64

	// Exact is true when Heard equals Word after normalisation.
	Exact bool
}

// Found reports whether the word was heard at all.
func (h Hit) Found() bool { return h.Heard != "" }

// Spotter finds target words in utterances. It is read-only after
// construction and safe for concurrent use.
type Spotter struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a Spotter configured with opts.
func New(opts ...Option) *Spotter {
	s := &Spotter{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Spot returns one Hit per word, in order.
func (s *Spotter) Spot(utterances []string, words []string) []Hit {
	tokenised := make([][]string, 0, len(utterances))
	for _, u := range utterances {
		if toks := tokens(u); len(toks) > 0 {
			tokenised = append(tokenised, toks)
		}
	}

	hits := make([]Hit, len(words))
	for i, w := range words {
		hits[i] = s.spot(tokenised, w)
	}
	return hits
}

func (s *Spotter) spot(utterances [][]string, word string) Hit {
	target := tokens(word)
	hit := Hit{Word: word}
	if len(target) == 0 {
		return hit
	}
	targetFull := strings.Join(target, " ")
	targetCodes := codesForTokens(target)

	var bestPhonetic bool
	for _, toks := range utterances {
		for n := max(1, len(target)-1); n <= len(target)+1; n++ {
			for i := 0; i+n <= len(toks); i++ {
				gram := toks[i : i+n]
				gramFull := strings.Join(gram, " ")
				if gramFull == targetFull {
					return Hit{Word: word, Heard: gramFull, Score: 1, Exact: true}
				}

				score := bestJWScore(gram, target, gramFull, targetFull)
				phonetic := codesOverlap(codesForTokens(gram), targetCodes)
				switch {
				case phonetic && score >= s.phoneticThreshold:
					if !bestPhonetic || score > hit.Score {
						hit.Heard, hit.Score, bestPhonetic = gramFull, score, true
					}
				case !phonetic && !bestPhonetic && score >= s.fuzzyThreshold && score > hit.Score:
					hit.Heard, hit.Score = gramFull, score
				}
			}
		}
	}
	return hit
}

// tokens lower-cases text and splits it into words, dropping punctuation
// except inner apostrophes and hyphens.
func tokens(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\'' && r != '-'
	})
	out := fields[:0]
	for _, f := range fields {
		if f = strings.Trim(f, "'-"); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// codesForTokens returns the union of the Double Metaphone codes of tokens.
// Empty codes are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore is the higher of the full-string and the space-stripped
// Jaro-Winkler similarity. Pairwise token scores are not used: a single
// shared token such as "out" must not count as the whole phrase.
func bestJWScore(gram, target []string, gramFull, targetFull string) float64 {
	score := matchr.JaroWinkler(gramFull, targetFull, false)
	if len(gram) > 1 || len(target) > 1 {
		if s := matchr.JaroWinkler(strings.Join(gram, ""), strings.Join(target, ""), false); s > score {
			score = s
		}
	}
	return score
}
