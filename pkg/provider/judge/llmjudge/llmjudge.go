// Package llmjudge implements judge.Provider by prompting a completion model
// with the scene dialogue and the target words.
package llmjudge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/TylorChan/Vocabulary-Builder-App/pkg/phonetic"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/judge"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/llm"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/review"
)

var _ judge.Provider = (*Provider)(nil)

const systemPrompt = `You grade an English learner's active recall of vocabulary during a spoken role-play.
Lines starting with USER are the learner, lines starting with TEACHER are the tutor.
For every target word return one FSRS rating:
1 = did not use or understand it, 2 = used it with major help or errors,
3 = used it correctly with small hesitation, 4 = used it naturally and correctly.
Only judge the learner's own lines. Quote the relevant phrase in the evidence.
The transcript comes from speech recognition and may misspell words; the
speech hints list the closest sighting of each target word in the learner's lines.
Answer with JSON only: {"ratings":[{"vocabularyId":"...","rating":1,"evidence":"..."}]}`

// Provider rates scenes with an LLM.
type Provider struct {
	llm         llm.Provider
	temperature float64
	spotter     *phonetic.Spotter
}

// Option configures a Provider.
type Option func(*Provider)

// WithTemperature sets the sampling temperature. Default 0.2.
func WithTemperature(t float64) Option {
	return func(p *Provider) { p.temperature = t }
}

// WithSpotter replaces the default speech hint spotter.
func WithSpotter(s *phonetic.Spotter) Option {
	return func(p *Provider) { p.spotter = s }
}

// New wraps an llm.Provider.
func New(model llm.Provider, opts ...Option) *Provider {
	p := &Provider{llm: model, temperature: 0.2, spotter: phonetic.New()}
	for _, o := range opts {
		o(p)
	}
	return p
}

// RateScene implements judge.Provider. Ratings for ids that were not among
// the target words are discarded.
func (p *Provider) RateScene(ctx context.Context, evidence string, words []judge.Word) ([]review.SceneRating, error) {
	if len(words) == 0 {
		return nil, nil
	}
	wordsJSON, err := json.Marshal(words)
	if err != nil {
		return nil, fmt.Errorf("llmjudge: marshal words: %w", err)
	}

	var b strings.Builder
	b.WriteString("Target words:\n")
	b.Write(wordsJSON)
	b.WriteString("\n\nScene transcript:\n")
	if strings.TrimSpace(evidence) == "" {
		b.WriteString("(empty)")
	} else {
		b.WriteString(evidence)
	}

	writeHints(&b, p.spotter, evidence, words)

	var out struct {
		Ratings []review.SceneRating `json:"ratings"`
	}
	err = llm.CompleteJSON(ctx, p.llm, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: b.String()}},
		Temperature:  p.temperature,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("llmjudge: rate scene: %w", err)
	}

	known := make(map[string]struct{}, len(words))
	for _, w := range words {
		known[w.ID] = struct{}{}
	}
	ratings := out.Ratings[:0]
	for _, r := range out.Ratings {
		if _, ok := known[r.VocabularyID]; ok {
			ratings = append(ratings, r)
		}
	}
	if err := judge.Validate(ratings); err != nil {
		return nil, err
	}
	return ratings, nil
}

// userPrefix marks learner lines in scene evidence.
const userPrefix = "USER:"

// writeHints appends one speech hint per target word.
func writeHints(b *strings.Builder, spotter *phonetic.Spotter, evidence string, words []judge.Word) {
	var utterances []string
	for _, line := range strings.Split(evidence, "\n") {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(line), userPrefix); ok {
			utterances = append(utterances, rest)
		}
	}
	texts := make([]string, len(words))
	for i, w := range words {
		texts[i] = w.Text
	}

	b.WriteString("\n\nSpeech hints:\n")
	for _, h := range spotter.Spot(utterances, texts) {
		switch {
		case h.Exact:
			fmt.Fprintf(b, "- %s: said\n", h.Word)
		case h.Found():
			fmt.Fprintf(b, "- %s: possibly heard as %q (similarity %.2f)\n", h.Word, h.Heard, h.Score)
		default:
			fmt.Fprintf(b, "- %s: not heard\n", h.Word)
		}
	}
}
