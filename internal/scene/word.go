package scene

import (
	"fmt"

	"github.com/TylorChan/Vocabulary-Builder-App/internal/evidence"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/review"
)

// Bounds for [Machine.ActiveWordEvidence].
const (
	MinEvidenceMessages     = 4
	MaxEvidenceMessages     = 50
	DefaultEvidenceMessages = 12
)

// WordInfo is the word payload returned to the tutor.
type WordInfo struct {
	ID              string `json:"id"`
	Text            string `json:"text"`
	VideoTitle      string `json:"videoTitle"`
	SurroundingText string `json:"surroundingText"`
	Definition      string `json:"definition"`
	RealLifeDef     string `json:"realLifeDef"`
}

// WordResult is the outcome of [Machine.NextWord].
type WordResult struct {
	OK     bool      `json:"ok"`
	Reason string    `json:"reason,omitempty"`
	Done   bool      `json:"done"`
	Total  int       `json:"total"`
	Word   *WordInfo `json:"word"`
}

// WordEvidence is the outcome of [Machine.ActiveWordEvidence].
type WordEvidence struct {
	ActiveWordID   *string `json:"activeWordId"`
	ActiveWordText *string `json:"activeWordText"`
	Evidence       string  `json:"evidence"`
}

// NextWord returns the next due word and advances the word pointer. It is
// refused while the current word is still unrated.
func (m *Machine) NextWord() WordResult {
	m.mu.Lock()
	sc := &m.sc
	if !sc.currentWordRated && sc.wordStep != NeedWord {
		m.mu.Unlock()
		m.obs.OnEvent(review.EventBreadcrumb, review.Breadcrumb{Message: "Cannot advance: current word not rated yet."})
		return WordResult{Reason: ReasonNotRatedYet}
	}

	total := len(sc.words)
	idx := sc.wordIndex
	if idx >= total {
		m.mu.Unlock()
		m.obs.OnEvent(review.EventBreadcrumb, review.Breadcrumb{Message: "No more words (session complete)"})
		return WordResult{OK: true, Done: true, Total: total}
	}

	w := sc.words[idx]
	sc.wordIndex = idx + 1
	sc.currentWordRated = false
	sc.currentVocabularyID = w.ID
	sc.wordStep = AskVideo
	m.mu.Unlock()

	m.obs.OnEvent(review.EventWord, review.Breadcrumb{
		Message: fmt.Sprintf("Word %d / %d: %s", idx+1, total, w.Text),
		Words:   []string{w.Text},
	})
	return WordResult{
		OK:    true,
		Total: total,
		Word: &WordInfo{
			ID:              w.ID,
			Text:            w.Text,
			VideoTitle:      w.VideoTitle,
			SurroundingText: w.SurroundingText,
			Definition:      w.Definition,
			RealLifeDef:     w.RealLifeDef,
		},
	}
}

// StartWordReview records the active word and its evidence boundary.
func (m *Machine) StartWordReview(vocabularyID, wordText string) Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc := &m.sc
	if sc.wordStep != WordUnset && sc.wordStep != AskVideo {
		return Result{Reason: ReasonWrongStep}
	}
	sc.activeWordID = vocabularyID
	sc.activeWordText = wordText
	sc.activeWordStartHistoryIndex = len(sc.history)
	sc.currentVocabularyID = vocabularyID
	sc.wordStep = AskVideo
	return Result{OK: true}
}

// ActiveWordEvidence renders the dialogue since the active word started,
// capped to maxMessages. Zero selects [DefaultEvidenceMessages]; other
// values are clamped to [MinEvidenceMessages, MaxEvidenceMessages].
func (m *Machine) ActiveWordEvidence(maxMessages int) WordEvidence {
	switch {
	case maxMessages == 0:
		maxMessages = DefaultEvidenceMessages
	case maxMessages < MinEvidenceMessages:
		maxMessages = MinEvidenceMessages
	case maxMessages > MaxEvidenceMessages:
		maxMessages = MaxEvidenceMessages
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	sc := &m.sc
	out := WordEvidence{
		Evidence: evidence.ActiveWord(sc.history, sc.activeWordStartHistoryIndex, maxMessages),
	}
	if sc.activeWordID != "" {
		id := sc.activeWordID
		out.ActiveWordID = &id
	}
	if sc.activeWordText != "" {
		text := sc.activeWordText
		out.ActiveWordText = &text
	}
	return out
}

// MarkWordRated unlocks [Machine.NextWord] once the current word has been
// rated.
func (m *Machine) MarkWordRated(vocabularyID string) {
	m.mu.Lock()
	matched := vocabularyID == m.sc.currentVocabularyID
	if matched {
		m.sc.currentWordRated = true
	}
	m.mu.Unlock()

	if matched {
		m.obs.OnEvent(review.EventWordRated, review.Breadcrumb{Message: "Rated " + vocabularyID})
	}
}
