// Package mock provides a test double for persistence.Backend.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/TylorChan/Vocabulary-Builder-App/pkg/persistence"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/review"
)

var _ persistence.Backend = (*Backend)(nil)

// Backend records calls and returns configured results. With no
// SaveResult configured, SaveReviewSession acknowledges every update. A
// cancelled context fails the save before it is recorded.
type Backend struct {
	mu      sync.Mutex
	saved   [][]review.CardUpdate
	vocab   []persistence.VocabularyInput
	dueReqs []string

	Due    []review.VocabularyItem
	DueErr error

	SaveResult *review.SaveResult
	SaveErr    error

	SaveVocabularyErr error
}

// DueWords implements persistence.Backend.
func (b *Backend) DueWords(_ context.Context, userID string) ([]review.VocabularyItem, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dueReqs = append(b.dueReqs, userID)
	if b.DueErr != nil {
		return nil, b.DueErr
	}
	return append([]review.VocabularyItem(nil), b.Due...), nil
}

// SaveReviewSession implements persistence.Backend.
func (b *Backend) SaveReviewSession(ctx context.Context, updates []review.CardUpdate) (review.SaveResult, error) {
	if err := ctx.Err(); err != nil {
		return review.SaveResult{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.saved = append(b.saved, append([]review.CardUpdate(nil), updates...))
	if b.SaveErr != nil {
		return review.SaveResult{}, b.SaveErr
	}
	if b.SaveResult != nil {
		return *b.SaveResult, nil
	}
	return review.SaveResult{Success: true, SavedCount: len(updates), Message: "ok"}, nil
}

// SaveVocabulary implements persistence.Backend.
func (b *Backend) SaveVocabulary(_ context.Context, in persistence.VocabularyInput) (persistence.SavedVocabulary, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.vocab = append(b.vocab, in)
	if b.SaveVocabularyErr != nil {
		return persistence.SavedVocabulary{}, b.SaveVocabularyErr
	}
	return persistence.SavedVocabulary{
		ID:         "v" + string(rune('0'+len(b.vocab))),
		Text:       in.Text,
		Definition: in.Definition,
		CreatedAt:  time.Now(),
	}, nil
}

// Saved returns every batch passed to SaveReviewSession.
func (b *Backend) Saved() [][]review.CardUpdate {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]review.CardUpdate(nil), b.saved...)
}

// Vocabulary returns every item passed to SaveVocabulary.
func (b *Backend) Vocabulary() []persistence.VocabularyInput {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]persistence.VocabularyInput(nil), b.vocab...)
}

// DueRequests returns the user ids passed to DueWords.
func (b *Backend) DueRequests() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.dueReqs...)
}
