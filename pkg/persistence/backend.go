// Package persistence defines the remote vocabulary backend the tutor reads
// due words from and syncs review outcomes to.
package persistence

import (
	"context"
	"time"

	"github.com/TylorChan/Vocabulary-Builder-App/pkg/review"
)

// DefaultUserID is used when a caller does not name a learner.
const DefaultUserID = "default-user"

// Backend is the abstraction over the vocabulary persistence service.
//
// Implementations must be safe for concurrent use.
type Backend interface {
	// DueWords starts a review session and returns the user's due items,
	// most overdue first. The backend caps the count.
	DueWords(ctx context.Context, userID string) ([]review.VocabularyItem, error)

	// SaveReviewSession persists a batch of card updates. A returned
	// SaveResult with Success false is not an error; use [review.SaveResult.Err].
	SaveReviewSession(ctx context.Context, updates []review.CardUpdate) (review.SaveResult, error)

	// SaveVocabulary stores a newly captured item.
	SaveVocabulary(ctx context.Context, in VocabularyInput) (SavedVocabulary, error)
}

// VocabularyInput is a captured word before the backend assigns an id.
type VocabularyInput struct {
	UserID          string `json:"userId" validate:"required"`
	Text            string `json:"text" validate:"required"`
	Definition      string `json:"definition" validate:"required"`
	Example         string `json:"example"`
	ExampleTrans    string `json:"exampleTrans"`
	RealLifeDef     string `json:"realLifeDef"`
	SurroundingText string `json:"surroundingText"`
	VideoTitle      string `json:"videoTitle"`
}

// SavedVocabulary is the backend's acknowledgement of a saved item.
type SavedVocabulary struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	Definition string    `json:"definition"`
	CreatedAt  time.Time `json:"createdAt"`
}
