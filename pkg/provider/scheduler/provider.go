// Package scheduler defines the Provider interface for spaced-repetition
// scheduling backends.
//
// A scheduler receives a card's current state and a 1–4 recall rating and
// returns the card's next state (due date, difficulty, stability). The
// algorithm itself is a black box to the review core; implementations are
// stateless adapters.
//
// Implementations must be safe for concurrent use.
package scheduler

import (
	"context"
	"time"

	"github.com/TylorChan/Vocabulary-Builder-App/pkg/review"
)

// Provider is the abstraction over any scheduling backend.
type Provider interface {
	// Review reschedules card after a review rated rating at reviewedAt and
	// returns the replacement card. Non-success responses from the backend are
	// returned as errors carrying the status and body.
	Review(ctx context.Context, card review.SchedulerCard, rating review.Rating, reviewedAt time.Time) (review.SchedulerCard, error)
}
