// Package mock provides a test double for scheduler.Provider.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/scheduler"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/review"
)

var _ scheduler.Provider = (*Provider)(nil)

// ReviewCall records one Review invocation.
type ReviewCall struct {
	Card       review.SchedulerCard
	Rating     review.Rating
	ReviewedAt time.Time
}

// Provider is a mock scheduler. When ReviewFunc is nil it returns a card due
// one day per rating point after the review, with Reps incremented.
type Provider struct {
	mu    sync.Mutex
	calls []ReviewCall

	// ReviewFunc, when set, computes the result.
	ReviewFunc func(ctx context.Context, card review.SchedulerCard, rating review.Rating, at time.Time) (review.SchedulerCard, error)

	// ReviewErr is returned when non-nil and ReviewFunc is nil.
	ReviewErr error
}

// Review implements scheduler.Provider.
func (p *Provider) Review(ctx context.Context, card review.SchedulerCard, rating review.Rating, at time.Time) (review.SchedulerCard, error) {
	p.mu.Lock()
	p.calls = append(p.calls, ReviewCall{Card: card, Rating: rating, ReviewedAt: at})
	fn, err := p.ReviewFunc, p.ReviewErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, card, rating, at)
	}
	if err != nil {
		return review.SchedulerCard{}, err
	}
	last := at
	difficulty := 5.0
	if card.Difficulty != nil {
		difficulty = *card.Difficulty + 0.1
	}
	stability := float64(rating)
	if card.Stability != nil {
		stability += *card.Stability
	}
	return review.SchedulerCard{
		Difficulty: &difficulty,
		Stability:  &stability,
		DueDate:    at.Add(time.Duration(rating) * 24 * time.Hour),
		State:      review.StateReview,
		LastReview: &last,
		Reps:       card.Reps + 1,
	}, nil
}

// Calls returns a copy of recorded invocations.
func (p *Provider) Calls() []ReviewCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ReviewCall(nil), p.calls...)
}

// CallCount returns the number of Review calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}
