// Package mock provides a test double for judge.Provider.
package mock

import (
	"context"
	"sync"

	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/judge"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/review"
)

var _ judge.Provider = (*Provider)(nil)

// RateSceneCall records one RateScene invocation.
type RateSceneCall struct {
	Evidence string
	Words    []judge.Word
}

// Provider is a configurable judge. When RateSceneFunc is nil it returns
// Ratings, or RateSceneErr when set.
type Provider struct {
	mu    sync.Mutex
	calls []RateSceneCall

	Ratings       []review.SceneRating
	RateSceneErr  error
	RateSceneFunc func(ctx context.Context, evidence string, words []judge.Word) ([]review.SceneRating, error)
}

// RateScene implements judge.Provider.
func (p *Provider) RateScene(ctx context.Context, evidence string, words []judge.Word) ([]review.SceneRating, error) {
	p.mu.Lock()
	p.calls = append(p.calls, RateSceneCall{Evidence: evidence, Words: append([]judge.Word(nil), words...)})
	fn, ratings, err := p.RateSceneFunc, p.Ratings, p.RateSceneErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, evidence, words)
	}
	if err != nil {
		return nil, err
	}
	return append([]review.SceneRating(nil), ratings...), nil
}

// Calls returns a copy of the recorded invocations.
func (p *Provider) Calls() []RateSceneCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]RateSceneCall(nil), p.calls...)
}

// CallCount returns the number of RateScene calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// Reset clears recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = nil
}
