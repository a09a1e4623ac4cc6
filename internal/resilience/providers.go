package resilience

import (
	"context"
	"time"

	"github.com/TylorChan/Vocabulary-Builder-App/internal/observe"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/judge"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/llm"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/scheduler"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/review"
)

// ── Scheduler ────────────────────────────────────────────────────────────────

// Scheduler guards a single [scheduler.Provider] with a breaker and records
// every call as a "scheduler"/"review" provider call.
type Scheduler struct {
	next    scheduler.Provider
	breaker *Breaker
	metrics *observe.Metrics
}

var _ scheduler.Provider = (*Scheduler)(nil)

// NewScheduler wraps next. m may be nil.
func NewScheduler(next scheduler.Provider, cfg BreakerConfig, m *observe.Metrics) *Scheduler {
	if cfg.Name == "" {
		cfg.Name = "scheduler"
	}
	return &Scheduler{next: next, breaker: NewBreaker(cfg), metrics: m}
}

// Breaker exposes the breaker for health reporting.
func (s *Scheduler) Breaker() *Breaker { return s.breaker }

// Review implements scheduler.Provider.
func (s *Scheduler) Review(ctx context.Context, card review.SchedulerCard, r review.Rating, at time.Time) (review.SchedulerCard, error) {
	var out review.SchedulerCard
	err := observe.Call(ctx, s.metrics, "scheduler", "review", func(ctx context.Context) error {
		return s.breaker.Do(ctx, func(ctx context.Context) error {
			var err error
			out, err = s.next.Review(ctx, card, r, at)
			return err
		})
	})
	return out, err
}

// ── Judge ────────────────────────────────────────────────────────────────────

// Judge fails over across judge backends, for example an LLM judge with the
// hosted rate-scene endpoint behind it.
type Judge struct {
	chain *Chain[judge.Provider]
}

var _ judge.Provider = (*Judge)(nil)

// NewJudge returns a Judge over the backends of chain.
func NewJudge(chain *Chain[judge.Provider]) *Judge { return &Judge{chain: chain} }

// RateScene implements judge.Provider. Output that fails validation counts
// as a backend failure so the next backend gets a chance.
func (j *Judge) RateScene(ctx context.Context, evidence string, words []judge.Word) ([]review.SceneRating, error) {
	return Try(ctx, j.chain, func(ctx context.Context, p judge.Provider) ([]review.SceneRating, error) {
		ratings, err := p.RateScene(ctx, evidence, words)
		if err != nil {
			return nil, err
		}
		if err := judge.Validate(ratings); err != nil {
			return nil, err
		}
		return ratings, nil
	})
}

// ── LLM ──────────────────────────────────────────────────────────────────────

// LLM fails over across completion backends.
type LLM struct {
	chain *Chain[llm.Provider]
}

var _ llm.Provider = (*LLM)(nil)

// NewLLM returns an LLM over the backends of chain.
func NewLLM(chain *Chain[llm.Provider]) *LLM { return &LLM{chain: chain} }

// Complete implements llm.Provider.
func (l *LLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Try(ctx, l.chain, func(ctx context.Context, p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}
