package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every member of a [Chain] failed or was
// skipped by its breaker.
var ErrAllFailed = errors.New("resilience: all backends failed")

type member[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Chain holds interchangeable backends of one provider type, tried in the
// order they were added. Each member has its own [Breaker] built from the
// chain's template config.
//
// Members must be added before the chain is shared between goroutines.
type Chain[T any] struct {
	template BreakerConfig
	members  []member[T]
}

// NewChain returns an empty chain. template.Name is replaced by each
// member's name.
func NewChain[T any](template BreakerConfig) *Chain[T] {
	return &Chain[T]{template: template}
}

// Add appends a backend.
func (c *Chain[T]) Add(name string, value T) *Chain[T] {
	cfg := c.template
	cfg.Name = name
	c.members = append(c.members, member[T]{name: name, value: value, breaker: NewBreaker(cfg)})
	return c
}

// Len returns the number of members.
func (c *Chain[T]) Len() int { return len(c.members) }

// Names returns the member names in order.
func (c *Chain[T]) Names() []string {
	out := make([]string, len(c.members))
	for i, m := range c.members {
		out[i] = m.name
	}
	return out
}

// Breaker returns the breaker of the named member, or nil.
func (c *Chain[T]) Breaker(name string) *Breaker {
	for _, m := range c.members {
		if m.name == name {
			return m.breaker
		}
	}
	return nil
}

// Try calls fn on each member until one succeeds. It stops early when ctx is
// done, returning the context error.
func Try[T, R any](ctx context.Context, c *Chain[T], fn func(context.Context, T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	if len(c.members) == 0 {
		return zero, fmt.Errorf("%w: chain is empty", ErrAllFailed)
	}
	for _, m := range c.members {
		var out R
		err := m.breaker.Do(ctx, func(ctx context.Context) error {
			var err error
			out, err = fn(ctx, m.value)
			return err
		})
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("resilience: backend skipped, circuit open", "backend", m.name)
			continue
		}
		slog.Warn("resilience: backend failed, trying next", "backend", m.name, "err", err)
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
