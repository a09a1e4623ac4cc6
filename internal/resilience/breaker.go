// Package resilience guards calls to the remote review services.
//
// [Breaker] is a three-state circuit breaker (closed, open, half-open) that
// fails fast while a service is down. [Chain] tries several interchangeable
// backends in order, each behind its own breaker. The scheduler, judge and
// LLM adapters in this package apply both to the provider interfaces the
// review core depends on.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [Breaker.Do] while the breaker rejects calls.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [Breaker].
type State int

const (
	// Closed forwards every call.
	Closed State = iota

	// Open rejects calls with [ErrCircuitOpen] until the cooldown elapses.
	Open

	// HalfOpen lets a bounded number of probe calls through. One failed
	// probe re-opens the breaker; enough successful ones close it.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker]. Zero values take the defaults noted on
// each field.
type BreakerConfig struct {
	// Name labels log lines and state-change callbacks.
	Name string

	// Threshold is the number of consecutive failures that opens the
	// breaker. Default: 5.
	Threshold int

	// Cooldown is how long the breaker stays open. Default: 30s.
	Cooldown time.Duration

	// Probes is the number of successful half-open calls needed to close.
	// Default: 2.
	Probes int

	// OnStateChange, when set, is called after every transition with the
	// breaker's lock released.
	OnStateChange func(name string, from, to State)

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Breaker is a consecutive-failure circuit breaker.
type Breaker struct {
	cfg BreakerConfig

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	inflight int
	probesOK int
}

// NewBreaker returns a closed Breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 2
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{cfg: cfg}
}

// Name returns the configured label.
func (b *Breaker) Name() string { return b.cfg.Name }

// Do runs fn unless the breaker is open. Errors caused by the caller's own
// cancellation are returned as-is and never count as a failure.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}

	err = fn(ctx)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		b.release(probe)
		return err
	}
	b.record(probe, err)
	return err
}

// State reports the current state. An open breaker whose cooldown has
// elapsed reports [HalfOpen]; the transition itself happens on the next call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.cooledDown() {
		return HalfOpen
	}
	return b.state
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state, b.failures, b.inflight, b.probesOK = Closed, 0, 0, 0
	b.mu.Unlock()
	b.notify(from, Closed)
}

func (b *Breaker) cooledDown() bool {
	return b.cfg.Now().Sub(b.openedAt) >= b.cfg.Cooldown
}

// admit decides whether a call may proceed and whether it is a probe.
func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	from := b.state
	switch b.state {
	case Open:
		if !b.cooledDown() {
			b.mu.Unlock()
			return false, ErrCircuitOpen
		}
		b.state, b.inflight, b.probesOK = HalfOpen, 0, 0
	case Closed:
		b.mu.Unlock()
		return false, nil
	}
	if b.inflight >= b.cfg.Probes {
		b.mu.Unlock()
		return false, ErrCircuitOpen
	}
	b.inflight++
	b.mu.Unlock()
	b.notify(from, HalfOpen)
	return true, nil
}

func (b *Breaker) release(probe bool) {
	if !probe {
		return
	}
	b.mu.Lock()
	if b.state == HalfOpen && b.inflight > 0 {
		b.inflight--
	}
	b.mu.Unlock()
}

func (b *Breaker) record(probe bool, err error) {
	b.mu.Lock()
	from := b.state
	switch {
	case err != nil && probe:
		b.trip()
	case err != nil:
		b.failures++
		if b.state == Closed && b.failures >= b.cfg.Threshold {
			b.trip()
		}
	case probe && b.state == HalfOpen:
		b.probesOK++
		if b.probesOK >= b.cfg.Probes {
			b.state, b.failures, b.inflight, b.probesOK = Closed, 0, 0, 0
		}
	default:
		b.failures = 0
	}
	to := b.state
	failures := b.failures
	b.mu.Unlock()

	switch {
	case from != Open && to == Open:
		slog.Warn("resilience: circuit opened", "name", b.cfg.Name, "failures", failures, "err", err)
	case from == HalfOpen && to == Closed:
		slog.Info("resilience: circuit closed", "name", b.cfg.Name)
	}
	b.notify(from, to)
}

// trip opens the breaker. Must be called with b.mu held.
func (b *Breaker) trip() {
	b.state = Open
	b.openedAt = b.cfg.Now()
	b.inflight, b.probesOK = 0, 0
}

func (b *Breaker) notify(from, to State) {
	if from != to && b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, from, to)
	}
}
