package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/s2s"
)

// Default reconnection parameters.
const (
	defaultMaxRetries = 5
	defaultBackoff    = 1 * time.Second
	defaultMaxBackoff = 15 * time.Second
)

// Reconnector owns the realtime connection of one review session and
// re-dials it after an unexpected drop. The review state lives in the scene
// machine, so a new connection continues where the old one stopped.
//
// All methods are safe for concurrent use.
type Reconnector struct {
	provider    s2s.Provider
	cfg         s2s.SessionConfig
	maxRetries  int
	backoff     time.Duration
	maxBackoff  time.Duration
	onReconnect func(s2s.SessionHandle)
	onGiveUp    func()

	mu           sync.Mutex
	handle       s2s.SessionHandle
	done         chan struct{}
	stopOnce     sync.Once
	disconnected chan struct{}
}

// ReconnectorConfig configures a [Reconnector].
type ReconnectorConfig struct {
	Provider s2s.Provider
	Session  s2s.SessionConfig

	// MaxRetries is the number of attempts per drop. Default: 5.
	MaxRetries int

	// Backoff doubles after every failed attempt up to MaxBackoff.
	// Defaults: 1s and 15s.
	Backoff    time.Duration
	MaxBackoff time.Duration

	// OnReconnect is called with each replacement handle. May be nil.
	OnReconnect func(s2s.SessionHandle)

	// OnGiveUp is called when every attempt for a drop failed. May be nil.
	OnGiveUp func()
}

// NewReconnector creates a [Reconnector].
func NewReconnector(cfg ReconnectorConfig) *Reconnector {
	r := &Reconnector{
		provider:     cfg.Provider,
		cfg:          cfg.Session,
		maxRetries:   cfg.MaxRetries,
		backoff:      cfg.Backoff,
		maxBackoff:   cfg.MaxBackoff,
		onReconnect:  cfg.OnReconnect,
		onGiveUp:     cfg.OnGiveUp,
		done:         make(chan struct{}),
		disconnected: make(chan struct{}, 1),
	}
	if r.maxRetries <= 0 {
		r.maxRetries = defaultMaxRetries
	}
	if r.backoff <= 0 {
		r.backoff = defaultBackoff
	}
	if r.maxBackoff <= 0 {
		r.maxBackoff = defaultMaxBackoff
	}
	return r
}

// Connect opens the initial realtime session.
func (r *Reconnector) Connect(ctx context.Context) (s2s.SessionHandle, error) {
	h, err := r.provider.Connect(ctx, r.cfg)
	if err != nil {
		return nil, fmt.Errorf("session: realtime connect: %w", err)
	}
	r.mu.Lock()
	r.handle = h
	r.mu.Unlock()
	return h, nil
}

// Monitor starts the background goroutine that serves [Reconnector.NotifyDisconnect].
func (r *Reconnector) Monitor(ctx context.Context) {
	go r.monitorLoop(ctx)
}

// NotifyDisconnect asks the monitor to re-dial. Signals arriving during a
// reconnection cycle are coalesced.
func (r *Reconnector) NotifyDisconnect() {
	select {
	case r.disconnected <- struct{}{}:
	default:
	}
}

// Handle returns the current handle, or nil after Stop.
func (r *Reconnector) Handle() s2s.SessionHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handle
}

// Stop halts monitoring and closes the current handle. Idempotent.
func (r *Reconnector) Stop() error {
	r.stopOnce.Do(func() { close(r.done) })

	r.mu.Lock()
	h := r.handle
	r.handle = nil
	r.mu.Unlock()

	if h != nil {
		return h.Close()
	}
	return nil
}

func (r *Reconnector) stopped() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func (r *Reconnector) monitorLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-r.disconnected:
			r.attemptReconnect(ctx)
		}
	}
}

func (r *Reconnector) attemptReconnect(ctx context.Context) {
	wait := r.backoff
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		if ctx.Err() != nil || r.stopped() {
			return
		}
		slog.Info("session: reconnecting realtime", "attempt", attempt, "max_retries", r.maxRetries)

		h, err := r.provider.Connect(ctx, r.cfg)
		if err == nil {
			r.mu.Lock()
			if r.stopped() {
				r.mu.Unlock()
				_ = h.Close()
				return
			}
			old := r.handle
			r.handle = h
			r.mu.Unlock()

			if old != nil {
				_ = old.Close()
			}
			slog.Info("session: realtime reconnected", "attempt", attempt)
			if r.onReconnect != nil {
				r.onReconnect(h)
			}
			return
		}
		slog.Warn("session: realtime reconnect failed", "attempt", attempt, "err", err)

		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-time.After(wait):
		}
		wait = min(wait*2, r.maxBackoff)
	}

	slog.Error("session: realtime reconnect gave up", "max_retries", r.maxRetries)
	if r.onGiveUp != nil {
		r.onGiveUp()
	}
}
