package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/TylorChan/Vocabulary-Builder-App/internal/config"
	"github.com/TylorChan/Vocabulary-Builder-App/internal/observe"
	"github.com/TylorChan/Vocabulary-Builder-App/internal/reconcile"
	"github.com/TylorChan/Vocabulary-Builder-App/internal/session"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/persistence"
)

var (
	// ErrSessionActive is returned by [SessionManager.Start] when the user
	// already has a session, or one is being started.
	ErrSessionActive = errors.New("app: session already active")

	// ErrNoSession is returned when the user has no active session.
	ErrNoSession = errors.New("app: no active session")
)

// SessionManager runs at most one review session per user.
// All exported methods are safe for concurrent use.
type SessionManager struct {
	deps        session.Deps
	template    session.Config
	stopTimeout time.Duration
	metrics     *observe.Metrics

	mu       sync.Mutex
	sessions map[string]*session.Session
	starting map[string]struct{}
}

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	Deps session.Deps

	// Session holds the defaults applied to every session.
	Session config.SessionConfig

	Metrics *observe.Metrics
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Session.DefaultUser == "" {
		cfg.Session.DefaultUser = persistence.DefaultUserID
	}
	stopTimeout := cfg.Session.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = config.DefaultStopTimeout
	}
	return &SessionManager{
		deps: cfg.Deps,
		template: session.Config{
			UserID:             cfg.Session.DefaultUser,
			MaxWords:           cfg.Session.MaxWords,
			HintCount:          cfg.Session.HintCount,
			EvidenceTurns:      cfg.Session.EvidenceTurns,
			RecapTurns:         cfg.Session.RecapTurns,
			Voice:              cfg.Session.Voice,
			TranscriptionModel: cfg.Session.TranscriptionModel,
		},
		stopTimeout: stopTimeout,
		metrics:     cfg.Metrics,
		sessions:    make(map[string]*session.Session),
		starting:    make(map[string]struct{}),
	}
}

// DefaultUser returns the user id applied when a request names none.
func (sm *SessionManager) DefaultUser() string { return sm.template.UserID }

// Start begins a review session for userID. The slow part of the start runs
// without holding the manager lock; a concurrent Start for the same user
// fails with [ErrSessionActive].
func (sm *SessionManager) Start(ctx context.Context, userID string) (*session.Session, error) {
	userID = sm.resolve(userID)

	sm.mu.Lock()
	if _, ok := sm.sessions[userID]; ok {
		sm.mu.Unlock()
		return nil, fmt.Errorf("%w for user %q", ErrSessionActive, userID)
	}
	if _, ok := sm.starting[userID]; ok {
		sm.mu.Unlock()
		return nil, fmt.Errorf("%w for user %q", ErrSessionActive, userID)
	}
	sm.starting[userID] = struct{}{}
	sm.mu.Unlock()

	var (
		s     *session.Session
		err   error
		ready = make(chan struct{})
	)
	cfg := sm.template
	cfg.UserID = userID
	cfg.OnReviewComplete = func() {
		<-ready
		if s != nil {
			sm.complete(userID, s)
		}
	}
	s, err = session.Start(ctx, sm.deps, cfg)

	sm.mu.Lock()
	delete(sm.starting, userID)
	if err == nil {
		sm.sessions[userID] = s
	}
	sm.mu.Unlock()
	close(ready)
	if err != nil {
		return nil, err
	}

	sm.metrics.ActiveSessions.Add(ctx, 1)
	return s, nil
}

// Get returns the user's active session.
func (sm *SessionManager) Get(userID string) (*session.Session, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s, ok := sm.sessions[sm.resolve(userID)]
	return s, ok
}

// Stop ends the user's session and returns its sync report. The session is
// removed before it is stopped, so the user can start a new one right away.
func (sm *SessionManager) Stop(ctx context.Context, userID string) (reconcile.Report, error) {
	userID = sm.resolve(userID)

	sm.mu.Lock()
	s, ok := sm.sessions[userID]
	delete(sm.sessions, userID)
	sm.mu.Unlock()
	if !ok {
		return reconcile.Report{}, fmt.Errorf("%w for user %q", ErrNoSession, userID)
	}
	return sm.stop(ctx, s)
}

// complete ends s once its review plan is exhausted. A session the user
// already stopped or replaced is left alone.
func (sm *SessionManager) complete(userID string, s *session.Session) {
	sm.mu.Lock()
	if sm.sessions[userID] != s {
		sm.mu.Unlock()
		return
	}
	delete(sm.sessions, userID)
	sm.mu.Unlock()

	report, err := sm.stop(context.Background(), s)
	if err != nil {
		slog.Warn("app: stop after completed review failed", "user_id", userID, "err", err)
		return
	}
	slog.Info("app: review plan completed",
		"user_id", userID,
		"synced", report.Synced,
	)
}

func (sm *SessionManager) stop(ctx context.Context, s *session.Session) (reconcile.Report, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sm.stopTimeout)
	defer cancel()
	defer sm.metrics.ActiveSessions.Add(ctx, -1)
	return s.Stop(ctx)
}

// StopAll stops every session concurrently. It is used during shutdown.
func (sm *SessionManager) StopAll(ctx context.Context) error {
	sm.mu.Lock()
	all := make([]*session.Session, 0, len(sm.sessions))
	for id, s := range sm.sessions {
		all = append(all, s)
		delete(sm.sessions, id)
	}
	sm.mu.Unlock()

	var (
		mu   sync.Mutex
		errs []error
	)
	var g errgroup.Group
	for _, s := range all {
		g.Go(func() error {
			if _, err := sm.stop(ctx, s); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("stop session of %q: %w", s.Info().UserID, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Count returns the number of active sessions.
func (sm *SessionManager) Count() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.sessions)
}

func (sm *SessionManager) resolve(userID string) string {
	if userID == "" {
		return sm.template.UserID
	}
	return userID
}
