package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/TylorChan/Vocabulary-Builder-App/internal/app"
	"github.com/TylorChan/Vocabulary-Builder-App/internal/config"
	"github.com/TylorChan/Vocabulary-Builder-App/internal/reconcile"
	"github.com/TylorChan/Vocabulary-Builder-App/internal/session"
	pendingmock "github.com/TylorChan/Vocabulary-Builder-App/pkg/pending/mock"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/persistence"
	persistmock "github.com/TylorChan/Vocabulary-Builder-App/pkg/persistence/mock"
	judgemock "github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/judge/mock"
	plannermock "github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/planner/mock"
	schedmock "github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/scheduler/mock"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/review"
)

func newTestSessionManager(cfg config.SessionConfig) (*app.SessionManager, *persistmock.Backend, *pendingmock.Store) {
	backend := &persistmock.Backend{Due: []review.VocabularyItem{
		{ID: "w1", Text: "hustle", Card: review.SchedulerCard{State: review.StateReview}},
	}}
	store := &pendingmock.Store{}
	sm := app.NewSessionManager(app.SessionManagerConfig{
		Deps: session.Deps{
			Backend:    backend,
			Scheduler:  &schedmock.Provider{},
			Judge:      &judgemock.Provider{},
			Planner:    &plannermock.Provider{},
			Pending:    store,
			Reconciler: reconcile.New(reconcile.Config{Store: store, Backend: backend}),
		},
		Session: cfg,
	})
	return sm, backend, store
}

func TestSessionManager_StartStop(t *testing.T) {
	t.Parallel()

	sm, backend, _ := newTestSessionManager(config.SessionConfig{MaxWords: 5})
	ctx := context.Background()

	s, err := sm.Start(ctx, "u1")
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if info := s.Info(); info.UserID != "u1" || info.Words != 1 || info.ID == "" {
		t.Errorf("Info() = %+v", info)
	}
	if got := backend.DueRequests(); len(got) != 1 || got[0] != "u1" {
		t.Errorf("due words requested for %v, want [u1]", got)
	}
	if sm.Count() != 1 {
		t.Errorf("Count() = %d, want 1", sm.Count())
	}
	if got, ok := sm.Get("u1"); !ok || got != s {
		t.Error("Get(u1) did not return the started session")
	}

	if _, err := sm.Start(ctx, "u1"); !errors.Is(err, app.ErrSessionActive) {
		t.Errorf("second Start() error = %v, want ErrSessionActive", err)
	}

	if _, err := sm.Stop(ctx, "u1"); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if sm.Count() != 0 {
		t.Errorf("Count() after Stop = %d, want 0", sm.Count())
	}
	if _, err := sm.Stop(ctx, "u1"); !errors.Is(err, app.ErrNoSession) {
		t.Errorf("second Stop() error = %v, want ErrNoSession", err)
	}

	// The user can start again right away.
	if _, err := sm.Start(ctx, "u1"); err != nil {
		t.Errorf("restart error: %v", err)
	}
	_ = sm.StopAll(ctx)
}

func TestSessionManager_DefaultUser(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  config.SessionConfig
		want string
	}{
		{name: "configured", cfg: config.SessionConfig{DefaultUser: "learner"}, want: "learner"},
		{name: "fallback", cfg: config.SessionConfig{}, want: persistence.DefaultUserID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sm, _, _ := newTestSessionManager(tt.cfg)
			if got := sm.DefaultUser(); got != tt.want {
				t.Errorf("DefaultUser() = %q, want %q", got, tt.want)
			}

			ctx := context.Background()
			s, err := sm.Start(ctx, "")
			if err != nil {
				t.Fatalf("Start() error: %v", err)
			}
			if s.Info().UserID != tt.want {
				t.Errorf("UserID = %q, want %q", s.Info().UserID, tt.want)
			}
			if _, ok := sm.Get(tt.want); !ok {
				t.Error("session not found under the default user")
			}
			if _, err := sm.Stop(ctx, ""); err != nil {
				t.Errorf("Stop() error: %v", err)
			}
		})
	}
}

func TestSessionManager_ConcurrentStart(t *testing.T) {
	t.Parallel()

	sm, _, _ := newTestSessionManager(config.SessionConfig{})
	ctx := context.Background()

	const n = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		started int
		active  int
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := sm.Start(ctx, "u1")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				started++
			case errors.Is(err, app.ErrSessionActive):
				active++
			default:
				t.Errorf("unexpected Start() error: %v", err)
			}
		}()
	}
	wg.Wait()

	if started != 1 || active != n-1 {
		t.Errorf("started = %d, rejected = %d; want 1 and %d", started, active, n-1)
	}
	if err := sm.StopAll(ctx); err != nil {
		t.Errorf("StopAll() error: %v", err)
	}
}

func TestSessionManager_StartFailureReleasesUser(t *testing.T) {
	t.Parallel()

	sm, backend, _ := newTestSessionManager(config.SessionConfig{})
	ctx := context.Background()

	backend.DueErr = errors.New("graphql down")
	if _, err := sm.Start(ctx, "u1"); err == nil {
		t.Fatal("Start() succeeded with a failing backend")
	}
	if sm.Count() != 0 {
		t.Errorf("Count() = %d, want 0", sm.Count())
	}

	backend.DueErr = nil
	if _, err := sm.Start(ctx, "u1"); err != nil {
		t.Fatalf("Start() after failure error: %v", err)
	}
	_ = sm.StopAll(ctx)
}

func TestSessionManager_StopAll(t *testing.T) {
	t.Parallel()

	sm, _, _ := newTestSessionManager(config.SessionConfig{})
	ctx := context.Background()

	for _, u := range []string{"a", "b", "c"} {
		if _, err := sm.Start(ctx, u); err != nil {
			t.Fatalf("Start(%s) error: %v", u, err)
		}
	}
	if err := sm.StopAll(ctx); err != nil {
		t.Fatalf("StopAll() error: %v", err)
	}
	if sm.Count() != 0 {
		t.Errorf("Count() = %d, want 0", sm.Count())
	}
	for _, u := range []string{"a", "b", "c"} {
		if _, ok := sm.Get(u); ok {
			t.Errorf("session of %s still registered", u)
		}
	}
}
