// Package app wires all vocabulary tutor subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the HTTP API, and Shutdown tears everything down in
// order, syncing every open session before the stores are closed.
//
// For testing, inject mock implementations via functional options
// (WithBackend, WithPendingStore, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/TylorChan/Vocabulary-Builder-App/internal/capture"
	"github.com/TylorChan/Vocabulary-Builder-App/internal/config"
	"github.com/TylorChan/Vocabulary-Builder-App/internal/health"
	"github.com/TylorChan/Vocabulary-Builder-App/internal/mcp/mcphost"
	"github.com/TylorChan/Vocabulary-Builder-App/internal/observe"
	"github.com/TylorChan/Vocabulary-Builder-App/internal/reconcile"
	"github.com/TylorChan/Vocabulary-Builder-App/internal/resilience"
	"github.com/TylorChan/Vocabulary-Builder-App/internal/session"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/memory"
	memhttp "github.com/TylorChan/Vocabulary-Builder-App/pkg/memory/httpclient"
	mempg "github.com/TylorChan/Vocabulary-Builder-App/pkg/memory/postgres"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/pending"
	pendingpg "github.com/TylorChan/Vocabulary-Builder-App/pkg/pending/postgres"
	pendingredis "github.com/TylorChan/Vocabulary-Builder-App/pkg/pending/redis"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/pending/sqlite"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/persistence"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/persistence/graphql"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/embeddings"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/judge"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/judge/httpjudge"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/judge/llmjudge"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/llm"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/planner"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/planner/httpplanner"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/s2s"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/scheduler"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/scheduler/fsrs"
)

// Providers holds one interface value per model slot. Nil means the provider
// is not configured. Populated by main.go via the config registry.
type Providers struct {
	LLM llm.Provider

	// LLMFallback is tried in order after LLM fails.
	LLMFallback []llm.Provider

	S2S        s2s.Provider
	Embeddings embeddings.Provider
}

// pinger is implemented by stores that can report their connectivity.
type pinger interface {
	Ping(ctx context.Context) error
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics
	telemetry *observe.Telemetry

	// Subsystems, initialised in New and torn down in Shutdown.
	llm        llm.Provider
	backend    persistence.Backend
	scheduler  scheduler.Provider
	judge      judge.Provider
	planner    planner.Provider
	pending    pending.Store
	memory     memory.Service
	tools      *mcphost.Host
	reconciler *reconcile.Reconciler
	capture    *capture.Service
	sessions   *SessionManager
	checkers   []health.Checker

	server *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithBackend injects the persistence backend.
func WithBackend(b persistence.Backend) Option {
	return func(a *App) { a.backend = b }
}

// WithScheduler injects the scheduler. It is used without a breaker.
func WithScheduler(s scheduler.Provider) Option {
	return func(a *App) { a.scheduler = s }
}

// WithJudge injects the scene judge instead of building the judge chain.
func WithJudge(j judge.Provider) Option {
	return func(a *App) { a.judge = j }
}

// WithPlanner injects the scene planner.
func WithPlanner(p planner.Provider) Option {
	return func(a *App) { a.planner = p }
}

// WithPendingStore injects the pending update store.
func WithPendingStore(s pending.Store) Option {
	return func(a *App) { a.pending = s }
}

// WithMemory injects the learner memory service.
func WithMemory(m memory.Service) Option {
	return func(a *App) { a.memory = m }
}

// WithMCPHost injects the shared tool host.
func WithMCPHost(h *mcphost.Host) Option {
	return func(a *App) { a.tools = h }
}

// WithMetrics injects the metrics instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithTelemetry serves /metrics from t's registry and records into its
// instruments unless [WithMetrics] also names some.
func WithTelemetry(t *observe.Telemetry) Option {
	return func(a *App) { a.telemetry = t }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option functions
// to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil && a.telemetry != nil {
		a.metrics = a.telemetry.Metrics
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Remote services ───────────────────────────────────────────────
	if err := a.initServices(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init services: %w", err)
	}

	// ── 2. Pending store ─────────────────────────────────────────────────
	if err := a.initPending(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init pending store: %w", err)
	}

	// ── 3. Learner memory ────────────────────────────────────────────────
	if err := a.initMemory(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init memory: %w", err)
	}

	// ── 4. MCP host ──────────────────────────────────────────────────────
	if err := a.initMCP(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init mcp: %w", err)
	}

	// ── 5. Sync, capture and sessions ────────────────────────────────────
	a.reconciler = reconcile.New(reconcile.Config{
		Store:   a.pending,
		Backend: a.backend,
		Memory:  a.memory,
		Metrics: a.metrics,
	})
	a.capture = capture.New(a.llm, a.backend)
	a.sessions = NewSessionManager(SessionManagerConfig{
		Deps: session.Deps{
			Backend:    a.backend,
			Scheduler:  a.scheduler,
			Judge:      a.judge,
			Planner:    a.planner,
			Pending:    a.pending,
			Reconciler: a.reconciler,
			Memory:     a.memory,
			Realtime:   providers.S2S,
			Tools:      a.tools,
			Metrics:    a.metrics,
		},
		Session: cfg.Session,
		Metrics: a.metrics,
	})

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) breaker(name string) resilience.BreakerConfig {
	b := a.cfg.Services.Breaker
	return resilience.BreakerConfig{
		Name:      name,
		Threshold: b.Threshold,
		Cooldown:  b.Cooldown,
		Probes:    b.Probes,
		OnStateChange: func(name string, from, to resilience.State) {
			slog.Warn("circuit breaker state changed", "name", name, "from", from, "to", to)
		},
	}
}

func httpClient(e config.Endpoint) *http.Client {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// initServices builds the HTTP clients, the LLM failover chain and the judge
// chain in configured order.
func (a *App) initServices() error {
	svc := a.cfg.Services

	if a.providers.LLM != nil {
		a.llm = a.providers.LLM
		if len(a.providers.LLMFallback) > 0 {
			chain := resilience.NewChain[llm.Provider](a.breaker("")).Add("llm", a.providers.LLM)
			for i, p := range a.providers.LLMFallback {
				chain.Add(fmt.Sprintf("llm-fallback-%d", i+1), p)
			}
			a.llm = resilience.NewLLM(chain)
		}
	}

	if a.backend == nil {
		a.backend = graphql.New(svc.Persistence.URL, graphql.WithHTTPClient(httpClient(svc.Persistence)))
	}

	if a.scheduler == nil {
		s := resilience.NewScheduler(
			fsrs.New(svc.Scheduler.URL, fsrs.WithHTTPClient(httpClient(svc.Scheduler))),
			a.breaker("scheduler"),
			a.metrics,
		)
		a.scheduler = s
		a.checkers = append(a.checkers, breakerCheck("scheduler", s.Breaker()))
	}

	if a.judge == nil {
		chain := resilience.NewChain[judge.Provider](a.breaker(""))
		for _, name := range svc.JudgeOrder {
			switch name {
			case config.JudgeLLM:
				if a.llm == nil {
					return errors.New("judge_order names llm but no LLM provider is configured")
				}
				chain.Add("judge-llm", llmjudge.New(a.llm))
			case config.JudgeHTTP:
				chain.Add("judge-http", httpjudge.New(svc.Judge.URL, httpjudge.WithHTTPClient(httpClient(svc.Judge))))
			}
		}
		if chain.Len() == 0 {
			return errors.New("no scene judge configured")
		}
		a.judge = resilience.NewJudge(chain)
		a.checkers = append(a.checkers, chainCheck("judge", chain.Names(), chain.Breaker))
	}

	if a.planner == nil && svc.Planner.URL != "" {
		a.planner = httpplanner.New(svc.Planner.URL, httpplanner.WithHTTPClient(httpClient(svc.Planner)))
	}
	return nil
}

// initPending opens the configured pending update store.
func (a *App) initPending(ctx context.Context) error {
	if a.pending == nil {
		st := a.cfg.Store
		switch st.Backend {
		case config.StorePostgres:
			s, err := pendingpg.NewStore(ctx, st.PostgresDSN)
			if err != nil {
				return err
			}
			a.pending = s
			a.closers = append(a.closers, func() error { s.Close(); return nil })
		case config.StoreRedis:
			s, err := pendingredis.New(ctx, pendingredis.Options{
				Addr:     st.RedisAddr,
				Password: st.RedisPassword,
				DB:       st.RedisDB,
			})
			if err != nil {
				return err
			}
			a.pending = s
			a.closers = append(a.closers, s.Close)
		default:
			s, err := sqlite.Open(st.SQLitePath)
			if err != nil {
				return err
			}
			a.pending = s
			a.closers = append(a.closers, s.Close)
		}
		slog.Info("pending store ready", "backend", st.Backend)
	}
	if p, ok := a.pending.(pinger); ok {
		a.checkers = append(a.checkers, health.Checker{Name: "pending_store", Check: p.Ping})
	}
	return nil
}

// initMemory connects learner memory. A missing backend leaves memory nil;
// sessions then run on the default profile.
func (a *App) initMemory(ctx context.Context) error {
	if a.memory == nil {
		mc := a.cfg.Memory
		switch mc.Backend {
		case config.MemoryHTTP:
			var opts []memhttp.Option
			if mc.CacheTTL > 0 {
				opts = append(opts, memhttp.WithCacheTTL(mc.CacheTTL))
			}
			a.memory = memhttp.New(mc.URL, opts...)
		case config.MemoryPostgres:
			if a.providers.Embeddings == nil {
				return errors.New("memory backend postgres requires an embeddings provider")
			}
			s, err := mempg.NewStore(ctx, mc.PostgresDSN, a.providers.Embeddings)
			if err != nil {
				return err
			}
			a.memory = s
			a.closers = append(a.closers, func() error { s.Close(); return nil })
		default:
			return nil
		}
		slog.Info("learner memory ready", "backend", mc.Backend)
	}
	if p, ok := a.memory.(pinger); ok {
		a.checkers = append(a.checkers, health.Checker{Name: "memory", Check: p.Ping, Optional: true})
	}
	return nil
}

// initMCP creates the shared tool host and registers external servers.
func (a *App) initMCP(ctx context.Context) error {
	if a.tools == nil {
		host := mcphost.New(mcphost.WithMetrics(a.metrics))
		a.tools = host
		a.closers = append(a.closers, host.Close)
	}
	for _, srv := range a.cfg.MCP.Servers {
		if err := a.tools.RegisterServer(ctx, srv.ToServerConfig()); err != nil {
			return fmt.Errorf("register mcp server %q: %w", srv.Name, err)
		}
		slog.Info("registered MCP server", "name", srv.Name, "transport", srv.Transport)
	}
	return nil
}

func breakerCheck(name string, b *resilience.Breaker) health.Checker {
	return health.Checker{Name: name, Check: func(context.Context) error {
		if b.State() == resilience.Open {
			return resilience.ErrCircuitOpen
		}
		return nil
	}}
}

// chainCheck fails only when every member's breaker is open.
func chainCheck(name string, members []string, breaker func(string) *resilience.Breaker) health.Checker {
	return health.Checker{Name: name, Check: func(context.Context) error {
		for _, m := range members {
			if breaker(m).State() != resilience.Open {
				return nil
			}
		}
		return resilience.ErrAllFailed
	}}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Sessions returns the session manager.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Run serves the HTTP API and blocks until ctx is cancelled or the listener
// fails. Call Shutdown afterwards.
func (a *App) Run(ctx context.Context) error {
	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.ListenAndServe()
		}
		errCh <- err
	}()

	slog.Info("app running", "addr", a.cfg.Server.ListenAddr, "tls", a.cfg.Server.TLS != nil)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops accepting requests, stops and syncs every open session, then
// closes the stores. It respects the context deadline: if ctx expires before
// all closers finish, remaining closers are skipped and the context error is
// returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "sessions", a.sessions.Count(), "closers", len(a.closers))

		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				slog.Warn("http shutdown error", "err", err)
			}
		}

		if err := a.sessions.StopAll(ctx); err != nil {
			slog.Warn("session stop errors", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll releases whatever New opened before failing.
func (a *App) closeAll() {
	for _, c := range a.closers {
		_ = c()
	}
	a.closers = nil
}
