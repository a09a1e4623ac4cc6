// Package session runs one learner's review session from start to sync.
//
// [Start] loads the due words, bootstraps memory, asks the planner for a
// role-play plan and wires the scene machine, the rating service and the
// background rating worker together. When a realtime provider is configured
// it also opens the voice connection and routes the model's tool calls to the
// session's tutor tools. [Session.Stop] tears everything down in order:
// realtime first, then the worker, then the pending-update flush.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/TylorChan/Vocabulary-Builder-App/internal/mcp"
	"github.com/TylorChan/Vocabulary-Builder-App/internal/mcp/bridge"
	"github.com/TylorChan/Vocabulary-Builder-App/internal/mcp/mcphost"
	"github.com/TylorChan/Vocabulary-Builder-App/internal/mcp/tools"
	"github.com/TylorChan/Vocabulary-Builder-App/internal/mcp/tools/memorytool"
	"github.com/TylorChan/Vocabulary-Builder-App/internal/mcp/tools/tutortool"
	"github.com/TylorChan/Vocabulary-Builder-App/internal/observe"
	"github.com/TylorChan/Vocabulary-Builder-App/internal/rating"
	"github.com/TylorChan/Vocabulary-Builder-App/internal/reconcile"
	"github.com/TylorChan/Vocabulary-Builder-App/internal/scene"
	"github.com/TylorChan/Vocabulary-Builder-App/internal/worker"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/memory"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/pending"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/persistence"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/judge"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/planner"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/s2s"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/scheduler"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/review"
)

// ErrStopped is returned by calls on a session that has been stopped.
var ErrStopped = errors.New("session: stopped")

// Defaults for [Config].
const (
	DefaultMaxWords   = 20
	DefaultHintCount  = 5
	DefaultRecapTurns = 8
	maxBreadcrumbs    = 50
	audioBuffer       = 128
)

// FlushTimeout bounds the sync run by [Session.Stop], independent of the
// caller's deadline.
const FlushTimeout = 15 * time.Second

// Deps are the long-lived services shared by all sessions.
type Deps struct {
	Backend    persistence.Backend
	Scheduler  scheduler.Provider
	Judge      judge.Provider
	Planner    planner.Provider
	Pending    pending.Store
	Reconciler *reconcile.Reconciler

	// Memory is optional. Failures never block a session.
	Memory memory.Service

	// Realtime is optional. Without it turns arrive through AppendTurn and
	// tools through CallTool.
	Realtime s2s.Provider

	// Tools holds the shared tool catalogue, e.g. external MCP servers.
	// Session tools shadow it. Optional.
	Tools *mcphost.Host

	Metrics *observe.Metrics
}

// Config configures one session.
type Config struct {
	UserID string

	// MaxWords caps the due words loaded. Default: [DefaultMaxWords].
	MaxWords int

	// HintCount is the number of semantic memory hits handed to the planner.
	// Default: [DefaultHintCount].
	HintCount int

	// Voice and TranscriptionModel configure the realtime session.
	Voice              string
	TranscriptionModel string

	// EvidenceTurns caps the history attached to word ratings submitted
	// without evidence. Zero uses the rating service default.
	EvidenceTurns int

	// RecapTurns is how much dialogue is replayed after a reconnect.
	// Default: [DefaultRecapTurns].
	RecapTurns int

	// Reconnect tunes realtime reconnection. Provider, Session and the
	// callbacks are set by the session.
	Reconnect ReconnectorConfig

	// Observer receives the session's progress events in addition to the
	// breadcrumb log.
	Observer review.Observer

	// OnReviewComplete is called once, on its own goroutine, when the plan is
	// exhausted and every scene handed to the rater has been judged.
	OnReviewComplete func()
}

// Info is the public description of a running session.
type Info struct {
	ID        string       `json:"sessionId"`
	UserID    string       `json:"userId"`
	Mode      Mode         `json:"mode"`
	StartedAt time.Time    `json:"startedAt"`
	Words     int          `json:"words"`
	Plan      *review.Plan `json:"plan,omitempty"`
	Voice     bool         `json:"voice"`
}

// Snapshot is the session state served to clients.
type Snapshot struct {
	Info
	State          scene.Snapshot      `json:"state"`
	Rated          int                 `json:"rated"`
	Breadcrumbs    []review.Breadcrumb `json:"breadcrumbs"`
	MemoryDegraded bool                `json:"memoryDegraded,omitempty"`
}

// Session is one learner's live review session.
// All methods are safe for concurrent use.
type Session struct {
	info    Info
	deps    Deps
	cfg     Config
	deck    *review.Deck
	profile memory.Profile
	guard   *MemoryGuard

	machine *scene.Machine
	ratings *rating.Service
	worker  *worker.Worker
	tools   []tools.Tool
	host    mcp.Host
	reconn  *Reconnector

	audio  chan []byte
	done   chan struct{}
	cancel context.CancelFunc

	mu     sync.Mutex
	bridge *bridge.Bridge
	crumbs []review.Breadcrumb
	server *mcpsdk.Server

	stopOnce sync.Once
	report   reconcile.Report
	stopErr  error
}

// Start loads and plans a review session for cfg.UserID. Memory and planner
// failures degrade the session instead of failing it; only loading the due
// words and connecting the realtime model are fatal.
func Start(ctx context.Context, deps Deps, cfg Config) (*Session, error) {
	if cfg.UserID == "" {
		cfg.UserID = persistence.DefaultUserID
	}
	if cfg.MaxWords <= 0 {
		cfg.MaxWords = DefaultMaxWords
	}
	if cfg.HintCount <= 0 {
		cfg.HintCount = DefaultHintCount
	}
	if cfg.RecapTurns <= 0 {
		cfg.RecapTurns = DefaultRecapTurns
	}
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}

	ctx, span := observe.StartSpan(ctx, "session.start")
	defer span.End()
	log := observe.Logger(ctx).With("user_id", cfg.UserID)

	words, err := deps.Backend.DueWords(ctx, cfg.UserID)
	if err != nil {
		return nil, fmt.Errorf("session: load due words: %w", err)
	}
	if len(words) > cfg.MaxWords {
		words = words[:cfg.MaxWords]
	}

	s := &Session{
		info: Info{
			ID:        uuid.NewString(),
			UserID:    cfg.UserID,
			StartedAt: time.Now(),
			Words:     len(words),
		},
		deps:    deps,
		cfg:     cfg,
		deck:    review.NewDeck(words),
		profile: memory.DefaultProfile(),
		audio:   make(chan []byte, audioBuffer),
		done:    make(chan struct{}),
	}

	var hints []memory.Hit
	if deps.Memory != nil {
		s.guard = NewMemoryGuard(deps.Memory)
		s.profile, _ = s.guard.Bootstrap(ctx, cfg.UserID)
		if len(words) > 0 {
			hints, _ = s.guard.SearchSemantic(ctx, cfg.UserID, hintQuery(words), cfg.HintCount)
		}
	}

	if len(words) > 0 {
		s.info.Plan = s.plan(ctx, log, words, hints)
	}
	s.info.Mode = ModeFor(s.info.Plan, len(words))

	obs := review.Observers{review.ObserverFunc(s.record), cfg.Observer}
	s.machine = scene.New(scene.Config{
		Plan:     s.info.Plan,
		Words:    words,
		Enqueuer: s,
		Observer: obs,
	})
	s.ratings = rating.NewService(rating.Config{
		UserID:        cfg.UserID,
		Deck:          s.deck,
		Scheduler:     deps.Scheduler,
		Store:         deps.Pending,
		History:       s.machine,
		EvidenceTurns: cfg.EvidenceTurns,
		Metrics:       deps.Metrics,
	})
	s.worker = worker.New(ctx, worker.Config{
		Deck:             s.deck,
		Judge:            deps.Judge,
		Ratings:          s.ratings,
		Session:          s.machine,
		OnReviewComplete: cfg.OnReviewComplete,
		Observer:         obs,
		Metrics:          deps.Metrics,
	})

	s.tools = tutortool.NewTools(s.machine, s.ratings)
	if s.guard != nil {
		s.tools = append(s.tools, memorytool.NewTools(s.guard, cfg.UserID)...)
	}
	shared := deps.Tools
	if shared == nil {
		shared = mcphost.New(mcphost.WithMetrics(deps.Metrics))
	}
	overlay, err := shared.Overlay(s.tools...)
	if err != nil {
		s.worker.Stop()
		return nil, fmt.Errorf("session: tools: %w", err)
	}
	s.host = overlay

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	if deps.Realtime != nil {
		if err := s.connect(ctx, runCtx); err != nil {
			cancel()
			s.worker.Stop()
			return nil, err
		}
	}

	log.Info("session: started",
		"session_id", s.info.ID,
		"mode", s.info.Mode,
		"words", len(words),
		"voice", s.info.Voice,
	)
	return s, nil
}

// plan asks the planner for scenes. A failing or empty plan leaves the
// session in word-by-word mode.
func (s *Session) plan(ctx context.Context, log *slog.Logger, words []review.VocabularyItem, hints []memory.Hit) *review.Plan {
	if s.deps.Planner == nil {
		return nil
	}
	if hints == nil {
		hints = []memory.Hit{}
	}
	raw, err := s.deps.Planner.Plan(ctx, planner.Request{DueWords: words, Memory: s.profile, SemanticHints: hints})
	if err != nil {
		log.Warn("session: planner failed, falling back to word review", "err", err)
		return nil
	}
	p, err := planner.Normalize(raw, words)
	if err != nil {
		log.Warn("session: plan unusable, falling back to word review", "err", err)
		return nil
	}
	return &p
}

func hintQuery(words []review.VocabularyItem) string {
	texts := make([]string, len(words))
	for i, w := range words {
		texts[i] = w.Text
	}
	return strings.Join(texts, ", ")
}

// ── Realtime ─────────────────────────────────────────────────────────────────

func (s *Session) connect(ctx, runCtx context.Context) error {
	rc := s.cfg.Reconnect
	rc.Provider = s.deps.Realtime
	rc.Session = s2s.SessionConfig{
		Voice:              s.cfg.Voice,
		Instructions:       Instructions(s.info.Mode, s.profile, s.info.Plan),
		Tools:              s.host.AvailableTools(),
		TranscriptionModel: s.cfg.TranscriptionModel,
	}
	rc.OnReconnect = func(h s2s.SessionHandle) { s.attach(h, true) }
	rc.OnGiveUp = func() {
		s.record(review.EventBreadcrumb, review.Breadcrumb{Message: "Voice connection lost"})
	}
	s.reconn = NewReconnector(rc)

	h, err := s.reconn.Connect(ctx)
	if err != nil {
		return err
	}
	s.info.Voice = true
	s.attach(h, false)
	s.reconn.Monitor(runCtx)
	return nil
}

// attach wires a realtime handle to the session's tools and conversation
// log. recap replays recent dialogue into a replacement connection.
func (s *Session) attach(h s2s.SessionHandle, recap bool) {
	b, err := bridge.NewBridge(s.host, h)
	if err != nil {
		slog.Error("session: bridge failed", "session_id", s.info.ID, "err", err)
		s.reconn.NotifyDisconnect()
		return
	}
	s.mu.Lock()
	old := s.bridge
	s.bridge = b
	s.mu.Unlock()
	if old != nil {
		old.Close()
	}

	if recap {
		if err := h.InjectTextContext(recapItems(s.machine.History(), s.cfg.RecapTurns)); err != nil {
			slog.Warn("session: recap failed", "session_id", s.info.ID, "err", err)
		}
	}
	go s.pump(h)
}

// pump copies one handle's turns into the conversation log and its audio to
// the session output until the handle closes.
func (s *Session) pump(h s2s.SessionHandle) {
	audioDone := make(chan struct{})
	go func() {
		defer close(audioDone)
		for chunk := range h.Audio() {
			select {
			case s.audio <- chunk:
			default:
				// Slow listener; drop rather than stall the model.
			}
		}
	}()

	for t := range h.Turns() {
		s.machine.AppendTurn(t)
	}
	<-audioDone

	if err := h.Err(); err != nil && !s.stopped() {
		slog.Warn("session: realtime dropped", "session_id", s.info.ID, "err", err)
		s.reconn.NotifyDisconnect()
	}
}

// SendAudio forwards learner PCM16 audio to the realtime model.
func (s *Session) SendAudio(chunk []byte) error {
	if s.reconn == nil {
		return errors.New("session: no realtime connection")
	}
	h := s.reconn.Handle()
	if h == nil {
		return errors.New("session: realtime reconnecting")
	}
	return h.SendAudio(chunk)
}

// Audio emits the tutor's PCM16 audio. It is never closed; select on Done.
func (s *Session) Audio() <-chan []byte { return s.audio }

// Done is closed when Stop begins.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// ── Review surface ───────────────────────────────────────────────────────────

// Enqueue hands a finished scene to the rating worker.
func (s *Session) Enqueue(job review.RatingJob) bool {
	return s.worker.Enqueue(job)
}

// AppendTurn records a conversation turn from an external runtime.
func (s *Session) AppendTurn(t review.Turn) {
	s.machine.AppendTurn(t)
}

// CallTool runs one of the session's tools, shared tools included.
func (s *Session) CallTool(ctx context.Context, name, args string) (*mcp.ToolResult, error) {
	if s.stopped() {
		return nil, ErrStopped
	}
	return s.host.ExecuteTool(ctx, name, args)
}

// Tools lists the tool definitions available to the tutor.
func (s *Session) Tools() []tools.Tool { return s.tools }

// MCPServer exposes the session's own tools over MCP. The server is built on
// first use.
func (s *Session) MCPServer() *mcpsdk.Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		s.server = mcphost.NewServer(s.tools)
	}
	return s.server
}

// Info returns the session description.
func (s *Session) Info() Info { return s.info }

// Snapshot returns the current state without the conversation log.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	crumbs := append([]review.Breadcrumb{}, s.crumbs...)
	s.mu.Unlock()
	snap := Snapshot{
		Info:        s.info,
		State:       s.machine.Snapshot(),
		Rated:       s.ratings.RatedCount(),
		Breadcrumbs: crumbs,
	}
	if s.guard != nil {
		snap.MemoryDegraded = s.guard.IsDegraded()
	}
	return snap
}

// History returns the conversation log.
func (s *Session) History() []review.Turn { return s.machine.History() }

// record keeps the most recent breadcrumbs for Snapshot. An exhausted plan
// ends the session once no scene is left to rate.
func (s *Session) record(kind string, payload any) {
	if kind == review.EventReviewComplete {
		s.worker.CheckComplete()
	}
	bc, ok := payload.(review.Breadcrumb)
	if !ok {
		switch p := payload.(type) {
		case review.Scene:
			bc = review.Breadcrumb{Message: "Scene started: " + p.Title, Words: p.TargetWords}
		case review.RatingJob:
			bc = review.Breadcrumb{Message: "Rating scene: " + p.Scene.Title}
		default:
			return
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.crumbs = append(s.crumbs, bc)
	if over := len(s.crumbs) - maxBreadcrumbs; over > 0 {
		s.crumbs = append(s.crumbs[:0], s.crumbs[over:]...)
	}
}

// ── Stop ─────────────────────────────────────────────────────────────────────

// Stop ends the session: it closes the realtime connection, stops the rating
// worker and waits for an in-flight scene, then flushes pending updates.
// Later calls return the first call's outcome.
func (s *Session) Stop(ctx context.Context) (reconcile.Report, error) {
	s.stopOnce.Do(func() {
		close(s.done)
		log := observe.Logger(ctx).With("user_id", s.info.UserID, "session_id", s.info.ID)

		s.mu.Lock()
		b := s.bridge
		s.bridge = nil
		s.mu.Unlock()
		if b != nil {
			b.Close()
		}
		if s.reconn != nil {
			if err := s.reconn.Stop(); err != nil {
				log.Warn("session: realtime close failed", "err", err)
			}
		}
		s.cancel()

		s.worker.Stop()
		waited := make(chan struct{})
		go func() {
			s.worker.Wait()
			close(waited)
		}()
		select {
		case <-waited:
		case <-ctx.Done():
			log.Warn("session: stop deadline hit while a scene was being rated")
		}

		// The sync gets its own budget: a stop deadline spent waiting on the
		// rater must not fail it. Ratings that land afterwards stay pending.
		flushCtx, cancelFlush := context.WithTimeout(context.WithoutCancel(ctx), FlushTimeout)
		defer cancelFlush()
		s.report, s.stopErr = s.deps.Reconciler.Flush(flushCtx, s.info.UserID, reconcile.WithSession(reconcile.Session{
			ID:     s.info.ID,
			Scenes: s.playedScenes(),
			Deck:   s.deck,
		}))
		log.Info("session: stopped",
			"synced", s.report.Synced,
			"pending", s.report.Pending,
			"duration", time.Since(s.info.StartedAt).Round(time.Second),
			"err", s.stopErr,
		)
	})
	return s.report, s.stopErr
}

// playedScenes returns the titles of the scenes handed to the rater.
func (s *Session) playedScenes() []string {
	if s.info.Plan == nil {
		return nil
	}
	n := min(s.machine.Snapshot().CurrentSceneIndex, len(s.info.Plan.Scenes))
	out := make([]string, 0, n)
	for _, sc := range s.info.Plan.Scenes[:n] {
		out = append(out, sc.Title)
	}
	return out
}
