// Package scene implements the role-play review state machine that the voice
// tutor drives through tool calls.
//
// A [Machine] owns the session context of one review session. Scenes are
// fetched with [Machine.NextScene], played, marked done and finally handed to
// the rating worker by [Machine.RequestSceneRating]. The scene index only
// advances at rating time, so a scene that was fetched but never finished can
// be fetched again.
//
// Wrong-state calls never return errors. They report {ok:false, reason} so
// the model can recover on its next turn.
package scene

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/TylorChan/Vocabulary-Builder-App/internal/evidence"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/review"
)

// Reasons reported in unsuccessful results.
const (
	ReasonSceneActive    = "scene already active"
	ReasonAlreadyStarted = "scene already started"
	ReasonNotInScene     = "not in scene"
	ReasonNoActiveScene  = "no active scene"
	ReasonSceneNotDone   = "scene not done"
	ReasonNotRatedYet    = "not rated yet"
	ReasonWrongStep      = "wrong step"

	ErrorNoPlan = "no role-play plan"
)

// Enqueuer receives finished scenes for background rating. Enqueue reports
// whether the job was accepted.
type Enqueuer interface {
	Enqueue(job review.RatingJob) bool
}

// Result is the outcome of a state-changing operation.
type Result struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// SceneResult is the outcome of [Machine.NextScene].
type SceneResult struct {
	OK     bool          `json:"ok"`
	Done   bool          `json:"done,omitempty"`
	Reason string        `json:"reason,omitempty"`
	Error  string        `json:"error,omitempty"`
	Scene  *review.Scene `json:"scene,omitempty"`
	Index  int           `json:"index,omitempty"`
	Total  int           `json:"total,omitempty"`
}

// Config configures a [Machine].
type Config struct {
	// Plan is the ordered scene sequence. A nil or empty plan makes
	// NextScene report an error result.
	Plan *review.Plan

	// Words is the ordered due-word list for the per-word flow.
	Words []review.VocabularyItem

	// Enqueuer receives rating jobs. Required for RequestSceneRating.
	Enqueuer Enqueuer

	// Observer receives progress events. Default: [review.NopObserver].
	Observer review.Observer
}

// sessionContext is the mutable record of one review session.
type sessionContext struct {
	plan                         *review.Plan
	currentSceneIndex            int
	step                         State
	currentScene                 *review.Scene
	activeSceneID                string
	activeSceneStartHistoryIndex int
	reviewComplete               bool
	history                      []review.Turn

	words                       []review.VocabularyItem
	wordIndex                   int
	wordStep                    WordStep
	currentWordRated            bool
	currentVocabularyID         string
	activeWordID                string
	activeWordText              string
	activeWordStartHistoryIndex int
}

// Machine is the scene session state machine. All methods are safe for
// concurrent use; each operation runs atomically under one mutex.
type Machine struct {
	mu  sync.Mutex
	sc  sessionContext
	enq Enqueuer
	obs review.Observer
}

type event struct {
	kind    string
	payload any
}

// New creates a Machine in [NeedScene] with the word flow at [NeedWord].
func New(cfg Config) *Machine {
	obs := cfg.Observer
	if obs == nil {
		obs = review.NopObserver{}
	}
	return &Machine{
		sc: sessionContext{
			plan:                         cfg.Plan,
			step:                         NeedScene,
			activeSceneStartHistoryIndex: evidence.NoStart,
			words:                        append([]review.VocabularyItem(nil), cfg.Words...),
			wordStep:                     NeedWord,
			activeWordStartHistoryIndex:  evidence.NoStart,
		},
		enq: cfg.Enqueuer,
		obs: obs,
	}
}

func (m *Machine) emit(events []event) {
	for _, e := range events {
		m.obs.OnEvent(e.kind, e.payload)
	}
}

// setStep moves to the given state if the transition table allows it.
func (m *Machine) setStep(to State) error {
	if err := transition(m.sc.step, to); err != nil {
		return err
	}
	slog.Debug("scene: transition", "from", m.sc.step, "to", to)
	m.sc.step = to
	return nil
}

// ── Scene operations ─────────────────────────────────────────────────────────

// NextScene returns the scene at the current index and enters [InScene]. It
// does not advance the index. When the plan is exhausted the machine enters
// [Done] and reports {ok:false, done:true}; repeated calls return the same.
func (m *Machine) NextScene() SceneResult {
	m.mu.Lock()
	var events []event
	res := m.nextScene(&events)
	m.mu.Unlock()

	m.emit(events)
	return res
}

func (m *Machine) nextScene(events *[]event) SceneResult {
	sc := &m.sc
	switch {
	case sc.step == Done:
		return SceneResult{Done: true}
	case !sc.step.Idle():
		return SceneResult{Reason: ReasonSceneActive}
	}

	if sc.plan == nil || len(sc.plan.Scenes) == 0 {
		return SceneResult{Error: ErrorNoPlan}
	}

	total := len(sc.plan.Scenes)
	if sc.currentSceneIndex >= total {
		if err := m.setStep(Done); err != nil {
			return SceneResult{Error: err.Error()}
		}
		if !sc.reviewComplete {
			sc.reviewComplete = true
			*events = append(*events, event{review.EventReviewComplete, review.Breadcrumb{Message: "All scenes completed"}})
		}
		return SceneResult{Done: true}
	}

	s := sc.plan.Scenes[sc.currentSceneIndex]
	if err := m.setStep(InScene); err != nil {
		return SceneResult{Error: err.Error()}
	}
	sc.currentScene = &s
	sc.activeSceneID = ""
	sc.activeSceneStartHistoryIndex = evidence.NoStart

	*events = append(*events,
		event{review.EventNowReviewing, review.Breadcrumb{
			Message: "Now reviewing: " + strings.Join(s.TargetWords, ", "),
			Words:   append([]string(nil), s.TargetWords...),
		}},
		event{review.EventScene, review.Breadcrumb{
			Message: fmt.Sprintf("Scene %d / %d: %s", sc.currentSceneIndex+1, total, s.Title),
		}},
	)

	out := s
	return SceneResult{OK: true, Scene: &out, Index: sc.currentSceneIndex + 1, Total: total}
}

// StartScene marks the evidence boundary of the current scene. It is a no-op
// when the scene was already started under sceneID.
func (m *Machine) StartScene(sceneID, title string) Result {
	m.mu.Lock()
	sc := &m.sc
	if sc.step == InScene && sc.activeSceneID == sceneID && sceneID != "" {
		m.mu.Unlock()
		return Result{Reason: ReasonAlreadyStarted}
	}
	if sc.step != InScene {
		m.mu.Unlock()
		return Result{Reason: ReasonNotInScene}
	}

	sc.activeSceneStartHistoryIndex = len(sc.history)
	sc.activeSceneID = sceneID
	var started review.Scene
	if sc.currentScene != nil {
		started = *sc.currentScene
	}
	start := sc.activeSceneStartHistoryIndex
	m.mu.Unlock()

	slog.Debug("scene: started", "scene_id", sceneID, "title", title, "history_index", start)
	m.obs.OnEvent(review.EventSceneStarted, started)
	return Result{OK: true}
}

// MarkSceneDone moves an active scene to [SceneDone].
func (m *Machine) MarkSceneDone() Result {
	m.mu.Lock()
	if m.sc.step != InScene && m.sc.step != SceneDone {
		m.mu.Unlock()
		return Result{Reason: ReasonNoActiveScene}
	}
	if err := m.setStep(SceneDone); err != nil {
		m.mu.Unlock()
		return Result{Reason: err.Error()}
	}
	m.mu.Unlock()

	m.obs.OnEvent(review.EventSceneDone, review.Breadcrumb{Message: "Scene done"})
	return Result{OK: true}
}

// RequestSceneRating hands the finished scene and its evidence to the rating
// worker and advances the scene index by one. Outside [SceneDone] it reports
// "scene not done" and changes nothing.
func (m *Machine) RequestSceneRating() Result {
	m.mu.Lock()
	sc := &m.sc
	if sc.step != SceneDone {
		m.mu.Unlock()
		return Result{Reason: ReasonSceneNotDone}
	}

	ev := evidence.Scene(sc.history, sc.activeSceneStartHistoryIndex)

	if err := m.setStep(RateScene); err != nil {
		m.mu.Unlock()
		return Result{Reason: err.Error()}
	}
	sc.currentSceneIndex++

	var job review.RatingJob
	if sc.currentScene != nil {
		job.Scene = *sc.currentScene
	}
	job.Evidence = ev

	// RateScene → NextScene is always in the table.
	_ = m.setStep(NextScene)
	enq := m.enq
	m.mu.Unlock()

	accepted := false
	if enq != nil {
		accepted = enq.Enqueue(job)
	}
	slog.Debug("scene: rating requested", "scene_id", job.Scene.Key(), "accepted", accepted, "evidence_len", len(ev))
	m.obs.OnEvent(review.EventRatingRequested, job)
	return Result{OK: true}
}

// ── Conversation log ─────────────────────────────────────────────────────────

// AppendTurn appends t to the conversation log, stamping it with the current
// time when At is zero.
func (m *Machine) AppendTurn(t review.Turn) {
	if t.At.IsZero() {
		t.At = time.Now()
	}
	m.mu.Lock()
	m.sc.history = append(m.sc.history, t)
	m.mu.Unlock()
}

// History returns a copy of the conversation log.
func (m *Machine) History() []review.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]review.Turn(nil), m.sc.history...)
}

// State returns the current scene state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sc.step
}

// ReviewComplete reports whether the plan has been exhausted.
func (m *Machine) ReviewComplete() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sc.reviewComplete
}

// Snapshot is a read-only view of the session context.
type Snapshot struct {
	Step                         State         `json:"step"`
	CurrentSceneIndex            int           `json:"currentSceneIndex"`
	TotalScenes                  int           `json:"totalScenes"`
	CurrentScene                 *review.Scene `json:"currentScene,omitempty"`
	ActiveSceneID                string        `json:"activeSceneId,omitempty"`
	ActiveSceneStartHistoryIndex int           `json:"activeSceneStartHistoryIndex"`
	ReviewComplete               bool          `json:"reviewComplete"`
	HistoryLen                   int           `json:"historyLen"`

	WordStep     WordStep `json:"wordStep"`
	WordIndex    int      `json:"wordIndex"`
	TotalWords   int      `json:"totalWords"`
	ActiveWordID string   `json:"activeWordId,omitempty"`
}

// Snapshot returns a copy of the session context without the history.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc := &m.sc
	snap := Snapshot{
		Step:                         sc.step,
		CurrentSceneIndex:            sc.currentSceneIndex,
		ActiveSceneID:                sc.activeSceneID,
		ActiveSceneStartHistoryIndex: sc.activeSceneStartHistoryIndex,
		ReviewComplete:               sc.reviewComplete,
		HistoryLen:                   len(sc.history),
		WordStep:                     sc.wordStep,
		WordIndex:                    sc.wordIndex,
		TotalWords:                   len(sc.words),
		ActiveWordID:                 sc.activeWordID,
	}
	if sc.plan != nil {
		snap.TotalScenes = len(sc.plan.Scenes)
	}
	if sc.currentScene != nil {
		s := *sc.currentScene
		snap.CurrentScene = &s
	}
	return snap
}
