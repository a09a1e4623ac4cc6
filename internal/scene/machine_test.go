package scene_test

import (
	"sync"
	"testing"

	"github.com/TylorChan/Vocabulary-Builder-App/internal/scene"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/review"
)

// ── test doubles ─────────────────────────────────────────────────────────────

type recordingEnqueuer struct {
	mu   sync.Mutex
	jobs []review.RatingJob
}

func (e *recordingEnqueuer) Enqueue(job review.RatingJob) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.jobs = append(e.jobs, job)
	return true
}

func (e *recordingEnqueuer) Jobs() []review.RatingJob {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]review.RatingJob(nil), e.jobs...)
}

type recordingObserver struct {
	mu    sync.Mutex
	kinds []string
}

func (o *recordingObserver) OnEvent(kind string, _ any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.kinds = append(o.kinds, kind)
}

func (o *recordingObserver) Count(kind string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, k := range o.kinds {
		if k == kind {
			n++
		}
	}
	return n
}

func testPlan(n int) *review.Plan {
	p := &review.Plan{Mode: review.PlanModeRolePlay}
	titles := []string{"Coffee shop", "Airport", "Job interview", "Gym"}
	for i := range n {
		p.Scenes = append(p.Scenes, review.Scene{
			SceneID:       "s" + string(rune('1'+i)),
			Title:         titles[i%len(titles)],
			TargetWordIDs: []string{"w" + string(rune('1'+i))},
			TargetWords:   []string{"word" + string(rune('1'+i))},
		})
	}
	return p
}

func newMachine(t *testing.T, plan *review.Plan) (*scene.Machine, *recordingEnqueuer, *recordingObserver) {
	t.Helper()
	enq := &recordingEnqueuer{}
	obs := &recordingObserver{}
	m := scene.New(scene.Config{Plan: plan, Enqueuer: enq, Observer: obs})
	return m, enq, obs
}

func say(m *scene.Machine, role, text string) {
	m.AppendTurn(review.Turn{Type: review.TurnMessage, Role: role, Text: text})
}

// playScene runs one full scene cycle and returns the rating result.
func playScene(t *testing.T, m *scene.Machine) scene.Result {
	t.Helper()
	res := m.NextScene()
	if !res.OK {
		t.Fatalf("NextScene() = %+v", res)
	}
	if r := m.StartScene(res.Scene.SceneID, res.Scene.Title); !r.OK {
		t.Fatalf("StartScene() = %+v", r)
	}
	say(m, review.RoleAssistant, "Welcome to the "+res.Scene.Title)
	say(m, review.RoleUser, "Thanks, I am "+res.Scene.TargetWords[0])
	if r := m.MarkSceneDone(); !r.OK {
		t.Fatalf("MarkSceneDone() = %+v", r)
	}
	return m.RequestSceneRating()
}

// ── NextScene ────────────────────────────────────────────────────────────────

func TestNextScene_DoesNotAdvanceIndex(t *testing.T) {
	t.Parallel()

	m, _, obs := newMachine(t, testPlan(2))

	res := m.NextScene()
	if !res.OK || res.Scene == nil || res.Scene.SceneID != "s1" {
		t.Fatalf("NextScene() = %+v, want s1", res)
	}
	if res.Index != 1 || res.Total != 2 {
		t.Errorf("Index/Total = %d/%d, want 1/2", res.Index, res.Total)
	}
	snap := m.Snapshot()
	if snap.Step != scene.InScene || snap.CurrentSceneIndex != 0 {
		t.Errorf("snapshot = %+v, want IN_SCENE at index 0", snap)
	}
	if obs.Count(review.EventNowReviewing) != 1 || obs.Count(review.EventScene) != 1 {
		t.Errorf("breadcrumbs not emitted: %v", obs.kinds)
	}
}

func TestNextScene_GuardedWhileActive(t *testing.T) {
	t.Parallel()

	m, _, _ := newMachine(t, testPlan(2))
	m.NextScene()

	if res := m.NextScene(); res.OK || res.Reason != scene.ReasonSceneActive {
		t.Errorf("NextScene() in IN_SCENE = %+v", res)
	}
	m.MarkSceneDone()
	if res := m.NextScene(); res.OK || res.Reason != scene.ReasonSceneActive {
		t.Errorf("NextScene() in SCENE_DONE = %+v", res)
	}
}

func TestNextScene_NoPlan(t *testing.T) {
	t.Parallel()

	for _, plan := range []*review.Plan{nil, {Mode: review.PlanModeRolePlay}} {
		m, _, _ := newMachine(t, plan)
		res := m.NextScene()
		if res.OK || res.Error != scene.ErrorNoPlan {
			t.Errorf("NextScene() = %+v, want no plan error", res)
		}
		if m.State() != scene.NeedScene {
			t.Errorf("state = %s, want NEED_SCENE", m.State())
		}
	}
}

func TestNextScene_ExhaustedIsIdempotent(t *testing.T) {
	t.Parallel()

	m, _, obs := newMachine(t, testPlan(1))
	if r := playScene(t, m); !r.OK {
		t.Fatalf("RequestSceneRating() = %+v", r)
	}

	for i := range 3 {
		res := m.NextScene()
		if res.OK || !res.Done {
			t.Fatalf("call %d: NextScene() = %+v, want {ok:false, done:true}", i, res)
		}
	}
	if !m.ReviewComplete() {
		t.Error("ReviewComplete = false")
	}
	if m.State() != scene.Done {
		t.Errorf("state = %s, want DONE", m.State())
	}
	if got := obs.Count(review.EventReviewComplete); got != 1 {
		t.Errorf("review_complete events = %d, want 1", got)
	}
}

// ── StartScene ───────────────────────────────────────────────────────────────

func TestStartScene(t *testing.T) {
	t.Parallel()

	t.Run("outside scene", func(t *testing.T) {
		t.Parallel()
		m, _, _ := newMachine(t, testPlan(1))
		if r := m.StartScene("s1", "Coffee shop"); r.OK || r.Reason != scene.ReasonNotInScene {
			t.Errorf("StartScene() = %+v", r)
		}
	})

	t.Run("idempotent for same scene", func(t *testing.T) {
		t.Parallel()
		m, _, obs := newMachine(t, testPlan(1))
		m.NextScene()
		say(m, review.RoleAssistant, "small talk before the scene")

		if r := m.StartScene("s1", "Coffee shop"); !r.OK {
			t.Fatalf("first StartScene() = %+v", r)
		}
		before := m.Snapshot()

		say(m, review.RoleUser, "hello")
		r := m.StartScene("s1", "Coffee shop")
		if r.OK || r.Reason != scene.ReasonAlreadyStarted {
			t.Errorf("second StartScene() = %+v", r)
		}
		after := m.Snapshot()
		if after.ActiveSceneStartHistoryIndex != before.ActiveSceneStartHistoryIndex || after.Step != before.Step {
			t.Errorf("state changed: before %+v after %+v", before, after)
		}
		if before.ActiveSceneStartHistoryIndex != 1 {
			t.Errorf("start index = %d, want 1", before.ActiveSceneStartHistoryIndex)
		}
		if obs.Count(review.EventSceneStarted) != 1 {
			t.Errorf("scene_started events = %d, want 1", obs.Count(review.EventSceneStarted))
		}
	})
}

// ── MarkSceneDone / RequestSceneRating ───────────────────────────────────────

func TestMarkSceneDone_NoActiveScene(t *testing.T) {
	t.Parallel()

	m, _, _ := newMachine(t, testPlan(1))
	if r := m.MarkSceneDone(); r.OK || r.Reason != scene.ReasonNoActiveScene {
		t.Errorf("MarkSceneDone() = %+v", r)
	}
	m.NextScene()
	m.MarkSceneDone()
	if r := m.MarkSceneDone(); !r.OK {
		t.Errorf("repeated MarkSceneDone() = %+v, want ok", r)
	}
}

func TestRequestSceneRating_OutsideSceneDone(t *testing.T) {
	t.Parallel()

	m, enq, _ := newMachine(t, testPlan(2))

	check := func(label string) {
		t.Helper()
		before := m.Snapshot().CurrentSceneIndex
		r := m.RequestSceneRating()
		if r.OK || r.Reason != scene.ReasonSceneNotDone {
			t.Errorf("%s: RequestSceneRating() = %+v", label, r)
		}
		if got := m.Snapshot().CurrentSceneIndex; got != before {
			t.Errorf("%s: index moved %d → %d", label, before, got)
		}
	}

	check("NEED_SCENE")
	m.NextScene()
	check("IN_SCENE")
	m.StartScene("s1", "Coffee shop")
	check("IN_SCENE after start")

	if n := len(enq.Jobs()); n != 0 {
		t.Errorf("enqueued %d jobs, want 0", n)
	}
}

func TestRequestSceneRating_EnqueuesSceneEvidence(t *testing.T) {
	t.Parallel()

	m, enq, _ := newMachine(t, testPlan(2))
	say(m, review.RoleAssistant, "Hi, ready to practise?")

	res := m.NextScene()
	m.StartScene(res.Scene.SceneID, res.Scene.Title)
	say(m, review.RoleAssistant, "Welcome to the cafe")
	m.AppendTurn(review.Turn{Type: review.TurnFunctionCall, Role: review.RoleAssistant, Text: "mark_scene_done"})
	say(m, review.RoleUser, "I'm exhausted, a latte please")
	m.MarkSceneDone()

	if r := m.RequestSceneRating(); !r.OK {
		t.Fatalf("RequestSceneRating() = %+v", r)
	}

	jobs := enq.Jobs()
	if len(jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(jobs))
	}
	want := "TEACHER: Welcome to the cafe\nUSER: I'm exhausted, a latte please"
	if jobs[0].Evidence != want {
		t.Errorf("evidence = %q, want %q", jobs[0].Evidence, want)
	}
	if jobs[0].Scene.SceneID != "s1" {
		t.Errorf("job scene = %q, want s1", jobs[0].Scene.SceneID)
	}

	snap := m.Snapshot()
	if snap.Step != scene.NextScene || snap.CurrentSceneIndex != 1 {
		t.Errorf("snapshot = %+v, want NEXT_SCENE at index 1", snap)
	}
	if next := m.NextScene(); !next.OK || next.Scene.SceneID != "s2" {
		t.Errorf("NextScene() after rating = %+v, want s2", next)
	}
}

func TestSceneIndex_IncreasesOncePerRating(t *testing.T) {
	t.Parallel()

	const scenes = 3
	m, enq, _ := newMachine(t, testPlan(scenes))

	for i := range scenes {
		if got := m.Snapshot().CurrentSceneIndex; got != i {
			t.Fatalf("before scene %d: index = %d", i, got)
		}
		// Stray calls in between must not move the index.
		m.RequestSceneRating()
		if r := playScene(t, m); !r.OK {
			t.Fatalf("scene %d: RequestSceneRating() = %+v", i, r)
		}
		m.StartScene("late", "late")
		m.MarkSceneDone()
		if got := m.Snapshot().CurrentSceneIndex; got != i+1 {
			t.Fatalf("after scene %d: index = %d, want %d", i, got, i+1)
		}
	}
	if res := m.NextScene(); !res.Done {
		t.Errorf("NextScene() = %+v, want done", res)
	}
	if len(enq.Jobs()) != scenes {
		t.Errorf("jobs = %d, want %d", len(enq.Jobs()), scenes)
	}
}

func TestCanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to scene.State
		want     bool
	}{
		{scene.NeedScene, scene.InScene, true},
		{scene.NeedScene, scene.SceneDone, false},
		{scene.InScene, scene.SceneDone, true},
		{scene.InScene, scene.RateScene, false},
		{scene.SceneDone, scene.RateScene, true},
		{scene.RateScene, scene.NextScene, true},
		{scene.NextScene, scene.InScene, true},
		{scene.NextScene, scene.Done, true},
		{scene.Done, scene.InScene, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"→"+tt.to.String(), func(t *testing.T) {
			t.Parallel()
			if got := scene.CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestState_Idle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state scene.State
		want  bool
	}{
		{scene.NeedScene, true},
		{scene.InScene, false},
		{scene.SceneDone, false},
		{scene.RateScene, false},
		{scene.NextScene, true},
		{scene.Done, false},
	}
	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			t.Parallel()
			if got := tt.state.Idle(); got != tt.want {
				t.Errorf("%s.Idle() = %v, want %v", tt.state, got, tt.want)
			}
		})
	}
}
