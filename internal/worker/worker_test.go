package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TylorChan/Vocabulary-Builder-App/internal/rating"
	"github.com/TylorChan/Vocabulary-Builder-App/internal/worker"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/judge"
	judgemock "github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/judge/mock"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/review"
)

// ── test doubles ─────────────────────────────────────────────────────────────

type submitCall struct {
	ID     string
	Rating review.Rating
}

type fakeSubmitter struct {
	mu    sync.Mutex
	calls []submitCall
	errs  map[string]error
}

func (f *fakeSubmitter) Submit(_ context.Context, id string, r review.Rating, _ *string) (rating.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, submitCall{ID: id, Rating: r})
	if err := f.errs[id]; err != nil {
		return rating.Result{}, err
	}
	return rating.Result{VocabularyID: id, PendingCount: len(f.calls)}, nil
}

func (f *fakeSubmitter) Calls() []submitCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]submitCall(nil), f.calls...)
}

type flag struct{ v atomic.Bool }

func (f *flag) ReviewComplete() bool { return f.v.Load() }

func testDeck() *review.Deck {
	return review.NewDeck([]review.VocabularyItem{
		{ID: "w1", Text: "exhausted"},
		{ID: "w2", Text: "hang out"},
		{ID: "w3", Text: "grab a bite"},
	})
}

func job(id string, words ...string) review.RatingJob {
	return review.RatingJob{
		Scene:    review.Scene{SceneID: id, Title: "Scene " + id, TargetWordIDs: words},
		Evidence: "USER: evidence for " + id,
	}
}

func newWorker(t *testing.T, cfg worker.Config) *worker.Worker {
	t.Helper()
	if cfg.Deck == nil {
		cfg.Deck = testDeck()
	}
	w := worker.New(context.Background(), cfg)
	t.Cleanup(func() {
		w.Stop()
		w.Wait()
	})
	return w
}

// echoJudge rates every word with the given score.
func echoJudge(score review.Rating) *judgemock.Provider {
	return &judgemock.Provider{
		RateSceneFunc: func(_ context.Context, _ string, words []judge.Word) ([]review.SceneRating, error) {
			out := make([]review.SceneRating, len(words))
			for i, w := range words {
				out[i] = review.SceneRating{VocabularyID: w.ID, Rating: score, Evidence: "ok"}
			}
			return out, nil
		},
	}
}

// ── tests ────────────────────────────────────────────────────────────────────

func TestEnqueue_DuplicateWhilePendingProcessedOnce(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	j := echoJudge(review.RatingGood)
	inner := j.RateSceneFunc
	j.RateSceneFunc = func(ctx context.Context, ev string, words []judge.Word) ([]review.SceneRating, error) {
		<-release
		return inner(ctx, ev, words)
	}
	sub := &fakeSubmitter{}
	w := newWorker(t, worker.Config{Judge: j, Ratings: sub})

	if !w.Enqueue(job("s1", "w1")) {
		t.Fatal("first Enqueue rejected")
	}
	if w.Enqueue(job("s1", "w1")) {
		t.Error("duplicate Enqueue accepted while pending")
	}
	close(release)
	w.Wait()

	if w.Enqueue(job("s1", "w1")) {
		t.Error("Enqueue accepted after done")
	}
	w.Wait()

	if got := j.CallCount(); got != 1 {
		t.Errorf("judge calls = %d, want 1", got)
	}
	if got := w.Status("s1"); got != review.JobDone {
		t.Errorf("status = %q, want done", got)
	}
}

func TestDrain_FIFOAndSequentialSubmits(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	var order []string
	var mu sync.Mutex
	j := &judgemock.Provider{
		RateSceneFunc: func(_ context.Context, ev string, words []judge.Word) ([]review.SceneRating, error) {
			<-release
			mu.Lock()
			order = append(order, ev)
			mu.Unlock()
			out := make([]review.SceneRating, len(words))
			for i, w := range words {
				out[len(words)-1-i] = review.SceneRating{VocabularyID: w.ID, Rating: review.RatingHard}
			}
			return out, nil
		},
	}
	sub := &fakeSubmitter{}
	w := newWorker(t, worker.Config{Judge: j, Ratings: sub})

	w.Enqueue(job("a", "w1", "w2"))
	w.Enqueue(job("b", "w3"))
	close(release)
	w.Wait()

	if fmt.Sprint(order) != "[USER: evidence for a USER: evidence for b]" {
		t.Errorf("judge order = %v", order)
	}
	calls := sub.Calls()
	want := []string{"w2", "w1", "w3"}
	if len(calls) != len(want) {
		t.Fatalf("submits = %+v", calls)
	}
	for i, id := range want {
		if calls[i].ID != id {
			t.Errorf("submit %d = %s, want %s (judge order)", i, calls[i].ID, id)
		}
	}
}

func TestProcess_JudgeFailureMarksFailedAndContinues(t *testing.T) {
	t.Parallel()

	j := &judgemock.Provider{
		RateSceneFunc: func(_ context.Context, ev string, words []judge.Word) ([]review.SceneRating, error) {
			if ev == "USER: evidence for bad" {
				return nil, errors.New("rate-scene failed: overloaded")
			}
			return []review.SceneRating{{VocabularyID: words[0].ID, Rating: review.RatingEasy}}, nil
		},
	}
	sub := &fakeSubmitter{}
	w := newWorker(t, worker.Config{Judge: j, Ratings: sub})

	w.Enqueue(job("bad", "w1"))
	w.Enqueue(job("good", "w2"))
	w.Wait()

	if got := w.Status("bad"); got != review.JobFailed {
		t.Errorf("bad status = %q, want failed", got)
	}
	if got := w.Status("good"); got != review.JobDone {
		t.Errorf("good status = %q, want done", got)
	}
	if calls := sub.Calls(); len(calls) != 1 || calls[0].ID != "w2" {
		t.Errorf("submits = %+v, want only w2", calls)
	}

	// A failed scene may be queued again.
	if !w.Enqueue(job("bad", "w1")) {
		t.Error("re-enqueue of failed scene rejected")
	}
	w.Wait()
}

func TestProcess_MalformedRatingFailsScene(t *testing.T) {
	t.Parallel()

	j := &judgemock.Provider{Ratings: []review.SceneRating{{VocabularyID: "w1", Rating: 9}}}
	sub := &fakeSubmitter{}
	w := newWorker(t, worker.Config{Judge: j, Ratings: sub})

	w.Enqueue(job("s1", "w1"))
	w.Wait()

	if got := w.Status("s1"); got != review.JobFailed {
		t.Errorf("status = %q, want failed", got)
	}
	if len(sub.Calls()) != 0 {
		t.Error("malformed rating was submitted")
	}
}

func TestProcess_SkipsScenesWithoutResolvableWords(t *testing.T) {
	t.Parallel()

	j := echoJudge(review.RatingGood)
	w := newWorker(t, worker.Config{Judge: j, Ratings: &fakeSubmitter{}})

	w.Enqueue(job("empty"))
	w.Enqueue(job("unknown", "nope"))
	w.Wait()

	if j.CallCount() != 0 {
		t.Errorf("judge calls = %d, want 0", j.CallCount())
	}
	for _, id := range []string{"empty", "unknown"} {
		if got := w.Status(id); got != review.JobDone {
			t.Errorf("%s status = %q, want done", id, got)
		}
	}
}

func TestProcess_DropsUnknownIDsBeforeJudging(t *testing.T) {
	t.Parallel()

	j := echoJudge(review.RatingGood)
	w := newWorker(t, worker.Config{Judge: j, Ratings: &fakeSubmitter{}})

	w.Enqueue(job("s1", "w1", "ghost", "w3"))
	w.Wait()

	calls := j.Calls()
	if len(calls) != 1 || len(calls[0].Words) != 2 || calls[0].Words[0].ID != "w1" || calls[0].Words[1].ID != "w3" {
		t.Errorf("judge words = %+v, want w1 and w3", calls)
	}
}

func TestSubmitAll_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		errs        map[string]error
		wantStatus  review.JobStatus
		wantSubmits int
	}{
		{
			name:        "already rated is skipped",
			errs:        map[string]error{"w1": fmt.Errorf("rating: w1: %w", rating.ErrAlreadyRated)},
			wantStatus:  review.JobDone,
			wantSubmits: 3,
		},
		{
			name:        "in progress is skipped",
			errs:        map[string]error{"w2": fmt.Errorf("rating: w2: %w", rating.ErrInProgress)},
			wantStatus:  review.JobDone,
			wantSubmits: 3,
		},
		{
			name:        "scheduler error fails scene and stops",
			errs:        map[string]error{"w2": errors.New("fsrs: status 500: boom")},
			wantStatus:  review.JobFailed,
			wantSubmits: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sub := &fakeSubmitter{errs: tt.errs}
			w := newWorker(t, worker.Config{Judge: echoJudge(review.RatingGood), Ratings: sub})

			w.Enqueue(job("s1", "w1", "w2", "w3"))
			w.Wait()

			if got := w.Status("s1"); got != tt.wantStatus {
				t.Errorf("status = %q, want %q", got, tt.wantStatus)
			}
			if got := len(sub.Calls()); got != tt.wantSubmits {
				t.Errorf("submits = %d, want %d", got, tt.wantSubmits)
			}
		})
	}
}

func TestOnReviewComplete(t *testing.T) {
	t.Parallel()

	session := &flag{}
	done := make(chan struct{}, 2)
	w := newWorker(t, worker.Config{
		Judge:            echoJudge(review.RatingGood),
		Ratings:          &fakeSubmitter{},
		Session:          session,
		OnReviewComplete: func() { done <- struct{}{} },
	})

	w.Enqueue(job("s1", "w1"))
	w.Wait()
	select {
	case <-done:
		t.Fatal("OnReviewComplete fired before the plan was complete")
	default:
	}

	session.v.Store(true)
	w.Enqueue(job("s2", "w2"))
	w.Enqueue(job("s3", "w3"))
	w.Wait()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("OnReviewComplete not called")
	}
	select {
	case <-done:
		t.Error("OnReviewComplete called twice")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCheckComplete(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		judge    *judgemock.Provider
		complete bool
		stop     bool
		want     bool
	}{
		{name: "plan exhausted after last scene rated", judge: echoJudge(review.RatingGood), complete: true, want: true},
		{name: "plan exhausted after last scene failed", judge: &judgemock.Provider{RateSceneErr: errors.New("judge down")}, complete: true, want: true},
		{name: "plan still running", judge: echoJudge(review.RatingGood), complete: false, want: false},
		{name: "worker stopped", judge: echoJudge(review.RatingGood), complete: true, stop: true, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			session := &flag{}
			done := make(chan struct{}, 2)
			w := newWorker(t, worker.Config{
				Judge:            tt.judge,
				Ratings:          &fakeSubmitter{},
				Session:          session,
				OnReviewComplete: func() { done <- struct{}{} },
			})

			// The last scene is rated before the plan reports completion.
			w.Enqueue(job("s1", "w1"))
			w.Wait()
			if tt.stop {
				w.Stop()
			}
			session.v.Store(tt.complete)
			w.CheckComplete()
			w.CheckComplete()

			select {
			case <-done:
				if !tt.want {
					t.Fatal("OnReviewComplete called")
				}
			case <-time.After(200 * time.Millisecond):
				if tt.want {
					t.Fatal("OnReviewComplete not called")
				}
			}
			select {
			case <-done:
				t.Error("OnReviewComplete called twice")
			case <-time.After(50 * time.Millisecond):
			}
		})
	}
}

func TestStop_FinishesInFlightDropsRest(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	release := make(chan struct{})
	j := echoJudge(review.RatingGood)
	inner := j.RateSceneFunc
	j.RateSceneFunc = func(ctx context.Context, ev string, words []judge.Word) ([]review.SceneRating, error) {
		if ev == "USER: evidence for s1" {
			close(entered)
			<-release
		}
		return inner(ctx, ev, words)
	}
	sub := &fakeSubmitter{}
	w := newWorker(t, worker.Config{Judge: j, Ratings: sub})

	w.Enqueue(job("s1", "w1"))
	w.Enqueue(job("s2", "w2"))
	<-entered

	w.Stop()
	if w.Len() != 0 {
		t.Errorf("queue length after Stop = %d, want 0", w.Len())
	}
	close(release)
	w.Wait()

	if got := w.Status("s1"); got != review.JobDone {
		t.Errorf("in-flight status = %q, want done", got)
	}
	if calls := sub.Calls(); len(calls) != 1 || calls[0].ID != "w1" {
		t.Errorf("submits = %+v, want only w1", calls)
	}
	if w.Enqueue(job("s4", "w3")) {
		t.Error("Enqueue accepted after Stop")
	}
}

func TestWorker_WithRatingService(t *testing.T) {
	t.Parallel()

	// The scene batch and the per-word tool share the at-most-once guard.
	deck := testDeck()
	svc := newRatingService(t, deck)
	if _, err := svc.Submit(context.Background(), "w1", review.RatingEasy, nil); err != nil {
		t.Fatal(err)
	}

	w := newWorker(t, worker.Config{Deck: deck, Judge: echoJudge(review.RatingAgain), Ratings: svc})
	w.Enqueue(job("s1", "w1", "w2"))
	w.Wait()

	if got := w.Status("s1"); got != review.JobDone {
		t.Errorf("status = %q, want done", got)
	}
	if !svc.Rated("w2") || svc.RatedCount() != 2 {
		t.Errorf("rated count = %d, want 2", svc.RatedCount())
	}
}
