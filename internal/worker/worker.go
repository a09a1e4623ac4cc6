// Package worker implements the background scene-rating queue.
//
// Finished scenes are queued by the scene state machine and drained by at
// most one goroutine, strictly in FIFO order. Each scene is sent to the judge
// and the returned ratings are submitted one at a time to the rating service.
// A failed scene is recorded and never retried within the session; its words
// simply stay due.
package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/TylorChan/Vocabulary-Builder-App/internal/observe"
	"github.com/TylorChan/Vocabulary-Builder-App/internal/rating"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/judge"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/review"
)

// Submitter is the rating entry point used for judged words.
type Submitter interface {
	Submit(ctx context.Context, vocabularyID string, r review.Rating, evidence *string) (rating.Result, error)
}

// CompletionSource reports whether the whole review plan has been played.
type CompletionSource interface {
	ReviewComplete() bool
}

// Config holds the dependencies of a [Worker].
type Config struct {
	// Deck resolves target word ids. Unknown ids are dropped.
	Deck *review.Deck

	// Judge rates a scene's words. Required.
	Judge judge.Provider

	// Ratings receives each judged word. Required.
	Ratings Submitter

	// Session is checked whenever the queue runs empty.
	Session CompletionSource

	// OnReviewComplete is called once, in its own goroutine, when Session
	// reports the plan as complete and no scene is queued or being rated.
	// A scene whose rating failed counts as handled.
	OnReviewComplete func()

	// Observer receives scene_rated events.
	Observer review.Observer

	// Metrics records job outcomes and queue depth.
	Metrics *observe.Metrics
}

// Worker is a single-flight FIFO processor of [review.RatingJob] values.
// All methods are safe for concurrent use.
type Worker struct {
	cfg Config
	ctx context.Context

	mu       sync.Mutex
	queue    []review.RatingJob
	status   map[string]review.JobStatus
	running  bool
	stopped  bool
	notified bool
	wg       sync.WaitGroup
}

// New creates an idle Worker. Jobs run under a context derived from ctx that
// keeps its values but ignores its cancellation, so ending the session never
// aborts a job mid-way.
func New(ctx context.Context, cfg Config) *Worker {
	if cfg.Observer == nil {
		cfg.Observer = review.NopObserver{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	return &Worker{
		cfg:    cfg,
		ctx:    context.WithoutCancel(ctx),
		status: make(map[string]review.JobStatus),
	}
}

// Enqueue queues job unless its scene is already pending or done, starting
// the drain goroutine if it is not running. It reports whether the job was
// accepted. Scenes that previously failed may be queued again.
func (w *Worker) Enqueue(job review.RatingJob) bool {
	key := job.Scene.Key()

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		slog.Debug("worker: enqueue after stop dropped", "scene_id", key)
		return false
	}
	switch w.status[key] {
	case review.JobPending, review.JobDone:
		w.mu.Unlock()
		slog.Debug("worker: duplicate scene dropped", "scene_id", key)
		return false
	}
	w.status[key] = review.JobPending
	w.queue = append(w.queue, job)
	start := !w.running
	if start {
		w.running = true
		w.wg.Add(1)
	}
	w.mu.Unlock()

	w.cfg.Metrics.RatingQueueDepth.Add(w.ctx, 1)
	if start {
		go w.drain()
	}
	return true
}

// Status returns the job status of the scene with the given key, or "" when
// it was never queued.
func (w *Worker) Status(sceneKey string) review.JobStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status[sceneKey]
}

// Len returns the number of queued jobs, excluding the one in flight.
func (w *Worker) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

// Stop abandons the queued jobs. A job already in flight runs to completion;
// use [Worker.Wait] to block until it has.
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	dropped := len(w.queue)
	w.queue = nil
	w.mu.Unlock()

	if dropped > 0 {
		w.cfg.Metrics.RatingQueueDepth.Add(w.ctx, -int64(dropped))
		slog.Info("worker: stopped with unprocessed scenes", "dropped", dropped)
	}
}

// Wait blocks until the drain goroutine has exited.
func (w *Worker) Wait() { w.wg.Wait() }

func (w *Worker) drain() {
	defer w.wg.Done()
	for {
		w.mu.Lock()
		if w.stopped || len(w.queue) == 0 {
			w.running = false
			stopped := w.stopped
			w.mu.Unlock()
			if !stopped {
				w.CheckComplete()
			}
			return
		}
		job := w.queue[0]
		w.queue = w.queue[1:]
		w.mu.Unlock()

		w.cfg.Metrics.RatingQueueDepth.Add(w.ctx, -1)
		w.process(job)
	}
}

func (w *Worker) process(job review.RatingJob) {
	key := job.Scene.Key()
	log := observe.Logger(w.ctx).With("scene_id", key)

	if len(job.Scene.TargetWordIDs) == 0 {
		log.Info("worker: scene has no target words, skipping")
		w.finish(key, review.JobDone)
		return
	}

	items := w.cfg.Deck.Resolve(job.Scene.TargetWordIDs)
	if len(items) == 0 {
		log.Warn("worker: no target word resolved, skipping", "ids", job.Scene.TargetWordIDs)
		w.finish(key, review.JobDone)
		return
	}

	var ratings []review.SceneRating
	err := observe.Call(w.ctx, w.cfg.Metrics, "judge", "rate_scene", func(ctx context.Context) error {
		var err error
		ratings, err = w.cfg.Judge.RateScene(ctx, job.Evidence, judge.WordsFromItems(items))
		return err
	})
	if err == nil {
		err = judge.Validate(ratings)
	}
	if err != nil {
		log.Warn("worker: scene rating failed", "err", err)
		w.finish(key, review.JobFailed)
		return
	}

	if err := w.submitAll(log, ratings); err != nil {
		log.Warn("worker: submitting scene ratings failed", "err", err)
		w.finish(key, review.JobFailed)
		return
	}

	w.finish(key, review.JobDone)
	log.Info("worker: scene rated", "ratings", len(ratings))
	w.cfg.Observer.OnEvent(review.EventSceneRated, job.Scene)
}

// submitAll submits ratings in the judge's order. Duplicate rejections are
// skipped; any other error aborts the remaining ratings of the scene.
func (w *Worker) submitAll(log *slog.Logger, ratings []review.SceneRating) error {
	for _, r := range ratings {
		var ev *string
		if r.Evidence != "" {
			e := r.Evidence
			ev = &e
		}
		_, err := w.cfg.Ratings.Submit(w.ctx, r.VocabularyID, r.Rating, ev)
		if rating.Rejected(err) {
			log.Info("worker: rating skipped", "vocabulary_id", r.VocabularyID, "reason", err)
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) finish(key string, status review.JobStatus) {
	w.mu.Lock()
	w.status[key] = status
	w.mu.Unlock()
	w.cfg.Metrics.RecordSceneJob(w.ctx, string(status))
}

// CheckComplete calls OnReviewComplete when the plan is complete and no
// scene is queued or being rated. The drain goroutine runs the same check
// when the queue empties, so a plan exhausted while a scene is still being
// judged ends the session once that scene finishes.
func (w *Worker) CheckComplete() {
	if w.cfg.Session == nil || !w.cfg.Session.ReviewComplete() {
		return
	}
	w.mu.Lock()
	idle := !w.stopped && !w.running && len(w.queue) == 0
	w.mu.Unlock()
	if idle {
		w.notifyComplete()
	}
}

func (w *Worker) notifyComplete() {
	w.mu.Lock()
	if w.notified || w.cfg.OnReviewComplete == nil {
		w.mu.Unlock()
		return
	}
	w.notified = true
	w.mu.Unlock()

	slog.Info("worker: review complete, ending session")
	go w.cfg.OnReviewComplete()
}
