// Package reconcile flushes buffered review outcomes to the persistence
// backend and folds each synced session into long-term memory.
//
// Delivery is at least once: sent updates are removed from the local pending
// store only after the backend acknowledged the whole batch, and a failed
// sync leaves the store untouched for the next attempt. Updates written while
// a batch is in flight are not part of it and stay pending. Re-sending is
// safe because the backend upserts by vocabulary id.
package reconcile

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/TylorChan/Vocabulary-Builder-App/internal/observe"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/memory"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/pending"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/review"
)

// Saver persists a stripped batch of card updates.
type Saver interface {
	SaveReviewSession(ctx context.Context, updates []review.CardUpdate) (review.SaveResult, error)
}

// Config holds the dependencies of a [Reconciler].
type Config struct {
	Store   pending.Store
	Backend Saver

	// Memory receives the session fold. Nil skips it.
	Memory memory.Service

	Observer review.Observer
	Metrics  *observe.Metrics
	Now      func() time.Time
}

// Reconciler flushes the pending store of any user. It holds no per-user
// state and is safe for concurrent use, though two flushes for the same
// user may both send the batch.
type Reconciler struct {
	cfg Config
}

// New creates a Reconciler.
func New(cfg Config) *Reconciler {
	if cfg.Observer == nil {
		cfg.Observer = review.NopObserver{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Reconciler{cfg: cfg}
}

// Session describes the review session being flushed, used for the memory
// fold.
type Session struct {
	ID     string
	Scenes []string
	Deck   *review.Deck
}

// Option configures a single Flush.
type Option func(*Session)

// WithSession attaches session details to the memory fold.
func WithSession(s Session) Option {
	return func(dst *Session) { *dst = s }
}

// Report is the outcome of a Flush.
type Report struct {
	Pending        int      `json:"pending"`
	Synced         int      `json:"synced"`
	DifficultWords []string `json:"difficultWords"`
	Message        string   `json:"message"`
}

// Flush syncs userID's pending updates. It returns an error only when the
// batch could not be delivered or the store could not be read or updated;
// memory fold failures are logged.
func (r *Reconciler) Flush(ctx context.Context, userID string, opts ...Option) (Report, error) {
	var sess Session
	for _, o := range opts {
		o(&sess)
	}
	log := observe.Logger(ctx).With("user_id", userID)
	start := r.cfg.Now()

	list, err := r.cfg.Store.Load(ctx, userID)
	if err != nil {
		return Report{}, r.fail(ctx, start, fmt.Errorf("reconcile: load: %w", err))
	}
	if len(list) == 0 {
		rep := Report{DifficultWords: []string{}, Message: "No pending review updates to sync"}
		r.breadcrumb(rep.Message)
		r.cfg.Metrics.RecordSync(ctx, 0, r.cfg.Now().Sub(start), nil)
		return rep, nil
	}

	rep := Report{Pending: len(list), DifficultWords: DifficultWords(list)}
	r.breadcrumb(fmt.Sprintf("Syncing %d review updates…", len(list)))

	res, err := r.cfg.Backend.SaveReviewSession(ctx, review.StripAll(list))
	if err == nil {
		err = res.Err()
	}
	if err != nil {
		return rep, r.fail(ctx, start, fmt.Errorf("reconcile: %w", err))
	}

	if err := r.cfg.Store.Remove(ctx, userID, list); err != nil {
		return rep, r.fail(ctx, start, fmt.Errorf("reconcile: remove synced: %w", err))
	}
	rep.Synced = res.SavedCount
	rep.Message = fmt.Sprintf("Synced %d updates", res.SavedCount)
	r.breadcrumb(rep.Message)
	r.cfg.Metrics.RecordSync(ctx, res.SavedCount, r.cfg.Now().Sub(start), nil)
	r.cfg.Observer.OnEvent(review.EventSync, rep)
	log.Info("reconcile: synced", "pending", len(list), "saved", res.SavedCount)

	if r.cfg.Memory != nil {
		if err := r.fold(ctx, userID, sess, list, rep.DifficultWords); err != nil {
			log.Warn("reconcile: memory update failed", "err", err)
		}
	}
	return rep, nil
}

func (r *Reconciler) fail(ctx context.Context, start time.Time, err error) error {
	r.breadcrumb(fmt.Sprintf("Sync failed (will retry next time): %v", err))
	r.cfg.Metrics.RecordSync(ctx, 0, r.cfg.Now().Sub(start), err)
	return err
}

func (r *Reconciler) breadcrumb(msg string) {
	r.cfg.Observer.OnEvent(review.EventBreadcrumb, review.Breadcrumb{Message: msg})
}

// fold appends the session to episodic memory and indexes a summary. The
// two writes are independent and run concurrently.
func (r *Reconciler) fold(ctx context.Context, userID string, sess Session, list []review.PendingUpdate, difficult []string) error {
	now := r.cfg.Now()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		profile, err := r.cfg.Memory.Bootstrap(gctx, userID)
		if err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		ep := profile.Episodic
		ep.AddEpisode(memory.Episode{
			At:             now,
			SessionID:      sess.ID,
			Reviewed:       len(list),
			DifficultWords: difficult,
		}, sess.Scenes)
		if err := r.cfg.Memory.PutBucket(gctx, userID, memory.BucketEpisodic, ep); err != nil {
			return fmt.Errorf("episodic: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		meta := map[string]string{"type": "session_summary", "userId": userID}
		if sess.ID != "" {
			meta["sessionId"] = sess.ID
		}
		if err := r.cfg.Memory.AddSemantic(gctx, userID, Summary(now, list, sess.Deck), meta); err != nil {
			return fmt.Errorf("semantic: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// DifficultWords returns the ids rated again or hard, in pending order.
func DifficultWords(list []review.PendingUpdate) []string {
	out := []string{}
	for _, u := range list {
		if u.Rating.Difficult() && !slices.Contains(out, u.VocabularyID) {
			out = append(out, u.VocabularyID)
		}
	}
	return out
}

// Summary renders a one-paragraph description of a synced session for the
// semantic index. Words are named by text when deck knows them.
func Summary(at time.Time, list []review.PendingUpdate, deck *review.Deck) string {
	name := func(id string) string {
		if deck != nil {
			if it, ok := deck.Get(id); ok {
				return it.Text
			}
		}
		return id
	}

	var hard, easy []string
	for _, u := range list {
		switch {
		case u.Rating.Difficult():
			hard = append(hard, name(u.VocabularyID))
		case u.Rating >= review.RatingGood:
			easy = append(easy, name(u.VocabularyID))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Review session on %s: %d words reviewed.", at.UTC().Format("2006-01-02"), len(list))
	if len(hard) > 0 {
		fmt.Fprintf(&b, " Struggled with: %s.", strings.Join(hard, ", "))
	}
	if len(easy) > 0 {
		fmt.Fprintf(&b, " Recalled well: %s.", strings.Join(easy, ", "))
	}
	return b.String()
}
