// Package rating implements the at-most-once rating submission service.
//
// A [Service] belongs to one review session. It rejects a second rating for a
// word already rated in the session and a concurrent rating for a word whose
// submission is still in flight. Accepted ratings are sent to the scheduler
// and the rescheduled card is buffered in the pending-update store until the
// session is synced.
package rating

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/TylorChan/Vocabulary-Builder-App/internal/evidence"
	"github.com/TylorChan/Vocabulary-Builder-App/internal/observe"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/pending"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/scheduler"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/review"
)

var (
	// ErrAlreadyRated is returned when the word was already rated this session.
	ErrAlreadyRated = errors.New("already rated")

	// ErrInProgress is returned when another submission for the word is in
	// flight.
	ErrInProgress = errors.New("rating in progress")

	// ErrUnknownVocabulary is returned when the id is not part of the session's
	// deck.
	ErrUnknownVocabulary = errors.New("unknown vocabulary id")

	// ErrInvalidRating is returned for ratings outside 1..4.
	ErrInvalidRating = errors.New("rating must be between 1 and 4")
)

// DefaultEvidenceTurns is how many recent dialogue turns are captured as
// per-word evidence.
const DefaultEvidenceTurns = 8

// HistorySource exposes the session's conversation log.
type HistorySource interface {
	History() []review.Turn
}

// Result describes an accepted rating.
type Result struct {
	VocabularyID string
	NextDueDate  time.Time
	PendingCount int
	Evidence     *string
}

// Config holds the dependencies of a [Service].
type Config struct {
	// UserID scopes the pending-update store.
	UserID string

	// Deck resolves vocabulary ids. Cards are replaced after each rating.
	Deck *review.Deck

	// Scheduler computes the next card state.
	Scheduler scheduler.Provider

	// Store buffers the outcome until sync.
	Store pending.Store

	// History, when set, is the preferred evidence source.
	History HistorySource

	// EvidenceTurns caps history evidence. Default: [DefaultEvidenceTurns].
	EvidenceTurns int

	// Now returns the review time. Default: time.Now.
	Now func() time.Time

	// Metrics records outcomes. Default: [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Service validates and de-duplicates rating submissions.
// All methods are safe for concurrent use.
type Service struct {
	cfg Config

	mu         sync.Mutex
	rated      map[string]struct{}
	inProgress map[string]struct{}
}

// NewService creates a Service with empty guard sets.
func NewService(cfg Config) *Service {
	if cfg.EvidenceTurns <= 0 {
		cfg.EvidenceTurns = DefaultEvidenceTurns
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	return &Service{
		cfg:        cfg,
		rated:      make(map[string]struct{}),
		inProgress: make(map[string]struct{}),
	}
}

// Submit rates vocabularyID. fallbackEvidence is used only when the session
// history yields no dialogue.
//
// The in-progress mark is always released before Submit returns, including
// on failure.
func (s *Service) Submit(ctx context.Context, vocabularyID string, r review.Rating, fallbackEvidence *string) (Result, error) {
	if !r.Valid() {
		s.cfg.Metrics.RecordRating(ctx, "invalid")
		return Result{}, fmt.Errorf("rating: submit %s: %w", vocabularyID, ErrInvalidRating)
	}
	if err := s.acquire(vocabularyID); err != nil {
		s.cfg.Metrics.RecordRating(ctx, outcomeOf(err))
		return Result{}, err
	}
	defer s.release(vocabularyID)

	res, err := s.submit(ctx, vocabularyID, r, fallbackEvidence)
	s.cfg.Metrics.RecordRating(ctx, outcomeOf(err))
	if err != nil {
		return Result{}, err
	}

	s.mu.Lock()
	s.rated[vocabularyID] = struct{}{}
	s.mu.Unlock()

	observe.Logger(ctx).Info("word rated",
		"user_id", s.cfg.UserID,
		"vocabulary_id", vocabularyID,
		"rating", int(r),
		"next_due", res.NextDueDate,
		"pending", res.PendingCount,
	)
	return res, nil
}

func (s *Service) submit(ctx context.Context, vocabularyID string, r review.Rating, fallbackEvidence *string) (Result, error) {
	item, ok := s.cfg.Deck.Get(vocabularyID)
	if !ok {
		return Result{}, fmt.Errorf("rating: %w: %s", ErrUnknownVocabulary, vocabularyID)
	}

	ev := s.resolveEvidence(fallbackEvidence)

	card, err := s.cfg.Scheduler.Review(ctx, item.Card, r, s.cfg.Now())
	if err != nil {
		return Result{}, fmt.Errorf("rating: schedule %s: %w", vocabularyID, err)
	}

	list, err := s.cfg.Store.Upsert(ctx, s.cfg.UserID, review.NewPendingUpdate(vocabularyID, card, r, ev))
	if err != nil {
		return Result{}, fmt.Errorf("rating: buffer %s: %w", vocabularyID, err)
	}
	s.cfg.Deck.ReplaceCard(vocabularyID, card)

	return Result{
		VocabularyID: vocabularyID,
		NextDueDate:  card.DueDate,
		PendingCount: len(list),
		Evidence:     ev,
	}, nil
}

// resolveEvidence prefers the recent conversation, then the caller's text,
// then nothing.
func (s *Service) resolveEvidence(fallback *string) *string {
	if s.cfg.History != nil {
		if ev := evidence.RecentWord(s.cfg.History.History(), s.cfg.EvidenceTurns); ev != nil {
			return ev
		}
	}
	if fallback != nil && *fallback != "" {
		v := *fallback
		return &v
	}
	return nil
}

func (s *Service) acquire(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rated[id]; ok {
		return fmt.Errorf("rating: %s: %w", id, ErrAlreadyRated)
	}
	if _, ok := s.inProgress[id]; ok {
		return fmt.Errorf("rating: %s: %w", id, ErrInProgress)
	}
	s.inProgress[id] = struct{}{}
	return nil
}

func (s *Service) release(id string) {
	s.mu.Lock()
	delete(s.inProgress, id)
	s.mu.Unlock()
}

// Rated reports whether vocabularyID has been rated this session.
func (s *Service) Rated(vocabularyID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rated[vocabularyID]
	return ok
}

// RatedCount returns the number of words rated this session.
func (s *Service) RatedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rated)
}

// Rejected reports whether err is a recoverable duplicate rejection rather
// than a failure.
func Rejected(err error) bool {
	return errors.Is(err, ErrAlreadyRated) || errors.Is(err, ErrInProgress)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, ErrAlreadyRated):
		return "already_rated"
	case errors.Is(err, ErrInProgress):
		return "in_progress"
	case errors.Is(err, ErrUnknownVocabulary):
		return "unknown"
	default:
		return "error"
	}
}
