// Package review defines the shared types used across the vocabulary review
// packages.
//
// These types are the lingua franca between the scheduler client, the pending
// update store, the scene state machine, the rating worker and the sync
// reconciler. Each package defines its own behaviour; cross-cutting data lives
// here to avoid circular imports.
package review

import (
	"fmt"
	"strings"
	"time"
)

// ── Scheduling ───────────────────────────────────────────────────────────────

// CardState is the FSRS learning state of a card.
type CardState string

const (
	StateLearning   CardState = "LEARNING"
	StateReview     CardState = "REVIEW"
	StateRelearning CardState = "RELEARNING"
)

// ParseCardState normalises s (case-insensitive). Empty or unknown values map
// to [StateLearning].
func ParseCardState(s string) CardState {
	switch CardState(strings.ToUpper(strings.TrimSpace(s))) {
	case StateReview:
		return StateReview
	case StateRelearning:
		return StateRelearning
	default:
		return StateLearning
	}
}

// Rating is the learner's recall quality for one review, 1 (again) to 4 (easy).
type Rating int

const (
	RatingAgain Rating = 1
	RatingHard  Rating = 2
	RatingGood  Rating = 3
	RatingEasy  Rating = 4
)

// Valid reports whether r is within 1..4.
func (r Rating) Valid() bool { return r >= RatingAgain && r <= RatingEasy }

// Difficult reports whether the learner struggled with the word (again or hard).
func (r Rating) Difficult() bool { return r <= RatingHard }

// SchedulerCard is the opaque scheduling state of a vocabulary item. It is only
// ever produced by the scheduler; callers replace it wholesale.
//
// Difficulty and Stability are nil until the word's first review; the
// scheduler initialises a card only when both are null.
type SchedulerCard struct {
	Difficulty *float64   `json:"difficulty"`
	Stability  *float64   `json:"stability"`
	DueDate    time.Time  `json:"dueDate"`
	State      CardState  `json:"state"`
	LastReview *time.Time `json:"lastReview,omitempty"`
	Reps       int        `json:"reps"`
}

// ── Vocabulary ───────────────────────────────────────────────────────────────

// VocabularyItem is a captured word with its learning context.
type VocabularyItem struct {
	ID              string        `json:"id"`
	Text            string        `json:"text"`
	Definition      string        `json:"definition,omitempty"`
	RealLifeDef     string        `json:"realLifeDef,omitempty"`
	Example         string        `json:"example,omitempty"`
	ExampleTrans    string        `json:"exampleTrans,omitempty"`
	SurroundingText string        `json:"surroundingText,omitempty"`
	VideoTitle      string        `json:"videoTitle,omitempty"`
	Card            SchedulerCard `json:"card"`
}

// ── Role-play plan ───────────────────────────────────────────────────────────

// Scene is one role-play unit covering a handful of target words.
type Scene struct {
	SceneID        string   `json:"sceneId"`
	Title          string   `json:"title"`
	Setting        string   `json:"setting,omitempty"`
	Background     string   `json:"background,omitempty"`
	Roles          []string `json:"roles"`
	Goal           string   `json:"goal,omitempty"`
	StarterLine    string   `json:"starterLine,omitempty"`
	Tone           string   `json:"tone,omitempty"`
	SensoryDetail  string   `json:"sensoryDetail,omitempty"`
	TargetWordIDs  []string `json:"targetWordIds"`
	TargetWords    []string `json:"targetWords"`
	SuggestedSlang []string `json:"suggestedSlang,omitempty"`
	Rationale      string   `json:"rationale,omitempty"`
}

// Key identifies the scene for de-duplication: the scene id, or the title when
// the planner omitted one.
func (s Scene) Key() string {
	if s.SceneID != "" {
		return s.SceneID
	}
	return s.Title
}

// PlanModeRolePlay is the only plan mode the planner currently produces.
const PlanModeRolePlay = "role-play"

// Plan is the ordered scene sequence produced by the planner at session start.
type Plan struct {
	Mode   string  `json:"mode"`
	Scenes []Scene `json:"scenes"`
}

// ── Conversation log ─────────────────────────────────────────────────────────

// Turn types and roles used in the conversation log.
const (
	TurnMessage            = "message"
	TurnFunctionCall       = "function_call"
	TurnFunctionCallOutput = "function_call_output"

	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// Turn is one item in the running conversation log. The log is append-only and
// owned by the voice runtime; the review core only reads it.
type Turn struct {
	ID   string    `json:"id,omitempty"`
	Type string    `json:"type"`
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// IsDialogue reports whether t is a spoken user or assistant message.
func (t Turn) IsDialogue() bool {
	if t.Type != "" && t.Type != TurnMessage {
		return false
	}
	return t.Role == RoleUser || t.Role == RoleAssistant
}

// ── Pending updates ──────────────────────────────────────────────────────────

// CardUpdate is the remote persistence shape of one review outcome.
type CardUpdate struct {
	VocabularyID string     `json:"vocabularyId"`
	Difficulty   *float64   `json:"difficulty"`
	Stability    *float64   `json:"stability"`
	DueDate      time.Time  `json:"dueDate"`
	State        CardState  `json:"state"`
	LastReview   *time.Time `json:"lastReview,omitempty"`
	Reps         int        `json:"reps"`
}

// PendingUpdate is a locally buffered review outcome awaiting sync. Rating and
// Evidence are client-only fields.
type PendingUpdate struct {
	CardUpdate
	Rating   Rating  `json:"rating"`
	Evidence *string `json:"evidence"`
}

// NewPendingUpdate combines the rescheduled card with the rating that
// produced it.
func NewPendingUpdate(vocabularyID string, card SchedulerCard, rating Rating, evidence *string) PendingUpdate {
	return PendingUpdate{
		CardUpdate: CardUpdate{
			VocabularyID: vocabularyID,
			Difficulty:   card.Difficulty,
			Stability:    card.Stability,
			DueDate:      card.DueDate,
			State:        card.State,
			LastReview:   card.LastReview,
			Reps:         card.Reps,
		},
		Rating:   rating,
		Evidence: evidence,
	}
}

// Strip drops the client-only fields.
func (u PendingUpdate) Strip() CardUpdate { return u.CardUpdate }

// StripAll strips every update in order.
func StripAll(updates []PendingUpdate) []CardUpdate {
	out := make([]CardUpdate, len(updates))
	for i, u := range updates {
		out[i] = u.Strip()
	}
	return out
}

// ── Rating jobs ──────────────────────────────────────────────────────────────

// RatingJob is a completed scene queued for judging.
type RatingJob struct {
	Scene    Scene
	Evidence string
}

// JobStatus tracks a scene's rating job.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// SceneRating is one judged word from a scene.
type SceneRating struct {
	VocabularyID string `json:"vocabularyId" validate:"required"`
	Rating       Rating `json:"rating" validate:"min=1,max=4"`
	Evidence     string `json:"evidence"`
}

// SaveResult is the remote acknowledgement of a batch sync.
type SaveResult struct {
	Success    bool   `json:"success"`
	SavedCount int    `json:"savedCount"`
	Message    string `json:"message"`
}

// Err converts an unsuccessful result into an error.
func (r SaveResult) Err() error {
	if r.Success {
		return nil
	}
	msg := r.Message
	if msg == "" {
		msg = "unknown error"
	}
	return fmt.Errorf("save review session: %s", msg)
}
