// Package tutortool exposes one review session's scene and word flows as
// tools the realtime tutor calls.
//
// Wrong-state calls and duplicate ratings come back as {ok:false, reason}
// results so the model can recover. Only an unknown vocabulary id or a
// failing backend is reported as a tool error.
package tutortool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/TylorChan/Vocabulary-Builder-App/internal/mcp/tools"
	"github.com/TylorChan/Vocabulary-Builder-App/internal/rating"
	"github.com/TylorChan/Vocabulary-Builder-App/internal/scene"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/llm"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/review"
)

// Tutor is the session state the tools drive. *scene.Machine implements it.
type Tutor interface {
	NextScene() scene.SceneResult
	StartScene(sceneID, title string) scene.Result
	MarkSceneDone() scene.Result
	RequestSceneRating() scene.Result

	NextWord() scene.WordResult
	StartWordReview(vocabularyID, wordText string) scene.Result
	ActiveWordEvidence(maxMessages int) scene.WordEvidence
	MarkWordRated(vocabularyID string)
}

// Rater submits per-word ratings. *rating.Service implements it.
type Rater interface {
	Submit(ctx context.Context, vocabularyID string, r review.Rating, evidence *string) (rating.Result, error)
}

var (
	_ Tutor = (*scene.Machine)(nil)
	_ Rater = (*rating.Service)(nil)
)

// rateTimeout covers the scheduler call and the pending-store write.
const rateTimeout = 15 * time.Second

type startSceneArgs struct {
	SceneID string `json:"sceneId" validate:"required"`
	Title   string `json:"title"`
}

type startWordArgs struct {
	VocabularyID string `json:"vocabularyId" validate:"required"`
	WordText     string `json:"wordText"`
}

type evidenceArgs struct {
	MaxMessages int `json:"maxMessages"`
}

type rateArgs struct {
	VocabularyID string  `json:"vocabularyId" validate:"required"`
	Rating       int     `json:"rating" validate:"required,min=1,max=4"`
	Evidence     *string `json:"evidence"`
}

// RatingResult is the outcome of submit_word_rating.
type RatingResult struct {
	OK           bool   `json:"ok"`
	Reason       string `json:"reason,omitempty"`
	PendingCount int    `json:"pendingCount,omitempty"`
	NextDueDate  string `json:"nextDueDate,omitempty"`
}

// SubmitRating rates one word and unlocks the next one.
func SubmitRating(ctx context.Context, t Tutor, r Rater, args string) (string, error) {
	var a rateArgs
	if err := tools.Decode(args, &a); err != nil {
		return tools.Encode(RatingResult{Reason: err.Error()})
	}
	res, err := r.Submit(ctx, a.VocabularyID, review.Rating(a.Rating), a.Evidence)
	switch {
	case rating.Rejected(err), errors.Is(err, rating.ErrInvalidRating):
		return tools.Encode(RatingResult{Reason: err.Error()})
	case err != nil:
		return "", fmt.Errorf("tutor tool: submit_word_rating: %w", err)
	}
	t.MarkWordRated(a.VocabularyID)
	return tools.Encode(RatingResult{
		OK:           true,
		PendingCount: res.PendingCount,
		NextDueDate:  res.NextDueDate.UTC().Format(time.RFC3339),
	})
}

// NewTools returns the scene and word tools bound to one session.
func NewTools(t Tutor, r Rater) []tools.Tool {
	return []tools.Tool{
		// ── Scene flow ──
		{
			Definition: llm.ToolDefinition{
				Name:        "get_next_scene",
				Description: "Fetch the next role-play scene. Returns done:true once every scene was rated.",
				Parameters:  tools.Object(nil),
			},
			Handler: func(context.Context, string) (string, error) {
				return tools.Encode(t.NextScene())
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "start_scene",
				Description: "Mark the fetched scene as started, right before you open it.",
				Parameters: tools.Object(map[string]any{
					"sceneId": map[string]any{"type": "string"},
					"title":   map[string]any{"type": "string"},
				}, "sceneId"),
			},
			Handler: func(_ context.Context, args string) (string, error) {
				var a startSceneArgs
				if err := tools.Decode(args, &a); err != nil {
					return tools.Encode(scene.Result{Reason: err.Error()})
				}
				return tools.Encode(t.StartScene(a.SceneID, a.Title))
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "mark_scene_done",
				Description: "Call once the learner has used the scene's target words.",
				Parameters:  tools.Object(nil),
			},
			Handler: func(context.Context, string) (string, error) {
				return tools.Encode(t.MarkSceneDone())
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "request_scene_rating",
				Description: "Hand the finished scene to the background rater and move on.",
				Parameters:  tools.Object(nil),
			},
			Handler: func(context.Context, string) (string, error) {
				return tools.Encode(t.RequestSceneRating())
			},
		},

		// ── Word flow ──
		{
			Definition: llm.ToolDefinition{
				Name:        "get_next_word",
				Description: "Fetch the next due word. Refused until the current word is rated.",
				Parameters:  tools.Object(nil),
			},
			Handler: func(context.Context, string) (string, error) {
				return tools.Encode(t.NextWord())
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "start_word_review",
				Description: "Mark where the conversation about a word begins.",
				Parameters: tools.Object(map[string]any{
					"vocabularyId": map[string]any{"type": "string"},
					"wordText":     map[string]any{"type": "string"},
				}, "vocabularyId"),
			},
			Handler: func(_ context.Context, args string) (string, error) {
				var a startWordArgs
				if err := tools.Decode(args, &a); err != nil {
					return tools.Encode(scene.Result{Reason: err.Error()})
				}
				return tools.Encode(t.StartWordReview(a.VocabularyID, a.WordText))
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "get_active_word_evidence",
				Description: "Return the dialogue about the active word, to judge before rating.",
				Parameters: tools.Object(map[string]any{
					"maxMessages": map[string]any{
						"type":    "integer",
						"minimum": scene.MinEvidenceMessages,
						"maximum": scene.MaxEvidenceMessages,
						"default": scene.DefaultEvidenceMessages,
					},
				}),
			},
			Handler: func(_ context.Context, args string) (string, error) {
				var a evidenceArgs
				if err := tools.Decode(args, &a); err != nil {
					return "", fmt.Errorf("tutor tool: get_active_word_evidence: %w", err)
				}
				return tools.Encode(t.ActiveWordEvidence(a.MaxMessages))
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "submit_word_rating",
				Description: "Rate how well the learner recalled the word: 1 again, 2 hard, 3 good, 4 easy.",
				Parameters: tools.Object(map[string]any{
					"vocabularyId": map[string]any{"type": "string"},
					"rating":       map[string]any{"type": "integer", "minimum": 1, "maximum": 4},
					"evidence":     map[string]any{"type": "string", "description": "Relevant dialogue, used when none was recorded."},
				}, "vocabularyId", "rating"),
			},
			Handler: func(ctx context.Context, args string) (string, error) {
				return SubmitRating(ctx, t, r, args)
			},
			Timeout: rateTimeout,
		},
	}
}
