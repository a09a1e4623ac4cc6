// Package planner defines the Provider interface for role-play planning
// backends.
//
// At session start the planner receives the learner's due words, their
// long-term memory profile and a few semantic hints, and returns an ordered
// sequence of scenes, each practising a handful of those words.
package planner

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/TylorChan/Vocabulary-Builder-App/pkg/memory"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/review"
)

// ErrEmptyPlan is returned by [Normalize] when no usable scene remains.
var ErrEmptyPlan = errors.New("planner: plan has no scenes")

// Request is the planning input.
type Request struct {
	DueWords      []review.VocabularyItem `json:"dueWords"`
	Memory        memory.Profile          `json:"memory"`
	SemanticHints []memory.Hit            `json:"semanticHints"`
}

// Provider produces a role-play plan.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	Plan(ctx context.Context, req Request) (review.Plan, error)
}

// Normalize cleans a plan against the words that were actually due:
// unknown target ids are removed, scenes without a title or id are dropped
// and an empty mode becomes [review.PlanModeRolePlay]. TargetWords is
// rebuilt from the due words so it always matches TargetWordIDs.
func Normalize(p review.Plan, due []review.VocabularyItem) (review.Plan, error) {
	text := make(map[string]string, len(due))
	for _, it := range due {
		text[it.ID] = it.Text
	}

	if p.Mode == "" {
		p.Mode = review.PlanModeRolePlay
	}
	scenes := make([]review.Scene, 0, len(p.Scenes))
	for _, s := range p.Scenes {
		if s.Key() == "" {
			continue
		}
		ids := make([]string, 0, len(s.TargetWordIDs))
		words := make([]string, 0, len(s.TargetWordIDs))
		for _, id := range s.TargetWordIDs {
			t, ok := text[id]
			if !ok || slices.Contains(ids, id) {
				continue
			}
			ids = append(ids, id)
			words = append(words, t)
		}
		s.TargetWordIDs, s.TargetWords = ids, words
		scenes = append(scenes, s)
	}
	if len(scenes) == 0 {
		return review.Plan{}, ErrEmptyPlan
	}
	if p.Mode != review.PlanModeRolePlay {
		return review.Plan{}, fmt.Errorf("planner: unsupported mode %q", p.Mode)
	}
	p.Scenes = scenes
	return p, nil
}
