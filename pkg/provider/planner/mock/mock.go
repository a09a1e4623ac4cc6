// Package mock provides a test double for planner.Provider.
package mock

import (
	"context"
	"sync"

	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/planner"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/review"
)

var _ planner.Provider = (*Provider)(nil)

// Provider returns PlanResult, or PlanErr when set. When PlanResult has no
// scenes it builds one scene per two due words.
type Provider struct {
	mu    sync.Mutex
	calls []planner.Request

	PlanResult review.Plan
	PlanErr    error
}

// Plan implements planner.Provider.
func (p *Provider) Plan(_ context.Context, req planner.Request) (review.Plan, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, req)
	if p.PlanErr != nil {
		return review.Plan{}, p.PlanErr
	}
	if len(p.PlanResult.Scenes) > 0 {
		return p.PlanResult, nil
	}

	plan := review.Plan{Mode: review.PlanModeRolePlay}
	for i := 0; i < len(req.DueWords); i += 2 {
		words := req.DueWords[i:min(i+2, len(req.DueWords))]
		s := review.Scene{
			SceneID: "scene-" + string(rune('a'+len(plan.Scenes))),
			Title:   "Practice " + words[0].Text,
		}
		for _, w := range words {
			s.TargetWordIDs = append(s.TargetWordIDs, w.ID)
			s.TargetWords = append(s.TargetWords, w.Text)
		}
		plan.Scenes = append(plan.Scenes, s)
	}
	return plan, nil
}

// Calls returns a copy of the recorded requests.
func (p *Provider) Calls() []planner.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]planner.Request(nil), p.calls...)
}

// CallCount returns the number of Plan calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}
