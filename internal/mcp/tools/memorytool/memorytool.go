// Package memorytool exposes the learner's long-term memory to the tutor.
//
// Three tools are returned by [NewTools], all bound to one user:
//   - "search_learner_memory": semantic search over past session summaries.
//   - "get_learner_profile": the semantic, episodic and procedural buckets.
//   - "add_tutoring_rule": appends a rule the learner asked for to the
//     procedural bucket.
package memorytool

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/TylorChan/Vocabulary-Builder-App/internal/mcp/tools"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/memory"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/llm"
)

const (
	defaultTopK = 5
	maxRules    = 20
	toolTimeout = 10 * time.Second
)

type searchArgs struct {
	Query string `json:"query" validate:"required"`
	TopK  int    `json:"topK,omitempty" validate:"omitempty,min=1,max=10"`
}

type ruleArgs struct {
	Rule string `json:"rule" validate:"required,max=300"`
}

func searchHandler(svc memory.Service, userID string) func(context.Context, string) (string, error) {
	return func(ctx context.Context, args string) (string, error) {
		var a searchArgs
		if err := tools.Decode(args, &a); err != nil {
			return "", fmt.Errorf("memory tool: search_learner_memory: %w", err)
		}
		if a.TopK == 0 {
			a.TopK = defaultTopK
		}
		hits, err := svc.SearchSemantic(ctx, userID, a.Query, a.TopK)
		if err != nil {
			return "", fmt.Errorf("memory tool: search_learner_memory: %w", err)
		}
		if hits == nil {
			hits = []memory.Hit{}
		}
		return tools.Encode(map[string]any{"hits": hits})
	}
}

func profileHandler(svc memory.Service, userID string) func(context.Context, string) (string, error) {
	return func(ctx context.Context, _ string) (string, error) {
		p, err := svc.Bootstrap(ctx, userID)
		if err != nil {
			return "", fmt.Errorf("memory tool: get_learner_profile: %w", err)
		}
		return tools.Encode(p)
	}
}

// ruleHandler keeps rules unique and drops the oldest beyond maxRules.
func ruleHandler(svc memory.Service, userID string) func(context.Context, string) (string, error) {
	return func(ctx context.Context, args string) (string, error) {
		var a ruleArgs
		if err := tools.Decode(args, &a); err != nil {
			return "", fmt.Errorf("memory tool: add_tutoring_rule: %w", err)
		}
		rule := strings.TrimSpace(a.Rule)
		p, err := svc.Bootstrap(ctx, userID)
		if err != nil {
			return "", fmt.Errorf("memory tool: add_tutoring_rule: %w", err)
		}
		rules := p.Procedural.Rules
		if !slices.ContainsFunc(rules, func(r string) bool { return strings.EqualFold(r, rule) }) {
			rules = append(rules, rule)
		}
		if len(rules) > maxRules {
			rules = rules[len(rules)-maxRules:]
		}
		p.Procedural.Rules = rules
		if err := svc.PutBucket(ctx, userID, memory.BucketProcedural, p.Procedural); err != nil {
			return "", fmt.Errorf("memory tool: add_tutoring_rule: %w", err)
		}
		return tools.Encode(map[string]any{"ok": true, "rules": rules})
	}
}

// NewTools returns the memory tools for userID.
func NewTools(svc memory.Service, userID string) []tools.Tool {
	return []tools.Tool{
		{
			Definition: llm.ToolDefinition{
				Name:        "search_learner_memory",
				Description: "Search summaries of the learner's past sessions. Use it to recall words they struggled with or topics they enjoyed.",
				Parameters: tools.Object(map[string]any{
					"query": map[string]any{"type": "string", "description": "What to look for."},
					"topK":  map[string]any{"type": "integer", "minimum": 1, "maximum": 10},
				}, "query"),
			},
			Handler: searchHandler(svc, userID),
			Timeout: toolTimeout,
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "get_learner_profile",
				Description: "Return the learner's interests, level, recent difficult words and tutoring rules.",
				Parameters:  tools.Object(nil),
			},
			Handler: profileHandler(svc, userID),
			Timeout: toolTimeout,
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "add_tutoring_rule",
				Description: "Remember how the learner wants to be taught, e.g. \"correct my grammar only at the end\".",
				Parameters: tools.Object(map[string]any{
					"rule": map[string]any{"type": "string", "maxLength": 300},
				}, "rule"),
			},
			Handler: ruleHandler(svc, userID),
			Timeout: toolTimeout,
		},
	}
}
