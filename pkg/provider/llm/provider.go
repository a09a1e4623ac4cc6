// Package llm defines the Provider interface for text-completion backends.
//
// The review service uses an LLM for three offline jobs: judging finished
// scenes, writing end-of-session memory summaries and defining newly captured
// words. None of them stream or call tools, so the interface is a single
// blocking Complete call. [ToolDefinition] lives here because the realtime
// session and the tool host share it.
//
// Implementors must be safe for concurrent use.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of the prompt.
type Message struct {
	Role    string
	Content string
}

// Usage holds token accounting returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to answer.
type CompletionRequest struct {
	// SystemPrompt is injected before Messages when non-empty.
	SystemPrompt string

	// Messages is the ordered prompt. Must be non-empty.
	Messages []Message

	// Temperature in [0, 2]. Zero leaves the provider default.
	Temperature float64

	// MaxTokens caps the completion. Zero leaves the provider default.
	MaxTokens int
}

// CompletionResponse is the full model answer.
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// ToolDefinition describes a function the model may call.
type ToolDefinition struct {
	Name        string
	Description string

	// Parameters is a JSON Schema object describing the arguments.
	Parameters map[string]any
}

// Provider is the abstraction over any completion backend.
type Provider interface {
	// Complete sends req and waits for the full response. It returns promptly
	// when ctx is cancelled.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// ErrEmptyResponse is returned by [CompleteJSON] when the model produced no
// text.
var ErrEmptyResponse = errors.New("llm: empty response")

// CompleteJSON runs req and decodes the answer into out. Markdown code fences
// around the JSON body are tolerated.
func CompleteJSON(ctx context.Context, p Provider, req CompletionRequest, out any) error {
	resp, err := p.Complete(ctx, req)
	if err != nil {
		return err
	}
	if resp == nil {
		return ErrEmptyResponse
	}
	body := StripFences(resp.Content)
	if body == "" {
		return ErrEmptyResponse
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return fmt.Errorf("llm: decode json answer: %w", err)
	}
	return nil
}

// StripFences removes a surrounding ```json … ``` block and outer whitespace.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
