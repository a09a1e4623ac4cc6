// Package mock provides an in-memory test double for the [mcp.Host] interface.
//
//	h := &mock.Host{
//	    AvailableToolsResult: []llm.ToolDefinition{{Name: "get_next_scene"}},
//	    ExecuteToolResult:    &mcp.ToolResult{Content: `{"ok":true}`},
//	}
//	if got := h.CallCount("ExecuteTool"); got != 1 { ... }
package mock

import (
	"context"
	"sync"

	"github.com/TylorChan/Vocabulary-Builder-App/internal/mcp"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/llm"
)

var _ mcp.Host = (*Host)(nil)

// Call records one method invocation with its non-context arguments.
type Call struct {
	Method string
	Args   []any
}

// Host is a configurable test double for [mcp.Host].
type Host struct {
	mu    sync.Mutex
	calls []Call

	// AvailableToolsResult is returned by AvailableTools. Nil yields an empty
	// slice.
	AvailableToolsResult []llm.ToolDefinition

	// ExecuteToolFunc, when set, computes the ExecuteTool result and takes
	// precedence over ExecuteToolResult and ExecuteToolErr.
	ExecuteToolFunc   func(name, args string) (*mcp.ToolResult, error)
	ExecuteToolResult *mcp.ToolResult
	ExecuteToolErr    error

	CloseErr error
}

// Calls returns a copy of all recorded invocations.
func (h *Host) Calls() []Call {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Call(nil), h.calls...)
}

// CallCount returns how many times method was invoked.
func (h *Host) CallCount(method string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range h.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears recorded calls.
func (h *Host) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = nil
}

func (h *Host) record(method string, args ...any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, Call{Method: method, Args: args})
}

func (h *Host) AvailableTools() []llm.ToolDefinition {
	h.record("AvailableTools")
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]llm.ToolDefinition{}, h.AvailableToolsResult...)
}

func (h *Host) ExecuteTool(_ context.Context, name, args string) (*mcp.ToolResult, error) {
	h.record("ExecuteTool", name, args)
	h.mu.Lock()
	fn, res, err := h.ExecuteToolFunc, h.ExecuteToolResult, h.ExecuteToolErr
	h.mu.Unlock()

	if fn != nil {
		return fn(name, args)
	}
	if err != nil {
		return nil, err
	}
	if res == nil {
		return &mcp.ToolResult{}, nil
	}
	cp := *res
	return &cp, nil
}

func (h *Host) Close() error {
	h.record("Close")
	return h.CloseErr
}
