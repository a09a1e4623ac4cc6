// Package mcp defines the tool host the tutor's realtime session calls into.
//
// A host merges in-process tools (the scene and word review tools bound to
// one session) with tools imported from external Model Context Protocol
// servers. The realtime bridge lists the catalogue once per session and
// routes every function call back through [Host.ExecuteTool].
//
// All methods must be safe for concurrent use.
package mcp

import (
	"context"

	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/llm"
)

// Host executes tools on behalf of the realtime model.
type Host interface {
	// AvailableTools returns every callable tool sorted by name.
	AvailableTools() []llm.ToolDefinition

	// ExecuteTool runs the named tool with JSON-encoded args. A non-nil
	// result is returned even when [ToolResult.IsError] is set; a Go error
	// means the tool is unknown or the transport failed.
	ExecuteTool(ctx context.Context, name string, args string) (*ToolResult, error)

	// Close releases the host's connections. The host must not be used
	// afterwards.
	Close() error
}
