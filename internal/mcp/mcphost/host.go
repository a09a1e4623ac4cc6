// Package mcphost provides the concrete [mcp.Host].
//
// It connects to external MCP servers via stdio or streamable-HTTP using the
// official MCP Go SDK (github.com/modelcontextprotocol/go-sdk), keeps a
// concurrent-safe tool registry and runs in-process tools directly. A
// session-scoped [Overlay] layers one session's tutor tools over the shared
// catalogue without touching it.
//
// Typical usage:
//
//	h := mcphost.New(mcphost.WithMetrics(m))
//	err := h.RegisterServer(ctx, mcp.ServerConfig{
//	    Name:      "dictionary",
//	    Transport: mcp.TransportStdio,
//	    Command:   "/usr/local/bin/mcp-dictionary",
//	})
//
//	ov, err := h.Overlay(tutortool.New(machine, ratings)...)
//	result, err := ov.ExecuteTool(ctx, "get_next_scene", "{}")
package mcphost

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/TylorChan/Vocabulary-Builder-App/internal/mcp"
	"github.com/TylorChan/Vocabulary-Builder-App/internal/mcp/tools"
	"github.com/TylorChan/Vocabulary-Builder-App/internal/observe"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/llm"
)

// ErrToolNotFound is returned by ExecuteTool for an unknown tool name.
var ErrToolNotFound = errors.New("mcp host: tool not found")

// Implementation identifies this host to MCP peers.
var Implementation = &mcpsdk.Implementation{Name: "vocabtutor", Version: "1.0.0"}

// toolEntry holds all metadata for a single registered tool.
type toolEntry struct {
	def        llm.ToolDefinition
	serverName string
	timeout    time.Duration

	// builtinFn is non-nil for in-process tools.
	builtinFn func(ctx context.Context, args string) (string, error)
}

type serverConn struct {
	session *mcpsdk.ClientSession
}

// Option configures a [Host].
type Option func(*Host)

// WithMetrics records tool calls on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Host) { h.metrics = m }
}

// Host is the shared tool registry. The zero value is not usable; create
// instances with [New].
type Host struct {
	mu      sync.RWMutex
	tools   map[string]toolEntry
	servers map[string]serverConn

	// client is reused across all server connections.
	client  *mcpsdk.Client
	metrics *observe.Metrics
}

var _ mcp.Host = (*Host)(nil)

// New creates an empty Host.
func New(opts ...Option) *Host {
	h := &Host{
		tools:   make(map[string]toolEntry),
		servers: make(map[string]serverConn),
		client:  mcpsdk.NewClient(Implementation, nil),
	}
	for _, o := range opts {
		o(h)
	}
	if h.metrics == nil {
		h.metrics = observe.DefaultMetrics()
	}
	return h
}

// RegisterServer connects to the external server described by cfg and
// imports its tool catalogue. A server registered again under the same name
// is reconnected and its old tools are dropped.
func (h *Host) RegisterServer(ctx context.Context, cfg mcp.ServerConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("mcp host: server config must have a non-empty name")
	}
	if !cfg.Transport.IsValid() {
		return fmt.Errorf("mcp host: unknown transport %q for server %q", cfg.Transport, cfg.Name)
	}

	var transport mcpsdk.Transport
	switch cfg.Transport {
	case mcp.TransportStdio:
		executable, args := splitCommand(cfg.Command)
		if executable == "" {
			return fmt.Errorf("mcp host: stdio server %q requires a non-empty Command", cfg.Name)
		}
		cmd := exec.Command(executable, args...)
		if len(cfg.Env) > 0 {
			cmd.Env = os.Environ()
			for k, v := range cfg.Env {
				cmd.Env = append(cmd.Env, k+"="+v)
			}
		}
		transport = &mcpsdk.CommandTransport{Command: cmd}

	case mcp.TransportStreamableHTTP:
		if cfg.URL == "" {
			return fmt.Errorf("mcp host: streamable-http server %q requires a non-empty URL", cfg.Name)
		}
		transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}
	}

	return h.connect(ctx, cfg.Name, transport)
}

func (h *Host) connect(ctx context.Context, name string, transport mcpsdk.Transport) error {
	session, err := h.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("mcp host: connect to server %q: %w", name, err)
	}

	var discovered []mcpsdk.Tool
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return fmt.Errorf("mcp host: list tools for server %q: %w", name, err)
		}
		discovered = append(discovered, *tool)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.servers[name]; ok {
		_ = old.session.Close()
		for tn, t := range h.tools {
			if t.serverName == name {
				delete(h.tools, tn)
			}
		}
	}
	h.servers[name] = serverConn{session: session}
	for _, t := range discovered {
		h.tools[t.Name] = toolEntry{
			def: llm.ToolDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schemaToMap(t.InputSchema),
			},
			serverName: name,
		}
	}
	return nil
}

// RegisterBuiltin registers an in-process tool, replacing any tool of the
// same name.
func (h *Host) RegisterBuiltin(t tools.Tool) error {
	e, err := builtinEntry(t)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tools[t.Definition.Name] = e
	return nil
}

// builtinServerName is the pseudo server name used for in-process tools.
const builtinServerName = "__builtin__"

func builtinEntry(t tools.Tool) (toolEntry, error) {
	if t.Definition.Name == "" {
		return toolEntry{}, fmt.Errorf("mcp host: builtin tool must have a non-empty name")
	}
	if t.Handler == nil {
		return toolEntry{}, fmt.Errorf("mcp host: builtin tool %q must have a non-nil handler", t.Definition.Name)
	}
	return toolEntry{
		def:        t.Definition,
		serverName: builtinServerName,
		timeout:    t.Timeout,
		builtinFn:  t.Handler,
	}, nil
}

// AvailableTools implements [mcp.Host].
func (h *Host) AvailableTools() []llm.ToolDefinition {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return sortedDefs(h.tools)
}

// ExecuteTool implements [mcp.Host].
func (h *Host) ExecuteTool(ctx context.Context, name string, args string) (*mcp.ToolResult, error) {
	h.mu.RLock()
	entry, ok := h.tools[name]
	h.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrToolNotFound, name)
	}
	return h.run(ctx, entry, args)
}

// run executes entry and records the call.
func (h *Host) run(ctx context.Context, entry toolEntry, args string) (*mcp.ToolResult, error) {
	if entry.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, entry.timeout)
		defer cancel()
	}

	start := time.Now()
	var (
		result *mcp.ToolResult
		err    error
	)
	if entry.builtinFn != nil {
		result = executeBuiltin(ctx, entry, args)
	} else {
		result, err = h.executeMCPTool(ctx, entry, args)
	}
	d := time.Since(start)

	status := observe.Status(err)
	if result != nil && result.IsError {
		status = "tool_error"
	}
	h.metrics.RecordToolCall(ctx, entry.def.Name, status, d)
	if err != nil {
		observe.Logger(ctx).Warn("mcp host: tool call failed", "tool", entry.def.Name, "err", err)
		return nil, err
	}
	result.DurationMs = d.Milliseconds()
	return result, nil
}

func executeBuiltin(ctx context.Context, entry toolEntry, args string) *mcp.ToolResult {
	output, err := entry.builtinFn(ctx, args)
	if err != nil {
		return &mcp.ToolResult{Content: err.Error(), IsError: true}
	}
	return &mcp.ToolResult{Content: output}
}

func (h *Host) executeMCPTool(ctx context.Context, entry toolEntry, args string) (*mcp.ToolResult, error) {
	h.mu.RLock()
	conn, ok := h.servers[entry.serverName]
	h.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("mcp host: server %q not found for tool %q", entry.serverName, entry.def.Name)
	}

	var argsMap map[string]any
	if args != "" && args != "{}" {
		if err := json.Unmarshal([]byte(args), &argsMap); err != nil {
			return nil, fmt.Errorf("mcp host: invalid args JSON for tool %q: %w", entry.def.Name, err)
		}
	}

	res, err := conn.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      entry.def.Name,
		Arguments: argsMap,
	})
	if err != nil {
		return nil, fmt.Errorf("mcp host: call to tool %q: %w", entry.def.Name, err)
	}

	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return &mcp.ToolResult{Content: sb.String(), IsError: res.IsError}, nil
}

// Close shuts down all server connections and clears the registry.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var firstErr error
	for name, conn := range h.servers {
		if err := conn.session.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("mcp host: close server %q: %w", name, err)
		}
		delete(h.servers, name)
	}
	h.tools = make(map[string]toolEntry)
	return firstErr
}

// ── Overlay ──────────────────────────────────────────────────────────────────

// Overlay is a session-scoped view of a [Host]. Its own tools shadow shared
// tools of the same name. Closing an overlay leaves the parent open.
type Overlay struct {
	parent *Host
	tools  map[string]toolEntry
}

var _ mcp.Host = (*Overlay)(nil)

// Overlay returns a view of h extended with ts.
func (h *Host) Overlay(ts ...tools.Tool) (*Overlay, error) {
	o := &Overlay{parent: h, tools: make(map[string]toolEntry, len(ts))}
	for _, t := range ts {
		e, err := builtinEntry(t)
		if err != nil {
			return nil, err
		}
		o.tools[t.Definition.Name] = e
	}
	return o, nil
}

// AvailableTools implements [mcp.Host].
func (o *Overlay) AvailableTools() []llm.ToolDefinition {
	o.parent.mu.RLock()
	merged := maps.Clone(o.parent.tools)
	o.parent.mu.RUnlock()
	if merged == nil {
		merged = make(map[string]toolEntry)
	}
	maps.Copy(merged, o.tools)
	return sortedDefs(merged)
}

// ExecuteTool implements [mcp.Host].
func (o *Overlay) ExecuteTool(ctx context.Context, name string, args string) (*mcp.ToolResult, error) {
	if e, ok := o.tools[name]; ok {
		return o.parent.run(ctx, e, args)
	}
	return o.parent.ExecuteTool(ctx, name, args)
}

// Close implements [mcp.Host]. It is a no-op.
func (o *Overlay) Close() error { return nil }

// ── helpers ──────────────────────────────────────────────────────────────────

func sortedDefs(m map[string]toolEntry) []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(m))
	for _, e := range m {
		defs = append(defs, e.def)
	}
	slices.SortFunc(defs, func(a, b llm.ToolDefinition) int { return cmp.Compare(a.Name, b.Name) })
	return defs
}

// schemaToMap converts any schema value to a map[string]any.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}

// splitCommand splits "/bin/foo --bar baz" into ("/bin/foo", ["--bar", "baz"]).
func splitCommand(command string) (executable string, args []string) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}
