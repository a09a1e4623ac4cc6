// Package bridge wires an MCP tool host into a realtime tutor session.
//
// On creation a [Bridge] declares the host's catalogue on the session and
// registers a [s2s.ToolCallHandler] that routes every function call back
// through the host.
//
//	b, err := bridge.NewBridge(host, session)
//	if err != nil { ... }
//	defer b.Close()
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/TylorChan/Vocabulary-Builder-App/internal/mcp"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/s2s"
)

// defaultToolTimeout bounds each call; the session hands the handler no
// context of its own.
const defaultToolTimeout = 30 * time.Second

// Option is a functional option for configuring a [Bridge].
type Option func(*Bridge)

// WithToolTimeout sets the deadline applied to each tool execution.
func WithToolTimeout(d time.Duration) Option {
	return func(b *Bridge) { b.toolTimeout = d }
}

// WithLogger sets the logger used for tool call diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) { b.logger = l }
}

// Bridge connects one realtime session to a tool host. It lives exactly as
// long as the session.
type Bridge struct {
	host        mcp.Host
	session     s2s.SessionHandle
	toolTimeout time.Duration
	logger      *slog.Logger
}

// NewBridge declares host's tools on session and registers the tool handler.
func NewBridge(host mcp.Host, session s2s.SessionHandle, opts ...Option) (*Bridge, error) {
	if host == nil {
		return nil, errors.New("bridge: host must not be nil")
	}
	if session == nil {
		return nil, errors.New("bridge: session must not be nil")
	}

	b := &Bridge{
		host:        host,
		session:     session,
		toolTimeout: defaultToolTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}

	if err := session.SetTools(host.AvailableTools()); err != nil {
		return nil, fmt.Errorf("bridge: set initial tools: %w", err)
	}
	session.OnToolCall(b.handleToolCall)
	return b, nil
}

// handleToolCall runs the named tool. Application-level tool failures are
// returned as errors so the session reports them to the model.
func (b *Bridge) handleToolCall(name, args string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), b.toolTimeout)
	defer cancel()

	result, err := b.host.ExecuteTool(ctx, name, args)
	if err != nil {
		b.logger.Warn("bridge: tool call failed", "tool", name, "err", err)
		return "", fmt.Errorf("bridge: tool %q: %w", name, err)
	}
	if result.IsError {
		b.logger.Debug("bridge: tool reported error", "tool", name, "content", result.Content)
		return "", errors.New(result.Content)
	}
	return result.Content, nil
}

// Refresh re-declares the host's current catalogue on the session, after an
// external server was added for example.
func (b *Bridge) Refresh(ctx context.Context) error {
	tools := b.host.AvailableTools()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("bridge: refresh: %w", err)
	}
	if err := b.session.SetTools(tools); err != nil {
		return fmt.Errorf("bridge: refresh: %w", err)
	}
	return nil
}

// Close deregisters the tool handler. The session and host stay open.
func (b *Bridge) Close() {
	b.session.OnToolCall(nil)
}
