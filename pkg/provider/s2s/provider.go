// Package s2s defines the Provider interface for speech-to-speech backends.
//
// An S2S provider wraps a realtime voice model that accepts raw audio and
// answers with synthesised audio in one stateful session. The tutor runs on
// such a session: the learner speaks, the model teaches and drives the review
// through tool calls, and every finished utterance is surfaced as a
// [review.Turn] for the conversation log.
//
// All implementations must be safe for concurrent use.
package s2s

import (
	"context"

	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/llm"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/review"
)

// ToolCallHandler is invoked whenever the model calls a tool. It receives the
// tool name and its JSON-encoded arguments and returns the JSON result that
// is fed back to the model.
//
// The handler may run on the session's receive goroutine and must not call
// blocking session methods.
type ToolCallHandler func(name string, args string) (string, error)

// ContextItem is a text message injected into the session mid-conversation.
type ContextItem struct {
	// Role is "system", "user" or "assistant".
	Role    string
	Content string
}

// SessionConfig is the initial configuration for a new session.
type SessionConfig struct {
	// Voice is the provider-specific voice id. Empty keeps the default.
	Voice string

	// Instructions is the system prompt for the tutor.
	Instructions string

	// Tools is the initial set of tool definitions offered to the model.
	Tools []llm.ToolDefinition

	// TranscriptionModel enables transcription of learner speech. Without
	// it the conversation log only holds the tutor's side.
	TranscriptionModel string
}

// SessionHandle represents an open session. Callers must call Close when
// the session is no longer needed.
type SessionHandle interface {
	// SendAudio delivers a raw PCM16 chunk to the model.
	SendAudio(chunk []byte) error

	// Audio emits the model's synthesised PCM16 audio. It is closed when the
	// session ends; check Err afterwards.
	Audio() <-chan []byte

	// Err returns the error that ended the session early, or nil.
	Err() error

	// Turns emits every finished utterance and tool exchange in order. It is
	// closed when the session ends.
	Turns() <-chan review.Turn

	// OnToolCall registers the tool handler, replacing any previous one. Nil
	// clears it.
	OnToolCall(handler ToolCallHandler)

	// SetTools replaces the active tool definitions.
	SetTools(tools []llm.ToolDefinition) error

	// UpdateInstructions replaces the system instructions.
	UpdateInstructions(instructions string) error

	// InjectTextContext appends items to the conversation without waiting for
	// the learner to speak.
	InjectTextContext(items []ContextItem) error

	// Interrupt stops the current response and discards buffered audio.
	Interrupt() error

	// Close terminates the session and closes Audio and Turns. Calling Close
	// more than once is safe.
	Close() error
}

// Provider opens realtime sessions.
type Provider interface {
	// Connect establishes a new session. The caller owns the returned handle.
	Connect(ctx context.Context, cfg SessionConfig) (SessionHandle, error)
}
