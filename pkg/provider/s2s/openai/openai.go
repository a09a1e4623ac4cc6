// Package openai implements the s2s.Provider interface for OpenAI's Realtime API.
//
// It keeps one WebSocket per session and exchanges JSON events with the
// Realtime endpoint. Audio travels as base64-encoded PCM16. Tool calls are
// answered through the registered handler and followed by response.create,
// so the tutor keeps talking after every tool result. Finished utterances and
// tool exchanges are surfaced as review turns.
package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/llm"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/s2s"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/review"
)

var (
	_ s2s.Provider      = (*Provider)(nil)
	_ s2s.SessionHandle = (*session)(nil)
)

const (
	defaultModel   = "gpt-4o-realtime-preview"
	defaultBaseURL = "wss://api.openai.com/v1/realtime"
)

// ── Options ──────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the realtime model.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the WebSocket endpoint.
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = u }
}

// ── Provider ─────────────────────────────────────────────────────────────────

// Provider implements s2s.Provider for OpenAI's Realtime API.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
}

// New creates a Provider.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{apiKey: apiKey, model: defaultModel, baseURL: defaultBaseURL}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Model returns the configured model name.
func (p *Provider) Model() string { return p.model }

// Connect dials the endpoint and sends the initial session.update.
func (p *Provider) Connect(ctx context.Context, cfg s2s.SessionConfig) (s2s.SessionHandle, error) {
	wsURL := p.baseURL + "?model=" + url.QueryEscape(p.model)
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + p.apiKey},
			"OpenAI-Beta":   []string{"realtime=v1"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai: dial: %w", err)
	}
	// Realtime events carry base64 audio and exceed the 32 KiB default.
	conn.SetReadLimit(16 << 20)

	sessCtx, sessCancel := context.WithCancel(context.Background())
	sess := &session{
		conn:    conn,
		audioCh: make(chan []byte, 64),
		turns:   make(chan review.Turn, 32),
		ctx:     sessCtx,
		cancel:  sessCancel,
	}

	params := baseParams()
	params.Voice = cfg.Voice
	params.Instructions = cfg.Instructions
	params.Tools = toOAITools(cfg.Tools)
	if cfg.TranscriptionModel != "" {
		params.InputAudioTranscription = &transcription{Model: cfg.TranscriptionModel}
	}
	if err := sess.writeJSON(sessionUpdateMessage{Type: "session.update", Session: params}); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "session update failed")
		return nil, fmt.Errorf("openai: session update: %w", err)
	}

	go sess.receiveLoop()
	return sess, nil
}

// ── Protocol message types (outgoing) ────────────────────────────────────────

type sessionUpdateMessage struct {
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	Voice                   string         `json:"voice,omitempty"`
	Instructions            string         `json:"instructions,omitempty"`
	Tools                   []oaiTool      `json:"tools,omitempty"`
	InputAudioFormat        string         `json:"input_audio_format"`
	OutputAudioFormat       string         `json:"output_audio_format"`
	InputAudioTranscription *transcription `json:"input_audio_transcription,omitempty"`
}

type transcription struct {
	Model string `json:"model"`
}

func baseParams() sessionParams {
	return sessionParams{InputAudioFormat: "pcm16", OutputAudioFormat: "pcm16"}
}

type oaiTool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type appendAudioMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type createConversationItemMessage struct {
	Type string           `json:"type"`
	Item conversationItem `json:"item"`
}

type conversationItem struct {
	Type    string             `json:"type"`
	Role    string             `json:"role,omitempty"`
	Content []conversationPart `json:"content,omitempty"`
	CallID  string             `json:"call_id,omitempty"`
	Output  string             `json:"output,omitempty"`
}

type conversationPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type serverErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// ── Protocol message types (incoming) ────────────────────────────────────────

type serverEvent struct {
	Type   string `json:"type"`
	ItemID string `json:"item_id,omitempty"`

	// response.audio.delta, response.audio_transcript.delta
	Delta string `json:"delta,omitempty"`

	// response.audio_transcript.done,
	// conversation.item.input_audio_transcription.completed
	Transcript string `json:"transcript,omitempty"`

	// response.function_call_arguments.done
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	CallID    string `json:"call_id,omitempty"`

	Error *serverErrorDetail `json:"error,omitempty"`
}

// ── session ──────────────────────────────────────────────────────────────────

type session struct {
	conn    *websocket.Conn
	audioCh chan []byte
	turns   chan review.Turn

	mu          sync.Mutex
	toolHandler s2s.ToolCallHandler
	errVal      error
	closed      bool

	// pendingText accumulates response.audio_transcript.delta per item until
	// the matching done event.
	pendingText map[string]string

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (s *session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("openai: marshal: %w", err)
	}
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

// receiveLoop reads events until the connection ends. It owns audioCh and
// turns and closes both on exit.
func (s *session) receiveLoop() {
	defer s.closeChannels()

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() == nil {
				s.setErr(err)
			}
			return
		}
		var evt serverEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			continue
		}
		s.handleServerEvent(&evt)
	}
}

func (s *session) handleServerEvent(evt *serverEvent) {
	switch evt.Type {
	case "response.audio.delta":
		if evt.Delta == "" {
			return
		}
		pcm, err := base64.StdEncoding.DecodeString(evt.Delta)
		if err != nil || len(pcm) == 0 {
			return
		}
		select {
		case s.audioCh <- pcm:
		case <-s.ctx.Done():
		}

	case "response.audio_transcript.delta":
		if evt.Delta == "" {
			return
		}
		s.mu.Lock()
		if s.pendingText == nil {
			s.pendingText = make(map[string]string)
		}
		s.pendingText[evt.ItemID] += evt.Delta
		s.mu.Unlock()

	case "response.audio_transcript.done":
		s.mu.Lock()
		text := s.pendingText[evt.ItemID]
		delete(s.pendingText, evt.ItemID)
		s.mu.Unlock()
		if evt.Transcript != "" {
			text = evt.Transcript
		}
		s.emit(review.Turn{ID: evt.ItemID, Type: review.TurnMessage, Role: review.RoleAssistant, Text: text})

	case "conversation.item.input_audio_transcription.completed":
		s.emit(review.Turn{ID: evt.ItemID, Type: review.TurnMessage, Role: review.RoleUser, Text: evt.Transcript})

	case "response.function_call_arguments.done":
		s.handleFunctionCall(evt)

	case "error":
		msg := "unknown error"
		if evt.Error != nil && evt.Error.Message != "" {
			msg = evt.Error.Message
		}
		// Realtime error events are not fatal; the socket stays open.
		s.emit(review.Turn{Type: review.TurnMessage, Role: review.RoleSystem, Text: "error: " + msg})
	}
}

func (s *session) emit(t review.Turn) {
	if t.Text == "" {
		return
	}
	t.At = time.Now()
	select {
	case s.turns <- t:
	case <-s.ctx.Done():
	}
}

func (s *session) handleFunctionCall(evt *serverEvent) {
	s.mu.Lock()
	handler := s.toolHandler
	s.mu.Unlock()
	if handler == nil {
		return
	}

	s.emit(review.Turn{ID: evt.CallID, Type: review.TurnFunctionCall, Role: review.RoleAssistant, Text: evt.Name + " " + evt.Arguments})

	result, err := handler(evt.Name, evt.Arguments)
	if err != nil {
		result = fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	s.emit(review.Turn{ID: evt.CallID, Type: review.TurnFunctionCallOutput, Role: review.RoleTool, Text: result})

	_ = s.writeJSON(createConversationItemMessage{
		Type: "conversation.item.create",
		Item: conversationItem{Type: "function_call_output", CallID: evt.CallID, Output: result},
	})
	_ = s.writeJSON(map[string]string{"type": "response.create"})
}

func (s *session) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errVal == nil {
		s.errVal = err
	}
}

func (s *session) closeChannels() {
	s.closeOnce.Do(func() {
		close(s.audioCh)
		close(s.turns)
	})
}

func (s *session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func toOAITools(tools []llm.ToolDefinition) []oaiTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]oaiTool, len(tools))
	for i, t := range tools {
		out[i] = oaiTool{Type: "function", Name: t.Name, Description: t.Description, Parameters: t.Parameters}
	}
	return out
}

// ── SessionHandle methods ────────────────────────────────────────────────────

// SendAudio appends a PCM16 chunk to the input buffer.
func (s *session) SendAudio(chunk []byte) error {
	if s.isClosed() {
		return fmt.Errorf("openai: session closed")
	}
	return s.writeJSON(appendAudioMessage{
		Type:  "input_audio_buffer.append",
		Audio: base64.StdEncoding.EncodeToString(chunk),
	})
}

func (s *session) Audio() <-chan []byte { return s.audioCh }

func (s *session) Turns() <-chan review.Turn { return s.turns }

func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

func (s *session) OnToolCall(handler s2s.ToolCallHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toolHandler = handler
}

// SetTools replaces the active tools with a session.update.
func (s *session) SetTools(tools []llm.ToolDefinition) error {
	params := baseParams()
	params.Tools = toOAITools(tools)
	return s.writeJSON(sessionUpdateMessage{Type: "session.update", Session: params})
}

// UpdateInstructions replaces the instructions with a session.update.
func (s *session) UpdateInstructions(instructions string) error {
	params := baseParams()
	params.Instructions = instructions
	return s.writeJSON(sessionUpdateMessage{Type: "session.update", Session: params})
}

// InjectTextContext sends each item as a conversation.item.create. Unknown
// roles are sent as user messages.
func (s *session) InjectTextContext(items []s2s.ContextItem) error {
	if s.isClosed() {
		return fmt.Errorf("openai: session closed")
	}
	for _, item := range items {
		role := item.Role
		switch role {
		case "assistant", "system":
		default:
			role = "user"
		}
		partType := "input_text"
		if role == "assistant" {
			partType = "text"
		}
		msg := createConversationItemMessage{
			Type: "conversation.item.create",
			Item: conversationItem{
				Type:    "message",
				Role:    role,
				Content: []conversationPart{{Type: partType, Text: item.Content}},
			},
		}
		if err := s.writeJSON(msg); err != nil {
			return err
		}
	}
	return nil
}

// Interrupt sends response.cancel.
func (s *session) Interrupt() error {
	return s.writeJSON(map[string]string{"type": "response.cancel"})
}

// Close terminates the session. Idempotent.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.conn.Close(websocket.StatusNormalClosure, "session closed")
	return nil
}
