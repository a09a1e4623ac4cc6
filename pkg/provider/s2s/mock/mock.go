// Package mock provides test doubles for the s2s package interfaces.
//
// Session hands out channels the test controls: push learner or tutor turns
// into TurnsCh and call End to simulate the realtime connection dropping.
//
//	sess := mock.NewSession()
//	p := &mock.Provider{Session: sess}
//	sess.TurnsCh <- review.Turn{Role: review.RoleUser, Text: "hi"}
//	sess.End(nil)
package mock

import (
	"context"
	"sync"

	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/llm"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/s2s"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/review"
)

var (
	_ s2s.Provider      = (*Provider)(nil)
	_ s2s.SessionHandle = (*Session)(nil)
)

// ── Provider ─────────────────────────────────────────────────────────────────

// Provider is a mock implementation of s2s.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is returned by Connect. When nil, each Connect gets a fresh
	// NewSession.
	Session *Session

	// ConnectErr, if non-nil, is returned by Connect.
	ConnectErr error

	// ConnectCalls records the config of every Connect call in order.
	ConnectCalls []s2s.SessionConfig

	sessions []*Session
}

// Connect records the call and returns Session or a fresh one.
func (p *Provider) Connect(_ context.Context, cfg s2s.SessionConfig) (s2s.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = append(p.ConnectCalls, cfg)
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	s := p.Session
	if s == nil {
		s = NewSession()
	}
	p.sessions = append(p.sessions, s)
	return s, nil
}

// Sessions returns every session handed out so far.
func (p *Provider) Sessions() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Session(nil), p.sessions...)
}

// CallCount returns the number of Connect calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ConnectCalls)
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = nil
	p.sessions = nil
}

// ── Session ──────────────────────────────────────────────────────────────────

// Session is a mock implementation of s2s.SessionHandle.
type Session struct {
	mu sync.Mutex

	// AudioCh and TurnsCh back Audio and Turns. End closes both.
	AudioCh chan []byte
	TurnsCh chan review.Turn

	SendAudioErr          error
	SetToolsErr           error
	UpdateInstructionsErr error
	InjectTextContextErr  error
	CloseErr              error

	// Recorded calls.
	SentAudio          [][]byte
	SetToolsCalls      [][]llm.ToolDefinition
	InstructionUpdates []string
	Injected           [][]s2s.ContextItem
	InterruptCount     int
	CloseCount         int

	handler s2s.ToolCallHandler
	err     error
	endOnce sync.Once
}

// NewSession returns a Session with buffered channels.
func NewSession() *Session {
	return &Session{
		AudioCh: make(chan []byte, 64),
		TurnsCh: make(chan review.Turn, 64),
	}
}

// End closes the output channels and records err for Err. Safe to call more
// than once; only the first call has an effect.
func (s *Session) End(err error) {
	s.endOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.AudioCh)
		close(s.TurnsCh)
	})
}

func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SentAudio = append(s.SentAudio, append([]byte(nil), chunk...))
	return s.SendAudioErr
}

// Sent returns a copy of the audio chunks passed to SendAudio.
func (s *Session) Sent() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.SentAudio...)
}

func (s *Session) Audio() <-chan []byte { return s.AudioCh }

func (s *Session) Turns() <-chan review.Turn { return s.TurnsCh }

func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) OnToolCall(handler s2s.ToolCallHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

// Handler returns the registered tool handler, or nil.
func (s *Session) Handler() s2s.ToolCallHandler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handler
}

// CallTool invokes the registered handler as the model would. It panics when
// no handler is registered.
func (s *Session) CallTool(name, args string) (string, error) {
	h := s.Handler()
	if h == nil {
		panic("mock: no tool handler registered")
	}
	return h(name, args)
}

func (s *Session) SetTools(tools []llm.ToolDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SetToolsCalls = append(s.SetToolsCalls, append([]llm.ToolDefinition(nil), tools...))
	return s.SetToolsErr
}

func (s *Session) UpdateInstructions(instructions string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.InstructionUpdates = append(s.InstructionUpdates, instructions)
	return s.UpdateInstructionsErr
}

func (s *Session) InjectTextContext(items []s2s.ContextItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Injected = append(s.Injected, append([]s2s.ContextItem(nil), items...))
	return s.InjectTextContextErr
}

// InjectedCalls returns a copy of the InjectTextContext calls.
func (s *Session) InjectedCalls() [][]s2s.ContextItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]s2s.ContextItem(nil), s.Injected...)
}

func (s *Session) Interrupt() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.InterruptCount++
	return nil
}

// Close records the call and ends the session.
func (s *Session) Close() error {
	s.mu.Lock()
	s.CloseCount++
	err := s.CloseErr
	s.mu.Unlock()
	s.End(nil)
	return err
}

// Closes returns the number of Close calls.
func (s *Session) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CloseCount
}
