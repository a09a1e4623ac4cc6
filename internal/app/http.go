package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-playground/validator/v10"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/TylorChan/Vocabulary-Builder-App/internal/capture"
	"github.com/TylorChan/Vocabulary-Builder-App/internal/health"
	"github.com/TylorChan/Vocabulary-Builder-App/internal/mcp/mcphost"
	"github.com/TylorChan/Vocabulary-Builder-App/internal/observe"
	"github.com/TylorChan/Vocabulary-Builder-App/internal/session"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/persistence"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/review"
)

// maxBody caps JSON request bodies.
const maxBody = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

type startRequest struct {
	UserID string `json:"userId" validate:"max=200"`
}

type turnRequest struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Role string `json:"role" validate:"required,oneof=user assistant system tool"`
	Text string `json:"text" validate:"required"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Handler returns the HTTP API, wrapped in tracing and metrics middleware.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/sessions", a.handleStart)
	mux.HandleFunc("GET /v1/sessions/{userId}", a.handleSnapshot)
	mux.HandleFunc("DELETE /v1/sessions/{userId}", a.handleStop)
	mux.HandleFunc("GET /v1/sessions/{userId}/history", a.handleHistory)
	mux.HandleFunc("POST /v1/sessions/{userId}/turns", a.handleTurn)
	mux.HandleFunc("POST /v1/sessions/{userId}/tools/{name}", a.handleTool)
	mux.HandleFunc("GET /v1/sessions/{userId}/audio", a.handleAudio)
	mux.HandleFunc("POST /v1/users/{userId}/sync", a.handleSync)
	mux.HandleFunc("POST /v1/vocabulary/define", a.handleDefine)
	mux.HandleFunc("POST /v1/vocabulary", a.handleSaveVocabulary)

	mux.Handle("/mcp/{userId}", mcphost.Handler(func(r *http.Request) *mcpsdk.Server {
		s, ok := a.sessions.Get(r.PathValue("userId"))
		if !ok {
			return nil
		}
		return s.MCPServer()
	}))

	health.New(a.checkers...).Register(mux)
	mux.Handle("GET /metrics", a.metricsHandler())

	return observe.Middleware(a.metrics)(mux)
}

// metricsHandler serves the instance registry, or the client_golang default
// registry when the app was built without telemetry.
func (a *App) metricsHandler() http.Handler {
	if a.telemetry != nil {
		return a.telemetry.Handler()
	}
	return promhttp.Handler()
}

// ─── Sessions ────────────────────────────────────────────────────────────────

func (a *App) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !decode(w, r, &req) {
		return
	}
	s, err := a.sessions.Start(r.Context(), req.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.Info())
}

func (a *App) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (a *App) handleStop(w http.ResponseWriter, r *http.Request) {
	report, err := a.sessions.Stop(r.Context(), r.PathValue("userId"))
	if err != nil && !errors.Is(err, ErrNoSession) {
		// Updates stay pending for the next sync; the report says so.
		observe.Logger(r.Context()).Warn("app: stop sync failed", "err", err)
		writeJSON(w, http.StatusAccepted, report)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *App) handleHistory(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.History())
}

func (a *App) handleTurn(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	var req turnRequest
	if !decode(w, r, &req) {
		return
	}
	s.AppendTurn(review.Turn{
		ID:   req.ID,
		Type: req.Type,
		Role: req.Role,
		Text: req.Text,
		At:   time.Now(),
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleTool(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	args := "{}"
	if r.ContentLength != 0 {
		var raw json.RawMessage
		if !decode(w, r, &raw) {
			return
		}
		args = string(raw)
	}
	res, err := s.CallTool(r.Context(), r.PathValue("name"), args)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.IsError {
		status = http.StatusUnprocessableEntity
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if json.Valid([]byte(res.Content)) {
		_, _ = w.Write([]byte(res.Content))
		return
	}
	_ = json.NewEncoder(w).Encode(errorBody{Error: res.Content})
}

// handleAudio relays PCM16 between a WebSocket client and the realtime model.
// Binary frames go to the model; tutor audio comes back as binary frames.
func (a *App) handleAudio(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	if !s.Info().Voice {
		writeJSON(w, http.StatusConflict, errorBody{Error: "session has no realtime connection"})
		return
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	log := observe.Logger(ctx).With("user_id", s.Info().UserID)

	go func() {
		defer cancel()
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if typ != websocket.MessageBinary {
				continue
			}
			if err := s.SendAudio(data); err != nil {
				log.Debug("app: drop inbound audio", "err", err)
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.Done():
			conn.Close(websocket.StatusNormalClosure, "session stopped")
			return
		case chunk := <-s.Audio():
			if err := conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
		}
	}
}

// ─── Sync and vocabulary ─────────────────────────────────────────────────────

func (a *App) handleSync(w http.ResponseWriter, r *http.Request) {
	report, err := a.reconciler.Flush(r.Context(), r.PathValue("userId"))
	if err != nil {
		observe.Logger(r.Context()).Warn("app: on-demand sync failed", "err", err)
		writeJSON(w, http.StatusBadGateway, report)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *App) handleDefine(w http.ResponseWriter, r *http.Request) {
	var req capture.DefineRequest
	if !decodeBody(w, r, &req) {
		return
	}
	def, err := a.capture.Define(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (a *App) handleSaveVocabulary(w http.ResponseWriter, r *http.Request) {
	var in persistence.VocabularyInput
	if !decodeBody(w, r, &in) {
		return
	}
	saved, err := a.capture.Save(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func (a *App) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, ok := a.sessions.Get(r.PathValue("userId"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: ErrNoSession.Error()})
	}
	return s, ok
}

// decodeBody reads a JSON body into v without struct validation.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body: " + err.Error()})
		return false
	}
	return true
}

// decode reads a JSON body into v and validates struct tags. An empty body
// decodes as the zero value.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.ContentLength != 0 {
		if !decodeBody(w, r, v) {
			return false
		}
	}
	if _, ok := v.(*json.RawMessage); ok {
		return true
	}
	if err := validate.Struct(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrSessionActive):
		status = http.StatusConflict
	case errors.Is(err, ErrNoSession):
		status = http.StatusNotFound
	case errors.Is(err, mcphost.ErrToolNotFound):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrStopped):
		status = http.StatusGone
	case errors.Is(err, capture.ErrInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status >= http.StatusInternalServerError {
		observe.Logger(r.Context()).Error("app: request failed", "err", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("app: write response", "err", err)
	}
}
