package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/TylorChan/Vocabulary-Builder-App/internal/app"
	"github.com/TylorChan/Vocabulary-Builder-App/internal/config"
	"github.com/TylorChan/Vocabulary-Builder-App/internal/observe"
	"github.com/TylorChan/Vocabulary-Builder-App/internal/reconcile"
	memorymock "github.com/TylorChan/Vocabulary-Builder-App/pkg/memory/mock"
	pendingmock "github.com/TylorChan/Vocabulary-Builder-App/pkg/pending/mock"
	persistmock "github.com/TylorChan/Vocabulary-Builder-App/pkg/persistence/mock"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/judge"
	judgemock "github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/judge/mock"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/llm"
	llmmock "github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/llm/mock"
	plannermock "github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/planner/mock"
	s2smock "github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/s2s/mock"
	schedmock "github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/scheduler/mock"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/review"
)

// testConfig returns a minimal valid config; every remote service is mocked.
func testConfig() *config.Config {
	cfg := &config.Config{
		Services: config.ServicesConfig{
			Scheduler:   config.Endpoint{URL: "http://scheduler.invalid"},
			Persistence: config.Endpoint{URL: "http://graphql.invalid"},
			JudgeOrder:  []string{config.JudgeLLM},
		},
		Providers: config.ProvidersConfig{LLM: config.ProviderEntry{Name: "openai"}},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

type testApp struct {
	app     *app.App
	server  *httptest.Server
	backend *persistmock.Backend
	pending *pendingmock.Store
	memory  *memorymock.Service
	llm     *llmmock.Provider
}

// newTestApp builds an App on mocks. setup, when non-nil, configures the
// mocks before the server starts.
func newTestApp(t *testing.T, providers *app.Providers, setup func(*testApp)) *testApp {
	t.Helper()
	ta := &testApp{
		backend: &persistmock.Backend{Due: []review.VocabularyItem{
			{ID: "w1", Text: "exhausted", Card: review.SchedulerCard{State: review.StateReview}},
			{ID: "w2", Text: "wiped out", Card: review.SchedulerCard{State: review.StateReview}},
		}},
		pending: &pendingmock.Store{},
		memory:  &memorymock.Service{},
		llm:     &llmmock.Provider{},
	}
	if providers == nil {
		providers = &app.Providers{}
	}
	if providers.LLM == nil {
		providers.LLM = ta.llm
	}
	if setup != nil {
		setup(ta)
	}
	judgeMock := &judgemock.Provider{
		RateSceneFunc: func(_ context.Context, _ string, ws []judge.Word) ([]review.SceneRating, error) {
			out := make([]review.SceneRating, len(ws))
			for i, w := range ws {
				out[i] = review.SceneRating{VocabularyID: w.ID, Rating: review.RatingGood, Evidence: "used it"}
			}
			return out, nil
		},
	}

	a, err := app.New(context.Background(), testConfig(), providers,
		app.WithBackend(ta.backend),
		app.WithScheduler(&schedmock.Provider{}),
		app.WithJudge(judgeMock),
		app.WithPlanner(&plannermock.Provider{}),
		app.WithPendingStore(ta.pending),
		app.WithMemory(ta.memory),
	)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	ta.app = a
	ta.server = httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		ta.server.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
	})
	return ta
}

func (ta *testApp) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, ta.server.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := ta.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	return resp.StatusCode, buf.Bytes()
}

func decodeMap(t *testing.T, b []byte) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
	return m
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// ── New ──────────────────────────────────────────────────────────────────────

func TestNew_WithMocks(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t, nil, nil)
	if ta.app.Sessions() == nil {
		t.Fatal("Sessions() = nil")
	}
	if got := ta.app.Sessions().DefaultUser(); got == "" {
		t.Error("DefaultUser is empty")
	}
}

func TestNew_JudgeErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		order     []string
		providers *app.Providers
		wantErr   string
	}{
		{
			name:      "no judge",
			order:     nil,
			providers: &app.Providers{LLM: &llmmock.Provider{}},
			wantErr:   "no scene judge",
		},
		{
			name:      "llm judge without llm",
			order:     []string{config.JudgeLLM},
			providers: &app.Providers{},
			wantErr:   "no LLM provider",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig()
			cfg.Services.JudgeOrder = tt.order
			_, err := app.New(context.Background(), cfg, tt.providers,
				app.WithBackend(&persistmock.Backend{}),
				app.WithScheduler(&schedmock.Provider{}),
				app.WithPendingStore(&pendingmock.Store{}),
			)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("New() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestNew_BuildsJudgeChain(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Services.Judge = config.Endpoint{URL: "http://judge.invalid"}
	cfg.Services.JudgeOrder = []string{config.JudgeLLM, config.JudgeHTTP}

	a, err := app.New(context.Background(), cfg, &app.Providers{
		LLM:         &llmmock.Provider{},
		LLMFallback: []llm.Provider{&llmmock.Provider{}},
	},
		app.WithBackend(&persistmock.Backend{}),
		app.WithPendingStore(&pendingmock.Store{}),
	)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	defer a.Shutdown(context.Background())

	srv := httptest.NewServer(a.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("readyz status = %d, want 200", resp.StatusCode)
	}
}

// ── Session API ──────────────────────────────────────────────────────────────

func TestHTTP_SessionLifecycle(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t, nil, nil)

	code, body := ta.do(t, http.MethodPost, "/v1/sessions", `{"userId":"u1"}`)
	if code != http.StatusCreated {
		t.Fatalf("start status = %d: %s", code, body)
	}
	if info := decodeMap(t, body); info["userId"] != "u1" || info["words"] != float64(2) {
		t.Errorf("info = %v", info)
	}

	if code, _ := ta.do(t, http.MethodPost, "/v1/sessions", `{"userId":"u1"}`); code != http.StatusConflict {
		t.Errorf("second start status = %d, want 409", code)
	}

	code, body = ta.do(t, http.MethodPost, "/v1/sessions/u1/tools/get_next_scene", "")
	if code != http.StatusOK {
		t.Fatalf("get_next_scene status = %d: %s", code, body)
	}
	scene := decodeMap(t, body)["scene"].(map[string]any)

	steps := []struct{ path, body string }{
		{"/v1/sessions/u1/tools/start_scene", `{"sceneId":"` + scene["sceneId"].(string) + `"}`},
		{"/v1/sessions/u1/turns", `{"role":"user","text":"I was exhausted and wiped out."}`},
		{"/v1/sessions/u1/tools/mark_scene_done", ""},
		{"/v1/sessions/u1/tools/request_scene_rating", ""},
	}
	for _, s := range steps {
		if code, body := ta.do(t, http.MethodPost, s.path, s.body); code >= 300 {
			t.Fatalf("POST %s status = %d: %s", s.path, code, body)
		}
	}

	eventually(t, "scene rated", func() bool {
		_, body := ta.do(t, http.MethodGet, "/v1/sessions/u1", "")
		return decodeMap(t, body)["rated"] == float64(2)
	})

	code, body = ta.do(t, http.MethodGet, "/v1/sessions/u1/history", "")
	if code != http.StatusOK || !strings.Contains(string(body), "wiped out") {
		t.Errorf("history = %d %s", code, body)
	}

	code, body = ta.do(t, http.MethodDelete, "/v1/sessions/u1", "")
	if code != http.StatusOK {
		t.Fatalf("stop status = %d: %s", code, body)
	}
	var rep reconcile.Report
	if err := json.Unmarshal(body, &rep); err != nil {
		t.Fatal(err)
	}
	if rep.Synced != 2 {
		t.Errorf("Synced = %d, want 2", rep.Synced)
	}
	if saved := ta.backend.Saved(); len(saved) != 1 {
		t.Errorf("backend saves = %d, want 1", len(saved))
	}

	if code, _ := ta.do(t, http.MethodGet, "/v1/sessions/u1", ""); code != http.StatusNotFound {
		t.Errorf("snapshot after stop status = %d, want 404", code)
	}
}

func TestHTTP_ExhaustedPlanEndsSession(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t, nil, nil)

	if code, body := ta.do(t, http.MethodPost, "/v1/sessions", `{"userId":"u1"}`); code != http.StatusCreated {
		t.Fatalf("start status = %d: %s", code, body)
	}
	code, body := ta.do(t, http.MethodPost, "/v1/sessions/u1/tools/get_next_scene", "")
	if code != http.StatusOK {
		t.Fatalf("get_next_scene status = %d: %s", code, body)
	}
	scene := decodeMap(t, body)["scene"].(map[string]any)

	steps := []struct{ path, body string }{
		{"/v1/sessions/u1/tools/start_scene", `{"sceneId":"` + scene["sceneId"].(string) + `"}`},
		{"/v1/sessions/u1/turns", `{"role":"user","text":"I was exhausted and wiped out."}`},
		{"/v1/sessions/u1/tools/mark_scene_done", ""},
		{"/v1/sessions/u1/tools/request_scene_rating", ""},
	}
	for _, s := range steps {
		if code, body := ta.do(t, http.MethodPost, s.path, s.body); code >= 300 {
			t.Fatalf("POST %s status = %d: %s", s.path, code, body)
		}
	}

	// The plan holds one scene, so the next request finds it exhausted.
	code, body = ta.do(t, http.MethodPost, "/v1/sessions/u1/tools/get_next_scene", "")
	if code != http.StatusOK {
		t.Fatalf("get_next_scene status = %d: %s", code, body)
	}
	if done := decodeMap(t, body)["done"]; done != true {
		t.Fatalf("second get_next_scene done = %v, want true: %s", done, body)
	}

	eventually(t, "session removed", func() bool {
		return ta.app.Sessions().Count() == 0
	})
	eventually(t, "review session saved", func() bool {
		return len(ta.backend.Saved()) == 1
	})
	if saved := ta.backend.Saved(); len(saved[0]) != 2 {
		t.Errorf("saved updates = %d, want 2", len(saved[0]))
	}
	if code, _ := ta.do(t, http.MethodGet, "/v1/sessions/u1", ""); code != http.StatusNotFound {
		t.Errorf("snapshot after completion status = %d, want 404", code)
	}

	// The user can start over.
	if code, body := ta.do(t, http.MethodPost, "/v1/sessions", `{"userId":"u1"}`); code != http.StatusCreated {
		t.Errorf("restart status = %d: %s", code, body)
	}
}

func TestHTTP_Errors(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t, nil, nil)
	if code, body := ta.do(t, http.MethodPost, "/v1/sessions", `{"userId":"u2"}`); code != http.StatusCreated {
		t.Fatalf("start status = %d: %s", code, body)
	}

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"unknown session snapshot", http.MethodGet, "/v1/sessions/nobody", "", http.StatusNotFound},
		{"unknown session stop", http.MethodDelete, "/v1/sessions/nobody", "", http.StatusNotFound},
		{"unknown session turn", http.MethodPost, "/v1/sessions/nobody/turns", `{"role":"user","text":"hi"}`, http.StatusNotFound},
		{"bad role", http.MethodPost, "/v1/sessions/u2/turns", `{"role":"narrator","text":"hi"}`, http.StatusBadRequest},
		{"empty turn", http.MethodPost, "/v1/sessions/u2/turns", `{"role":"user"}`, http.StatusBadRequest},
		{"malformed json", http.MethodPost, "/v1/sessions/u2/turns", `{`, http.StatusBadRequest},
		{"unknown tool", http.MethodPost, "/v1/sessions/u2/tools/fly_away", "", http.StatusNotFound},
		{"tool refusal is a result", http.MethodPost, "/v1/sessions/u2/tools/start_scene", `{"sceneId":"nope"}`, http.StatusOK},
		{"audio without voice", http.MethodGet, "/v1/sessions/u2/audio", "", http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := ta.do(t, tt.method, tt.path, tt.body)
			if code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", code, tt.wantStatus, body)
			}
		})
	}
}

func TestHTTP_DefaultUser(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t, nil, nil)

	code, body := ta.do(t, http.MethodPost, "/v1/sessions", "")
	if code != http.StatusCreated {
		t.Fatalf("start status = %d: %s", code, body)
	}
	want := ta.app.Sessions().DefaultUser()
	if got := decodeMap(t, body)["userId"]; got != want {
		t.Errorf("userId = %v, want %q", got, want)
	}
	if code, _ := ta.do(t, http.MethodGet, "/v1/sessions/"+want, ""); code != http.StatusOK {
		t.Errorf("snapshot status = %d, want 200", code)
	}
}

func TestHTTP_Sync(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		saveErr    error
		wantStatus int
		wantSynced float64
	}{
		{name: "delivered", wantStatus: http.StatusOK, wantSynced: 1},
		{name: "backend down", saveErr: errors.New("connection refused"), wantStatus: http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ta := newTestApp(t, nil, func(ta *testApp) {
				ta.backend.SaveErr = tt.saveErr
				ta.pending.Seed("u3", []review.PendingUpdate{
					review.NewPendingUpdate("w1", review.SchedulerCard{State: review.StateReview}, review.RatingGood, nil),
				})
			})

			code, body := ta.do(t, http.MethodPost, "/v1/users/u3/sync", "")
			if code != tt.wantStatus {
				t.Fatalf("sync status = %d, want %d: %s", code, tt.wantStatus, body)
			}
			if got := decodeMap(t, body)["synced"]; got != tt.wantSynced {
				t.Errorf("synced = %v, want %v", got, tt.wantSynced)
			}
		})
	}
}

// ── Vocabulary capture ───────────────────────────────────────────────────────

func TestHTTP_Vocabulary(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t, nil, func(ta *testApp) {
		ta.llm.CompleteResponse = &llm.CompletionResponse{
			Content: `{"definition":"very tired","realLifeDef":"done for the day","example":"I'm exhausted.","exampleTrans":"我累坏了。"}`,
		}
	})

	code, body := ta.do(t, http.MethodPost, "/v1/vocabulary/define", `{"word":"exhausted","surroundingText":"I'm exhausted after work."}`)
	if code != http.StatusOK {
		t.Fatalf("define status = %d: %s", code, body)
	}
	if got := decodeMap(t, body)["definition"]; got != "very tired" {
		t.Errorf("definition = %v", got)
	}

	if code, _ := ta.do(t, http.MethodPost, "/v1/vocabulary/define", `{"word":"  "}`); code != http.StatusBadRequest {
		t.Errorf("empty word status = %d, want 400", code)
	}

	code, body = ta.do(t, http.MethodPost, "/v1/vocabulary", `{"userId":"u1","text":"exhausted","definition":"very tired"}`)
	if code != http.StatusCreated {
		t.Fatalf("save status = %d: %s", code, body)
	}
	if got := ta.backend.Vocabulary(); len(got) != 1 || got[0].Text != "exhausted" {
		t.Errorf("saved vocabulary = %+v", got)
	}

	if code, _ := ta.do(t, http.MethodPost, "/v1/vocabulary", `{"text":"exhausted"}`); code != http.StatusBadRequest {
		t.Errorf("missing definition status = %d, want 400", code)
	}
}

// ── Audio relay ──────────────────────────────────────────────────────────────

func TestHTTP_AudioRelay(t *testing.T) {
	t.Parallel()
	rt := &s2smock.Provider{Session: s2smock.NewSession()}
	ta := newTestApp(t, &app.Providers{S2S: rt}, nil)

	if code, body := ta.do(t, http.MethodPost, "/v1/sessions", `{"userId":"u5"}`); code != http.StatusCreated {
		t.Fatalf("start status = %d: %s", code, body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(ta.server.URL, "http") + "/v1/sessions/u5/audio"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	if err := conn.Write(ctx, websocket.MessageBinary, []byte{7, 8, 9}); err != nil {
		t.Fatal(err)
	}
	eventually(t, "inbound audio forwarded", func() bool { return len(rt.Session.Sent()) == 1 })

	rt.Session.AudioCh <- []byte{1, 2}
	typ, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if typ != websocket.MessageBinary || !bytes.Equal(data, []byte{1, 2}) {
		t.Errorf("frame = %v %v", typ, data)
	}

	if code, _ := ta.do(t, http.MethodDelete, "/v1/sessions/u5", ""); code != http.StatusOK {
		t.Fatalf("stop status = %d", code)
	}
	if _, _, err := conn.Read(ctx); websocket.CloseStatus(err) != websocket.StatusNormalClosure {
		t.Errorf("close status = %v, want normal closure", err)
	}
}

// ── Ops ──────────────────────────────────────────────────────────────────────

func TestHTTP_OpsEndpoints(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t, nil, nil)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		if code, body := ta.do(t, http.MethodGet, path, ""); code != http.StatusOK {
			t.Errorf("GET %s status = %d: %s", path, code, body)
		}
	}
	if code, _ := ta.do(t, http.MethodPost, "/mcp/nobody", `{}`); code < 400 {
		t.Errorf("mcp for unknown session status = %d, want an error", code)
	}
}

func TestHTTP_MetricsServeTelemetryRegistry(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Server.ListenAddr = ":9123"

	tel, err := observe.NewTelemetry(context.Background(), observe.ProviderConfig{Version: "1.2.3", Server: cfg.Server})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	a, err := app.New(context.Background(), cfg, &app.Providers{LLM: &llmmock.Provider{}},
		app.WithBackend(&persistmock.Backend{Due: []review.VocabularyItem{
			{ID: "w1", Text: "hustle", Card: review.SchedulerCard{State: review.StateReview}},
			{ID: "w2", Text: "binge", Card: review.SchedulerCard{State: review.StateReview}},
		}}),
		app.WithScheduler(&schedmock.Provider{}),
		app.WithPendingStore(&pendingmock.Store{}),
		app.WithJudge(&judgemock.Provider{}),
		app.WithPlanner(&plannermock.Provider{}),
		app.WithMemory(&memorymock.Service{}),
		app.WithTelemetry(tel),
	)
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = a.Shutdown(context.Background())
	})

	resp, err := srv.Client().Post(srv.URL+"/v1/sessions", "application/json", strings.NewReader(`{"userId":"u1"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start status = %d", resp.StatusCode)
	}

	resp, err = srv.Client().Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	body := buf.String()
	for _, want := range []string{"vocabtutor_active_sessions", `service_version="1.2.3"`, `vocabtutor_listen_addr=":9123"`} {
		if !strings.Contains(body, want) {
			t.Errorf("/metrics missing %s", want)
		}
	}
}

func TestShutdown_StopsSessions(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t, nil, nil)
	for _, u := range []string{"a", "b"} {
		if code, body := ta.do(t, http.MethodPost, "/v1/sessions", `{"userId":"`+u+`"}`); code != http.StatusCreated {
			t.Fatalf("start %s status = %d: %s", u, code, body)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ta.app.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() returned error: %v", err)
	}
	if n := ta.app.Sessions().Count(); n != 0 {
		t.Errorf("sessions after shutdown = %d, want 0", n)
	}
	if err := ta.app.Shutdown(ctx); err != nil {
		t.Errorf("second Shutdown() returned error: %v", err)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Server.ListenAddr = "127.0.0.1:0"
	a, err := app.New(context.Background(), cfg, &app.Providers{LLM: &llmmock.Provider{}},
		app.WithBackend(&persistmock.Backend{}),
		app.WithScheduler(&schedmock.Provider{}),
		app.WithPendingStore(&pendingmock.Store{}),
	)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() returned error: %v", err)
	}
}
