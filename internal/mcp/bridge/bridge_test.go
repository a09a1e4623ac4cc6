package bridge_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/TylorChan/Vocabulary-Builder-App/internal/mcp"
	"github.com/TylorChan/Vocabulary-Builder-App/internal/mcp/bridge"
	mcpmock "github.com/TylorChan/Vocabulary-Builder-App/internal/mcp/mock"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/llm"
	s2smock "github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/s2s/mock"
)

func TestNewBridge_DeclaresTools(t *testing.T) {
	t.Parallel()
	host := &mcpmock.Host{AvailableToolsResult: []llm.ToolDefinition{
		{Name: "get_next_scene"}, {Name: "submit_word_rating"},
	}}
	sess := s2smock.NewSession()

	if _, err := bridge.NewBridge(host, sess); err != nil {
		t.Fatalf("NewBridge: %v", err)
	}
	if got := len(sess.SetToolsCalls); got != 1 {
		t.Fatalf("SetTools calls = %d, want 1", got)
	}
	if got := sess.SetToolsCalls[0]; len(got) != 2 || got[0].Name != "get_next_scene" {
		t.Errorf("declared tools = %v", got)
	}
	if sess.Handler() == nil {
		t.Error("no tool handler registered")
	}
}

func TestNewBridge_SetToolsError(t *testing.T) {
	t.Parallel()
	sess := s2smock.NewSession()
	sess.SetToolsErr = errors.New("socket gone")

	if _, err := bridge.NewBridge(&mcpmock.Host{}, sess); err == nil {
		t.Fatal("expected error")
	}
	if sess.Handler() != nil {
		t.Error("handler registered despite failure")
	}
}

func TestNewBridge_NilArgs(t *testing.T) {
	t.Parallel()
	if _, err := bridge.NewBridge(nil, s2smock.NewSession()); err == nil {
		t.Error("expected error for nil host")
	}
	if _, err := bridge.NewBridge(&mcpmock.Host{}, nil); err == nil {
		t.Error("expected error for nil session")
	}
}

func TestHandleToolCall(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		host    *mcpmock.Host
		want    string
		wantErr string
	}{
		{
			name: "success",
			host: &mcpmock.Host{ExecuteToolResult: &mcp.ToolResult{Content: `{"ok":true}`}},
			want: `{"ok":true}`,
		},
		{
			name:    "tool error",
			host:    &mcpmock.Host{ExecuteToolResult: &mcp.ToolResult{Content: "unknown vocabulary id", IsError: true}},
			wantErr: "unknown vocabulary id",
		},
		{
			name:    "transport error",
			host:    &mcpmock.Host{ExecuteToolErr: errors.New("server unavailable")},
			wantErr: `bridge: tool "start_scene": server unavailable`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sess := s2smock.NewSession()
			if _, err := bridge.NewBridge(tt.host, sess); err != nil {
				t.Fatal(err)
			}

			got, err := sess.CallTool("start_scene", `{"sceneId":"s1"}`)
			if tt.wantErr != "" {
				if err == nil || err.Error() != tt.wantErr {
					t.Fatalf("err = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("result = %q, want %q", got, tt.want)
			}

			calls := tt.host.Calls()
			last := calls[len(calls)-1]
			if last.Method != "ExecuteTool" || last.Args[0] != "start_scene" || last.Args[1] != `{"sceneId":"s1"}` {
				t.Errorf("ExecuteTool call = %+v", last)
			}
		})
	}
}

func TestHandleToolCall_Timeout(t *testing.T) {
	t.Parallel()
	host := &mcpmock.Host{}
	host.ExecuteToolFunc = func(string, string) (*mcp.ToolResult, error) {
		return &mcp.ToolResult{Content: "{}"}, nil
	}
	sess := s2smock.NewSession()
	if _, err := bridge.NewBridge(host, sess, bridge.WithToolTimeout(5*time.Millisecond)); err != nil {
		t.Fatal(err)
	}
	if _, err := sess.CallTool("x", "{}"); err != nil {
		t.Fatalf("fast tool failed under short timeout: %v", err)
	}
}

func TestRefresh(t *testing.T) {
	t.Parallel()
	host := &mcpmock.Host{AvailableToolsResult: []llm.ToolDefinition{{Name: "a"}}}
	sess := s2smock.NewSession()
	b, err := bridge.NewBridge(host, sess)
	if err != nil {
		t.Fatal(err)
	}

	host.AvailableToolsResult = []llm.ToolDefinition{{Name: "a"}, {Name: "search_learner_memory"}}
	if err := b.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := len(sess.SetToolsCalls); got != 2 {
		t.Fatalf("SetTools calls = %d, want 2", got)
	}
	if got := len(sess.SetToolsCalls[1]); got != 2 {
		t.Errorf("refreshed tools = %d, want 2", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.Refresh(ctx); err == nil {
		t.Error("expected error for cancelled context")
	}
	if got := len(sess.SetToolsCalls); got != 2 {
		t.Errorf("cancelled Refresh touched the session: %d calls", got)
	}
}

func TestClose(t *testing.T) {
	t.Parallel()
	sess := s2smock.NewSession()
	b, err := bridge.NewBridge(&mcpmock.Host{}, sess)
	if err != nil {
		t.Fatal(err)
	}
	b.Close()
	if sess.Handler() != nil {
		t.Error("handler still registered after Close")
	}
	if sess.Closes() != 0 {
		t.Error("bridge closed the session")
	}
}
