package mcphost

import (
	"context"
	"maps"
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/TylorChan/Vocabulary-Builder-App/internal/mcp/tools"
)

// NewServer exposes ts as an MCP server so runtimes other than the built-in
// realtime session can drive a review.
func NewServer(ts []tools.Tool) *mcpsdk.Server {
	srv := mcpsdk.NewServer(Implementation, nil)
	for _, t := range ts {
		srv.AddTool(&mcpsdk.Tool{
			Name:        t.Definition.Name,
			Description: t.Definition.Description,
			InputSchema: inputSchema(t.Definition.Parameters),
		}, serverHandler(t))
	}
	return srv
}

// Handler serves MCP over streamable HTTP. resolve picks the server for a
// request; returning nil rejects it.
func Handler(resolve func(*http.Request) *mcpsdk.Server) http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(resolve, nil)
}

func serverHandler(t tools.Tool) mcpsdk.ToolHandler {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		args := "{}"
		if req.Params != nil && len(req.Params.Arguments) > 0 {
			args = string(req.Params.Arguments)
		}
		if t.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, t.Timeout)
			defer cancel()
		}
		out, err := t.Handler(ctx, args)
		if err != nil {
			return &mcpsdk.CallToolResult{
				Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
				IsError: true,
			}, nil
		}
		return &mcpsdk.CallToolResult{Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: out}}}, nil
	}
}

// inputSchema guarantees the object schema the SDK requires.
func inputSchema(params map[string]any) map[string]any {
	if params == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	if _, ok := params["type"]; ok {
		return params
	}
	s := maps.Clone(params)
	s["type"] = "object"
	return s
}
