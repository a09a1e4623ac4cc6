package mcp

// Transport selects the connection mechanism for an MCP server.
type Transport string

const (
	// TransportStdio spawns a subprocess and communicates over stdin/stdout.
	TransportStdio Transport = "stdio"

	// TransportStreamableHTTP communicates via the MCP Streamable HTTP protocol.
	TransportStreamableHTTP Transport = "streamable-http"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	return t == TransportStdio || t == TransportStreamableHTTP
}

// ServerConfig describes how to connect to a single external MCP server.
type ServerConfig struct {
	// Name identifies the server in logs and errors. Unique per host.
	Name string

	Transport Transport

	// Command is the executable and arguments for [TransportStdio].
	Command string

	// URL is the endpoint for [TransportStreamableHTTP].
	URL string

	// Env holds extra environment variables for stdio servers.
	Env map[string]string
}

// ToolResult holds the outcome of a single tool execution.
type ToolResult struct {
	// Content is the tool's textual output, usually JSON.
	Content string

	// IsError marks an application-level failure; Content then holds the
	// message. Transport failures are returned as Go errors instead.
	IsError bool

	DurationMs int64
}
