// Package mcp exposes the flow catalog as Model Context Protocol tools, so an
// agent can list endpoints, invoke them and inspect controller graphs.
package mcp

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dominossauro/lowcode/internal/engine"
	"github.com/dominossauro/lowcode/internal/logging"
)

// Reloader re-reads controller documents on demand.
type Reloader interface {
	Reload(ctx context.Context, force bool) (bool, error)
}

// ServerDeps holds the dependencies for creating a Server.
type ServerDeps struct {
	Executor *engine.Executor
	// Reloader backs lowcode.reload. The tool reports an error when nil.
	Reloader Reloader
	Logger   *slog.Logger
	Version  string
}

// Server wraps an MCP server with the lowcode tool handlers.
type Server struct {
	executor  *engine.Executor
	reloader  Reloader
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewServer creates a Server with all tools registered.
func NewServer(deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		executor: deps.Executor,
		reloader: deps.Reloader,
		logger:   logger,
	}

	mcpSrv := server.NewMCPServer(
		"lowcode",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("lowcode serves HTTP endpoints backed by node-graph flows. Use lowcode.endpoints to discover controllers and their endpoints, lowcode.invoke to call one, lowcode.diagram to see a controller's graph and lowcode.reload to pick up edited flow documents."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// HTTPHandler returns the streamable HTTP transport for mounting on a mux.
func (s *Server) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcpServer)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: endpointsTool(), Handler: s.handleEndpoints},
		{Tool: invokeTool(), Handler: s.handleInvoke},
		{Tool: diagramTool(), Handler: s.handleDiagram},
		{Tool: reloadTool(), Handler: s.handleReload},
	}
}

// --- Tool definitions ---

func endpointsTool() mcp.Tool {
	return mcp.NewTool("lowcode.endpoints",
		mcp.WithDescription("List registered controllers and their endpoints"),
		mcp.WithString("controller", mcp.Description("Only list this controller")),
	)
}

func invokeTool() mcp.Tool {
	return mcp.NewTool("lowcode.invoke",
		mcp.WithDescription("Call a flow endpoint and return the response it produced"),
		mcp.WithString("method", mcp.Required(), mcp.Description("HTTP method, e.g. GET or POST")),
		mcp.WithString("path", mcp.Required(), mcp.Description("Request path; its first segment names the controller unless controller is set")),
		mcp.WithString("controller", mcp.Description("Controller name (default: first path segment)")),
		mcp.WithObject("query", mcp.Description("Query string values")),
		mcp.WithObject("headers", mcp.Description("Request headers")),
		mcp.WithObject("body", mcp.Description("JSON request body")),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("lowcode.diagram",
		mcp.WithDescription("Render a controller's node graph. Returns Mermaid, ASCII art, SVG or base64-encoded PNG"),
		mcp.WithString("controller", mcp.Required(), mcp.Description("Controller name")),
		mcp.WithString("format",
			mcp.Enum("mermaid", "ascii", "svg", "png"),
			mcp.Description("Output format (default: mermaid)"),
		),
	)
}

func reloadTool() mcp.Tool {
	return mcp.NewTool("lowcode.reload",
		mcp.WithDescription("Reload controller documents from disk"),
		mcp.WithBoolean("force", mcp.Description("Reload even when no file changed")),
	)
}
