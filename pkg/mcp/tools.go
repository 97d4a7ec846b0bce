package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dominossauro/lowcode/internal/diagram"
	"github.com/dominossauro/lowcode/internal/engine"
	"github.com/dominossauro/lowcode/internal/expressions"
	"github.com/dominossauro/lowcode/pkg/schema"
)

type endpointView struct {
	ID     string `json:"id,omitempty"`
	Method string `json:"method"`
	Path   string `json:"path"`
}

type controllerView struct {
	Name      string         `json:"name"`
	Nodes     int            `json:"nodes"`
	Endpoints []endpointView `json:"endpoints"`
}

// handleEndpoints lists controllers, optionally narrowed to one.
func (s *Server) handleEndpoints(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	catalog := s.executor.Catalog()

	names := catalog.Names()
	if only := req.GetString("controller", ""); only != "" {
		names = []string{only}
	}

	views := make([]controllerView, 0, len(names))
	for _, name := range names {
		ctrl, err := catalog.Get(name)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		view := controllerView{Name: name, Nodes: len(ctrl.Nodes())}
		for _, ep := range ctrl.Endpoints() {
			view.Endpoints = append(view.Endpoints, endpointView{ID: ep.ID, Method: ep.Method, Path: ep.Path})
		}
		views = append(views, view)
	}

	return marshalResult(map[string]any{"controllers": views})
}

// invokeResult is what lowcode.invoke reports back.
type invokeResult struct {
	Status     int               `json:"status"`
	Body       any               `json:"body,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Responded  bool              `json:"responded"`
	RequestID  string            `json:"request_id,omitempty"`
	Controller string            `json:"controller,omitempty"`
	Endpoint   string            `json:"endpoint,omitempty"`
	StartNode  string            `json:"start_node,omitempty"`
	Variables  map[string]any    `json:"variables,omitempty"`
	DurationMs int64             `json:"duration_ms"`
	Error      *schema.FlowError `json:"error,omitempty"`
}

// handleInvoke runs one flow request. Execution failures come back as an
// error result carrying the same payload.
func (s *Server) handleInvoke(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	method, err := req.RequireString("method")
	if err != nil {
		return mcp.NewToolResultError("method is required"), nil
	}
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError("path is required"), nil
	}

	headers := make(map[string]string)
	for k, v := range mcp.ParseStringMap(req, "headers", nil) {
		headers[http.CanonicalHeaderKey(k)] = expressions.Stringify(v)
	}

	var body any
	if args := req.GetArguments(); args != nil {
		body = args["body"]
	}

	result, runErr := s.executor.Execute(ctx, engine.Request{
		Controller: req.GetString("controller", ""),
		Method:     method,
		Path:       path,
		Query:      mcp.ParseStringMap(req, "query", map[string]any{}),
		Headers:    headers,
		Body:       body,
	})

	out := invokeResult{Status: engine.StatusCode(runErr, result)}
	if result != nil {
		out.RequestID = result.RequestID
		out.Controller = result.Controller
		out.Endpoint = result.Endpoint.ID
		out.StartNode = result.StartNode
		out.Responded = result.Responded
		out.Variables = result.Variables
		out.DurationMs = result.DurationMs
		if result.Response != nil {
			out.Body = result.Response.Body
			out.Headers = result.Response.Headers
		}
	}

	if runErr != nil {
		s.logger.WarnContext(ctx, "mcp invoke failed", "method", method, "path", path, "error", runErr)
		out.Error = asFlowError(runErr)
		out.Body, out.Headers = nil, nil
		res, mErr := marshalResult(out)
		if res != nil {
			res.IsError = true
		}
		return res, mErr
	}
	return marshalResult(out)
}

func asFlowError(err error) *schema.FlowError {
	var fe *schema.FlowError
	if errors.As(err, &fe) {
		return fe
	}
	return schema.NewError(schema.ErrCodeHandlerFailed, err.Error())
}

// handleDiagram renders a controller graph in the requested format.
func (s *Server) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("controller")
	if err != nil {
		return mcp.NewToolResultError("controller is required"), nil
	}
	ctrl, err := s.executor.Catalog().Get(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	model := diagram.Build(ctrl, nil)

	switch format := req.GetString("format", "mermaid"); format {
	case "mermaid":
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	case "ascii":
		return mcp.NewToolResultText(diagram.RenderASCII(model)), nil
	case "svg":
		svg, imgErr := diagram.RenderImage(ctx, model, diagram.FormatSVG)
		if imgErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("image render failed: %v", imgErr)), nil
		}
		return mcp.NewToolResultText(string(svg)), nil
	case "png":
		png, imgErr := diagram.RenderImage(ctx, model, diagram.FormatPNG)
		if imgErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("image render failed: %v", imgErr)), nil
		}
		return mcp.NewToolResultText(base64.StdEncoding.EncodeToString(png)), nil
	default:
		return mcp.NewToolResultError("format must be mermaid, ascii, svg or png"), nil
	}
}

// handleReload re-reads controller documents.
func (s *Server) handleReload(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.reloader == nil {
		return mcp.NewToolResultError("reloading is not enabled"), nil
	}
	changed, err := s.reloader.Reload(ctx, req.GetBool("force", false))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reload failed: %v", err)), nil
	}
	return marshalResult(map[string]any{
		"reloaded":    changed,
		"controllers": s.executor.Catalog().Names(),
	})
}

// marshalResult encodes v as a JSON tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
