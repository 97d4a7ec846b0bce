package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/dominossauro/lowcode/internal/engine"
	"github.com/dominossauro/lowcode/internal/state"
	"github.com/dominossauro/lowcode/pkg/schema"
)

const requestIDHeader = "X-Request-ID"

// handleFlow runs the flow behind any path no other route claims.
func (s *Server) handleFlow(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeRequest(w, r)
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, map[string]any{
			"error":   "Invalid request body",
			"code":    schema.ErrCodeValidation,
			"message": err.Error(),
		})
		return
	}

	result, err := s.deps.Executor.Execute(r.Context(), req)
	if result != nil && result.RequestID != "" {
		w.Header().Set(requestIDHeader, result.RequestID)
	}
	if err != nil {
		s.writeFailure(w, req, result, err)
		return
	}
	writeResponse(w, result.Response)
}

// decodeRequest converts r into an engine request. Query values with a single
// occurrence become strings, repeated ones lists. Headers keep their first value.
func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request) (engine.Request, error) {
	req := engine.Request{
		Method:  r.Method,
		Path:    r.URL.Path,
		Query:   flattenValues(r.URL.Query()),
		Headers: make(map[string]string, len(r.Header)),
	}
	for k, v := range r.Header {
		if len(v) > 0 {
			req.Headers[k] = v[0]
		}
	}

	if r.Body == nil {
		return req, nil
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.deps.MaxBodyBytes))
	if err != nil {
		return req, err
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return req, nil
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		var body any
		if err := json.Unmarshal(raw, &body); err != nil {
			return req, err
		}
		req.Body = body
	case mediaType == "application/x-www-form-urlencoded":
		form, err := url.ParseQuery(string(raw))
		if err != nil {
			return req, err
		}
		req.Body = flattenValues(form)
	default:
		req.Body = string(raw)
	}
	return req, nil
}

func flattenValues(values url.Values) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		switch len(v) {
		case 0:
			out[k] = ""
		case 1:
			out[k] = v[0]
		default:
			list := make([]any, len(v))
			for i, item := range v {
				list[i] = item
			}
			out[k] = list
		}
	}
	return out
}

// writeResponse sends what the flow asked for. String bodies with a non-JSON
// content type are written verbatim; everything else is encoded as JSON.
func writeResponse(w http.ResponseWriter, resp *state.Response) {
	if resp == nil {
		resp = engine.DefaultResponse()
	}
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}

	if resp.Body == nil {
		w.WriteHeader(status)
		return
	}
	if text, ok := resp.Body.(string); ok {
		if ct := w.Header().Get("Content-Type"); ct != "" && !strings.Contains(ct, "json") {
			w.WriteHeader(status)
			io.WriteString(w, text)
			return
		}
	}
	writeJSON(w, status, resp.Body)
}

// writeFailure reports an execution error. Diagnostic fields are only added
// when ShowExceptions is set.
func (s *Server) writeFailure(w http.ResponseWriter, req engine.Request, result *engine.Result, err error) {
	status := engine.StatusCode(err, result)
	body := map[string]any{"code": schema.Code(err)}

	var fe *schema.FlowError
	errors.As(err, &fe)

	switch status {
	case http.StatusNotFound:
		body["error"] = "Endpoint not found"
	default:
		body["error"] = "Flow execution failed"
		if fe != nil {
			body["message"] = fe.Message
		} else {
			body["message"] = err.Error()
		}
	}

	if s.deps.ShowExceptions {
		body["message"] = err.Error()
		body["method"] = req.Method
		body["path"] = req.Path
		if fe != nil {
			if fe.NodeID != "" {
				body["node_id"] = fe.NodeID
			}
			if eps, ok := fe.Details["availableEndpoints"]; ok {
				body["availableEndpoints"] = eps
			}
			if len(fe.Details) > 0 {
				body["details"] = fe.Details
			}
		}
		if result != nil {
			body["controller"] = result.Controller
			if result.StartNode != "" {
				body["start_node"] = result.StartNode
			}
		}
	}

	writeJSON(w, status, body)
}
