package state

import "strings"

// Request is the inbound HTTP request as seen by flow handlers.
type Request struct {
	Method  string
	Path    string
	Params  map[string]string
	Query   map[string]any
	Headers map[string]string
	Body    any
	Env     map[string]any
}

// Header returns the value of a header, matching the name case-insensitively.
func (r *Request) Header(name string) string {
	if v, ok := r.Headers[name]; ok {
		return v
	}
	for k, v := range r.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// AsMap exposes the request as a navigable map with the keys method, path,
// params, query, headers, body and env.
func (r *Request) AsMap() map[string]any {
	if r == nil {
		return map[string]any{}
	}
	params := make(map[string]any, len(r.Params))
	for k, v := range r.Params {
		params[k] = v
	}
	headers := make(map[string]any, len(r.Headers))
	for k, v := range r.Headers {
		headers[k] = v
	}
	query := r.Query
	if query == nil {
		query = map[string]any{}
	}
	env := r.Env
	if env == nil {
		env = map[string]any{}
	}
	return map[string]any{
		"method":  r.Method,
		"path":    r.Path,
		"params":  params,
		"query":   query,
		"headers": headers,
		"body":    r.Body,
		"env":     env,
	}
}

// Response is what a flow asked to send back. A nil *Response on the context
// means the caller's default applies.
type Response struct {
	StatusCode int               `json:"statusCode"`
	Body       any               `json:"body,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
}
