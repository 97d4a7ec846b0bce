package routing

import (
	"strconv"
	"strings"

	"github.com/dominossauro/lowcode/internal/graph"
	"github.com/dominossauro/lowcode/pkg/schema"
)

// MatchEndpoint finds the first endpoint of c, in registration order, whose
// method equals method (case-insensitively) and whose path matches path.
// A nil router means SegmentRouter.
func MatchEndpoint(c *graph.Controller, method, path string, r Router) (schema.Endpoint, map[string]string, error) {
	if r == nil {
		r = SegmentRouter{}
	}
	for _, ep := range c.Endpoints() {
		if !strings.EqualFold(ep.Method, method) {
			continue
		}
		if params, ok := r.Match(ep.Path, path); ok {
			return ep, params, nil
		}
	}
	return schema.Endpoint{}, nil, schema.NewErrorf(schema.ErrCodeEndpointNotFound,
		"no endpoint of %q matches %s %s", c.Name(), strings.ToUpper(method), path).
		WithDetails(map[string]any{
			"controller":         c.Name(),
			"method":             method,
			"path":               path,
			"availableEndpoints": describe(c.Endpoints()),
		})
}

func describe(eps []schema.Endpoint) []map[string]string {
	out := make([]map[string]string, 0, len(eps))
	for _, ep := range eps {
		out = append(out, map[string]string{"method": ep.Method, "path": ep.Path})
	}
	return out
}

// ResolveStartNode picks the node where ep's flow begins. The direct candidate
// "{method}-{endpointId}" wins; otherwise nodes are scanned in document order
// for one whose data.type is the lower-cased method, whose data.path (if any)
// shares the endpoint's first path segment and, when ep has an id, whose
// data.endpointId equals it.
func ResolveStartNode(c *graph.Controller, ep schema.Endpoint) (string, error) {
	notFound := schema.NewErrorf(schema.ErrCodeStartNodeNotFound,
		"no start node for endpoint %s %s of %q", ep.Method, ep.Path, c.Name()).
		WithDetails(map[string]any{"controller": c.Name(), "endpoint": ep})

	if strings.TrimSpace(ep.Path) == "" {
		return "", notFound
	}

	typ := strings.ToLower(strings.TrimSpace(ep.Method))
	if typ == "" {
		typ = "get"
	}

	if ep.ID != "" {
		candidate := typ + "-" + ep.ID
		if _, ok := c.Node(candidate); ok {
			return candidate, nil
		}
	}

	first := FirstSegment(ep.Path)
	for _, n := range c.Nodes() {
		if t, _ := n.Data["type"].(string); t != typ {
			continue
		}
		if nodePath, ok := n.Data["path"].(string); ok && nodePath != "" && FirstSegment(nodePath) != first {
			continue
		}
		if ep.ID == "" {
			return n.ID, nil
		}
		if asString(n.Data["endpointId"]) == ep.ID {
			return n.ID, nil
		}
	}
	return "", notFound
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	return ""
}
