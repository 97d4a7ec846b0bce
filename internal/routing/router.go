// Package routing maps an HTTP method and path to a controller endpoint and to
// the node where that endpoint's flow starts.
package routing

import "strings"

// Router matches a concrete path against an endpoint path pattern and extracts
// its parameters.
type Router interface {
	Match(pattern, path string) (map[string]string, bool)
}

// SegmentRouter matches segment by segment. Literal segments must be equal;
// ":name" and "{name}" segments match any single non-empty segment.
type SegmentRouter struct{}

func (SegmentRouter) Match(pattern, path string) (map[string]string, bool) {
	want := splitPath(pattern)
	got := splitPath(path)
	if len(want) != len(got) {
		return nil, false
	}

	params := make(map[string]string)
	for i, seg := range want {
		if name, ok := paramName(seg); ok {
			if got[i] == "" {
				return nil, false
			}
			params[name] = got[i]
			continue
		}
		if seg != got[i] {
			return nil, false
		}
	}
	return params, true
}

func paramName(seg string) (string, bool) {
	if len(seg) > 1 && seg[0] == ':' {
		return seg[1:], true
	}
	if len(seg) > 2 && seg[0] == '{' && seg[len(seg)-1] == '}' {
		return seg[1 : len(seg)-1], true
	}
	return "", false
}

// NormalizePath adds a leading slash and drops trailing ones; "" and "/" both
// become "/".
func NormalizePath(p string) string {
	p = strings.TrimSpace(p)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			p = "/"
		}
	}
	return p
}

func splitPath(p string) []string {
	p = NormalizePath(p)
	if p == "/" {
		return nil
	}
	return strings.Split(p[1:], "/")
}

// FirstSegment returns the first path segment, which names the controller:
// "/users/7" and "users" both yield "users".
func FirstSegment(p string) string {
	p = strings.TrimLeft(strings.TrimSpace(p), "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		return p[:i]
	}
	return p
}
