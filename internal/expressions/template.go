package expressions

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// OutputSource is the read side of the execution context needed to resolve
// {{nodeId.outputKey.path}} references.
type OutputSource interface {
	NodeOutput(nodeID, key string) (any, bool)
}

// TemplateResolver substitutes {{nodeId.outputKey.path}} references with values
// recorded by earlier nodes. It never mutates its input and never fails: a
// reference that cannot be resolved is left in place byte for byte.
type TemplateResolver struct{}

// NewTemplateResolver returns a resolver. It holds no state and is safe for concurrent use.
func NewTemplateResolver() *TemplateResolver {
	return &TemplateResolver{}
}

// ResolveConfig returns a copy of data with every string leaf resolved.
// Nested maps and lists are walked recursively; other values are kept as is.
func (r *TemplateResolver) ResolveConfig(data map[string]any, src OutputSource) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = r.resolveValue(v, src)
	}
	return out
}

func (r *TemplateResolver) resolveValue(v any, src OutputSource) any {
	switch val := v.(type) {
	case string:
		return r.ResolveString(val, src)
	case map[string]any:
		return r.ResolveConfig(val, src)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = r.resolveValue(item, src)
		}
		return out
	default:
		return v
	}
}

// ResolveString resolves every reference in s. Each match is independent: an
// unresolvable one does not affect its neighbours.
func (r *TemplateResolver) ResolveString(s string, src OutputSource) string {
	if !strings.Contains(s, "{{") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	i := 0
	for i < len(s) {
		idx := strings.Index(s[i:], "{{")
		if idx == -1 {
			b.WriteString(s[i:])
			break
		}
		start := i + idx
		b.WriteString(s[i:start])

		ref, end, ok := scanReference(s, start)
		if !ok {
			// Not a reference here; a later "{" may still open one.
			b.WriteByte(s[start])
			i = start + 1
			continue
		}

		if text, resolved := resolveReference(ref, src); resolved {
			b.WriteString(text)
		} else {
			b.WriteString(s[start:end])
		}
		i = end
	}
	return b.String()
}

// reference is one parsed {{nodeId.outputKey.path}} occurrence.
type reference struct {
	nodeID string
	output string
	path   string
}

// scanReference parses a reference starting at s[start] == "{{". It returns the
// reference and the index just past the closing braces.
func scanReference(s string, start int) (reference, int, bool) {
	pos := start + 2

	nodeID, pos := scanRun(s, pos, isIdentByte)
	if nodeID == "" || pos >= len(s) || s[pos] != '.' {
		return reference{}, 0, false
	}
	output, pos := scanRun(s, pos+1, isIdentByte)
	if output == "" || pos >= len(s) || s[pos] != '.' {
		return reference{}, 0, false
	}
	path, pos := scanRun(s, pos+1, isPathByte)
	if path == "" || !strings.HasPrefix(s[pos:], "}}") {
		return reference{}, 0, false
	}
	return reference{nodeID: nodeID, output: output, path: path}, pos + 2, true
}

func scanRun(s string, pos int, accept func(byte) bool) (string, int) {
	begin := pos
	for pos < len(s) && accept(s[pos]) {
		pos++
	}
	return s[begin:pos], pos
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '-' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func isPathByte(c byte) bool {
	return c == '.' || isIdentByte(c)
}

func resolveReference(ref reference, src OutputSource) (string, bool) {
	if src == nil {
		return "", false
	}
	current, ok := src.NodeOutput(ref.nodeID, ref.output)
	if !ok {
		return "", false
	}
	for _, seg := range strings.Split(ref.path, ".") {
		current, ok = step(current, seg)
		if !ok {
			return "", false
		}
	}
	return Stringify(current), true
}

// step descends one path segment into a map (by key) or a list (by index).
func step(current any, seg string) (any, bool) {
	switch v := current.(type) {
	case map[string]any:
		val, ok := v[seg]
		return val, ok
	case []any:
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 || idx >= len(v) {
			return nil, false
		}
		return v[idx], true
	case nil:
		return nil, false
	}

	rv := reflect.ValueOf(current)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		val := rv.MapIndex(reflect.ValueOf(seg).Convert(rv.Type().Key()))
		if !val.IsValid() {
			return nil, false
		}
		return val.Interface(), true
	case reflect.Slice, reflect.Array:
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 || idx >= rv.Len() {
			return nil, false
		}
		return rv.Index(idx).Interface(), true
	}
	return nil, false
}

// Stringify renders a resolved value as text. Composite values become JSON
// without HTML or Unicode escaping; nil becomes the empty string.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", val)
	case json.Number:
		return val.String()
	case fmt.Stringer:
		return val.String()
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprintf("%v", v)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
