package nodes

import (
	"context"
	"strings"

	"github.com/dominossauro/lowcode/pkg/schema"
)

// OutputFailure is taken when at least one validation rule fails.
const OutputFailure schema.OutputKey = "failure"

// Validation checks one value against a list of rules. Every rule runs; a
// failing rule never stops the others. Failure is a normal outcome, not an error.
type Validation struct {
	// Custom evaluates rules of type "custom". Nil means such rules pass.
	Custom Predicate
}

func (Validation) Type() string { return "validation" }

func (v Validation) Execute(ctx context.Context, in Input) (schema.Outcome, error) {
	data := in.Data()
	req := in.State.Request().AsMap()
	value := subjectValue(in, req)

	var messages []string
	for _, raw := range asList(data["rules"]) {
		rule := asMap(raw)
		if rule == nil {
			continue
		}
		res := v.apply(ctx, rule, value, req)
		if !res.Valid {
			messages = append(messages, res.Message)
		}
	}

	if len(messages) == 0 {
		if name := stringOr(data, "successVariable", ""); name != "" {
			in.State.SetVariable(name, value)
		}
		runActions(ctx, in, data["onSuccess"])
		return schema.Outcome{Output: schema.OutputSuccess, Data: value}, nil
	}

	if name := stringOr(data, "errorVariable", ""); name != "" {
		in.State.SetVariable(name, messages)
	}
	runActions(ctx, in, data["onFailure"])
	return schema.Outcome{Output: OutputFailure, Data: messages}, nil
}

// subjectValue picks the value under test: a variable, a literal, or a path in
// the request map, in that order of precedence.
func subjectValue(in Input, req map[string]any) any {
	data := in.Data()
	if name, ok := data["variableName"].(string); ok {
		v, _ := in.State.Variable(unwrapVariableName(name))
		return v
	}
	if v, ok := data["value"]; ok && v != nil {
		return v
	}
	if path, ok := data["contextPath"].(string); ok && path != "" {
		return lookupPath(req, path)
	}
	return nil
}

// unwrapVariableName strips a surrounding {{ }} so "{{email}}" names "email".
func unwrapVariableName(name string) string {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, "{{") && strings.HasSuffix(name, "}}") && len(name) > 4 {
		return strings.TrimSpace(name[2 : len(name)-2])
	}
	return name
}

func lookupPath(root map[string]any, path string) any {
	var current any = root
	for _, key := range strings.Split(path, ".") {
		switch c := current.(type) {
		case map[string]any:
			v, ok := c[key]
			if !ok || v == nil {
				return nil
			}
			current = v
		case map[string]string:
			v, ok := c[key]
			if !ok {
				return nil
			}
			current = v
		default:
			return nil
		}
	}
	return current
}

func runActions(ctx context.Context, in Input, raw any) {
	for _, item := range asList(raw) {
		action := asMap(item)
		if action == nil {
			continue
		}
		switch action["type"] {
		case "setVariable":
			if name, ok := action["name"].(string); ok && name != "" {
				in.State.SetVariable(name, action["value"])
			}
		case "log":
			in.logger().InfoContext(ctx, stringOr(action, "message", "Validation action executed"),
				"node_id", in.Node.ID)
		}
	}
}
