package expressions

import (
	"context"

	"github.com/dominossauro/lowcode/pkg/schema"
	"github.com/itchyny/gojq"
)

// GoJQEngine evaluates jq programs for the transform node. Programs run with an
// empty environ, so $ENV and env expose nothing of the host.
type GoJQEngine struct {
	programs *programCache[*gojq.Code]
}

func NewGoJQEngine() *GoJQEngine {
	return &GoJQEngine{programs: newProgramCache(func(expression string) (*gojq.Code, error) {
		query, err := gojq.Parse(expression)
		if err != nil {
			return nil, expressionError(schema.ErrCodeValidation, "jq parse error in", expression, err)
		}
		code, err := gojq.Compile(query, gojq.WithEnvironLoader(func() []string { return nil }))
		if err != nil {
			return nil, expressionError(schema.ErrCodeValidation, "jq compile error in", expression, err)
		}
		return code, nil
	})}
}

func (e *GoJQEngine) Name() string { return "jq" }

// Evaluate runs a jq program against data. One result is returned directly,
// several are collected into []any and none yields nil.
func (e *GoJQEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	var input any
	if data != nil {
		input = data
	}
	return e.EvaluateValue(ctx, expression, input)
}

// EvaluateValue is Evaluate over an arbitrary JSON-shaped input.
func (e *GoJQEngine) EvaluateValue(ctx context.Context, expression string, input any) (any, error) {
	if err := requireExpression("jq", expression); err != nil {
		return nil, err
	}
	code, err := e.programs.get(expression)
	if err != nil {
		return nil, err
	}

	var results []any
	iter := code.RunWithContext(ctx, normalizeForJQ(input))
	for {
		val, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := val.(error); isErr {
			return nil, expressionError(schema.ErrCodeExpression, "jq evaluation failed for", expression, err)
		}
		results = append(results, val)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	}
	return results, nil
}

// normalizeForJQ converts Go native types to jq-compatible ones. gojq rejects
// typed slices and maps, and only understands int and float64 numbers.
func normalizeForJQ(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			out[k] = normalizeForJQ(v)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, v := range val {
			out[i] = normalizeForJQ(v)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(val))
		for k, v := range val {
			out[k] = v
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, v := range val {
			out[i] = v
		}
		return out
	case []map[string]any:
		out := make([]any, len(val))
		for i, v := range val {
			out[i] = normalizeForJQ(v)
		}
		return out
	case int64:
		return float64(val)
	case int32:
		return float64(val)
	case float32:
		return float64(val)
	default:
		return v
	}
}

var _ Engine = (*GoJQEngine)(nil)
