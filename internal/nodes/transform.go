package nodes

import (
	"context"

	"github.com/dominossauro/lowcode/internal/expressions"
	"github.com/dominossauro/lowcode/pkg/schema"
)

// jqEvaluator is the subset of GoJQEngine the transform node needs.
type jqEvaluator interface {
	EvaluateValue(ctx context.Context, expression string, input any) (any, error)
}

// Transform runs the jq program in data.query. The input is data.input when
// present, otherwise the scope {vars, nodes, request, env}.
type Transform struct {
	Engine jqEvaluator
}

// NewTransform returns a Transform backed by a fresh GoJQ engine.
func NewTransform() Transform {
	return Transform{Engine: expressions.NewGoJQEngine()}
}

func (Transform) Type() string { return "transform" }

func (t Transform) Execute(ctx context.Context, in Input) (schema.Outcome, error) {
	query := stringOr(in.Data(), "query", "")
	if query == "" {
		return schema.Outcome{}, schema.NewError(schema.ErrCodeValidation, "transform requires a query").
			WithNode(in.Node.ID)
	}

	var input any = in.scope()
	if v, ok := in.Data()["input"]; ok {
		input = v
	}

	result, err := t.Engine.EvaluateValue(ctx, query, input)
	if err != nil {
		return schema.Outcome{}, err
	}
	return schema.Outcome{Output: schema.OutputOut, Data: result}, nil
}
