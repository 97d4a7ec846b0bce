package nodes

import (
	"context"

	"github.com/dominossauro/lowcode/internal/expressions"
	"github.com/dominossauro/lowcode/pkg/schema"
)

// Condition outcomes for boolean expressions. Non-boolean results select the
// output named by their text form, which makes switch-like routing possible.
const (
	OutputTrue  schema.OutputKey = "true"
	OutputFalse schema.OutputKey = "false"
)

// Condition evaluates data.expression with CEL over vars, nodes, request and env.
type Condition struct {
	Engine expressions.Engine
}

func (Condition) Type() string { return "condition" }

func (c Condition) Execute(ctx context.Context, in Input) (schema.Outcome, error) {
	expression := stringOr(in.Data(), "expression", "")
	if expression == "" {
		return schema.Outcome{}, schema.NewError(schema.ErrCodeValidation, "condition requires an expression").
			WithNode(in.Node.ID)
	}

	result, err := c.Engine.Evaluate(ctx, expression, in.scope())
	if err != nil {
		return schema.Outcome{}, err
	}

	return schema.Outcome{
		Output: schema.OutputKey(expressions.Stringify(result)),
		Data:   map[string]any{"result": result},
	}, nil
}
