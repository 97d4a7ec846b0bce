package expressions

import "context"

// Engine evaluates expressions authored in node configuration.
// CEL backs the condition node, GoJQ the transform node and Expr custom
// validation rules.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
