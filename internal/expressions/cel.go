package expressions

import (
	"context"
	"fmt"

	"github.com/dominossauro/lowcode/pkg/schema"
	"github.com/google/cel-go/cel"
)

// CELEngine evaluates condition expressions with Common Expression Language.
// A condition sees four maps: vars, nodes (node id then output key), request
// and env. Roots missing from the evaluation data are bound to empty maps.
type CELEngine struct {
	programs *programCache[cel.Program]
}

func NewCELEngine() (*CELEngine, error) {
	root := cel.MapType(cel.StringType, cel.DynType)
	env, err := cel.NewEnv(
		cel.Variable("vars", root),
		cel.Variable("nodes", root),
		cel.Variable("request", root),
		cel.Variable("env", root),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	return &CELEngine{programs: newProgramCache(func(expression string) (cel.Program, error) {
		ast, issues := env.Compile(expression)
		if err := issues.Err(); err != nil {
			return nil, expressionError(schema.ErrCodeValidation, "CEL compile error in", expression, err)
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, expressionError(schema.ErrCodeValidation, "CEL program error for", expression, err)
		}
		return prg, nil
	})}, nil
}

func (e *CELEngine) Name() string { return "cel" }

func (e *CELEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	if err := requireExpression("CEL", expression); err != nil {
		return nil, err
	}
	prg, err := e.programs.get(expression)
	if err != nil {
		return nil, err
	}

	activation := map[string]any{
		"vars":    map[string]any{},
		"nodes":   map[string]any{},
		"request": map[string]any{},
		"env":     map[string]any{},
	}
	for root := range activation {
		if v := data[root]; v != nil {
			activation[root] = v
		}
	}

	out, _, err := prg.ContextEval(ctx, activation)
	if err != nil {
		return nil, expressionError(schema.ErrCodeExpression, "CEL evaluation failed for", expression, err)
	}
	return out.Value(), nil
}

var _ Engine = (*CELEngine)(nil)
