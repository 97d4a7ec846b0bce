package expressions

import (
	"context"

	"github.com/dominossauro/lowcode/pkg/schema"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ExprEngine evaluates expr-lang expressions for custom validation rules, with
// value, rule and request as top-level variables.
type ExprEngine struct {
	programs *programCache[*vm.Program]
}

func NewExprEngine() *ExprEngine {
	return &ExprEngine{programs: newProgramCache(func(expression string) (*vm.Program, error) {
		// No typed env: one rule expression sees values of any shape across requests.
		prg, err := expr.Compile(expression, expr.AllowUndefinedVariables())
		if err != nil {
			return nil, expressionError(schema.ErrCodeValidation, "expr compile error in", expression, err)
		}
		return prg, nil
	})}
}

func (e *ExprEngine) Name() string { return "expr" }

// Evaluate runs expression with data as its environment. Undefined variables
// evaluate to nil.
func (e *ExprEngine) Evaluate(_ context.Context, expression string, data map[string]any) (any, error) {
	if err := requireExpression("expr", expression); err != nil {
		return nil, err
	}
	prg, err := e.programs.get(expression)
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = map[string]any{}
	}
	out, err := vm.Run(prg, data)
	if err != nil {
		return nil, expressionError(schema.ErrCodeExpression, "expr evaluation failed for", expression, err)
	}
	return out, nil
}

var _ Engine = (*ExprEngine)(nil)
