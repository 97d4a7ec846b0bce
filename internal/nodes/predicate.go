package nodes

import (
	"context"

	"github.com/dominossauro/lowcode/internal/expressions"
)

// Predicate evaluates a "custom" validation rule.
type Predicate interface {
	Validate(ctx context.Context, value any, rule map[string]any, request map[string]any) RuleResult
}

// PredicateFunc adapts a function to the Predicate interface.
type PredicateFunc func(ctx context.Context, value any, rule map[string]any, request map[string]any) RuleResult

func (f PredicateFunc) Validate(ctx context.Context, value any, rule map[string]any, request map[string]any) RuleResult {
	return f(ctx, value, rule, request)
}

// ExprPredicate evaluates rule.expression with expr-lang. value, rule and
// request are in scope. A falsy result or an evaluation error fails the rule.
type ExprPredicate struct {
	Engine expressions.Engine
}

// NewExprPredicate returns a predicate backed by a fresh ExprEngine.
func NewExprPredicate() *ExprPredicate {
	return &ExprPredicate{Engine: expressions.NewExprEngine()}
}

func (p *ExprPredicate) Validate(ctx context.Context, value any, rule map[string]any, request map[string]any) RuleResult {
	expression, _ := rule["expression"].(string)
	if expression == "" {
		return pass()
	}
	out, err := p.Engine.Evaluate(ctx, expression, map[string]any{
		"value":   value,
		"rule":    rule,
		"request": request,
	})
	if err != nil {
		return fail(rule, "Custom validation failed")
	}
	return verdict(truthy(out), rule, "Custom validation failed")
}

// truthy treats nil, false, zero, "" and "false" as false.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != "" && t != "false" && t != "0"
	}
	if f, ok := toFloat(v); ok {
		return f != 0
	}
	return true
}
