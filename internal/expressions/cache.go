package expressions

import (
	"sync"

	"github.com/dominossauro/lowcode/pkg/schema"
)

// programCache memoizes compiled programs by source text. Compilation runs at
// most once per expression even under concurrent first use.
type programCache[P any] struct {
	mu       sync.RWMutex
	programs map[string]P
	compile  func(expression string) (P, error)
}

func newProgramCache[P any](compile func(string) (P, error)) *programCache[P] {
	return &programCache[P]{programs: make(map[string]P), compile: compile}
}

func (c *programCache[P]) get(expression string) (P, error) {
	c.mu.RLock()
	p, ok := c.programs[expression]
	c.mu.RUnlock()
	if ok {
		return p, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.programs[expression]; ok {
		return p, nil
	}
	p, err := c.compile(expression)
	if err != nil {
		return p, err
	}
	c.programs[expression] = p
	return p, nil
}

func (c *programCache[P]) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.programs)
}

// expressionError wraps an engine failure. Compile problems are the author's
// mistake (VALIDATION_ERROR); runtime failures are EXPRESSION_ERROR.
func expressionError(code, what, expression string, err error) error {
	return schema.NewErrorf(code, "%s %q: %s", what, expression, err.Error()).
		WithCause(err).
		WithDetails(map[string]any{"expression": expression})
}

func requireExpression(engine, expression string) error {
	if expression == "" {
		return schema.NewErrorf(schema.ErrCodeValidation, "empty %s expression", engine)
	}
	return nil
}
