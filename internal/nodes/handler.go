// Package nodes defines the node handler contract, the registry that resolves
// type tags to handlers, and the built-in node families.
package nodes

import (
	"context"
	"log/slog"

	"github.com/dominossauro/lowcode/internal/state"
	"github.com/dominossauro/lowcode/pkg/schema"
)

// Handler executes one node type. Execute receives the node with its data
// already template-resolved and returns the outcome that selects the next edge.
type Handler interface {
	Type() string
	Execute(ctx context.Context, in Input) (schema.Outcome, error)
}

// Subflows lets compound nodes run a bounded sub-traversal starting at the node
// wired to one of their outputs. The caller's position is not moved.
type Subflows interface {
	RunSubflow(ctx context.Context, from schema.NodeDefinition, output schema.OutputKey) error
}

// Input is everything a handler sees for one execution.
type Input struct {
	Node     schema.NodeDefinition
	State    *state.Context
	Subflows Subflows
	Logger   *slog.Logger
}

// Data returns the resolved node data.
func (in Input) Data() map[string]any {
	return in.Node.Data
}

// logger never returns nil.
func (in Input) logger() *slog.Logger {
	if in.Logger != nil {
		return in.Logger
	}
	return slog.Default()
}

// scope is the evaluation environment exposed to expression-driven nodes.
func (in Input) scope() map[string]any {
	vars := map[string]any{}
	outputs := map[string]any{}
	req := map[string]any{}
	env := map[string]any{}
	if in.State != nil {
		vars = in.State.Variables()
		for id, byKey := range in.State.Outputs() {
			outputs[id] = byKey
		}
		req = in.State.Request().AsMap()
		if e, ok := req["env"].(map[string]any); ok {
			env = e
		}
	}
	return map[string]any{
		"vars":    vars,
		"nodes":   outputs,
		"request": req,
		"env":     env,
	}
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc struct {
	TypeTag string
	Fn      func(ctx context.Context, in Input) (schema.Outcome, error)
}

func (h HandlerFunc) Type() string { return h.TypeTag }

func (h HandlerFunc) Execute(ctx context.Context, in Input) (schema.Outcome, error) {
	return h.Fn(ctx, in)
}
