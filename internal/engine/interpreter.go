package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dominossauro/lowcode/internal/expressions"
	"github.com/dominossauro/lowcode/internal/graph"
	"github.com/dominossauro/lowcode/internal/logging"
	"github.com/dominossauro/lowcode/internal/nodes"
	"github.com/dominossauro/lowcode/internal/state"
	"github.com/dominossauro/lowcode/pkg/schema"
)

// MaxSubflowDepth bounds how deeply sub-traversals may nest within one
// execution. A loop whose body leads back to the loop re-enters it with a fresh
// visited set, so without a bound it would recurse until the stack runs out.
const MaxSubflowDepth = 64

// Execution binds one request's context to the graph it runs on.
type Execution struct {
	Controller *graph.Controller
	State      *state.Context

	depth int
	// overflow is set once the nesting bound is hit; every later sub-traversal
	// of the execution fails with it.
	overflow error
}

// Interpreter walks a flow graph one node at a time. It holds no per-request
// state and is safe for concurrent use by many executions.
type Interpreter struct {
	registry *nodes.Registry
	resolver *expressions.TemplateResolver
	logger   *slog.Logger
	observer Observer
}

// InterpreterOption configures an Interpreter.
type InterpreterOption func(*Interpreter)

// WithLogger sets the logger used for per-node debug and warning lines.
func WithLogger(l *slog.Logger) InterpreterOption {
	return func(i *Interpreter) { i.logger = l }
}

// WithObserver sets the observer notified after every node execution.
func WithObserver(o Observer) InterpreterOption {
	return func(i *Interpreter) { i.observer = o }
}

// NewInterpreter creates an interpreter dispatching nodes through registry.
// Logging is discarded and no observer is attached unless options say otherwise.
func NewInterpreter(registry *nodes.Registry, opts ...InterpreterOption) *Interpreter {
	i := &Interpreter{
		registry: registry,
		resolver: expressions.NewTemplateResolver(),
		logger:   logging.Discard(),
		observer: NopObserver{},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Run traverses the graph from startID until a dead end, a missing node or a
// node already visited during this call. Handler errors abort the traversal
// wrapped as HANDLER_FAILED; a cancelled ctx aborts it with ctx.Err().
func (i *Interpreter) Run(ctx context.Context, exec *Execution, startID string) error {
	return i.traverse(ctx, exec, startID)
}

// RunSubflow traverses from the node wired to from.Outputs[output] with its own
// visited set. Nothing wired is a no-op. Nesting deeper than MaxSubflowDepth
// fails with HANDLER_FAILED, and so does every sub-traversal after that.
func (i *Interpreter) RunSubflow(ctx context.Context, exec *Execution, from schema.NodeDefinition, output schema.OutputKey) error {
	next, ok := from.Next(output)
	if !ok {
		return nil
	}
	if exec.overflow != nil {
		return exec.overflow
	}
	if exec.depth >= MaxSubflowDepth {
		i.logger.WarnContext(ctx, "sub-traversal nesting limit reached",
			"node_id", from.ID, "output", string(output), "limit", MaxSubflowDepth)
		exec.overflow = schema.NewErrorf(schema.ErrCodeHandlerFailed,
			"sub-traversals nested deeper than %d", MaxSubflowDepth).
			WithNode(from.ID).
			WithDetails(map[string]any{"output": string(output), "limit": MaxSubflowDepth})
		return exec.overflow
	}

	exec.depth++
	defer func() { exec.depth-- }()
	return i.traverse(ctx, exec, next)
}

func (i *Interpreter) traverse(ctx context.Context, exec *Execution, startID string) error {
	visited := make(map[string]struct{})
	current := startID

	for current != "" {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, seen := visited[current]; seen {
			i.logger.DebugContext(ctx, "node already visited, stopping", "node_id", current)
			return nil
		}
		visited[current] = struct{}{}

		node, ok := exec.Controller.Node(current)
		if !ok {
			i.logger.DebugContext(ctx, "node not found, stopping", "node_id", current)
			return nil
		}

		outcome, err := i.step(ctx, exec, node)
		if err != nil {
			return err
		}
		if outcome.Data != nil {
			exec.State.SetNodeOutput(node.ID, string(outcome.Output), outcome.Data)
		}

		next, ok := node.Next(outcome.Output)
		if !ok {
			return nil
		}
		current = next
	}
	return nil
}

// step executes a single node and returns its outcome. An unresolvable type tag
// is a configuration problem: it is logged and treated as a dead end.
func (i *Interpreter) step(ctx context.Context, exec *Execution, node schema.NodeDefinition) (schema.Outcome, error) {
	ctx = logging.WithNodeID(ctx, node.ID)
	typeTag := node.TypeTag()

	handler, err := i.registry.Resolve(ctx, typeTag)
	if err != nil {
		i.logger.WarnContext(ctx, "node handler unavailable", "type", typeTag, "error", err)
		i.observer.NodeExecuted(exec.Controller.Name(), typeTag, "", 0, err)
		return schema.Outcome{}, nil
	}

	resolved := node.WithData(i.resolver.ResolveConfig(node.Data, exec.State))

	stepCtx := ctx
	if d, ok := nodeTimeout(resolved); ok {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	start := time.Now()
	outcome, err := handler.Execute(stepCtx, nodes.Input{
		Node:     resolved,
		State:    exec.State,
		Subflows: &subflows{interp: i, exec: exec},
		Logger:   logging.LogWith(ctx, i.logger),
	})
	elapsed := time.Since(start)
	i.observer.NodeExecuted(exec.Controller.Name(), typeTag, outcome.Output, elapsed, err)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return schema.Outcome{}, err
		}
		i.logger.WarnContext(ctx, "node failed", "type", typeTag, "duration", elapsed, "error", err)
		return schema.Outcome{}, schema.NewErrorf(schema.ErrCodeHandlerFailed,
			"%s node failed: %s", typeTag, err.Error()).
			WithNode(node.ID).
			WithCause(err)
	}

	i.logger.DebugContext(ctx, "node executed",
		"type", typeTag, "output", string(outcome.Output), "duration", elapsed)
	return outcome, nil
}

// nodeTimeout reads the optional per-node "timeout" (a Go duration string).
func nodeTimeout(n schema.NodeDefinition) (time.Duration, bool) {
	raw := n.DataString("timeout")
	if raw == "" {
		return 0, false
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}

// subflows exposes RunSubflow to handlers, bound to one execution.
type subflows struct {
	interp *Interpreter
	exec   *Execution
}

func (s *subflows) RunSubflow(ctx context.Context, from schema.NodeDefinition, output schema.OutputKey) error {
	return s.interp.RunSubflow(ctx, s.exec, from, output)
}
