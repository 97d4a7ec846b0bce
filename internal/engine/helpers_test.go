package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dominossauro/lowcode/internal/graph"
	"github.com/dominossauro/lowcode/internal/nodes"
	"github.com/dominossauro/lowcode/internal/state"
	"github.com/dominossauro/lowcode/pkg/schema"
	"github.com/stretchr/testify/require"
)

// countingHandler records every node it executes and returns a fixed outcome.
type countingHandler struct {
	typ    string
	output schema.OutputKey
	data   func(in nodes.Input) any
	err    error

	mu   sync.Mutex
	seen []string
	cfgs []map[string]any
}

func (h *countingHandler) Type() string { return h.typ }

func (h *countingHandler) Execute(_ context.Context, in nodes.Input) (schema.Outcome, error) {
	h.mu.Lock()
	h.seen = append(h.seen, in.Node.ID)
	h.cfgs = append(h.cfgs, in.Node.Data)
	h.mu.Unlock()
	if h.err != nil {
		return schema.Outcome{}, h.err
	}
	out := schema.Outcome{Output: h.output}
	if h.data != nil {
		out.Data = h.data(in)
	}
	return out, nil
}

func (h *countingHandler) visits() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.seen...)
}

// n builds a node of the given type whose outputs map key→target pairs.
func n(id, typ string, data map[string]any, edges ...string) schema.NodeDefinition {
	d := map[string]any{"type": typ}
	for k, v := range data {
		d[k] = v
	}
	out := map[string]schema.Edge{}
	for i := 0; i+1 < len(edges); i += 2 {
		out[edges[i]] = schema.Edge{ToNodeID: edges[i+1]}
	}
	return schema.NodeDefinition{ID: id, Data: d, Outputs: out}
}

func newController(t *testing.T, endpoints []schema.Endpoint, ns ...schema.NodeDefinition) *graph.Controller {
	t.Helper()
	c, err := graph.NewController("users", &schema.FlowDocument{Endpoints: endpoints, Nodes: ns})
	require.NoError(t, err)
	return c
}

func newRegistry(t *testing.T, handlers ...nodes.Handler) *nodes.Registry {
	t.Helper()
	reg := nodes.NewRegistry(nil)
	require.NoError(t, nodes.RegisterBuiltins(reg, nodes.BuiltinConfig{}))
	for _, h := range handlers {
		require.NoError(t, reg.Register(h))
	}
	return reg
}

func newExecution(c *graph.Controller) *Execution {
	return &Execution{Controller: c, State: state.New(nil)}
}

// recordingObserver captures observer callbacks.
type recordingObserver struct {
	mu       sync.Mutex
	nodes    []string
	requests []int
}

func (o *recordingObserver) NodeExecuted(_ string, nodeType string, _ schema.OutputKey, _ time.Duration, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nodes = append(o.nodes, nodeType)
}

func (o *recordingObserver) RequestCompleted(_ string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.requests = append(o.requests, status)
}
