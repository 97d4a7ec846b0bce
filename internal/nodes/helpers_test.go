package nodes

import (
	"context"
	"errors"

	"github.com/dominossauro/lowcode/internal/state"
	"github.com/dominossauro/lowcode/pkg/schema"
)

// fakeSubflows records sub-traversal requests and runs a callback per call.
type fakeSubflows struct {
	calls []schema.OutputKey
	run   func(output schema.OutputKey) error
}

func (f *fakeSubflows) RunSubflow(_ context.Context, _ schema.NodeDefinition, output schema.OutputKey) error {
	f.calls = append(f.calls, output)
	if f.run != nil {
		return f.run(output)
	}
	return nil
}

func node(id string, data map[string]any, outputs ...string) schema.NodeDefinition {
	n := schema.NodeDefinition{ID: id, Data: data, Outputs: map[string]schema.Edge{}}
	for _, o := range outputs {
		n.Outputs[o] = schema.Edge{ToNodeID: o + "-target"}
	}
	return n
}

func input(n schema.NodeDefinition, st *state.Context, sub Subflows) Input {
	if st == nil {
		st = state.New(nil)
	}
	return Input{Node: n, State: st, Subflows: sub}
}

var errBoom = errors.New("boom")
