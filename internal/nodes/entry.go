package nodes

import (
	"context"

	"github.com/dominossauro/lowcode/pkg/schema"
)

// EntryMethods are the node types that mark where an endpoint's flow starts.
var EntryMethods = []string{"get", "post", "put", "patch", "delete"}

// Entry is the start node of an endpoint. It records the request under its
// "out" output so later nodes can reference {{get-e1.out.params.id}}.
type Entry struct {
	Method string
}

func (e Entry) Type() string { return e.Method }

func (e Entry) Execute(_ context.Context, in Input) (schema.Outcome, error) {
	req := in.State.Request().AsMap()
	delete(req, "env")
	return schema.Outcome{Output: schema.OutputOut, Data: req}, nil
}
