package nodes

import (
	"context"

	"github.com/dominossauro/lowcode/pkg/schema"
)

// Loop outcomes.
const (
	OutputBeforeLoop schema.OutputKey = "beforeLoop"
	OutputInLoop     schema.OutputKey = "inLoop"
	OutputAfterLoop  schema.OutputKey = "afterLoop"

	// CurrentItemKey is the output key under which the loop records the item
	// being processed, so inLoop nodes can read {{loopId.currentItem.value}}.
	CurrentItemKey = "currentItem"

	defaultItemVarName = "loopItem"
)

// Loop runs the beforeLoop branch once, then the inLoop branch once per item.
// It finishes with the afterLoop outcome, which the interpreter follows as a
// normal edge; the afterLoop branch is never run as a sub-traversal.
//
// Config: items (list; anything else iterates nothing), itemVarName (default
// "loopItem"), maxIterations (optional cap, > 0).
type Loop struct{}

func (Loop) Type() string { return "loop" }

func (Loop) Execute(ctx context.Context, in Input) (schema.Outcome, error) {
	data := in.Data()
	items := asList(data["items"])
	itemVar := stringOr(data, "itemVarName", defaultItemVarName)
	limit := intOr(data, "maxIterations", 0)
	log := in.logger()

	if err := runBranch(ctx, in, OutputBeforeLoop); err != nil {
		log.WarnContext(ctx, "loop beforeLoop failed", "node_id", in.Node.ID, "error", err)
		return schema.Outcome{
			Output: schema.OutputError,
			Data:   map[string]any{"message": "error in beforeLoop", "error": err.Error()},
		}, nil
	}

	processed := 0
	for idx, item := range items {
		if limit > 0 && processed >= limit {
			break
		}
		in.State.SetVariable(itemVar, item)
		in.State.SetNodeOutput(in.Node.ID, CurrentItemKey, map[string]any{"index": idx, "value": item})

		if err := runBranch(ctx, in, OutputInLoop); err != nil {
			log.WarnContext(ctx, "loop inLoop failed", "node_id", in.Node.ID, "index", idx, "error", err)
			return schema.Outcome{
				Output: schema.OutputError,
				Data:   map[string]any{"message": "error in inLoop", "index": idx, "error": err.Error()},
			}, nil
		}
		processed++
	}

	return schema.Outcome{
		Output: OutputAfterLoop,
		Data: map[string]any{
			"message":     "Loop node executed successfully",
			"count":       processed,
			"itemVarName": itemVar,
		},
	}, nil
}

func runBranch(ctx context.Context, in Input, output schema.OutputKey) error {
	if in.Subflows == nil || !in.Node.HasOutput(output) {
		return nil
	}
	return in.Subflows.RunSubflow(ctx, in.Node, output)
}
