package nodes

import (
	"context"

	"github.com/dominossauro/lowcode/pkg/schema"
)

// Variable assigns data.value to the flow variable data.variableName.
// It serves both the "variable" and "setVariableValue" node types.
type Variable struct {
	TypeTag string
}

func (v Variable) Type() string {
	if v.TypeTag == "" {
		return "variable"
	}
	return v.TypeTag
}

func (v Variable) Execute(_ context.Context, in Input) (schema.Outcome, error) {
	name := stringOr(in.Data(), "variableName", "")
	if name == "" {
		return schema.Outcome{}, schema.NewError(schema.ErrCodeValidation, "variableName is required").
			WithNode(in.Node.ID)
	}
	in.State.SetVariable(name, in.Data()["value"])
	return schema.Outcome{Output: schema.OutputOut}, nil
}
