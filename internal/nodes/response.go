package nodes

import (
	"context"

	"github.com/dominossauro/lowcode/internal/expressions"
	"github.com/dominossauro/lowcode/internal/state"
	"github.com/dominossauro/lowcode/pkg/schema"
)

// Response sets the HTTP response returned once the flow finishes.
// Config: statusCode (default 200), body, headers.
type Response struct{}

func (Response) Type() string { return "response" }

func (Response) Execute(_ context.Context, in Input) (schema.Outcome, error) {
	data := in.Data()

	status := intOr(data, "statusCode", 200)
	if status < 100 || status > 599 {
		return schema.Outcome{}, schema.NewErrorf(schema.ErrCodeValidation, "invalid statusCode %d", status).
			WithNode(in.Node.ID)
	}

	headers := make(map[string]string)
	for k, v := range asMap(data["headers"]) {
		headers[k] = expressions.Stringify(v)
	}

	resp := &state.Response{StatusCode: status, Body: data["body"], Headers: headers}
	in.State.SetResponse(resp)

	return schema.Outcome{
		Output: schema.OutputOut,
		Data:   map[string]any{"statusCode": status, "body": resp.Body},
	}, nil
}
