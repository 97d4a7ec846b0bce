package nodes

import (
	"context"

	"github.com/dominossauro/lowcode/pkg/schema"
)

// Querier runs SQL against a named datasource and returns the rows as maps.
type Querier interface {
	Query(ctx context.Context, datasource, query string, args ...any) ([]map[string]any, error)
}

// Query runs data.sql against data.datasource with data.params as positional
// arguments. Database failures take the "error" outcome.
type Query struct {
	DB Querier
}

func (Query) Type() string { return "query" }

func (q Query) Execute(ctx context.Context, in Input) (schema.Outcome, error) {
	data := in.Data()
	sqlText := stringOr(data, "sql", "")
	if sqlText == "" {
		return schema.Outcome{}, schema.NewError(schema.ErrCodeValidation, "query requires sql").WithNode(in.Node.ID)
	}
	if q.DB == nil {
		return schema.Outcome{
			Output: schema.OutputError,
			Data:   map[string]any{"message": "no datasources configured"},
		}, nil
	}

	rows, err := q.DB.Query(ctx, stringOr(data, "datasource", "default"), sqlText, asList(data["params"])...)
	if err != nil {
		in.logger().WarnContext(ctx, "query failed", "node_id", in.Node.ID, "error", err)
		return schema.Outcome{
			Output: schema.OutputError,
			Data:   map[string]any{"message": err.Error()},
		}, nil
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return schema.Outcome{
		Output: schema.OutputSuccess,
		Data:   map[string]any{"rows": rows, "count": len(rows)},
	}, nil
}
