package diagram

import (
	"testing"

	"github.com/dominossauro/lowcode/internal/graph"
	"github.com/dominossauro/lowcode/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func node(id, typ string, edges ...string) schema.NodeDefinition {
	out := map[string]schema.Edge{}
	for i := 0; i+1 < len(edges); i += 2 {
		out[edges[i]] = schema.Edge{ToNodeID: edges[i+1]}
	}
	return schema.NodeDefinition{ID: id, Data: map[string]any{"type": typ}, Outputs: out}
}

func ordersController(t *testing.T) *graph.Controller {
	t.Helper()
	c, err := graph.NewController("orders", &schema.FlowDocument{
		Endpoints: []schema.Endpoint{{ID: "e1", Method: "POST", Path: "/orders"}},
		Nodes: []schema.NodeDefinition{
			node("post-e1", "post", "out", "check"),
			node("check", "validation", "success", "each", "failure", "bad"),
			node("each", "loop", "loop", "line", "afterLoop", "ok"),
			node("line", "transform", "out", "ghost"),
			node("ok", "response"),
			node("bad", "response"),
			node("orphan", "variable"),
		},
	})
	require.NoError(t, err)
	return c
}

func TestBuild(t *testing.T) {
	model := Build(ordersController(t), nil)

	assert.Equal(t, "orders", model.Title)
	require.Len(t, model.Nodes, 7)
	assert.Equal(t, NodeKindEntry, model.Nodes[0].Kind)
	assert.Equal(t, NodeKindValidation, model.Nodes[1].Kind)
	assert.Equal(t, NodeKindLoop, model.Nodes[2].Kind)
	assert.Equal(t, NodeKindAction, model.Nodes[3].Kind)
	assert.Equal(t, NodeKindResponse, model.Nodes[4].Kind)

	assert.Contains(t, model.Edges, Edge{From: "check", To: "bad", Label: "failure"})
	assert.Contains(t, model.Edges, Edge{From: "each", To: "line", Label: "loop"})
	assert.Equal(t, []Edge{{From: "line", To: "ghost", Label: "out"}}, model.Dangling)

	assert.Equal(t, [][]string{
		{"post-e1"},
		{"check"},
		{"each", "bad"},
		{"line", "ok"},
		{"orphan"},
	}, model.Levels)
}

func TestBuildCapitalisedEntryType(t *testing.T) {
	c, err := graph.NewController("x", &schema.FlowDocument{
		Nodes: []schema.NodeDefinition{node("Get-1", "Get")},
	})
	require.NoError(t, err)

	model := Build(c, nil)
	assert.Equal(t, NodeKindEntry, model.Nodes[0].Kind)
	assert.Equal(t, [][]string{{"Get-1"}}, model.Levels)
}

func TestOverlayFromOutputs(t *testing.T) {
	overlay := OverlayFromOutputs(map[string]map[string]any{
		"post-e1": {"out": 1},
		"check":   {"success": 1},
	}, "each")

	assert.Equal(t, map[string]string{
		"post-e1": StatusVisited,
		"check":   StatusVisited,
		"each":    StatusFailed,
	}, overlay)

	model := Build(ordersController(t), overlay)
	assert.Equal(t, StatusVisited, model.Nodes[0].Status)
	assert.Equal(t, StatusFailed, model.Nodes[2].Status)
	assert.Empty(t, model.Nodes[3].Status)
}

func TestRenderMermaid(t *testing.T) {
	overlay := map[string]string{"post-e1": StatusVisited, "check": StatusFailed}
	out := RenderMermaid(Build(ordersController(t), overlay))

	assert.Contains(t, out, "graph TD\n")
	assert.Contains(t, out, "%% orders")
	assert.Contains(t, out, `post_e1(["post-e1 (post)"])`)
	assert.Contains(t, out, `check{"check (validation)"}`)
	assert.Contains(t, out, `each[["each (loop)"]]`)
	assert.Contains(t, out, `ok(("ok (response)"))`)
	assert.Contains(t, out, "check -->|failure| bad")
	assert.Contains(t, out, `line -.->|out| ghost["ghost (missing)"]`)
	assert.Contains(t, out, "class post_e1 visited")
	assert.Contains(t, out, "class check failed")
	assert.NotContains(t, out, "class each")
}

func TestRenderASCII(t *testing.T) {
	out := RenderASCII(Build(ordersController(t), map[string]string{"check": StatusVisited}))

	assert.Contains(t, out, "=== orders ===")
	assert.Contains(t, out, "┌")
	assert.Contains(t, out, "┘")
	assert.Contains(t, out, "(validation)")
	assert.Contains(t, out, "[OK]")
	assert.Contains(t, out, "--- edges ---")
	assert.Contains(t, out, "each ─afterLoop→ ok")
	assert.Contains(t, out, "line ─out→ ghost (missing)")
}
