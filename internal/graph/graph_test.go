package graph

import (
	"testing"

	"github.com/dominossauro/lowcode/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doc(nodes ...schema.NodeDefinition) *schema.FlowDocument {
	return &schema.FlowDocument{
		Endpoints: []schema.Endpoint{{ID: "e1", Method: "GET", Path: "/users/:id"}},
		Nodes:     nodes,
		EnvironmentVariables: map[string]map[string]any{
			"development": {"API": "dev"},
			"production":  {"API": "prod"},
		},
	}
}

func TestNewController(t *testing.T) {
	c, err := NewController("users", doc(
		schema.NodeDefinition{ID: "b"},
		schema.NodeDefinition{ID: "a"},
	))
	require.NoError(t, err)

	assert.Equal(t, "users", c.Name())
	assert.Len(t, c.Endpoints(), 1)

	var ids []string
	for _, n := range c.Nodes() {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"b", "a"}, ids, "document order is kept")

	_, ok := c.Node("a")
	assert.True(t, ok)
	_, ok = c.Node("zzz")
	assert.False(t, ok)

	assert.Equal(t, map[string]any{"API": "dev"}, c.Env())
}

func TestNewController_SelectedEnvironment(t *testing.T) {
	d := doc()
	d.SelectedEnvironment = "production"
	c, err := NewController("users", d)
	require.NoError(t, err)
	assert.Equal(t, "prod", c.Env()["API"])
}

func TestNewController_Rejects(t *testing.T) {
	_, err := NewController("users", doc(schema.NodeDefinition{ID: "a"}, schema.NodeDefinition{ID: "a"}))
	assert.Equal(t, schema.ErrCodeValidation, schema.Code(err))

	_, err = NewController("users", doc(schema.NodeDefinition{}))
	assert.Equal(t, schema.ErrCodeValidation, schema.Code(err))

	_, err = NewController(" ", doc())
	assert.Equal(t, schema.ErrCodeValidation, schema.Code(err))

	_, err = NewController("users", nil)
	assert.Equal(t, schema.ErrCodeValidation, schema.Code(err))
}

func TestController_IsImmutable(t *testing.T) {
	d := doc(schema.NodeDefinition{ID: "a"})
	c, err := NewController("users", d)
	require.NoError(t, err)

	d.Endpoints[0].Path = "/changed"
	eps := c.Endpoints()
	eps[0].Method = "POST"

	assert.Equal(t, "/users/:id", c.Endpoints()[0].Path)
	assert.Equal(t, "GET", c.Endpoints()[0].Method)
}

func TestCatalog(t *testing.T) {
	cat := NewCatalog()
	users, err := NewController("users", doc())
	require.NoError(t, err)
	orders, err := NewController("orders", doc())
	require.NoError(t, err)

	require.NoError(t, cat.Register(users))
	require.NoError(t, cat.Register(orders))
	assert.Equal(t, schema.ErrCodeConflict, schema.Code(cat.Register(users)))
	assert.Equal(t, schema.ErrCodeValidation, schema.Code(cat.Register(nil)))

	got, err := cat.Get("users")
	require.NoError(t, err)
	assert.Same(t, users, got)

	_, err = cat.Get("missing")
	assert.Equal(t, schema.ErrCodeControllerNotFound, schema.Code(err))
	assert.Equal(t, []string{"orders", "users"}, cat.Names())
}

func TestCatalog_Replace(t *testing.T) {
	cat := NewCatalog()
	users, _ := NewController("users", doc())
	require.NoError(t, cat.Register(users))

	orders, _ := NewController("orders", doc())
	require.NoError(t, cat.Replace([]*Controller{orders}))
	assert.Equal(t, []string{"orders"}, cat.Names())

	err := cat.Replace([]*Controller{users, users})
	assert.Equal(t, schema.ErrCodeConflict, schema.Code(err))
	assert.Equal(t, 1, cat.Len(), "failed replace leaves catalog untouched")
}
