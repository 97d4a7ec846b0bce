// Package graph holds the immutable flow graphs the interpreter walks.
package graph

import (
	"maps"
	"strings"

	"github.com/dominossauro/lowcode/pkg/schema"
)

// Controller is one flow graph: the endpoints it serves and its nodes keyed by
// id. It is immutable once built and safe for concurrent reads.
type Controller struct {
	name      string
	endpoints []schema.Endpoint
	nodes     map[string]schema.NodeDefinition
	order     []string
	env       map[string]any
}

// NewController builds a controller from a parsed document. Node ids must be
// present and unique.
func NewController(name string, doc *schema.FlowDocument) (*Controller, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "controller name is empty")
	}
	if doc == nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "controller %q has no document", name)
	}

	c := &Controller{
		name:      name,
		endpoints: append([]schema.Endpoint(nil), doc.Endpoints...),
		nodes:     make(map[string]schema.NodeDefinition, len(doc.Nodes)),
		order:     make([]string, 0, len(doc.Nodes)),
		env:       maps.Clone(doc.Environment()),
	}
	for i, n := range doc.Nodes {
		if n.ID == "" {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "controller %q: node at index %d has no id", name, i)
		}
		if _, dup := c.nodes[n.ID]; dup {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "controller %q: duplicate node id %q", name, n.ID).
				WithNode(n.ID)
		}
		c.nodes[n.ID] = n
		c.order = append(c.order, n.ID)
	}
	return c, nil
}

func (c *Controller) Name() string { return c.name }

// Endpoints returns the endpoints in registration order.
func (c *Controller) Endpoints() []schema.Endpoint {
	return append([]schema.Endpoint(nil), c.endpoints...)
}

// Node looks a node up by id.
func (c *Controller) Node(id string) (schema.NodeDefinition, bool) {
	n, ok := c.nodes[id]
	return n, ok
}

// Nodes returns every node in document order.
func (c *Controller) Nodes() []schema.NodeDefinition {
	out := make([]schema.NodeDefinition, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.nodes[id])
	}
	return out
}

// Env returns a copy of the selected environment's variables.
func (c *Controller) Env() map[string]any {
	return maps.Clone(c.env)
}
