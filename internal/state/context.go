// Package state holds the per-request execution context shared by every node
// of one flow run.
package state

import (
	"maps"
	"sync"

	"github.com/google/uuid"
)

// Context is created once per request and discarded afterwards. Variables are
// last-write-wins; node outputs are keyed by node id then output key.
type Context struct {
	mu       sync.RWMutex
	id       string
	vars     map[string]any
	outputs  map[string]map[string]any
	order    []string
	request  *Request
	response *Response
}

// New returns an empty context bound to req. req may be nil.
func New(req *Request) *Context {
	if req == nil {
		req = &Request{}
	}
	return &Context{
		id:      uuid.New().String(),
		vars:    make(map[string]any),
		outputs: make(map[string]map[string]any),
		request: req,
	}
}

// ID returns the unique id of this execution.
func (c *Context) ID() string { return c.id }

// Request returns the inbound request.
func (c *Context) Request() *Request { return c.request }

func (c *Context) SetVariable(name string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vars[name] = value
}

func (c *Context) Variable(name string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.vars[name]
	return v, ok
}

// Variables returns a shallow copy of all variables.
func (c *Context) Variables() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.vars)
}

// SetNodeOutput records data under (nodeID, key), replacing any prior value.
func (c *Context) SetNodeOutput(nodeID, key string, data any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	byKey, ok := c.outputs[nodeID]
	if !ok {
		byKey = make(map[string]any)
		c.outputs[nodeID] = byKey
		c.order = append(c.order, nodeID)
	}
	byKey[key] = data
}

func (c *Context) NodeOutput(nodeID, key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.outputs[nodeID][key]
	return v, ok
}

// NodeOutputs returns a copy of every output recorded for nodeID.
func (c *Context) NodeOutputs(nodeID string) (map[string]any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	byKey, ok := c.outputs[nodeID]
	if !ok {
		return nil, false
	}
	return maps.Clone(byKey), true
}

// Outputs returns a two-level copy of all node outputs.
func (c *Context) Outputs() map[string]map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]map[string]any, len(c.outputs))
	for id, byKey := range c.outputs {
		out[id] = maps.Clone(byKey)
	}
	return out
}

// LastNodeData returns the outputs of the node that first recorded output most
// recently. Re-recording for an existing node does not move it. Nil when empty.
func (c *Context) LastNodeData() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.order) == 0 {
		return nil
	}
	return maps.Clone(c.outputs[c.order[len(c.order)-1]])
}

// SetResponse stores the response the flow wants to return.
func (c *Context) SetResponse(resp *Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.response = resp
}

// Response returns the flow-provided response, or nil.
func (c *Context) Response() *Response {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.response
}
