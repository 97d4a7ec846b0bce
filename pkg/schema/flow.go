package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FlowDocument is the JSON-serializable controller format. Nodes may be authored
// at the document root or nested under "flows"; ParseDocument flattens both.
type FlowDocument struct {
	Endpoints            []Endpoint                `json:"endpoints"`
	Nodes                []NodeDefinition          `json:"nodes"`
	SelectedEnvironment  string                    `json:"selectedEnvironment,omitempty"`
	EnvironmentVariables map[string]map[string]any `json:"environmentVariables,omitempty"`
}

// Endpoint is one HTTP route served by a controller.
type Endpoint struct {
	ID     string `json:"id,omitempty"`
	Method string `json:"method"`
	Path   string `json:"path"`
}

// NodeDefinition describes a single node of a flow graph.
type NodeDefinition struct {
	ID      string          `json:"id"`
	Type    string          `json:"type,omitempty"` // generic node-level type, used when data.type is absent
	Data    map[string]any  `json:"data"`
	Outputs map[string]Edge `json:"outputs"`
}

// Edge points from an outcome key to the next node.
type Edge struct {
	ToNodeID string `json:"toNodeId"`
}

// OutputKey is the outcome tag a handler returns to select the outgoing edge.
type OutputKey string

// Outputs shared by several node families.
const (
	OutputOut     OutputKey = "out"
	OutputSuccess OutputKey = "success"
	OutputError   OutputKey = "error"
)

// Outcome is the result of one handler execution. An empty Output is a dead end;
// a nil Data is not recorded in the execution context.
type Outcome struct {
	Output OutputKey `json:"output,omitempty"`
	Data   any       `json:"data,omitempty"`
}

// UnknownType is reported for nodes that declare no type at all.
const UnknownType = "unknown"

// TypeTag returns data.type, falling back to the node-level type and then "unknown".
func (n NodeDefinition) TypeTag() string {
	if t, ok := n.Data["type"].(string); ok && t != "" {
		return t
	}
	if n.Type != "" {
		return n.Type
	}
	return UnknownType
}

// Next returns the node wired to output. A missing key, empty output or empty
// target all report false.
func (n NodeDefinition) Next(output OutputKey) (string, bool) {
	if output == "" {
		return "", false
	}
	edge, ok := n.Outputs[string(output)]
	if !ok || edge.ToNodeID == "" {
		return "", false
	}
	return edge.ToNodeID, true
}

// HasOutput reports whether output is wired to a node.
func (n NodeDefinition) HasOutput(output OutputKey) bool {
	_, ok := n.Next(output)
	return ok
}

// WithData returns a shallow copy of the node carrying data instead of its own.
func (n NodeDefinition) WithData(data map[string]any) NodeDefinition {
	n.Data = data
	return n
}

// DataString returns data[key] when it is a string, otherwise "".
func (n NodeDefinition) DataString(key string) string {
	s, _ := n.Data[key].(string)
	return s
}

// UnmarshalJSON accepts the loose shapes emitted by graph editors: data and
// outputs may be null, absent or an empty JSON array.
func (n *NodeDefinition) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID      string          `json:"id"`
		Type    string          `json:"type"`
		Data    json.RawMessage `json:"data"`
		Outputs json.RawMessage `json:"outputs"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	data := make(map[string]any)
	if !isEmptyJSON(raw.Data) {
		if err := json.Unmarshal(raw.Data, &data); err != nil {
			return fmt.Errorf("node %q data: %w", raw.ID, err)
		}
	}

	outputs := make(map[string]Edge)
	if !isEmptyJSON(raw.Outputs) {
		var edges map[string]*Edge
		if err := json.Unmarshal(raw.Outputs, &edges); err != nil {
			return fmt.Errorf("node %q outputs: %w", raw.ID, err)
		}
		for key, edge := range edges {
			if edge != nil {
				outputs[key] = *edge
			}
		}
	}

	*n = NodeDefinition{ID: raw.ID, Type: raw.Type, Data: data, Outputs: outputs}
	return nil
}

func isEmptyJSON(b json.RawMessage) bool {
	t := bytes.TrimSpace(b)
	return len(t) == 0 || bytes.Equal(t, []byte("null")) || bytes.Equal(t, []byte("[]"))
}

// ParseDocument decodes a controller document. Endpoints and nodes nested under
// "flows" take precedence over root-level ones.
func ParseDocument(raw []byte) (*FlowDocument, error) {
	var doc struct {
		FlowDocument
		Flows *struct {
			Endpoints []Endpoint       `json:"endpoints"`
			Nodes     []NodeDefinition `json:"nodes"`
		} `json:"flows"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, NewErrorf(ErrCodeInvalidDocument, "invalid flow document: %s", err.Error()).WithCause(err)
	}

	out := doc.FlowDocument
	if doc.Flows != nil {
		out.Nodes = doc.Flows.Nodes
		if len(out.Endpoints) == 0 {
			out.Endpoints = doc.Flows.Endpoints
		}
	}
	return &out, nil
}

// Environment returns the variables of the selected environment ("development"
// when none is selected).
func (d *FlowDocument) Environment() map[string]any {
	name := d.SelectedEnvironment
	if name == "" {
		name = "development"
	}
	env := d.EnvironmentVariables[name]
	if env == nil {
		return map[string]any{}
	}
	return env
}
