// Package diagram renders a controller's node graph as Mermaid, ASCII or a
// graphviz image, optionally overlaid with the nodes one execution reached.
package diagram

// NodeKind classifies a diagram node by its flow node type.
type NodeKind string

const (
	NodeKindAction     NodeKind = "action"
	NodeKindEntry      NodeKind = "entry"
	NodeKindCondition  NodeKind = "condition"
	NodeKindValidation NodeKind = "validation"
	NodeKindLoop       NodeKind = "loop"
	NodeKindResponse   NodeKind = "response"
)

// Overlay statuses.
const (
	StatusVisited = "visited"
	StatusFailed  = "failed"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title string
	Nodes []*Node
	Edges []Edge
	// Dangling lists edges whose target node does not exist.
	Dangling []Edge
	// Levels groups node ids by distance from the nearest entry node.
	// Unreachable nodes form the last level.
	Levels [][]string
}

// Node is a single flow node.
type Node struct {
	ID     string
	Label  string
	Type   string
	Kind   NodeKind
	Status string // "", StatusVisited or StatusFailed
}

// Edge is one wired output.
type Edge struct {
	From  string
	To    string
	Label string
}
