package diagram

import (
	"slices"
	"sort"

	"github.com/dominossauro/lowcode/internal/graph"
	"github.com/dominossauro/lowcode/internal/nodes"
)

// Build constructs a DiagramModel from a controller. overlay maps node ids to
// StatusVisited or StatusFailed; it may be nil.
func Build(ctrl *graph.Controller, overlay map[string]string) *DiagramModel {
	defs := ctrl.Nodes()
	model := &DiagramModel{Title: ctrl.Name()}

	index := make(map[string]*Node, len(defs))
	for _, def := range defs {
		typ := def.TypeTag()
		node := &Node{
			ID:     def.ID,
			Label:  def.ID + "\n(" + typ + ")",
			Type:   typ,
			Kind:   kindOf(typ),
			Status: overlay[def.ID],
		}
		model.Nodes = append(model.Nodes, node)
		index[def.ID] = node
	}

	for _, def := range defs {
		keys := make([]string, 0, len(def.Outputs))
		for k := range def.Outputs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			to := def.Outputs[k].ToNodeID
			if to == "" {
				continue
			}
			edge := Edge{From: def.ID, To: to, Label: k}
			if _, ok := index[to]; ok {
				model.Edges = append(model.Edges, edge)
			} else {
				model.Dangling = append(model.Dangling, edge)
			}
		}
	}

	model.Levels = buildLevels(model)
	return model
}

// kindOf maps a node type tag to its diagram kind.
func kindOf(typ string) NodeKind {
	canonical := nodes.CanonicalType(typ)
	if slices.Contains(nodes.EntryMethods, canonical) {
		return NodeKindEntry
	}
	switch canonical {
	case "condition":
		return NodeKindCondition
	case "validation":
		return NodeKindValidation
	case "loop":
		return NodeKindLoop
	case "response":
		return NodeKindResponse
	default:
		return NodeKindAction
	}
}

// buildLevels assigns each node the breadth-first distance from the closest
// entry node.
func buildLevels(model *DiagramModel) [][]string {
	adj := make(map[string][]string, len(model.Nodes))
	for _, e := range model.Edges {
		adj[e.From] = append(adj[e.From], e.To)
	}

	depth := make(map[string]int, len(model.Nodes))
	var queue []string
	for _, n := range model.Nodes {
		if n.Kind == NodeKindEntry {
			depth[n.ID] = 0
			queue = append(queue, n.ID)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range adj[id] {
			if _, seen := depth[next]; !seen {
				depth[next] = depth[id] + 1
				queue = append(queue, next)
			}
		}
	}

	var levels [][]string
	var unreachable []string
	for _, n := range model.Nodes {
		d, ok := depth[n.ID]
		if !ok {
			unreachable = append(unreachable, n.ID)
			continue
		}
		for len(levels) <= d {
			levels = append(levels, nil)
		}
		levels[d] = append(levels[d], n.ID)
	}
	if len(unreachable) > 0 {
		levels = append(levels, unreachable)
	}
	return levels
}

// OverlayFromOutputs marks every node that recorded output as visited and
// failedNode, when set, as failed.
func OverlayFromOutputs(outputs map[string]map[string]any, failedNode string) map[string]string {
	overlay := make(map[string]string, len(outputs)+1)
	for id := range outputs {
		overlay[id] = StatusVisited
	}
	if failedNode != "" {
		overlay[failedNode] = StatusFailed
	}
	return overlay
}
