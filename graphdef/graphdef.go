// Package graphdef reads graph definitions from HCL and JSON files.
//
// An HCL file holds any number of graph blocks:
//
//	graph "review" {
//	  name       = "Review"
//	  start_node = "extract"
//
//	  node "extract" {
//	    type     = "function"
//	    function = "extract_functions"
//	  }
//
//	  edge {
//	    from      = "extract"
//	    to        = "check"
//	    condition = "state.get('count', 0) > 0"
//	  }
//	}
//
// A JSON file holds one graph object, or an array of them, with nodes keyed
// by id and edges kept in order.
package graphdef

import (
	"sort"

	"github.com/juju/errors"

	"github.com/warriorguo/graphflow/types"
)

// Definition is the authoring shape of a graph, shared by both formats.
type Definition struct {
	ID        string              `json:"id"`
	Name      string              `json:"name,omitempty"`
	StartNode string              `json:"start_node"`
	Nodes     map[string]*NodeDef `json:"nodes"`
	Edges     []*EdgeDef          `json:"edges,omitempty"`
}

type NodeDef struct {
	ID            string `hcl:"id,label" json:"-"`
	Type          string `hcl:"type" json:"type"`
	Name          string `hcl:"name,optional" json:"name,omitempty"`
	Function      string `hcl:"function,optional" json:"function,omitempty"`
	Tool          string `hcl:"tool,optional" json:"tool,omitempty"`
	Condition     string `hcl:"condition,optional" json:"condition,omitempty"`
	LoopCondition string `hcl:"loop_condition,optional" json:"loop_condition,omitempty"`
	MaxIterations int    `hcl:"max_iterations,optional" json:"max_iterations,omitempty"`
}

type EdgeDef struct {
	From      string `hcl:"from" json:"from"`
	To        string `hcl:"to" json:"to"`
	Condition string `hcl:"condition,optional" json:"condition,omitempty"`
}

// toolName accepts both spellings; function wins when both are set.
func (n *NodeDef) toolName() string {
	if n.Function != "" {
		return n.Function
	}
	return n.Tool
}

// node builds the node and rejects one missing the setting its type runs
// on. Graphs built in code only fail on those when the node is reached.
func (n *NodeDef) node(id string) (types.Node, error) {
	switch types.NodeType(n.Type) {
	case types.FunctionType:
		if n.toolName() == "" {
			return nil, errors.Annotatef(types.ErrInvalidGraph, "function node %q names no tool", id)
		}
		return types.NewFunctionNode(id, n.Name, n.toolName()), nil
	case types.ConditionType:
		if n.Condition == "" {
			return nil, errors.Annotatef(types.ErrInvalidGraph, "condition node %q has no condition", id)
		}
		return types.NewConditionNode(id, n.Name, n.Condition), nil
	case types.LoopType:
		if n.LoopCondition == "" {
			return nil, errors.Annotatef(types.ErrInvalidGraph, "loop node %q has no loop_condition", id)
		}
		return types.NewLoopNode(id, n.Name, n.LoopCondition, n.MaxIterations, n.toolName()), nil
	}
	return nil, errors.Annotatef(types.ErrInvalidGraph, "node %q has unknown type %q", id, n.Type)
}

// Graph builds and validates the graph the definition describes.
func (d *Definition) Graph() (*types.Graph, error) {
	graph := types.NewGraph(d.ID, d.Name, d.StartNode)
	if graph.Name == "" {
		graph.Name = d.ID
	}

	ids := make([]string, 0, len(d.Nodes))
	for id := range d.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		def := d.Nodes[id]
		if def == nil {
			return nil, errors.Annotatef(types.ErrInvalidGraph, "graph %q: empty node %q", d.ID, id)
		}
		node, err := def.node(id)
		if err != nil {
			return nil, errors.Annotatef(err, "graph %q", d.ID)
		}
		graph.AddNode(node)
	}
	for _, edge := range d.Edges {
		if edge == nil {
			continue
		}
		graph.AddEdge(edge.From, edge.To, edge.Condition)
	}

	if err := graph.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return graph, nil
}

// FromGraph is the inverse of Definition.Graph.
func FromGraph(g *types.Graph) *Definition {
	d := &Definition{
		ID:        g.ID,
		Name:      g.Name,
		StartNode: g.StartNode,
		Nodes:     make(map[string]*NodeDef, len(g.Nodes)),
		Edges:     make([]*EdgeDef, 0, len(g.Edges)),
	}
	for id, node := range g.Nodes {
		def := &NodeDef{ID: id, Type: string(node.Type()), Name: node.Meta().Name}
		switch n := node.(type) {
		case *types.FunctionNode:
			def.Function = n.Tool
		case *types.ConditionNode:
			def.Condition = n.Condition
		case *types.LoopNode:
			def.LoopCondition = n.LoopCondition
			def.MaxIterations = n.MaxIterations
			def.Tool = n.Tool
		}
		d.Nodes[id] = def
	}
	for _, edge := range g.Edges {
		d.Edges = append(d.Edges, &EdgeDef{From: edge.From, To: edge.To, Condition: edge.Condition})
	}
	return d
}

func buildGraphs(defs []*Definition) ([]*types.Graph, error) {
	graphs := make([]*types.Graph, 0, len(defs))
	seen := make(map[string]struct{}, len(defs))
	for i, def := range defs {
		if def == nil {
			return nil, errors.Annotatef(types.ErrInvalidGraph, "empty graph definition at index %d", i)
		}
		if _, exists := seen[def.ID]; exists {
			return nil, errors.Annotatef(types.ErrInvalidGraph, "graph %q defined twice", def.ID)
		}
		seen[def.ID] = struct{}{}

		g, err := def.Graph()
		if err != nil {
			return nil, errors.Trace(err)
		}
		graphs = append(graphs, g)
	}
	return graphs, nil
}
