package types

import (
	"sort"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/warriorguo/graphflow/expr"
	"github.com/warriorguo/graphflow/utils"
)

// Edge is a directed transition. An empty Condition always fires.
type Edge struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Condition string `json:"condition,omitempty"`
}

// Graph is the definition a run is interpreted from. Edges keep their
// declaration order, which decides which transition wins when several fire.
type Graph struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Nodes     map[string]Node `json:"nodes"`
	Edges     []Edge          `json:"edges"`
	StartNode string          `json:"start_node"`

	compiled map[string]*expr.Expression
}

func NewGraph(id, name, startNode string) *Graph {
	return &Graph{
		ID:        id,
		Name:      name,
		Nodes:     make(map[string]Node),
		Edges:     make([]Edge, 0),
		StartNode: startNode,
	}
}

// AddNode stores node under its id, replacing any node with the same id.
func (g *Graph) AddNode(node Node) {
	if g.Nodes == nil {
		g.Nodes = make(map[string]Node)
	}
	g.Nodes[node.Meta().ID] = node
}

// AddEdge appends an edge; edges are tried in the order they were added.
func (g *Graph) AddEdge(from, to, condition string) {
	g.Edges = append(g.Edges, Edge{From: from, To: to, Condition: condition})
}

// Validate checks the graph is self-consistent and compiles every
// expression it carries. It is run once, when the graph is registered.
func (g *Graph) Validate() error {
	if g.ID == "" {
		return errors.Annotatef(ErrInvalidGraph, "graph has no id")
	}
	if len(g.Nodes) == 0 {
		return errors.Annotatef(ErrInvalidGraph, "graph %q has no nodes", g.ID)
	}

	compiled := make(map[string]*expr.Expression)
	compile := func(where, src string) error {
		if src == "" {
			return nil
		}
		if _, exists := compiled[src]; exists {
			return nil
		}
		e, err := expr.Compile(src)
		if err != nil {
			return errors.Annotatef(ErrInvalidGraph, "graph %q: %s: %v", g.ID, where, err)
		}
		compiled[src] = e
		return nil
	}

	for id, node := range g.Nodes {
		if node == nil {
			return errors.Annotatef(ErrInvalidGraph, "graph %q: node %q is nil", g.ID, id)
		}
		if node.Meta().ID != id {
			return errors.Annotatef(ErrInvalidGraph, "graph %q: node keyed %q has id %q", g.ID, id, node.Meta().ID)
		}

		switch n := node.(type) {
		case *ConditionNode:
			if err := compile("node "+id, n.Condition); err != nil {
				return err
			}
		case *LoopNode:
			if n.MaxIterations == 0 {
				n.MaxIterations = DefaultMaxIterations
			}
			if n.MaxIterations < 0 {
				return errors.Annotatef(ErrInvalidGraph, "graph %q: loop node %q has max iterations %d", g.ID, id, n.MaxIterations)
			}
			if err := compile("node "+id, n.LoopCondition); err != nil {
				return err
			}
		}
	}

	if _, exists := g.Nodes[g.StartNode]; !exists {
		return errors.Annotatef(ErrInvalidGraph, "graph %q: start node %q does not exist", g.ID, g.StartNode)
	}

	for i, edge := range g.Edges {
		if _, exists := g.Nodes[edge.From]; !exists {
			return errors.Annotatef(ErrInvalidGraph, "graph %q: edge %d from unknown node %q", g.ID, i, edge.From)
		}
		if _, exists := g.Nodes[edge.To]; !exists {
			return errors.Annotatef(ErrInvalidGraph, "graph %q: edge %d to unknown node %q", g.ID, i, edge.To)
		}
		if err := compile("edge "+edge.From+"->"+edge.To, edge.Condition); err != nil {
			return err
		}
	}

	g.compiled = compiled
	return nil
}

func (g *Graph) GetNode(id string) (Node, bool) {
	n, exists := g.Nodes[id]
	return n, exists
}

// Expression returns the compiled form of src, compiling it when the graph
// was never validated.
func (g *Graph) Expression(src string) (*expr.Expression, error) {
	if e, exists := g.compiled[src]; exists {
		return e, nil
	}
	e, err := expr.Compile(src)
	return e, errors.Trace(err)
}

// GetNextNodes returns the targets of every edge leaving current that fires
// against state, in declaration order. An edge whose condition cannot be
// evaluated does not fire.
func (g *Graph) GetNextNodes(current string, state *WorkflowState) []string {
	var data map[string]any
	if state != nil {
		data = state.Data
	}

	next := make([]string, 0)
	for _, edge := range g.Edges {
		if edge.From != current {
			continue
		}
		if edge.Condition == "" {
			next = append(next, edge.To)
			continue
		}

		e, err := g.Expression(edge.Condition)
		if err != nil {
			log.WithError(err).Debugf("graph %s: edge %s->%s skipped", g.ID, edge.From, edge.To)
			continue
		}
		ok, err := e.Eval(data)
		if err != nil {
			log.WithError(err).Debugf("graph %s: edge %s->%s skipped", g.ID, edge.From, edge.To)
			continue
		}
		if ok {
			next = append(next, edge.To)
		}
	}
	return next
}

// NodeIDs returns the node ids in edge declaration order, followed by nodes
// no edge mentions.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, 0, 1+2*len(g.Edges)+len(g.Nodes))
	ids = append(ids, g.StartNode)
	for _, edge := range g.Edges {
		ids = append(ids, edge.From, edge.To)
	}
	rest := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		rest = append(rest, id)
	}
	sort.Strings(rest)

	ids = utils.UniqueSlice(append(ids, rest...))
	known := ids[:0]
	for _, id := range ids {
		if _, exists := g.Nodes[id]; exists {
			known = append(known, id)
		}
	}
	return known
}
