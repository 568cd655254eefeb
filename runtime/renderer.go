package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/juju/errors"

	"github.com/warriorguo/graphflow/types"
)

func (e *engine) RenderGraph(graphID string) (string, error) {
	graph, exists := e.GetGraph(graphID)
	if !exists {
		return "", errors.Annotatef(types.ErrGraphNotFound, "graph %q", graphID)
	}
	return renderDOT(graph, nil, "")
}

func (e *engine) RenderRun(ctx context.Context, runID string) (string, error) {
	state, exists := e.RunSnapshot(runID)
	if !exists {
		return "", errors.Annotatef(types.ErrRunNotFound, "run %q", runID)
	}
	graph, exists := e.GetGraph(state.WorkflowID)
	if !exists {
		return "", errors.Annotatef(types.ErrGraphNotFound, "graph %q", state.WorkflowID)
	}
	records, err := e.loadRecords(ctx, runID)
	if err != nil {
		return "", errors.Trace(err)
	}

	current := ""
	if !state.IsComplete {
		current = state.CurrentNode
	}
	return renderDOT(graph, records, current)
}

func renderDOT(graph *types.Graph, records map[string]*types.StepRecord, current string) (string, error) {
	renderer := newGraphRenderer(records, current)
	return renderer.generateDOT(graph)
}

func newGraphRenderer(records map[string]*types.StepRecord, current string) *graphRenderer {
	if records == nil {
		records = make(map[string]*types.StepRecord)
	}
	return &graphRenderer{records: records, current: current, sb: &strings.Builder{}}
}

type graphRenderer struct {
	records map[string]*types.StepRecord
	current string
	sb      *strings.Builder
}

func (d *graphRenderer) generateDOT(graph *types.Graph) (string, error) {
	d.write("digraph D {")
	for _, id := range graph.NodeIDs() {
		d.drawNode(graph.Nodes[id], id == graph.StartNode)
	}
	d.drawLinks(graph)
	d.write("label=%s", quoteString(graph.Name))
	d.write("}")
	return d.sb.String(), nil
}

func packToComment(r *types.StepRecord) string {
	s, _ := json.Marshal(r)
	return formatNL(addSlashes(string(s)))
}

func (d *graphRenderer) calcAttr(id string) string {
	record, exists := d.records[id]
	if !exists {
		if id == d.current {
			return " style=\"filled\" color=\"yellow\""
		}
		return ""
	}

	color := ""
	switch {
	case id == d.current:
		color = "yellow"
	case record.EndTime.IsZero():
		color = "yellow"
	case record.Error != "":
		color = "red"
	default:
		color = "green"
	}
	return fmt.Sprintf(" style=\"filled\" color=\"%s\" comment=\"%s\"", color, packToComment(record))
}

func nodeShape(node types.Node) string {
	switch node.Type() {
	case types.ConditionType:
		return "diamond"
	case types.LoopType:
		return "hexagon"
	}
	return "record"
}

func nodeLabel(node types.Node) string {
	meta := node.Meta()
	label := meta.ID
	if meta.Name != "" && meta.Name != meta.ID {
		label = meta.Name + " (" + meta.ID + ")"
	}
	switch n := node.(type) {
	case *types.FunctionNode:
		label += "\n" + n.Tool
	case *types.LoopNode:
		label += fmt.Sprintf("\nmax %d", n.MaxIterations)
	}
	return label
}

func (d *graphRenderer) drawNode(node types.Node, start bool) {
	id := node.Meta().ID
	attr := d.calcAttr(id)
	if start {
		attr += " peripheries=2"
	}
	d.write("%s [label=%s shape=\"%s\"%s]", idString(id), quoteString(formatNL(nodeLabel(node))), nodeShape(node), attr)

	if loop, ok := node.(*types.LoopNode); ok {
		d.write("%s -> %s [label=%s style=\"dashed\"]", idString(id), idString(id), quoteString(loop.LoopCondition))
	}
}

func (d *graphRenderer) drawLinks(graph *types.Graph) {
	for _, edge := range graph.Edges {
		if edge.Condition == "" {
			d.write("%s -> %s", idString(edge.From), idString(edge.To))
			continue
		}
		d.write("%s -> %s [label=%s]", idString(edge.From), idString(edge.To), quoteString(edge.Condition))
	}
}

func (d *graphRenderer) write(format string, s ...any) {
	d.sb.WriteString(fmt.Sprintf(format+"\n", s...))
}

var (
	slashesToken = []string{"\\", "\"", "'", " "}
)

func addSlashes(s string) string {
	for _, token := range slashesToken {
		s = strings.ReplaceAll(s, token, "\\"+token)
	}
	return s
}

func formatNL(s string) string {
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

func quoteString(s string) string {
	return "\"" + strings.ReplaceAll(s, "\"", "\\\"") + "\""
}

var idleChars = []string{" ", "'", "\"", "(", ")", "*", "&", "^", "%", "$", "#", "@", "!", "?", "<", ">", "[", "]", "{", "}", ".", "-"}

func idString(s string) string {
	for _, ch := range idleChars {
		s = strings.ReplaceAll(s, ch, "_")
	}
	return s
}
