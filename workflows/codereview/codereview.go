// Package codereview is a small static review pipeline: it extracts the
// functions of a piece of code, scores it and loops back to the start until
// the quality score reaches state["threshold"] (70 by default).
package codereview

import (
	"github.com/juju/errors"

	"github.com/warriorguo/graphflow/registry"
	"github.com/warriorguo/graphflow/types"
)

const GraphID = "code_review"

const (
	passCondition  = "state.get('quality_score', 0) >= state.get('threshold', 70)"
	retryCondition = "state.get('quality_score', 0) < state.get('threshold', 70)"
)

// RegisterTools adds the review tools to r.
func RegisterTools(r *registry.Registry) {
	r.Register("extract_functions", "Extract functions from code", ExtractFunctions)
	r.Register("check_complexity", "Check complexity of functions", CheckComplexity)
	r.Register("detect_issues", "Detect basic issues in code", DetectIssues)
	r.Register("suggest_improvements", "Suggest improvements based on detected issues", SuggestImprovements)
	r.Register("calculate_quality_score", "Calculate overall quality score", CalculateQualityScore)
}

// NewGraph builds the review graph. check_quality has no outgoing edge when
// the score passes, so the run completes there.
func NewGraph() *types.Graph {
	g := types.NewGraph(GraphID, "Code Review Workflow", "extract")

	g.AddNode(types.NewFunctionNode("extract", "Extract Functions", "extract_functions"))
	g.AddNode(types.NewFunctionNode("complexity", "Check Complexity", "check_complexity"))
	g.AddNode(types.NewFunctionNode("detect", "Detect Issues", "detect_issues"))
	g.AddNode(types.NewFunctionNode("suggest", "Suggest Improvements", "suggest_improvements"))
	g.AddNode(types.NewFunctionNode("score", "Calculate Quality Score", "calculate_quality_score"))
	g.AddNode(types.NewConditionNode("check_quality", "Check Quality Threshold", passCondition))

	g.AddEdge("extract", "complexity", "")
	g.AddEdge("complexity", "detect", "")
	g.AddEdge("detect", "suggest", "")
	g.AddEdge("suggest", "score", "")
	g.AddEdge("score", "check_quality", "")
	g.AddEdge("check_quality", "extract", retryCondition)
	return g
}

// Setup registers the tools and the graph, returning the graph id.
func Setup(engine types.WorkflowEngine, r *registry.Registry) (string, error) {
	RegisterTools(r)
	if err := engine.RegisterGraph(NewGraph()); err != nil {
		return "", errors.Annotatef(err, "register %s", GraphID)
	}
	return GraphID, nil
}
