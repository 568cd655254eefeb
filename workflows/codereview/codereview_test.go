package codereview

import (
	"context"
	"strings"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warriorguo/graphflow/registry"
	"github.com/warriorguo/graphflow/runtime"
	"github.com/warriorguo/graphflow/store/mem"
	"github.com/warriorguo/graphflow/types"
)

const sample = `def add(a, b):
    return a + b

def main():
    # TODO: read args
    print(add(1, 2))
`

func newState(data map[string]any) *types.WorkflowState {
	return types.NewWorkflowState(GraphID, "run", "extract", data)
}

func apply(t *testing.T, state *types.WorkflowState, fn types.ToolFunc) {
	t.Helper()
	out, err := fn(state)
	require.NoError(t, err)
	m, ok := types.AsMapping(out)
	require.True(t, ok)
	state.Update(m)
}

func TestExtractFunctions(t *testing.T) {
	state := newState(map[string]any{"code": sample})
	apply(t, state, ExtractFunctions)

	functions, _ := state.Data.GetSlice("functions")
	require.Len(t, functions, 2)
	assert.Equal(t, map[string]any{"name": "add", "line": 1, "code": "def add(a, b):"}, functions[0])
	assert.Equal(t, "main", functions[1].(map[string]any)["name"])

	empty := newState(nil)
	apply(t, empty, ExtractFunctions)
	functions, _ = empty.Data.GetSlice("functions")
	assert.Empty(t, functions)
}

func TestCheckComplexity(t *testing.T) {
	state := newState(map[string]any{"code": sample})
	apply(t, state, ExtractFunctions)
	apply(t, state, CheckComplexity)

	scores, _ := state.Data.GetStringMap("complexity_scores")
	assert.Equal(t, map[string]any{"add": 1, "main": 1}, scores)
	avg, _ := state.Data.GetFloat64("avg_complexity")
	assert.Equal(t, 1.0, avg)

	// functions decoded from JSON input
	state = newState(map[string]any{"functions": []any{
		map[string]any{"name": "f", "line": float64(3), "code": "a\nb\nc"},
	}})
	apply(t, state, CheckComplexity)
	scores, _ = state.Data.GetStringMap("complexity_scores")
	assert.Equal(t, map[string]any{"f": 3}, scores)

	state = newState(nil)
	apply(t, state, CheckComplexity)
	avg, _ = state.Data.GetFloat64("avg_complexity")
	assert.Equal(t, 0.0, avg)
}

func TestDetectIssues(t *testing.T) {
	state := newState(map[string]any{
		"code":              sample + strings.Repeat("\n", 100),
		"complexity_scores": map[string]any{"big": 21, "small": 20},
	})
	apply(t, state, DetectIssues)

	issues, _ := state.Data.GetSlice("issues")
	assert.Equal(t, []any{
		"Contains TODO comments",
		"Contains print statements",
		"File is too long (>100 lines)",
		"Function 'big' is too complex (21 lines)",
	}, issues)
	count, _ := state.Data.GetInt("issue_count")
	assert.Equal(t, 4, count)

	apply(t, state, SuggestImprovements)
	suggestions, _ := state.Data.GetSlice("suggestions")
	assert.Equal(t, []any{
		"Complete TODO items",
		"Replace print statements with proper logging",
		"Consider splitting the file into smaller modules",
		"Consider refactoring complex functions into smaller ones",
	}, suggestions)
}

func TestCalculateQualityScore(t *testing.T) {
	cases := []struct {
		issues []any
		scores map[string]any
		want   int
	}{
		{nil, nil, 100},
		{[]any{"a", "b"}, nil, 90},
		{[]any{"a"}, map[string]any{"f": 30, "g": 2}, 85},
		{make([]any, 25), map[string]any{"f": 21}, 0},
	}
	for _, c := range cases {
		state := newState(map[string]any{"issues": c.issues, "complexity_scores": c.scores})
		apply(t, state, CalculateQualityScore)
		score, _ := state.Data.GetInt("quality_score")
		assert.Equal(t, c.want, score, "%v %v", c.issues, c.scores)
	}
}

func newEngine(t *testing.T) types.WorkflowEngine {
	t.Helper()
	tools := registry.New()
	e := runtime.NewWorkflowEngine(mem.NewMemStore(), tools, types.NewEngineOptions())
	id, err := Setup(e, tools)
	require.NoError(t, err)
	assert.Equal(t, GraphID, id)
	assert.Len(t, tools.List(), 5)
	return e
}

func TestReviewPasses(t *testing.T) {
	e := newEngine(t)

	runID, err := e.StartRun(GraphID, map[string]any{"code": sample})
	require.NoError(t, err)
	state, err := e.RunToCompletion(context.Background(), runID)
	require.NoError(t, err)

	assert.Equal(t, types.Finished, state.Status())
	assert.Equal(t, "check_quality", state.CurrentNode)
	score, _ := state.Data.GetInt("quality_score")
	assert.Equal(t, 90, score)
	passed, _ := state.Data.GetBool("check_quality_result")
	assert.True(t, passed)
	assert.Equal(t, "Completed at node 'check_quality'", state.ExecutionLog[len(state.ExecutionLog)-1])
}

func TestReviewNeverPasses(t *testing.T) {
	e := newEngine(t)

	runID, err := e.StartRun(GraphID, map[string]any{"code": sample, "threshold": 95})
	require.NoError(t, err)
	state, err := e.RunToCompletion(context.Background(), runID, types.WithMaxSteps(20))
	assert.True(t, errors.Is(err, types.ErrStepBudgetExceeded), "%v", err)
	assert.Equal(t, types.Fatal, state.Status())

	moved := 0
	for _, entry := range state.ExecutionLog {
		if entry == "Moved from 'check_quality' to 'extract'" {
			moved++
		}
	}
	assert.Equal(t, 3, moved)
}

func TestGraphValidates(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.Validate())
	assert.Equal(t, []string{"extract", "complexity", "detect", "suggest", "score", "check_quality"}, g.NodeIDs())
}
