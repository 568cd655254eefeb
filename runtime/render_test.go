package runtime

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warriorguo/graphflow/types"
)

func drawGraph() *types.Graph {
	g := types.NewGraph("draw", "draw flow", "fetch")
	g.AddNode(types.NewFunctionNode("fetch", "fetch page", "tool1"))
	g.AddNode(types.NewConditionNode("check", "", "state.get('tool1_calls', 0) > 5"))
	g.AddNode(types.NewLoopNode("retry-loop", "", "state.get('ok') != true", 2, "tool2"))
	g.AddNode(types.NewFunctionNode("end", "", "tool3"))
	g.AddEdge("fetch", "check", "")
	g.AddEdge("check", "end", "state.check_result")
	g.AddEdge("check", "retry-loop", "")
	g.AddEdge("retry-loop", "end", "")
	return g
}

func TestRenderGraph(t *testing.T) {
	e, _ := newTestEngine()
	require.Nil(t, e.RegisterGraph(drawGraph()))

	dot, err := e.RenderGraph("draw")
	require.Nil(t, err)
	fmt.Printf("draw graph DOT: %+v\n", dot)

	assert.True(t, strings.HasPrefix(dot, "digraph D {\n"))
	assert.Contains(t, dot, `fetch [label="fetch page (fetch)\ntool1" shape="record" peripheries=2]`)
	assert.Contains(t, dot, `check [label="check" shape="diamond"]`)
	assert.Contains(t, dot, `retry_loop [label="retry-loop\nmax 2" shape="hexagon"]`)
	assert.Contains(t, dot, `check -> end [label="state.check_result"]`)
	assert.Contains(t, dot, "fetch -> check\n")
	assert.Contains(t, dot, `retry_loop -> retry_loop [label="state.get('ok') != true" style="dashed"]`)
	assert.Contains(t, dot, `label="draw flow"`)

	_, err = e.RenderGraph("ghost")
	assert.True(t, errors.Is(err, types.ErrGraphNotFound))
}

func TestRenderRun(t *testing.T) {
	e, tools := newTestEngine()
	counter := &counterTools{}
	counter.register(tools, "tool1", "tool3")
	tools.Register("tool2", "", func(*types.WorkflowState) (any, error) {
		return nil, errors.Errorf("broken")
	})
	require.Nil(t, e.RegisterGraph(drawGraph()))

	runID, _ := e.StartRun("draw", nil)
	assert.True(t, e.ExecuteStep(runID))

	dot, err := e.RenderRun(context.Background(), runID)
	require.Nil(t, err)
	fmt.Printf("draw run DOT: %+v\n", dot)
	assert.Contains(t, dot, `style="filled" color="green"`)
	assert.Contains(t, dot, `check [label="check" shape="diamond" style="filled" color="yellow"]`)

	state, err := e.RunToCompletion(context.Background(), runID)
	require.Nil(t, err)
	assert.Equal(t, types.Fatal, state.Status())

	dot, err = e.RenderRun(context.Background(), runID)
	require.Nil(t, err)
	fmt.Printf("draw failed run DOT: %+v\n", dot)
	assert.Contains(t, dot, `color="red"`)
	assert.NotContains(t, dot, `color="yellow"`)

	_, err = e.RenderRun(context.Background(), "ghost")
	assert.True(t, errors.Is(err, types.ErrRunNotFound))
}
