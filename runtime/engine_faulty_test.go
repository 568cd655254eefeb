package runtime

import (
	"context"
	"fmt"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warriorguo/graphflow/registry"
	"github.com/warriorguo/graphflow/store/mem"
	"github.com/warriorguo/graphflow/types"
)

func TestStepRecords(t *testing.T) {
	e, tools := newTestEngine()
	tools.Register("incr", "", func(state *types.WorkflowState) (any, error) {
		n, _ := state.Data.GetInt("count")
		return map[string]any{"count": n + 1}, nil
	})
	tools.Register("finish", "", func(*types.WorkflowState) (any, error) { return nil, nil })
	require.Nil(t, e.RegisterGraph(loopGraph(2)))

	runID, _ := e.StartRun("loop", nil)
	_, err := e.RunToCompletion(context.Background(), runID)
	require.Nil(t, err)

	records, err := e.ListStepRecords(context.Background(), runID)
	require.Nil(t, err)
	require.Len(t, records, 2)
	fmt.Printf("records: %+v %+v\n", records[0], records[1])

	assert.Equal(t, "loop", records[0].Node)
	assert.Equal(t, types.LoopType, records[0].Type)
	assert.Equal(t, 3, records[0].Visits)
	assert.Empty(t, records[0].Error)
	assert.Equal(t, float64(2), records[0].Output["count"])

	assert.Equal(t, "done", records[1].Node)
	assert.Equal(t, 1, records[1].Visits)
	assert.False(t, records[1].EndTime.Before(records[1].StartTime))

	_, err = e.ListStepRecords(context.Background(), "ghost")
	assert.True(t, errors.Is(err, types.ErrRunNotFound))
}

func TestStepRecordOnFailure(t *testing.T) {
	e, tools := newTestEngine()
	tools.Register("fatal", "", func(*types.WorkflowState) (any, error) {
		return nil, errors.Errorf("fatal")
	})
	g := types.NewGraph("fatal", "fatal", "fatal")
	g.AddNode(types.NewFunctionNode("fatal", "", "fatal"))
	require.Nil(t, e.RegisterGraph(g))

	runID, _ := e.StartRun("fatal", nil)
	assert.False(t, e.ExecuteStep(runID))

	records, err := e.ListStepRecords(context.Background(), runID)
	require.Nil(t, err)
	require.Len(t, records, 1)
	assert.Contains(t, records[0].Error, "fatal")
}

func TestStoreFailureDoesNotFailRun(t *testing.T) {
	var setError error = nil
	s := mem.NewMemStoreWithErrHandler(func() error {
		return setError
	})
	tools := registry.New()
	counter := &counterTools{}
	counter.register(tools, "tool1", "tool2", "tool3")
	e := newEngine(s, tools, newOptions())
	require.Nil(t, e.RegisterGraph(linearGraph()))

	runID, _ := e.StartRun("linear", nil)
	assert.True(t, e.ExecuteStep(runID))

	setError = errors.Errorf("set error")
	assert.True(t, e.ExecuteStep(runID))
	_, err := e.ListStepRecords(context.Background(), runID)
	assert.NotNil(t, err)

	setError = nil
	state, err := e.RunToCompletion(context.Background(), runID)
	assert.Nil(t, err)
	assert.Equal(t, types.Finished, state.Status())
	fmt.Printf("store: %v\n", s)
}

func TestTraceDisabled(t *testing.T) {
	opts := newOptions()
	opts.RecordTrace = false
	tools := registry.New()
	counter := &counterTools{}
	counter.register(tools, "tool1", "tool2", "tool3")
	e := newEngine(mem.NewMemStore(), tools, opts)
	require.Nil(t, e.RegisterGraph(linearGraph()))

	runID, _ := e.StartRun("linear", nil)
	_, err := e.RunToCompletion(context.Background(), runID)
	require.Nil(t, err)

	records, err := e.ListStepRecords(context.Background(), runID)
	assert.Nil(t, err)
	assert.Len(t, records, 0)
}
