package types_test

import (
	"math"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/warriorguo/graphflow/types"
)

type testStruct struct {
	Name   string
	Age    int
	IsMale bool
}

func TestData(t *testing.T) {
	data := &types.Data{}

	data.Set("teststruct1", testStruct{"hello", 4, false})

	hello := &testStruct{}
	assert.Nil(t, data.GetStruct("teststruct1", hello))
	assert.Equal(t, "hello", hello.Name)
	assert.Equal(t, 4, hello.Age)
	assert.NotNil(t, data.GetStruct("missing", hello))

	data.Set("s1", 1)
	data.Set("s2", "2")
	data.Set("s3", math.Pi)
	data.Set("s4", true)

	_, exists := data.Get("s0")
	assert.False(t, exists)
	assert.Equal(t, 70, data.GetDefault("s0", 70))
	assert.Equal(t, 1, data.GetDefault("s1", 70))

	s, exists := data.GetString("s1")
	assert.True(t, exists)
	assert.Equal(t, "1", s)
	s, _ = data.GetString("s3")
	assert.Equal(t, strconv.FormatFloat(math.Pi, 'f', -1, 64), s)
	i, _ := data.GetInt("s2")
	assert.Equal(t, 2, i)
	b, _ := data.GetBool("s4")
	assert.True(t, b)
}

func TestDataMergeClone(t *testing.T) {
	var data types.Data
	data.Merge(map[string]any{"a": 1, "b": 2})
	data.Merge(map[string]any{"a": 3})
	assert.Equal(t, types.Data{"a": 3, "b": 2}, data)

	c := data.Clone()
	c.Set("a", 4)
	assert.Equal(t, 3, data["a"])
}

func TestAsMapping(t *testing.T) {
	m, ok := types.AsMapping(map[string]any{"a": 1})
	assert.True(t, ok)
	assert.Equal(t, 1, m["a"])

	m, ok = types.AsMapping(types.Data{"b": 2})
	assert.True(t, ok)
	assert.Equal(t, 2, m["b"])

	m, ok = types.AsMapping(map[string]float64{"c": 0.5})
	assert.True(t, ok)
	assert.Equal(t, 0.5, m["c"])

	for _, v := range []any{nil, 42, "s", []any{1}, map[int]string{1: "x"}} {
		_, ok = types.AsMapping(v)
		assert.False(t, ok)
	}
}

func TestWorkflowState(t *testing.T) {
	state := types.NewWorkflowState("g", "r", "start", map[string]any{"x": 1})
	assert.Equal(t, types.Running, state.Status())
	assert.Equal(t, 1, state.Get("x", 0))
	assert.Equal(t, 0, state.Get("y", 0))

	state.Update(map[string]any{"y": 2})
	state.Logf("step %d", 1)
	snapshot := state.Clone()

	state.Set("x", 10)
	state.Log("step 2")
	assert.Equal(t, 1, snapshot.Data["x"])
	assert.Equal(t, []string{"step 1"}, snapshot.ExecutionLog)

	state.Finish()
	assert.Equal(t, types.Finished, state.Status())

	failed := types.NewWorkflowState("g", "r2", "start", nil)
	failed.Fail(types.ErrStepBudgetExceeded)
	assert.Equal(t, types.Fatal, failed.Status())
	assert.Equal(t, "step budget exceeded", failed.Error)
	assert.Equal(t, "fatal", failed.Status().String())
}
