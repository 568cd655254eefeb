package graphdef

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warriorguo/graphflow/types"
)

const retryHCL = `
graph "retry" {
  name       = "Retry"
  start_node = "fetch"

  node "fetch" {
    type     = "function"
    name     = "Fetch"
    function = "fetch"
  }

  node "ok" {
    type      = "condition"
    condition = "state.get('status', 0) == 200"
  }

  node "wait" {
    type           = "loop"
    loop_condition = "state.get('attempts', 0) < 3"
    max_iterations = 5
    tool           = "sleep"
  }

  edge {
    from = "fetch"
    to   = "ok"
  }

  edge {
    from      = "ok"
    to        = "wait"
    condition = "!state.get('ok_result', false)"
  }

  edge {
    from = "wait"
    to   = "fetch"
  }
}
`

const retryJSON = `{
  "id": "retry",
  "name": "Retry",
  "start_node": "fetch",
  "nodes": {
    "fetch": {"type": "function", "name": "Fetch", "function": "fetch"},
    "ok": {"type": "condition", "condition": "state.get('status', 0) == 200"},
    "wait": {"type": "loop", "loop_condition": "state.get('attempts', 0) < 3", "max_iterations": 5, "tool": "sleep"}
  },
  "edges": [
    {"from": "fetch", "to": "ok"},
    {"from": "ok", "to": "wait", "condition": "!state.get('ok_result', false)"},
    {"from": "wait", "to": "fetch"}
  ]
}`

func checkRetryGraph(t *testing.T, g *types.Graph) {
	t.Helper()

	assert.Equal(t, "retry", g.ID)
	assert.Equal(t, "Retry", g.Name)
	assert.Equal(t, "fetch", g.StartNode)
	require.Len(t, g.Nodes, 3)

	fetch, ok := g.Nodes["fetch"].(*types.FunctionNode)
	require.True(t, ok)
	assert.Equal(t, "fetch", fetch.Tool)
	assert.Equal(t, "Fetch", fetch.Name)

	cond, ok := g.Nodes["ok"].(*types.ConditionNode)
	require.True(t, ok)
	assert.Equal(t, "state.get('status', 0) == 200", cond.Condition)

	loop, ok := g.Nodes["wait"].(*types.LoopNode)
	require.True(t, ok)
	assert.Equal(t, 5, loop.MaxIterations)
	assert.Equal(t, "sleep", loop.Tool)

	assert.Equal(t, []types.Edge{
		{From: "fetch", To: "ok"},
		{From: "ok", To: "wait", Condition: "!state.get('ok_result', false)"},
		{From: "wait", To: "fetch"},
	}, g.Edges)
}

func TestDecodeHCL(t *testing.T) {
	graphs, err := DecodeHCL("retry.hcl", []byte(retryHCL))
	require.NoError(t, err)
	require.Len(t, graphs, 1)
	checkRetryGraph(t, graphs[0])
}

func TestDecodeJSON(t *testing.T) {
	graphs, err := DecodeJSON([]byte(retryJSON))
	require.NoError(t, err)
	require.Len(t, graphs, 1)
	checkRetryGraph(t, graphs[0])

	graphs, err = DecodeJSON([]byte("[" + retryJSON + "]"))
	require.NoError(t, err)
	require.Len(t, graphs, 1)
	checkRetryGraph(t, graphs[0])
}

func TestDecodeDefaults(t *testing.T) {
	graphs, err := DecodeJSON([]byte(`{
		"id": "spin",
		"start_node": "l",
		"nodes": {"l": {"type": "loop", "loop_condition": "true"}}
	}`))
	require.NoError(t, err)
	require.Len(t, graphs, 1)

	assert.Equal(t, "spin", graphs[0].Name)
	loop := graphs[0].Nodes["l"].(*types.LoopNode)
	assert.Equal(t, types.DefaultMaxIterations, loop.MaxIterations)
}

func TestDecodeRejects(t *testing.T) {
	cases := map[string]string{
		"unknown type":      `{"id":"g","start_node":"a","nodes":{"a":{"type":"parallel"}}}`,
		"function no tool":  `{"id":"g","start_node":"a","nodes":{"a":{"type":"function"}}}`,
		"bad start":         `{"id":"g","start_node":"b","nodes":{"a":{"type":"function","tool":"x"}}}`,
		"bad edge":          `{"id":"g","start_node":"a","nodes":{"a":{"type":"function","tool":"x"}},"edges":[{"from":"a","to":"z"}]}`,
		"bad condition":     `{"id":"g","start_node":"a","nodes":{"a":{"type":"condition","condition":"state.get('x' >"}}}`,
		"duplicate graph":   `[{"id":"g","start_node":"a","nodes":{"a":{"type":"function","tool":"x"}}},{"id":"g","start_node":"a","nodes":{"a":{"type":"function","tool":"x"}}}]`,
		"not json":          `{"id":`,
		"null graph":        `[null]`,
		"condition no expr": `{"id":"g","start_node":"a","nodes":{"a":{"type":"condition"}}}`,
		"loop no condition": `{"id":"g","start_node":"a","nodes":{"a":{"type":"loop","tool":"x","max_iterations":2}}}`,
	}
	for name, src := range cases {
		_, err := DecodeJSON([]byte(src))
		assert.Error(t, err, name)
		assert.True(t, errors.Is(err, types.ErrInvalidGraph), "%s: %v", name, err)
	}

	_, err := DecodeHCL("dup.hcl", []byte(`
graph "g" {
  start_node = "a"
  node "a" {
    type = "function"
    tool = "x"
  }
  node "a" {
    type = "function"
    tool = "y"
  }
}
`))
	assert.True(t, errors.Is(err, types.ErrInvalidGraph), "%v", err)

	_, err = DecodeHCL("broken.hcl", []byte(`graph "g" {`))
	assert.True(t, errors.Is(err, types.ErrInvalidGraph), "%v", err)

	nullFile := filepath.Join(t.TempDir(), "null.json")
	require.NoError(t, os.WriteFile(nullFile, []byte("[null]"), 0o644))
	_, err = LoadFile(nullFile)
	assert.True(t, errors.Is(err, types.ErrInvalidGraph), "%v", err)

	_, err = Decode("graph.yaml", []byte(""))
	assert.True(t, errors.Is(err, errors.NotSupported), "%v", err)
}

func TestFromGraph(t *testing.T) {
	graphs, err := DecodeHCL("retry.hcl", []byte(retryHCL))
	require.NoError(t, err)

	back, err := FromGraph(graphs[0]).Graph()
	require.NoError(t, err)
	checkRetryGraph(t, back)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.hcl"), []byte(retryHCL), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.json"),
		[]byte(`{"id":"single","start_node":"a","nodes":{"a":{"type":"function","tool":"x"}}}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	graphs, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, graphs, 2)
	assert.Equal(t, "retry", graphs[0].ID)
	assert.Equal(t, "single", graphs[1].ID)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.json"), []byte(retryJSON), 0o644))
	_, err = LoadDir(dir)
	assert.True(t, errors.Is(err, types.ErrInvalidGraph), "%v", err)

	empty, err := LoadDir(t.TempDir())
	assert.NoError(t, err)
	assert.Empty(t, empty)

	_, err = LoadFile(filepath.Join(dir, "missing.hcl"))
	assert.Error(t, err)
}
