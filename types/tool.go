package types

// ToolFunc is the callable behind a tool. A mapping result is merged into
// the run data; any other result is stored under "<node-id>_result".
type ToolFunc func(state *WorkflowState) (any, error)

type Tool struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Fn          ToolFunc `json:"-"`
}

// ToolCaller invokes tools by name on behalf of function and loop nodes.
type ToolCaller interface {
	Call(name string, state *WorkflowState) (any, error)
}
