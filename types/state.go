package types

import (
	"fmt"
)

// WorkflowState is the mutable state of one run. It is owned by the engine;
// tools receive it for the duration of a call and must not keep it.
type WorkflowState struct {
	WorkflowID   string   `json:"workflow_id"`
	RunID        string   `json:"run_id"`
	Data         Data     `json:"data"`
	ExecutionLog []string `json:"execution_log"`
	CurrentNode  string   `json:"current_node"`
	IsComplete   bool     `json:"is_complete"`
	Error        string   `json:"error,omitempty"`
}

// NewWorkflowState seeds a run positioned on startNode with a copy of
// initial.
func NewWorkflowState(workflowID, runID, startNode string, initial map[string]any) *WorkflowState {
	data := make(Data, len(initial))
	data.Merge(initial)
	return &WorkflowState{
		WorkflowID:   workflowID,
		RunID:        runID,
		Data:         data,
		ExecutionLog: make([]string, 0),
		CurrentNode:  startNode,
	}
}

// Get returns the value stored at key, or def when key is absent.
func (s *WorkflowState) Get(key string, def any) any {
	return s.Data.GetDefault(key, def)
}

func (s *WorkflowState) Set(key string, value any) {
	s.Data.Set(key, value)
}

// Update merges m into the run data, overwriting existing keys.
func (s *WorkflowState) Update(m map[string]any) {
	s.Data.Merge(m)
}

func (s *WorkflowState) Log(entry string) {
	s.ExecutionLog = append(s.ExecutionLog, entry)
}

func (s *WorkflowState) Logf(format string, args ...any) {
	s.Log(fmt.Sprintf(format, args...))
}

// Fail completes the run with err.
func (s *WorkflowState) Fail(err error) {
	s.IsComplete = true
	s.Error = err.Error()
}

// Finish completes the run successfully.
func (s *WorkflowState) Finish() {
	s.IsComplete = true
}

func (s *WorkflowState) Status() StatusType {
	switch {
	case !s.IsComplete:
		return Running
	case s.Error != "":
		return Fatal
	}
	return Finished
}

// Clone copies the state so it can be read while the run goes on. Data
// values themselves are shared.
func (s *WorkflowState) Clone() *WorkflowState {
	c := *s
	c.Data = s.Data.Clone()
	c.ExecutionLog = append(make([]string, 0, len(s.ExecutionLog)), s.ExecutionLog...)
	return &c
}
