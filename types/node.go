package types

import (
	"time"

	"github.com/mcuadros/go-defaults"
)

type NodeType string

// DefaultMaxIterations caps a loop node that does not set its own limit.
const DefaultMaxIterations = 10

const (
	FunctionType  NodeType = "function"
	ConditionType NodeType = "condition"
	LoopType      NodeType = "loop"
)

// NodeMeta carries the fields shared by every node variant.
type NodeMeta struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

func (m NodeMeta) Meta() NodeMeta {
	return m
}

func (NodeMeta) sealed() {}

// Node is implemented by FunctionNode, ConditionNode and LoopNode only.
type Node interface {
	Meta() NodeMeta
	Type() NodeType
	sealed()
}

// FunctionNode invokes a registered tool.
type FunctionNode struct {
	NodeMeta
	Tool string `json:"tool,omitempty"`
}

func (*FunctionNode) Type() NodeType { return FunctionType }

// ConditionNode evaluates Condition and stores the result as <id>_result.
type ConditionNode struct {
	NodeMeta
	Condition string `json:"condition,omitempty"`
}

func (*ConditionNode) Type() NodeType { return ConditionType }

// LoopNode repeats itself while LoopCondition holds, at most MaxIterations
// times, optionally invoking Tool on every iteration.
type LoopNode struct {
	NodeMeta
	LoopCondition string `json:"loop_condition,omitempty"`
	MaxIterations int    `json:"max_iterations" default:"10"`
	Tool          string `json:"tool,omitempty"`
}

func (*LoopNode) Type() NodeType { return LoopType }

func NewFunctionNode(id, name, tool string) *FunctionNode {
	return &FunctionNode{NodeMeta: NodeMeta{ID: id, Name: name}, Tool: tool}
}

func NewConditionNode(id, name, condition string) *ConditionNode {
	return &ConditionNode{NodeMeta: NodeMeta{ID: id, Name: name}, Condition: condition}
}

// NewLoopNode builds a loop node; a zero maxIterations falls back to the
// default of 10.
func NewLoopNode(id, name, loopCondition string, maxIterations int, tool string) *LoopNode {
	n := &LoopNode{
		NodeMeta:      NodeMeta{ID: id, Name: name},
		LoopCondition: loopCondition,
		MaxIterations: maxIterations,
		Tool:          tool,
	}
	defaults.SetDefaults(n)
	return n
}

// StepRecord is the trace of the latest visit of one node within a run.
type StepRecord struct {
	RunID     string    `json:",omitempty"`
	Node      string    `json:",omitempty"`
	Type      NodeType  `json:",omitempty"`
	Visits    int       `json:",omitempty"`
	StartTime time.Time `json:",omitempty"`
	EndTime   time.Time `json:",omitempty"`
	Error     string    `json:",omitempty"`
	Output    Data      `json:",omitempty"`
}
