package runtime

import (
	"fmt"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"github.com/warriorguo/graphflow/types"
)

var (
	shouldNotReach = errors.New("should not reach here")
)

// ExecuteStep runs one node of the run and resolves where the run goes
// next. Steps of the same run are serialized.
func (e *engine) ExecuteStep(runID string) bool {
	run, exists := e.getRun(runID)
	if !exists {
		return false
	}
	run.mu.Lock()
	defer run.mu.Unlock()
	return e.step(run)
}

func (e *engine) step(run *runEntity) bool {
	state := run.state
	if state.IsComplete {
		return false
	}
	logger := log.WithFields(log.Fields{"run_id": state.RunID, "node": state.CurrentNode})

	nodeID := state.CurrentNode
	graph, exists := e.GetGraph(state.WorkflowID)
	if !exists {
		failRun(state, logger, types.NewFatalError(nodeID,
			errors.Annotatef(types.ErrGraphNotFound, "graph %q", state.WorkflowID)))
		return false
	}

	node, exists := graph.GetNode(nodeID)
	if !exists {
		failRun(state, logger, types.NewFatalError(nodeID,
			errors.Annotatef(types.ErrNodeNotFound, "node %q", nodeID)))
		return false
	}

	record := e.startRecord(run, node)
	selfLoop, err := e.runHandler(graph, node, state)
	if err != nil {
		err = types.NewFatalError(nodeID, err)
		failRun(state, logger, err)
		e.endRecord(record, state, err)
		return false
	}
	e.endRecord(record, state, nil)

	if selfLoop {
		logger.Debugf("loop node stays current")
		return true
	}

	next := graph.GetNextNodes(nodeID, state)
	if len(next) == 0 {
		state.Finish()
		state.Logf("Completed at node '%s'", nodeID)
		logger.Debugf("run completed")
		return true
	}
	if len(next) > 1 {
		logger.Debugf("%d edges fired, taking %s, discarding %v", len(next), next[0], next[1:])
	}
	state.CurrentNode = next[0]
	state.Logf("Moved from '%s' to '%s'", nodeID, next[0])
	logger.Debugf("moved to %s", next[0])
	return true
}

func failRun(state *types.WorkflowState, logger *log.Entry, err error) {
	state.Fail(err)
	var fatal *types.FatalError
	if errors.As(err, &fatal) {
		logger = logger.WithField("failed_node", fatal.NodeID)
	}
	logger.Warnf("run failed: %s", state.Error)
}

// runHandler dispatches node by its type. It reports whether the node
// asked to stay current, in which case edges are not resolved.
func (e *engine) runHandler(graph *types.Graph, node types.Node, state *types.WorkflowState) (selfLoop bool, retErr error) {
	defer func() {
		if r := recover(); r != nil {
			selfLoop = false
			retErr = errors.Errorf("panic on %s: %v", node.Meta().ID, r)
		}
	}()

	switch n := node.(type) {
	case *types.FunctionNode:
		return false, e.runFunction(n, state)
	case *types.ConditionNode:
		return false, e.runCondition(graph, n, state)
	case *types.LoopNode:
		return e.runLoop(graph, n, state)
	}
	return false, errors.Annotatef(shouldNotReach, "node %s of type %T", node.Meta().ID, node)
}

func (e *engine) runFunction(n *types.FunctionNode, state *types.WorkflowState) error {
	if n.Tool == "" {
		return errors.Annotatef(types.ErrMissingFunctionConfig, "function node %q", n.ID)
	}
	if err := e.callTool(n.ID, n.Tool, state); err != nil {
		return err
	}
	state.Logf("Executed function '%s' at node '%s'", n.Tool, n.ID)
	return nil
}

func (e *engine) runCondition(graph *types.Graph, n *types.ConditionNode, state *types.WorkflowState) error {
	if n.Condition == "" {
		return errors.Annotatef(types.ErrMissingConditionConfig, "condition node %q", n.ID)
	}
	result, err := evalCondition(graph, n.Condition, state)
	if err != nil {
		return err
	}
	state.Set(resultKey(n.ID), result)
	state.Logf("Evaluated condition '%s' at node '%s': %t", n.Condition, n.ID, result)
	return nil
}

func (e *engine) runLoop(graph *types.Graph, n *types.LoopNode, state *types.WorkflowState) (bool, error) {
	if n.LoopCondition == "" {
		return false, errors.Annotatef(types.ErrMissingLoopConditionConfig, "loop node %q", n.ID)
	}

	key := iterationKey(n.ID)
	iteration := cast.ToInt(state.Get(key, 0))
	if iteration >= n.MaxIterations {
		state.Logf("Loop node '%s' reached max iterations (%d)", n.ID, n.MaxIterations)
		return false, nil
	}

	proceed, err := evalCondition(graph, n.LoopCondition, state)
	if err != nil {
		return false, err
	}
	if !proceed {
		state.Logf("Loop node '%s' condition false, exiting loop", n.ID)
		return false, nil
	}

	if n.Tool != "" {
		if err := e.callTool(n.ID, n.Tool, state); err != nil {
			return false, err
		}
	}
	iteration++
	state.Set(key, iteration)
	state.Logf("Loop node '%s' iteration %d", n.ID, iteration)
	state.CurrentNode = n.ID
	return true, nil
}

// callTool invokes the tool and folds its result into the run data: a
// mapping is merged, anything else is stored under the node result key.
func (e *engine) callTool(nodeID, tool string, state *types.WorkflowState) error {
	result, err := e.tools.Call(tool, state)
	if err != nil {
		return errors.Annotatef(err, "tool %q at node %q", tool, nodeID)
	}
	if m, ok := types.AsMapping(result); ok {
		state.Update(m)
	} else {
		state.Set(resultKey(nodeID), result)
	}
	return nil
}

func evalCondition(graph *types.Graph, src string, state *types.WorkflowState) (bool, error) {
	e, err := graph.Expression(src)
	if err != nil {
		return false, errors.Annotatef(types.ErrExpressionEvaluation, "%q: %v", src, err)
	}
	ok, err := e.Eval(state.Data)
	if err != nil {
		return false, errors.Annotatef(types.ErrExpressionEvaluation, "%q: %v", src, err)
	}
	return ok, nil
}

func resultKey(nodeID string) string {
	return fmt.Sprintf("%s_result", nodeID)
}

func iterationKey(nodeID string) string {
	return fmt.Sprintf("%s_iteration", nodeID)
}
