package runtime

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/warriorguo/graphflow/store"
	"github.com/warriorguo/graphflow/types"
)

var (
	_ types.WorkflowEngine = &engine{}
)

func NewWorkflowEngine(store store.Store, tools types.ToolCaller, opts *types.EngineOptions) types.WorkflowEngine {
	return newEngine(store, tools, opts)
}

type engine struct {
	store store.Store
	tools types.ToolCaller
	opts  *types.EngineOptions

	graphMu sync.RWMutex
	graphs  map[string]*types.Graph

	runMu sync.Mutex
	runs  map[string]*runEntity

	runner *runner

	closeOnce sync.Once
	closeErr  error
}

// runEntity is one run in the run registry. mu serializes steps and
// snapshots of the run.
type runEntity struct {
	mu     sync.Mutex
	state  *types.WorkflowState
	visits map[string]int
}

func newEngine(store store.Store, tools types.ToolCaller, opts *types.EngineOptions) *engine {
	if opts == nil {
		opts = types.NewEngineOptions()
	}
	e := &engine{
		store:  store,
		tools:  tools,
		opts:   opts,
		graphs: make(map[string]*types.Graph),
		runs:   make(map[string]*runEntity),
	}
	e.runner = newRunner(opts.WorkerConcurrency)
	return e
}

func (e *engine) RegisterGraph(graph *types.Graph) error {
	if graph == nil {
		return errors.Annotatef(types.ErrInvalidGraph, "nil graph")
	}
	if err := graph.Validate(); err != nil {
		return errors.Trace(err)
	}

	e.graphMu.Lock()
	defer e.graphMu.Unlock()
	if _, exists := e.graphs[graph.ID]; exists {
		log.Debugf("graph %s replaced", graph.ID)
	}
	e.graphs[graph.ID] = graph
	return nil
}

func (e *engine) GetGraph(graphID string) (*types.Graph, bool) {
	e.graphMu.RLock()
	defer e.graphMu.RUnlock()
	g, exists := e.graphs[graphID]
	return g, exists
}

// ListGraphs returns the registered graphs sorted by id.
func (e *engine) ListGraphs() []*types.Graph {
	e.graphMu.RLock()
	graphs := make([]*types.Graph, 0, len(e.graphs))
	for _, g := range e.graphs {
		graphs = append(graphs, g)
	}
	e.graphMu.RUnlock()

	sort.Slice(graphs, func(i, j int) bool { return graphs[i].ID < graphs[j].ID })
	return graphs
}

func (e *engine) StartRun(graphID string, initialData map[string]any) (string, error) {
	graph, exists := e.GetGraph(graphID)
	if !exists {
		return "", errors.Annotatef(types.ErrGraphNotFound, "graph %q", graphID)
	}

	runID := uuid.NewString()
	run := &runEntity{
		state:  types.NewWorkflowState(graph.ID, runID, graph.StartNode, initialData),
		visits: make(map[string]int),
	}

	e.runMu.Lock()
	e.runs[runID] = run
	e.runMu.Unlock()

	log.WithFields(log.Fields{"run_id": runID, "graph": graph.ID}).Debugf("run started at node %s", graph.StartNode)
	return runID, nil
}

func (e *engine) getRun(runID string) (*runEntity, bool) {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	run, exists := e.runs[runID]
	return run, exists
}

func (e *engine) GetRunState(runID string) (*types.WorkflowState, bool) {
	run, exists := e.getRun(runID)
	if !exists {
		return nil, false
	}
	return run.state, true
}

func (e *engine) RunSnapshot(runID string) (*types.WorkflowState, bool) {
	run, exists := e.getRun(runID)
	if !exists {
		return nil, false
	}
	run.mu.Lock()
	defer run.mu.Unlock()
	return run.state.Clone(), true
}

// Close waits for the submitted runs, then releases the store. The store is
// released even when ctx ends first; runs still going then lose their
// remaining step records.
func (e *engine) Close(ctx context.Context) error {
	waitErr := e.runner.stopWait(ctx)
	e.closeOnce.Do(func() {
		e.closeErr = store.Close(e.store)
	})
	if waitErr != nil {
		return errors.Annotatef(waitErr, "wait for runs")
	}
	return errors.Annotatef(e.closeErr, "close store")
}
