package types

import "context"

type WorkflowEngine interface {
	/**
	 * RegisterGraph validates the graph and stores it under its id,
	 * replacing any graph registered with the same id.
	 */
	RegisterGraph(graph *Graph) error
	GetGraph(graphID string) (*Graph, bool)
	ListGraphs() []*Graph
	/**
	 * RenderGraph will return the DOT string of the graph registered under graphID.
	 */
	RenderGraph(graphID string) (string, error)

	/**
	 * StartRun creates a run positioned on the graph start node and returns
	 * its id. Nothing is executed until ExecuteStep or RunToCompletion.
	 */
	StartRun(graphID string, initialData map[string]any) (string, error)
	/**
	 * GetRunState returns the live state, it must not be read while the run
	 * is being stepped. Use RunSnapshot from other goroutines.
	 */
	GetRunState(runID string) (*WorkflowState, bool)
	RunSnapshot(runID string) (*WorkflowState, bool)

	/**
	 * ExecuteStep runs the current node of the run and moves it along the
	 * first matching edge. It returns false when no work happened: unknown
	 * or finished run, or the step failed the run.
	 */
	ExecuteStep(runID string) bool
	RunToCompletion(ctx context.Context, runID string, opts ...RunOption) (*WorkflowState, error)
	/**
	 * SubmitRun drives the run to completion in the background.
	 */
	SubmitRun(ctx context.Context, runID string, opts ...RunOption) error

	/**
	 * RenderRun renders the graph of the run, nodes colored from the step records.
	 */
	RenderRun(ctx context.Context, runID string) (string, error)
	ListStepRecords(ctx context.Context, runID string) ([]*StepRecord, error)

	/**
	 * close the engine, wait for the submitted runs to finish
	 */
	Close(ctx context.Context) error
}
