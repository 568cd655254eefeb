package runtime

import (
	"context"
	"sync"

	"github.com/gammazero/workerpool"
	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/warriorguo/graphflow/types"
)

// RunToCompletion steps the run until it completes. The step budget bounds
// cycles that no loop node caps: a run still going when the budget is spent
// is failed with ErrStepBudgetExceeded. A cancelled ctx stops stepping and
// leaves the run where it is.
func (e *engine) RunToCompletion(ctx context.Context, runID string, opts ...types.RunOption) (*types.WorkflowState, error) {
	run, exists := e.getRun(runID)
	if !exists {
		return nil, errors.Annotatef(types.ErrRunNotFound, "run %q", runID)
	}
	runOpts := types.NewRunOptions(e.opts, opts...)

	for steps := 0; ; steps++ {
		if err := ctx.Err(); err != nil {
			return run.state, errors.Trace(err)
		}
		if done, err := e.budgetedStep(run, steps, runOpts.MaxSteps); done {
			return run.state, err
		}
	}
}

// budgetedStep takes one step under the run lock and reports whether the
// run is over, failing it when steps already used up maxSteps.
func (e *engine) budgetedStep(run *runEntity, steps, maxSteps int) (bool, error) {
	run.mu.Lock()
	defer run.mu.Unlock()

	if run.state.IsComplete {
		return true, nil
	}
	if steps >= maxSteps {
		err := errors.Annotatef(types.ErrStepBudgetExceeded, "run %q stopped after %d steps at node %q",
			run.state.RunID, steps, run.state.CurrentNode)
		run.state.Fail(err)
		log.WithField("run_id", run.state.RunID).Warnf("run failed: %v", err)
		return true, err
	}
	e.step(run)
	return false, nil
}

// SubmitRun drives the run to completion on the worker pool. A run can only
// be submitted once at a time.
func (e *engine) SubmitRun(ctx context.Context, runID string, opts ...types.RunOption) error {
	if _, exists := e.getRun(runID); !exists {
		return errors.Annotatef(types.ErrRunNotFound, "run %q", runID)
	}
	return e.runner.submit(runID, func() {
		if _, err := e.RunToCompletion(ctx, runID, opts...); err != nil {
			log.WithField("run_id", runID).Warnf("background run ended: %v", err)
		}
	})
}

func newRunner(concurrency int) *runner {
	return &runner{
		wp:       workerpool.New(concurrency),
		inflight: make(map[string]struct{}),
		done:     make(chan struct{}),
	}
}

type runner struct {
	mu sync.Mutex

	wp       *workerpool.WorkerPool
	inflight map[string]struct{}
	stopped  bool

	stopOnce sync.Once
	done     chan struct{}
}

func (r *runner) remove(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.inflight, key)
}

func (r *runner) submit(key string, fn func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return errors.MethodNotAllowedf("not running")
	}
	if _, exists := r.inflight[key]; exists {
		return errors.AlreadyExistsf("run %s in flight", key)
	}
	r.inflight[key] = struct{}{}
	r.wp.Submit(func() {
		defer r.remove(key)
		fn()
	})
	return nil
}

// stopWait rejects new work and waits for the submitted runs, or for ctx.
func (r *runner) stopWait(ctx context.Context) error {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()

	r.stopOnce.Do(func() {
		go func() {
			r.wp.StopWait()
			close(r.done)
		}()
	})

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return errors.Trace(ctx.Err())
	}
}
