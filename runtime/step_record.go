package runtime

import (
	"context"
	"sort"
	"time"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/warriorguo/graphflow/types"
	"github.com/warriorguo/graphflow/utils"
)

const (
	RecordPath = "/record/"
)

func recordSavePath(runID string) string {
	return RecordPath + runID
}

func (e *engine) startRecord(run *runEntity, node types.Node) *types.StepRecord {
	id := node.Meta().ID
	run.visits[id]++
	return &types.StepRecord{
		RunID:     run.state.RunID,
		Node:      id,
		Type:      node.Type(),
		Visits:    run.visits[id],
		StartTime: time.Now(),
	}
}

func (e *engine) endRecord(record *types.StepRecord, state *types.WorkflowState, err error) {
	record.EndTime = time.Now()
	if err != nil {
		record.Error = errors.ErrorStack(err)
	}
	if !e.opts.RecordTrace || e.store == nil {
		return
	}
	record.Output = state.Data.Clone()

	// the step already happened, a store failure must not fail the run
	if err := e.saveRecord(context.Background(), record); err != nil {
		log.Errorf("%s failed to save record of %s: %v", record.RunID, record.Node, err)
	}
}

func (e *engine) saveRecord(ctx context.Context, record *types.StepRecord) error {
	b, err := utils.Serialize(record)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(e.store.Set(ctx, recordSavePath(record.RunID), record.Node, b))
}

func (e *engine) loadRecords(ctx context.Context, runID string) (map[string]*types.StepRecord, error) {
	records := make(map[string]*types.StepRecord)
	if e.store == nil {
		return records, nil
	}
	recordPath := recordSavePath(runID)
	err := e.store.List(ctx, recordPath, func(node string) bool {
		b, err := e.store.Get(ctx, recordPath, node)
		if err != nil {
			log.Errorf("load %s %s from store failed: %v", recordPath, node, err)
			return true
		}
		if b == nil {
			return true
		}
		record := &types.StepRecord{}
		if err := utils.Unserialize(b, record); err != nil {
			log.Errorf("unserialize %s %s from store:%s failed: %v", recordPath, node, string(b), err)
			return true
		}
		records[node] = record
		return true
	})
	return records, errors.Trace(err)
}

// ListStepRecords returns the latest record of every node the run visited,
// ordered by start time.
func (e *engine) ListStepRecords(ctx context.Context, runID string) ([]*types.StepRecord, error) {
	if _, exists := e.getRun(runID); !exists {
		return nil, errors.Annotatef(types.ErrRunNotFound, "run %q", runID)
	}
	records, err := e.loadRecords(ctx, runID)
	if err != nil {
		return nil, errors.Trace(err)
	}

	list := make([]*types.StepRecord, 0, len(records))
	for _, r := range records {
		list = append(list, r)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].StartTime.Before(list[j].StartTime) })
	return list, nil
}
