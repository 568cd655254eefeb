// Package httpapi exposes a workflow engine over HTTP/JSON.
package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/warriorguo/graphflow/graphdef"
	"github.com/warriorguo/graphflow/registry"
	"github.com/warriorguo/graphflow/types"
)

type handlers struct {
	// runCtx bounds the runs started in the background
	runCtx context.Context
	engine types.WorkflowEngine
	tools  *registry.Registry
}

// NewRouter serves engine. Runs started with POST /api/graph/start keep
// going after the request returns, until ctx is cancelled.
func NewRouter(ctx context.Context, engine types.WorkflowEngine, tools *registry.Registry) http.Handler {
	h := &handlers{runCtx: ctx, engine: engine, tools: tools}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.handleRoot)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("POST /api/graph/run", h.handleRun)
	mux.HandleFunc("POST /api/graph/start", h.handleStart)
	mux.HandleFunc("GET /api/graph/state/{run_id}", h.handleState)
	mux.HandleFunc("GET /api/graph/state/{run_id}/dot", h.handleRunDOT)
	mux.HandleFunc("GET /api/graphs", h.handleGraphs)
	mux.HandleFunc("GET /api/graphs/{graph_id}/dot", h.handleGraphDOT)
	mux.HandleFunc("GET /api/tools", h.handleTools)
	return LogRequests(mux)
}

type runRequest struct {
	GraphID      string         `json:"graph_id"`
	InitialState map[string]any `json:"initial_state"`
	MaxSteps     *int           `json:"max_steps"`
}

func (req *runRequest) validate() error {
	req.GraphID = strings.TrimSpace(req.GraphID)
	if req.GraphID == "" {
		return errors.BadRequestf("graph_id is required")
	}
	if req.MaxSteps != nil && *req.MaxSteps <= 0 {
		return errors.BadRequestf("max_steps must be greater than 0 when provided")
	}
	return nil
}

func (req *runRequest) runOptions() []types.RunOption {
	if req.MaxSteps == nil {
		return nil
	}
	return []types.RunOption{types.WithMaxSteps(*req.MaxSteps)}
}

func (h *handlers) decodeRunRequest(w http.ResponseWriter, r *http.Request) (*runRequest, bool) {
	var req runRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeInvalidRequest(w, err.Error())
		return nil, false
	}
	if err := req.validate(); err != nil {
		writeInvalidRequest(w, err.Error())
		return nil, false
	}
	return &req, true
}

func (h *handlers) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Workflow Engine API"})
}

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleRun starts a run and drives it to completion within the request.
func (h *handlers) handleRun(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRunRequest(w, r)
	if !ok {
		return
	}

	runID, err := h.engine.StartRun(req.GraphID, req.InitialState)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	state, err := h.engine.RunToCompletion(r.Context(), runID, req.runOptions()...)
	// a spent step budget has already failed the run, its state is the answer
	if err != nil && !errors.Is(err, types.ErrStepBudgetExceeded) {
		writeMappedError(w, err)
		return
	}

	snapshot, _ := h.engine.RunSnapshot(runID)
	if snapshot == nil {
		snapshot = state
	}
	writeJSON(w, http.StatusOK, runResponse{
		RunID:        runID,
		FinalState:   snapshot.Data,
		ExecutionLog: snapshot.ExecutionLog,
		IsComplete:   snapshot.IsComplete,
		Error:        snapshot.Error,
	})
}

// handleStart starts a run and returns at once; the run is driven by the
// engine worker pool.
func (h *handlers) handleStart(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRunRequest(w, r)
	if !ok {
		return
	}

	runID, err := h.engine.StartRun(req.GraphID, req.InitialState)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	if err := h.engine.SubmitRun(h.runCtx, runID, req.runOptions()...); err != nil {
		writeMappedError(w, err)
		return
	}
	log.WithField("run_id", runID).Debugf("run of %s submitted", req.GraphID)
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

func (h *handlers) handleState(w http.ResponseWriter, r *http.Request) {
	state, exists := h.engine.RunSnapshot(r.PathValue("run_id"))
	if !exists {
		writeError(w, http.StatusNotFound, errorCodeNotFound, "Run not found")
		return
	}
	writeJSON(w, http.StatusOK, newStateResponse(state))
}

func (h *handlers) handleRunDOT(w http.ResponseWriter, r *http.Request) {
	dot, err := h.engine.RenderRun(r.Context(), r.PathValue("run_id"))
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeDOT(w, dot)
}

func (h *handlers) handleGraphs(w http.ResponseWriter, r *http.Request) {
	graphs := h.engine.ListGraphs()
	defs := make([]*graphdef.Definition, 0, len(graphs))
	for _, g := range graphs {
		defs = append(defs, graphdef.FromGraph(g))
	}
	writeJSON(w, http.StatusOK, map[string]any{"graphs": defs})
}

func (h *handlers) handleGraphDOT(w http.ResponseWriter, r *http.Request) {
	dot, err := h.engine.RenderGraph(r.PathValue("graph_id"))
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeDOT(w, dot)
}

func (h *handlers) handleTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": h.tools.List()})
}
