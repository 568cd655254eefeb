package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/warriorguo/graphflow/types"
)

const maxRequestBodyBytes = 1 << 20

const (
	errorCodeInvalidRequest = "invalid_request"
	errorCodeNotFound       = "not_found"
	errorCodeConflict       = "conflict"
	errorCodeUnavailable    = "unavailable"
	errorCodeRuntime        = "runtime_error"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiErrorResponse struct {
	Error apiError `json:"error"`
}

type runResponse struct {
	RunID        string         `json:"run_id"`
	FinalState   map[string]any `json:"final_state"`
	ExecutionLog []string       `json:"execution_log"`
	IsComplete   bool           `json:"is_complete"`
	Error        string         `json:"error,omitempty"`
}

type stateResponse struct {
	RunID        string         `json:"run_id"`
	GraphID      string         `json:"graph_id"`
	State        map[string]any `json:"state"`
	CurrentNode  string         `json:"current_node"`
	ExecutionLog []string       `json:"execution_log"`
	IsComplete   bool           `json:"is_complete"`
	Error        string         `json:"error,omitempty"`
}

func newStateResponse(state *types.WorkflowState) stateResponse {
	return stateResponse{
		RunID:        state.RunID,
		GraphID:      state.WorkflowID,
		State:        state.Data,
		CurrentNode:  state.CurrentNode,
		ExecutionLog: state.ExecutionLog,
		IsComplete:   state.IsComplete,
		Error:        state.Error,
	}
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code := mapEngineError(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("request failed: %s", errors.ErrorStack(err))
	}
	writeError(w, status, code, err.Error())
}

func writeInvalidRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, errorCodeInvalidRequest, message)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiErrorResponse{
		Error: apiError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Warnf("write response: %v", err)
	}
}

func writeDOT(w http.ResponseWriter, dot string) {
	w.Header().Set("Content-Type", "text/vnd.graphviz; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, dot)
}

func decodeJSONBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}

	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodyBytes))
	decoder.DisallowUnknownFields()
	decoder.UseNumber()

	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return errors.Errorf("invalid JSON body: %v", err)
	}

	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain exactly one JSON object")
	}
	return nil
}

func mapEngineError(err error) (int, string) {
	switch {
	case errors.Is(err, types.ErrRunNotFound):
		return http.StatusNotFound, errorCodeNotFound
	case errors.Is(err, types.ErrGraphNotFound),
		errors.Is(err, types.ErrInvalidGraph),
		errors.Is(err, errors.NotValid),
		errors.Is(err, errors.BadRequest):
		return http.StatusBadRequest, errorCodeInvalidRequest
	case errors.Is(err, errors.AlreadyExists):
		return http.StatusConflict, errorCodeConflict
	case errors.Is(err, errors.MethodNotAllowed):
		return http.StatusServiceUnavailable, errorCodeUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusInternalServerError, errorCodeRuntime
	default:
		return http.StatusInternalServerError, errorCodeRuntime
	}
}
