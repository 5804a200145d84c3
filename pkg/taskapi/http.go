package taskapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/corewire/taskmesh/internal/corekit"
	"github.com/corewire/taskmesh/pkg/schema"
	"github.com/corewire/taskmesh/pkg/security"
)

// HTTPHandler adapts Manager to net/http: POST /tasks, POST
// /tasks/batch, GET /tasks/{id}/status.
type HTTPHandler struct {
	manager  *Manager
	security *security.Manager
	logger   corekit.Logger
}

func NewHTTPHandler(manager *Manager, sec *security.Manager, logger corekit.Logger) *HTTPHandler {
	if logger == nil {
		logger = corekit.NoOpLogger{}
	}
	return &HTTPHandler{manager: manager, security: sec, logger: corekit.WithComponent(logger, "taskapi.http")}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: message})
}

// checkPermission enforces the submitting agent is allowed to dispatch
// tasks at all; per-action clearance for the concrete side effects an
// agent performs while handling the task is still enforced downstream
// by the Execution Engine.
func (h *HTTPHandler) checkPermission(r *http.Request, userID string) error {
	if h.security == nil {
		return nil
	}
	return h.security.CheckPermission(r.Context(), userID, "submit_task", security.ClearanceStandard)
}

// HandleSubmit handles POST /tasks.
func (h *HTTPHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var task schema.TaskExecution
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.checkPermission(r, task.OrchestratorInfo.AgentID); err != nil {
		h.writeError(w, http.StatusForbidden, err.Error())
		return
	}

	result, err := h.manager.Submit(r.Context(), &task)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(struct {
		ExecutionID string `json:"execution_id"`
		Status      Status `json:"status"`
	}{ExecutionID: result.ID, Status: result.Status})
}

// HandleSubmitBatch handles POST /tasks/batch.
func (h *HTTPHandler) HandleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	var batch schema.TaskBatch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	for _, task := range batch.Tasks {
		if err := h.checkPermission(r, task.OrchestratorInfo.AgentID); err != nil {
			h.writeError(w, http.StatusForbidden, err.Error())
			return
		}
	}

	tasks, errs := h.manager.SubmitBatch(r.Context(), &batch)
	if tasks == nil {
		h.writeError(w, http.StatusBadRequest, errs[0].Error())
		return
	}

	type item struct {
		ExecutionID string `json:"execution_id,omitempty"`
		Status      Status `json:"status,omitempty"`
		Error       string `json:"error,omitempty"`
	}
	results := make([]item, len(tasks))
	for i, t := range tasks {
		if errs[i] != nil {
			results[i] = item{Error: errs[i].Error()}
			continue
		}
		results[i] = item{ExecutionID: t.ID, Status: t.Status}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(struct {
		Results []item `json:"results"`
	}{Results: results})
}

// HandleStatus handles GET /tasks/{id}/status.
func (h *HTTPHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	id := extractTaskID(r.URL.Path)
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "task id is required")
		return
	}

	task, err := h.manager.Status(r.Context(), id)
	if err != nil {
		if errors.Is(err, corekit.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "task not found")
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(task)
}

func extractTaskID(path string) string {
	path = strings.TrimPrefix(path, "/api/v1/tasks/")
	path = strings.TrimPrefix(path, "/tasks/")
	path = strings.TrimSuffix(path, "/status")
	if idx := strings.Index(path, "/"); idx > 0 {
		path = path[:idx]
	}
	return path
}
