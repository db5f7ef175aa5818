package api

import (
	"net/http"

	"github.com/ginzlabs/tg-ai-agent/internal/api/shared"
	"github.com/ginzlabs/tg-ai-agent/internal/task"
	"github.com/go-chi/chi/v5"
)

// TaskManager is the slice of the task manager the handlers need.
type TaskManager interface {
	AddTask(work task.WorkFunc, category task.Category, id string) (string, error)
	GetTaskStatus(id string) (task.Status, *task.Snapshot)
	CancelTask(id string) bool
	QueueStatus(category task.Category) (task.CategoryStatus, error)
	QueueStatusAll() map[task.Category]task.CategoryStatus
}

// TaskHandler serves task and queue introspection requests.
type TaskHandler struct {
	tasks TaskManager
}

// NewTaskHandler creates a TaskHandler.
func NewTaskHandler(tasks TaskManager) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

// GetTask handles GET /api/v1/task/{id} requests.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	status, snapshot := h.tasks.GetTaskStatus(id)
	if status == task.StatusNotFound {
		shared.RespondWithError(w, r, http.StatusNotFound, "Task not found")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, snapshot)
}

// CancelTaskResponse reports whether a cancellation took effect.
type CancelTaskResponse struct {
	TaskID    string `json:"task_id"`
	Cancelled bool   `json:"cancelled"`
}

// CancelTask handles POST /api/v1/task/{id}/cancel requests. Cancelling an
// unknown or already finished task reports cancelled=false rather than an
// error, matching the manager's semantics.
func (h *TaskHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	shared.RespondWithJSON(w, r, http.StatusOK, CancelTaskResponse{
		TaskID:    id,
		Cancelled: h.tasks.CancelTask(id),
	})
}

// QueueStatus handles GET /api/v1/queue-status requests, optionally scoped
// to one category via the task_type query parameter.
func (h *TaskHandler) QueueStatus(w http.ResponseWriter, r *http.Request) {
	taskType := r.URL.Query().Get("task_type")
	if taskType == "" {
		shared.RespondWithJSON(w, r, http.StatusOK, h.tasks.QueueStatusAll())
		return
	}

	status, err := h.tasks.QueueStatus(task.Category(taskType))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Unknown task type: "+taskType)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, map[task.Category]task.CategoryStatus{
		task.Category(taskType): status,
	})
}
