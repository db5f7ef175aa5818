package api

import (
	"context"
	"net/http"

	"github.com/ginzlabs/tg-ai-agent/internal/api/shared"
	"github.com/ginzlabs/tg-ai-agent/internal/task"
	"github.com/google/uuid"
)

// ReportRunner generates a market report and delivers it to the chat.
type ReportRunner interface {
	GenerateAndDeliver(ctx context.Context, chatID, tempMessageID int64) (any, error)
}

// ReportHandler serves market-report generation requests.
type ReportHandler struct {
	reports ReportRunner
	tasks   TaskManager
}

// NewReportHandler creates a ReportHandler.
func NewReportHandler(reports ReportRunner, tasks TaskManager) *ReportHandler {
	return &ReportHandler{reports: reports, tasks: tasks}
}

// GenerateReportRequest is the body of POST /api/v1/generate-market-report.
type GenerateReportRequest struct {
	ChatID    int64 `json:"chat_id"     validate:"required"`
	TempMsgID int64 `json:"temp_msg_id"`
}

// GenerateReport handles POST /api/v1/generate-market-report requests. The
// report runs as a report-category task; delivery to the chat happens from
// inside the work function, so the 202 response only carries the task.
func (h *ReportHandler) GenerateReport(w http.ResponseWriter, r *http.Request) {
	var req GenerateReportRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	work := func(ctx context.Context) (any, error) {
		return h.reports.GenerateAndDeliver(ctx, req.ChatID, req.TempMsgID)
	}

	id, err := h.tasks.AddTask(work, task.CategoryReport, uuid.New().String())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to enqueue task", err)
		return
	}

	_, snapshot := h.tasks.GetTaskStatus(id)
	shared.RespondWithJSON(w, r, http.StatusAccepted, snapshot)
}
