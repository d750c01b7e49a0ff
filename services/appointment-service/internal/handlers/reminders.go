package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/traindesk/traindesk/services/appointment-service/internal/model"
	"github.com/traindesk/traindesk/services/appointment-service/internal/reminder"
)

type ReminderHandler struct {
	lifecycle *reminder.Lifecycle
	validate  *validator.Validate
	logger    *slog.Logger
}

func NewReminderHandler(lifecycle *reminder.Lifecycle, validate *validator.Validate, logger *slog.Logger) *ReminderHandler {
	return &ReminderHandler{lifecycle: lifecycle, validate: validate, logger: logger}
}

type reminderResponse struct {
	ReminderID    string `json:"reminder_id"`
	AppointmentID string `json:"appointment_id"`
	Channel       string `json:"channel"`
	ScheduledFor  string `json:"scheduled_for"`
	Status        string `json:"status"`
	AttemptCount  int    `json:"attempt_count"`
	OffsetMinutes int    `json:"offset_minutes"`
	NextRetryAt   string `json:"next_retry_at,omitempty"`
	OpenedAt      string `json:"opened_at,omitempty"`
	MarkedSentAt  string `json:"marked_sent_at,omitempty"`
	MarkedSentBy  string `json:"marked_sent_by,omitempty"`
	EscalatedAt   string `json:"escalated_at,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
}

func toReminderResponse(rem model.Reminder) reminderResponse {
	resp := reminderResponse{
		ReminderID:    rem.ID,
		AppointmentID: rem.AppointmentID,
		Channel:       rem.Channel,
		ScheduledFor:  rem.ScheduledFor.UTC().Format(time.RFC3339),
		Status:        string(rem.Status),
		AttemptCount:  rem.AttemptCount,
		OffsetMinutes: rem.OffsetMinutes,
		MarkedSentBy:  rem.MarkedSentBy,
		FailureReason: rem.FailureReason,
	}
	if rem.NextRetryAt != nil {
		resp.NextRetryAt = rem.NextRetryAt.UTC().Format(time.RFC3339)
	}
	if rem.OpenedAt != nil {
		resp.OpenedAt = rem.OpenedAt.UTC().Format(time.RFC3339)
	}
	if rem.MarkedSentAt != nil {
		resp.MarkedSentAt = rem.MarkedSentAt.UTC().Format(time.RFC3339)
	}
	if rem.EscalatedAt != nil {
		resp.EscalatedAt = rem.EscalatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func (h *ReminderHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	workspaceID := strings.TrimSpace(r.URL.Query().Get("workspace_id"))
	if workspaceID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "workspace_id required", Field: "workspace_id"})
		return
	}
	appointmentID := strings.TrimSpace(r.URL.Query().Get("appointment_id"))
	if appointmentID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "appointment_id required", Field: "appointment_id"})
		return
	}

	rems, err := h.lifecycle.List(r.Context(), workspaceID, appointmentID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	items := make([]reminderResponse, 0, len(rems))
	for _, rem := range rems {
		items = append(items, toReminderResponse(rem))
	}
	writeJSON(w, http.StatusOK, items)
}

type reminderActionRequest struct {
	WorkspaceID string `json:"workspace_id" validate:"required"`
	ReminderID  string `json:"reminder_id" validate:"required"`
	Reason      string `json:"reason"`
	By          string `json:"by"`
}

func (h *ReminderHandler) Requeue(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(req reminderActionRequest) (model.Reminder, error) {
		return h.lifecycle.Requeue(r.Context(), req.WorkspaceID, req.ReminderID, strings.TrimSpace(req.Reason))
	})
}

func (h *ReminderHandler) MarkSent(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(req reminderActionRequest) (model.Reminder, error) {
		return h.lifecycle.MarkSent(r.Context(), req.WorkspaceID, req.ReminderID, strings.TrimSpace(req.By))
	})
}

func (h *ReminderHandler) MarkFailed(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(req reminderActionRequest) (model.Reminder, error) {
		return h.lifecycle.MarkFailed(r.Context(), req.WorkspaceID, req.ReminderID, strings.TrimSpace(req.Reason))
	})
}

func (h *ReminderHandler) MarkOpened(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(req reminderActionRequest) (model.Reminder, error) {
		return h.lifecycle.MarkOpened(r.Context(), req.WorkspaceID, req.ReminderID)
	})
}

func (h *ReminderHandler) action(w http.ResponseWriter, r *http.Request, fn func(reminderActionRequest) (model.Reminder, error)) {
	if !requirePost(w, r) {
		return
	}
	var req reminderActionRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	rem, err := fn(req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toReminderResponse(rem))
}
