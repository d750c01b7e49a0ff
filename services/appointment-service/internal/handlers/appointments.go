package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/traindesk/traindesk/services/appointment-service/internal/booking"
	"github.com/traindesk/traindesk/services/appointment-service/internal/model"
	"github.com/traindesk/traindesk/services/appointment-service/internal/storage"
)

type AppointmentHandler struct {
	bookings *booking.Service
	validate *validator.Validate
	logger   *slog.Logger
}

func NewAppointmentHandler(bookings *booking.Service, validate *validator.Validate, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{bookings: bookings, validate: validate, logger: logger}
}

type appointmentResponse struct {
	AppointmentID  string `json:"appointment_id"`
	WorkspaceID    string `json:"workspace_id"`
	TrainerID      string `json:"trainer_id"`
	StudentID      string `json:"student_id"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	Status         string `json:"status"`
	SeriesID       string `json:"series_id,omitempty"`
	IsException    bool   `json:"is_exception,omitempty"`
	Location       string `json:"location,omitempty"`
	Notes          string `json:"notes,omitempty"`
	OutboundStatus string `json:"outbound_status"`
	CancelledAt    string `json:"cancelled_at,omitempty"`
	CancelReason   string `json:"cancel_reason,omitempty"`
}

func toAppointmentResponse(appt model.Appointment) appointmentResponse {
	resp := appointmentResponse{
		AppointmentID:  appt.ID,
		WorkspaceID:    appt.WorkspaceID,
		TrainerID:      appt.TrainerID,
		StudentID:      appt.StudentID,
		StartTime:      appt.StartTime.UTC().Format(time.RFC3339),
		EndTime:        appt.EndTime.UTC().Format(time.RFC3339),
		Status:         string(appt.Status),
		SeriesID:       appt.SeriesID,
		IsException:    appt.IsException,
		Location:       appt.Location,
		Notes:          appt.Notes,
		OutboundStatus: string(appt.OutboundStatus),
		CancelReason:   appt.CancelReason,
	}
	if appt.CancelledAt != nil {
		resp.CancelledAt = appt.CancelledAt.UTC().Format(time.RFC3339)
	}
	return resp
}

type createAppointmentRequest struct {
	WorkspaceID string `json:"workspace_id" validate:"required"`
	TrainerID   string `json:"trainer_id" validate:"required"`
	StudentID   string `json:"student_id" validate:"required"`
	StartTime   string `json:"start_time" validate:"required"`
	EndTime     string `json:"end_time" validate:"required"`
	Location    string `json:"location"`
	Notes       string `json:"notes"`
}

func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req createAppointmentRequest
	if !decode(w, r, h.validate, &req) {
		return
	}
	start, end, ok := parseWindow(w, req.StartTime, req.EndTime)
	if !ok {
		return
	}

	appt, err := h.bookings.Create(r.Context(), booking.CreateInput{
		WorkspaceID:    req.WorkspaceID,
		TrainerID:      req.TrainerID,
		StudentID:      req.StudentID,
		StartTime:      start,
		EndTime:        end,
		Location:       req.Location,
		Notes:          req.Notes,
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

type rescheduleRequest struct {
	WorkspaceID   string  `json:"workspace_id" validate:"required"`
	AppointmentID string  `json:"appointment_id" validate:"required"`
	StartTime     string  `json:"start_time" validate:"required"`
	EndTime       string  `json:"end_time" validate:"required"`
	Location      *string `json:"location"`
	Notes         *string `json:"notes"`
}

func (h *AppointmentHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req rescheduleRequest
	if !decode(w, r, h.validate, &req) {
		return
	}
	start, end, ok := parseWindow(w, req.StartTime, req.EndTime)
	if !ok {
		return
	}

	appt, err := h.bookings.Reschedule(r.Context(), booking.RescheduleInput{
		WorkspaceID:   req.WorkspaceID,
		AppointmentID: req.AppointmentID,
		StartTime:     start,
		EndTime:       end,
		Location:      req.Location,
		Notes:         req.Notes,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

type cancelRequest struct {
	WorkspaceID   string `json:"workspace_id" validate:"required"`
	AppointmentID string `json:"appointment_id" validate:"required"`
	Reason        string `json:"reason"`
}

func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req cancelRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	appt, err := h.bookings.Cancel(r.Context(), req.WorkspaceID, req.AppointmentID, strings.TrimSpace(req.Reason))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

type transitionRequest struct {
	WorkspaceID   string `json:"workspace_id" validate:"required"`
	AppointmentID string `json:"appointment_id" validate:"required"`
	Status        string `json:"status" validate:"required"`
}

func (h *AppointmentHandler) Transition(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req transitionRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	appt, err := h.bookings.Transition(r.Context(), req.WorkspaceID, req.AppointmentID, model.AppointmentStatus(req.Status))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

type outboundRequest struct {
	WorkspaceID    string `json:"workspace_id" validate:"required"`
	AppointmentID  string `json:"appointment_id" validate:"required"`
	OutboundStatus string `json:"outbound_status" validate:"required"`
}

func (h *AppointmentHandler) SetOutbound(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req outboundRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	appt, err := h.bookings.SetOutboundStatus(r.Context(), req.WorkspaceID, req.AppointmentID, model.OutboundStatus(req.OutboundStatus))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	f := storage.ListFilter{
		WorkspaceID: strings.TrimSpace(q.Get("workspace_id")),
		TrainerID:   strings.TrimSpace(q.Get("trainer_id")),
		StudentID:   strings.TrimSpace(q.Get("student_id")),
		SeriesID:    strings.TrimSpace(q.Get("series_id")),
		Status:      model.AppointmentStatus(strings.TrimSpace(q.Get("status"))),
	}
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid from", Field: "from"})
			return
		}
		f.From = &t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid to", Field: "to"})
			return
		}
		f.To = &t
	}
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			f.Limit = n
		}
	}

	appts, err := h.bookings.List(r.Context(), f)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	items := make([]appointmentResponse, 0, len(appts))
	for _, appt := range appts {
		items = append(items, toAppointmentResponse(appt))
	}
	writeJSON(w, http.StatusOK, items)
}

func parseWindow(w http.ResponseWriter, startRaw, endRaw string) (time.Time, time.Time, bool) {
	start, err := time.Parse(time.RFC3339, startRaw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid start_time", Field: "start_time"})
		return time.Time{}, time.Time{}, false
	}
	end, err := time.Parse(time.RFC3339, endRaw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid end_time", Field: "end_time"})
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}
