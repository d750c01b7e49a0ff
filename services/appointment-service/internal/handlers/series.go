package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/traindesk/traindesk/services/appointment-service/internal/model"
	"github.com/traindesk/traindesk/services/appointment-service/internal/recurrence"
	"github.com/traindesk/traindesk/services/appointment-service/internal/series"
)

type SeriesHandler struct {
	series   *series.Service
	validate *validator.Validate
	logger   *slog.Logger
}

func NewSeriesHandler(svc *series.Service, validate *validator.Validate, logger *slog.Logger) *SeriesHandler {
	return &SeriesHandler{series: svc, validate: validate, logger: logger}
}

type recurrenceRuleBody struct {
	Frequency string `json:"frequency" validate:"required"`
	Interval  int    `json:"interval"`
	Weekdays  []int  `json:"weekdays"`
	Until     string `json:"until"`
	Count     int    `json:"count"`
}

func (b recurrenceRuleBody) toRule(w http.ResponseWriter) (model.RecurrenceRule, bool) {
	rule := model.RecurrenceRule{
		Frequency: model.Frequency(b.Frequency),
		Interval:  b.Interval,
		Weekdays:  b.Weekdays,
		Count:     b.Count,
	}
	if b.Until != "" {
		until, err := time.Parse("2006-01-02", b.Until)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid until", Field: "until"})
			return model.RecurrenceRule{}, false
		}
		rule.Until = &until
	}
	return rule, true
}

type seriesResponse struct {
	SeriesID         string `json:"series_id"`
	Status           string `json:"status"`
	Generated        int    `json:"generated"`
	SkippedConflicts int    `json:"skipped_conflicts"`
}

func toSeriesResponse(s model.AppointmentSeries, res recurrence.Result) seriesResponse {
	return seriesResponse{
		SeriesID:         s.ID,
		Status:           string(s.Status),
		Generated:        res.Generated,
		SkippedConflicts: res.SkippedConflicts,
	}
}

type createSeriesRequest struct {
	WorkspaceID string             `json:"workspace_id" validate:"required"`
	TrainerID   string             `json:"trainer_id" validate:"required"`
	StudentID   string             `json:"student_id" validate:"required"`
	Title       string             `json:"title"`
	Location    string             `json:"location"`
	Rule        recurrenceRuleBody `json:"rule" validate:"required"`
	StartDate   string             `json:"start_date" validate:"required"`
	StartTime   string             `json:"start_time" validate:"required"`
	EndTime     string             `json:"end_time" validate:"required"`
}

func (h *SeriesHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req createSeriesRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	rule, ok := req.Rule.toRule(w)
	if !ok {
		return
	}
	startDate, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid start_date", Field: "start_date"})
		return
	}
	startMinutes, ok := parseClockMinutes(w, "start_time", req.StartTime)
	if !ok {
		return
	}
	endMinutes, ok := parseClockMinutes(w, "end_time", req.EndTime)
	if !ok {
		return
	}

	s, res, err := h.series.Create(r.Context(), series.CreateInput{
		WorkspaceID:  req.WorkspaceID,
		TrainerID:    req.TrainerID,
		StudentID:    req.StudentID,
		Title:        req.Title,
		Location:     req.Location,
		Rule:         rule,
		StartDate:    startDate,
		StartMinutes: startMinutes,
		EndMinutes:   endMinutes,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSeriesResponse(s, res))
}

type updateSeriesRequest struct {
	WorkspaceID string              `json:"workspace_id" validate:"required"`
	SeriesID    string              `json:"series_id" validate:"required"`
	Scope       string              `json:"scope" validate:"required,oneof=future all"`
	Title       *string             `json:"title"`
	Location    *string             `json:"location"`
	Rule        *recurrenceRuleBody `json:"rule"`
	StartTime   *string             `json:"start_time"`
	EndTime     *string             `json:"end_time"`
}

func (h *SeriesHandler) Update(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req updateSeriesRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	in := series.UpdateInput{
		WorkspaceID: req.WorkspaceID,
		SeriesID:    req.SeriesID,
		Scope:       series.UpdateScope(req.Scope),
		Title:       req.Title,
		Location:    req.Location,
	}
	if req.Rule != nil {
		rule, ok := req.Rule.toRule(w)
		if !ok {
			return
		}
		in.Rule = &rule
	}
	if req.StartTime != nil {
		minutes, ok := parseClockMinutes(w, "start_time", *req.StartTime)
		if !ok {
			return
		}
		in.StartMinutes = &minutes
	}
	if req.EndTime != nil {
		minutes, ok := parseClockMinutes(w, "end_time", *req.EndTime)
		if !ok {
			return
		}
		in.EndMinutes = &minutes
	}

	s, res, err := h.series.Update(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toSeriesResponse(s, res))
}

type seriesStatusRequest struct {
	WorkspaceID string `json:"workspace_id" validate:"required"`
	SeriesID    string `json:"series_id" validate:"required"`
	Status      string `json:"status" validate:"required,oneof=active paused ended"`
}

func (h *SeriesHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req seriesStatusRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	s, res, err := h.series.SetStatus(r.Context(), req.WorkspaceID, req.SeriesID, model.SeriesStatus(req.Status))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toSeriesResponse(s, res))
}

func parseClockMinutes(w http.ResponseWriter, field, raw string) (int, bool) {
	clock, err := time.Parse("15:04", raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid " + field, Field: field})
		return 0, false
	}
	return clock.Hour()*60 + clock.Minute(), true
}
