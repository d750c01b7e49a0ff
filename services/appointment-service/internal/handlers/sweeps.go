package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/traindesk/traindesk/services/appointment-service/internal/reminder"
)

// SweepHandler exposes each sweep as an internal POST entry point so an
// external cron can drive the lifecycle instead of (or next to) the
// built-in ticker. The sweeps are idempotent, double-triggering is safe.
type SweepHandler struct {
	lifecycle *reminder.Lifecycle
	logger    *slog.Logger
}

func NewSweepHandler(lifecycle *reminder.Lifecycle, logger *slog.Logger) *SweepHandler {
	return &SweepHandler{lifecycle: lifecycle, logger: logger}
}

type sweepResponse struct {
	Affected int `json:"affected"`
}

func (h *SweepHandler) PrepareReady(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.lifecycle.PrepareReady)
}

func (h *SweepHandler) MarkMissed(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.lifecycle.MarkMissed)
}

func (h *SweepHandler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.lifecycle.RetryFailed)
}

func (h *SweepHandler) EscalateStale(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.lifecycle.EscalateStale)
}

func (h *SweepHandler) run(w http.ResponseWriter, r *http.Request, sweep func(context.Context) (int, error)) {
	if !requirePost(w, r) {
		return
	}
	n, err := sweep(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sweepResponse{Affected: n})
}
