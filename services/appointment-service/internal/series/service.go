// Package series manages recurrence templates and their materialization
// into concrete appointments. Occurrences are regular appointments; edits
// to a series only ever touch still-planned, non-exception occurrences.
package series

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/traindesk/traindesk/libs/clockx"
	"github.com/traindesk/traindesk/services/appointment-service/internal/booking"
	"github.com/traindesk/traindesk/services/appointment-service/internal/conflict"
	"github.com/traindesk/traindesk/services/appointment-service/internal/model"
	"github.com/traindesk/traindesk/services/appointment-service/internal/recurrence"
	"github.com/traindesk/traindesk/services/appointment-service/internal/storage"
)

// ErrSeriesNotActive rejects expansion of a paused or ended series.
var ErrSeriesNotActive = errors.New("series_not_active")

const minutesPerDay = 24 * 60

type Service struct {
	store    storage.Store
	bookings *booking.Service
	clock    clockx.Clock
	logger   *slog.Logger
}

func NewService(store storage.Store, bookings *booking.Service, clock clockx.Clock, logger *slog.Logger) *Service {
	return &Service{store: store, bookings: bookings, clock: clock, logger: logger}
}

type CreateInput struct {
	WorkspaceID  string
	TrainerID    string
	StudentID    string
	Title        string
	Location     string
	Rule         model.RecurrenceRule
	StartDate    time.Time
	StartMinutes int
	EndMinutes   int
}

// Create stores the template and materializes its occurrences inside the
// lookahead horizon. Conflicting occurrences are skipped, not fatal; the
// caller sees the count.
func (s *Service) Create(ctx context.Context, in CreateInput) (model.AppointmentSeries, recurrence.Result, error) {
	if err := validate(in); err != nil {
		return model.AppointmentSeries{}, recurrence.Result{}, err
	}

	now := s.clock.Now()
	series := model.AppointmentSeries{
		ID:           uuid.NewString(),
		WorkspaceID:  in.WorkspaceID,
		TrainerID:    in.TrainerID,
		StudentID:    in.StudentID,
		Title:        in.Title,
		Location:     in.Location,
		Rule:         in.Rule,
		StartDate:    dateOnly(in.StartDate),
		StartMinutes: in.StartMinutes,
		EndMinutes:   in.EndMinutes,
		Status:       model.SeriesActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		return tx.Series().Insert(ctx, series)
	})
	if err != nil {
		return model.AppointmentSeries{}, recurrence.Result{}, err
	}

	res, err := s.materialize(ctx, series, series.StartDate, now)
	if err != nil {
		return series, res, err
	}
	return series, res, nil
}

// UpdateScope selects which occurrences a series edit regenerates.
type UpdateScope string

const (
	ScopeFuture UpdateScope = "future"
	ScopeAll    UpdateScope = "all"
)

type UpdateInput struct {
	WorkspaceID string
	SeriesID    string
	Scope       UpdateScope

	Title        *string
	Location     *string
	Rule         *model.RecurrenceRule
	StartMinutes *int
	EndMinutes   *int
}

// Update edits the template and regenerates occurrences in the chosen
// scope: "future" replaces still-planned occurrences from now on, "all"
// replaces them from the series start. Exceptions and appointments that
// already ran are never touched.
func (s *Service) Update(ctx context.Context, in UpdateInput) (model.AppointmentSeries, recurrence.Result, error) {
	if in.Scope != ScopeFuture && in.Scope != ScopeAll {
		return model.AppointmentSeries{}, recurrence.Result{}, model.Invalid("scope", "must be future or all")
	}

	now := s.clock.Now()
	var series model.AppointmentSeries
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		series, err = tx.Series().GetForUpdate(ctx, in.WorkspaceID, in.SeriesID)
		if err != nil {
			return err
		}

		if in.Title != nil {
			series.Title = *in.Title
		}
		if in.Location != nil {
			series.Location = *in.Location
		}
		if in.Rule != nil {
			series.Rule = *in.Rule
		}
		if in.StartMinutes != nil {
			series.StartMinutes = *in.StartMinutes
		}
		if in.EndMinutes != nil {
			series.EndMinutes = *in.EndMinutes
		}
		if err := validateRule(series.Rule); err != nil {
			return err
		}
		if err := validateDayWindow(series.StartMinutes, series.EndMinutes); err != nil {
			return err
		}
		series.UpdatedAt = now
		if err := tx.Series().Update(ctx, series); err != nil {
			return err
		}

		from := now
		if in.Scope == ScopeAll {
			from = series.StartDate
		}
		removed, err := tx.Appointments().DeletePlannedFutureBySeries(ctx, series.WorkspaceID, series.ID, from)
		if err != nil {
			return err
		}
		for _, apptID := range removed {
			if _, err := tx.Reminders().CancelActive(ctx, apptID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return model.AppointmentSeries{}, recurrence.Result{}, err
	}
	if series.Status != model.SeriesActive {
		return series, recurrence.Result{}, nil
	}

	from := now
	if in.Scope == ScopeAll {
		from = series.StartDate
	}
	res, err := s.materialize(ctx, series, from, now)
	return series, res, err
}

// SetStatus pauses, resumes or ends the series. Resuming re-materializes
// occurrences from now; pausing and ending never delete what already
// exists.
func (s *Service) SetStatus(ctx context.Context, workspaceID, id string, target model.SeriesStatus) (model.AppointmentSeries, recurrence.Result, error) {
	switch target {
	case model.SeriesActive, model.SeriesPaused, model.SeriesEnded:
	default:
		return model.AppointmentSeries{}, recurrence.Result{}, model.Invalid("status", "unknown status")
	}

	now := s.clock.Now()
	resumed := false
	var series model.AppointmentSeries
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		series, err = tx.Series().GetForUpdate(ctx, workspaceID, id)
		if err != nil {
			return err
		}
		if series.Status == target {
			return nil
		}
		if series.Status == model.SeriesEnded {
			return model.Invalid("status", "series has ended")
		}
		resumed = target == model.SeriesActive
		series.Status = target
		series.UpdatedAt = now
		return tx.Series().Update(ctx, series)
	})
	if err != nil {
		return model.AppointmentSeries{}, recurrence.Result{}, err
	}

	if !resumed {
		return series, recurrence.Result{}, nil
	}
	res, err := s.materialize(ctx, series, now, now)
	return series, res, err
}

func (s *Service) Get(ctx context.Context, workspaceID, id string) (model.AppointmentSeries, error) {
	return s.store.GetSeries(ctx, workspaceID, id)
}

func (s *Service) materialize(ctx context.Context, series model.AppointmentSeries, from, now time.Time) (recurrence.Result, error) {
	if series.Status != model.SeriesActive {
		return recurrence.Result{}, ErrSeriesNotActive
	}

	// Dates that still hold an occurrence row (exceptions, sessions that
	// already ran) must not get a second one.
	existing, err := s.store.ListAppointments(ctx, storage.ListFilter{
		WorkspaceID: series.WorkspaceID,
		SeriesID:    series.ID,
		Limit:       500,
	})
	if err != nil {
		return recurrence.Result{}, err
	}
	taken := make(map[time.Time]bool, len(existing))
	for _, appt := range existing {
		if appt.OccurrenceDate != nil {
			taken[dateOnly(*appt.OccurrenceDate)] = true
		}
	}

	res, err := recurrence.NewExpander(creator{bookings: s.bookings, taken: taken}).Materialize(ctx, series, from, now)
	if err != nil {
		return res, err
	}
	if res.SkippedConflicts > 0 {
		s.logger.Info("series expansion skipped conflicting occurrences",
			"series_id", series.ID, "generated", res.Generated, "skipped", res.SkippedConflicts)
	}
	return res, nil
}

// creator adapts the booking write path to occurrence materialization, so
// each occurrence goes through the same guard and reminder reconciliation
// as a manual booking. A date already holding an occurrence row counts as
// a conflict, like any other taken slot.
type creator struct {
	bookings *booking.Service
	taken    map[time.Time]bool
}

func (c creator) CreateOccurrence(ctx context.Context, series model.AppointmentSeries, date time.Time) error {
	day := dateOnly(date)
	if c.taken[day] {
		return conflict.ErrTimeSlotConflict
	}
	start, end := series.OccurrenceWindow(date)
	_, err := c.bookings.Create(ctx, booking.CreateInput{
		WorkspaceID:    series.WorkspaceID,
		TrainerID:      series.TrainerID,
		StudentID:      series.StudentID,
		StartTime:      start,
		EndTime:        end,
		Location:       series.Location,
		SeriesID:       series.ID,
		OccurrenceDate: &day,
	})
	return err
}

func validate(in CreateInput) error {
	if in.WorkspaceID == "" {
		return model.Invalid("workspace_id", "required")
	}
	if in.TrainerID == "" {
		return model.Invalid("trainer_id", "required")
	}
	if in.StudentID == "" {
		return model.Invalid("student_id", "required")
	}
	if in.StartDate.IsZero() {
		return model.Invalid("start_date", "required")
	}
	if err := validateDayWindow(in.StartMinutes, in.EndMinutes); err != nil {
		return err
	}
	return validateRule(in.Rule)
}

func validateRule(rule model.RecurrenceRule) error {
	if rule.Frequency != model.FrequencyWeekly && rule.Frequency != model.FrequencyMonthly {
		return model.Invalid("frequency", "must be weekly or monthly")
	}
	return nil
}

func validateDayWindow(startMinutes, endMinutes int) error {
	if startMinutes < 0 || startMinutes >= minutesPerDay {
		return model.Invalid("start_minutes", "out of range")
	}
	if endMinutes <= startMinutes || endMinutes > minutesPerDay {
		return model.Invalid("end_minutes", "must be after start_minutes within the day")
	}
	return nil
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
