// Package booking owns the write path of individual appointments: create,
// reschedule, lifecycle transitions and cancellation. Every mutation runs
// the overlap guard, the reminder reconciliation and the outbox insert in
// one transaction.
package booking

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/traindesk/traindesk/libs/clockx"
	"github.com/traindesk/traindesk/services/appointment-service/internal/conflict"
	"github.com/traindesk/traindesk/services/appointment-service/internal/model"
	"github.com/traindesk/traindesk/services/appointment-service/internal/outbox"
	"github.com/traindesk/traindesk/services/appointment-service/internal/reminder"
	"github.com/traindesk/traindesk/services/appointment-service/internal/storage"
)

const maxAppointmentDuration = 24 * time.Hour

type Service struct {
	store    storage.Store
	policies reminder.PolicyProvider
	clock    clockx.Clock
	logger   *slog.Logger
}

func NewService(store storage.Store, policies reminder.PolicyProvider, clock clockx.Clock, logger *slog.Logger) *Service {
	return &Service{store: store, policies: policies, clock: clock, logger: logger}
}

type CreateInput struct {
	WorkspaceID    string
	TrainerID      string
	StudentID      string
	StartTime      time.Time
	EndTime        time.Time
	Location       string
	Notes          string
	IdempotencyKey string

	// set only when materializing a series occurrence
	SeriesID       string
	OccurrenceDate *time.Time
}

// Create books a new appointment. With an idempotency key, retrying the
// same request returns the appointment created the first time instead of
// double-booking.
func (s *Service) Create(ctx context.Context, in CreateInput) (model.Appointment, error) {
	if err := validateWindow(in.StartTime, in.EndTime); err != nil {
		return model.Appointment{}, err
	}
	if in.WorkspaceID == "" {
		return model.Appointment{}, model.Invalid("workspace_id", "required")
	}
	if in.TrainerID == "" {
		return model.Appointment{}, model.Invalid("trainer_id", "required")
	}
	if in.StudentID == "" {
		return model.Appointment{}, model.Invalid("student_id", "required")
	}

	pol, err := s.policies.ReminderPolicy(ctx, in.WorkspaceID)
	if err != nil {
		return model.Appointment{}, err
	}

	now := s.clock.Now()
	var appt model.Appointment
	err = s.store.InTx(ctx, func(tx storage.Tx) error {
		if in.IdempotencyKey != "" {
			stored, replay, err := tx.Idempotency().Claim(ctx, in.WorkspaceID, in.IdempotencyKey)
			if err != nil {
				return err
			}
			if replay {
				return json.Unmarshal(stored, &appt)
			}
		}

		if err := tx.LockParticipants(ctx, in.WorkspaceID, in.TrainerID, in.StudentID); err != nil {
			return err
		}
		if err := conflict.Assert(ctx, tx.Appointments(), conflict.OverlapFilter{
			WorkspaceID: in.WorkspaceID,
			TrainerID:   in.TrainerID,
			StudentID:   in.StudentID,
			Start:       in.StartTime.UTC(),
			End:         in.EndTime.UTC(),
		}); err != nil {
			return err
		}

		appt = model.Appointment{
			ID:             uuid.NewString(),
			WorkspaceID:    in.WorkspaceID,
			TrainerID:      in.TrainerID,
			StudentID:      in.StudentID,
			StartTime:      in.StartTime.UTC(),
			EndTime:        in.EndTime.UTC(),
			Status:         model.AppointmentPlanned,
			SeriesID:       in.SeriesID,
			OccurrenceDate: in.OccurrenceDate,
			Location:       in.Location,
			Notes:          in.Notes,
			OutboundStatus: model.OutboundNotSent,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.Appointments().Insert(ctx, appt); err != nil {
			return err
		}
		if _, err := reminder.Sync(ctx, tx.Reminders(), appt, pol, now); err != nil {
			return err
		}
		if err := s.emit(ctx, tx, outbox.EventAppointmentCreated, appt); err != nil {
			return err
		}

		if in.IdempotencyKey != "" {
			body, err := json.Marshal(appt)
			if err != nil {
				return err
			}
			return tx.Idempotency().Finalize(ctx, in.WorkspaceID, in.IdempotencyKey, body)
		}
		return nil
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

type RescheduleInput struct {
	WorkspaceID   string
	AppointmentID string
	StartTime     time.Time
	EndTime       time.Time
	Location      *string
	Notes         *string
}

// Reschedule moves a planned appointment to a new window and reconciles
// its reminders against the new start. An occurrence of a series becomes
// an exception, so later series edits leave it alone.
func (s *Service) Reschedule(ctx context.Context, in RescheduleInput) (model.Appointment, error) {
	if err := validateWindow(in.StartTime, in.EndTime); err != nil {
		return model.Appointment{}, err
	}

	pol, err := s.policies.ReminderPolicy(ctx, in.WorkspaceID)
	if err != nil {
		return model.Appointment{}, err
	}

	now := s.clock.Now()
	var appt model.Appointment
	err = s.store.InTx(ctx, func(tx storage.Tx) error {
		appt, err = tx.Appointments().GetForUpdate(ctx, in.WorkspaceID, in.AppointmentID)
		if err != nil {
			return err
		}
		if appt.Status != model.AppointmentPlanned {
			return model.Invalid("status", "only planned appointments can be rescheduled")
		}

		if err := tx.LockParticipants(ctx, appt.WorkspaceID, appt.TrainerID, appt.StudentID); err != nil {
			return err
		}
		if err := conflict.Assert(ctx, tx.Appointments(), conflict.OverlapFilter{
			WorkspaceID:         appt.WorkspaceID,
			TrainerID:           appt.TrainerID,
			StudentID:           appt.StudentID,
			Start:               in.StartTime.UTC(),
			End:                 in.EndTime.UTC(),
			IgnoreAppointmentID: appt.ID,
		}); err != nil {
			return err
		}

		moved := !appt.StartTime.Equal(in.StartTime.UTC()) || !appt.EndTime.Equal(in.EndTime.UTC())
		appt.StartTime = in.StartTime.UTC()
		appt.EndTime = in.EndTime.UTC()
		if in.Location != nil {
			appt.Location = *in.Location
		}
		if in.Notes != nil {
			appt.Notes = *in.Notes
		}
		if moved && appt.SeriesID != "" {
			appt.IsException = true
		}
		appt.UpdatedAt = now
		if err := tx.Appointments().Update(ctx, appt); err != nil {
			return err
		}
		if _, err := reminder.Sync(ctx, tx.Reminders(), appt, pol, now); err != nil {
			return err
		}
		if moved {
			return s.emit(ctx, tx, outbox.EventAppointmentRescheduled, appt)
		}
		return nil
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

// Transition moves an appointment to the target lifecycle status. Done
// and no-show require the appointment to have started; reactivating to
// planned re-runs the overlap guard and rebuilds reminders.
func (s *Service) Transition(ctx context.Context, workspaceID, id string, target model.AppointmentStatus) (model.Appointment, error) {
	switch target {
	case model.AppointmentPlanned, model.AppointmentDone, model.AppointmentCancelled, model.AppointmentNoShow:
	default:
		return model.Appointment{}, model.Invalid("status", "unknown status")
	}

	pol, err := s.policies.ReminderPolicy(ctx, workspaceID)
	if err != nil {
		return model.Appointment{}, err
	}

	now := s.clock.Now()
	var appt model.Appointment
	err = s.store.InTx(ctx, func(tx storage.Tx) error {
		appt, err = tx.Appointments().GetForUpdate(ctx, workspaceID, id)
		if err != nil {
			return err
		}
		if appt.Status == target {
			return nil
		}
		if !appt.Status.CanTransitionTo(target) {
			return ErrTransitionNotAllowed
		}
		if (target == model.AppointmentDone || target == model.AppointmentNoShow) && appt.StartTime.After(now) {
			return model.Invalid("status", "appointment has not started yet")
		}

		resync := false
		switch target {
		case model.AppointmentPlanned:
			// reactivation must not revive a slot someone else took
			if err := tx.LockParticipants(ctx, appt.WorkspaceID, appt.TrainerID, appt.StudentID); err != nil {
				return err
			}
			if err := conflict.Assert(ctx, tx.Appointments(), conflict.OverlapFilter{
				WorkspaceID:         appt.WorkspaceID,
				TrainerID:           appt.TrainerID,
				StudentID:           appt.StudentID,
				Start:               appt.StartTime,
				End:                 appt.EndTime,
				IgnoreAppointmentID: appt.ID,
			}); err != nil {
				return err
			}
			appt.CancelledAt = nil
			appt.CancelReason = ""
			resync = true
		case model.AppointmentCancelled:
			appt.CancelledAt = &now
			resync = true
		}

		appt.Status = target
		appt.UpdatedAt = now
		if err := tx.Appointments().Update(ctx, appt); err != nil {
			return err
		}
		if resync {
			if _, err := reminder.Sync(ctx, tx.Reminders(), appt, pol, now); err != nil {
				return err
			}
		}
		if target == model.AppointmentCancelled {
			return s.emit(ctx, tx, outbox.EventAppointmentCancelled, appt)
		}
		return nil
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

// Cancel is the reasoned cancellation path. Cancelling twice is a no-op
// that keeps the first reason.
func (s *Service) Cancel(ctx context.Context, workspaceID, id, reason string) (model.Appointment, error) {
	pol, err := s.policies.ReminderPolicy(ctx, workspaceID)
	if err != nil {
		return model.Appointment{}, err
	}

	now := s.clock.Now()
	var appt model.Appointment
	err = s.store.InTx(ctx, func(tx storage.Tx) error {
		appt, err = tx.Appointments().GetForUpdate(ctx, workspaceID, id)
		if err != nil {
			return err
		}
		if appt.Status == model.AppointmentCancelled {
			return nil
		}
		if !appt.Status.CanTransitionTo(model.AppointmentCancelled) {
			return ErrTransitionNotAllowed
		}

		appt.Status = model.AppointmentCancelled
		appt.CancelledAt = &now
		appt.CancelReason = reason
		appt.UpdatedAt = now
		if err := tx.Appointments().Update(ctx, appt); err != nil {
			return err
		}
		if _, err := reminder.Sync(ctx, tx.Reminders(), appt, pol, now); err != nil {
			return err
		}
		return s.emit(ctx, tx, outbox.EventAppointmentCancelled, appt)
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

// SetOutboundStatus records whether the appointment was pushed to the
// student over an outbound channel.
func (s *Service) SetOutboundStatus(ctx context.Context, workspaceID, id string, status model.OutboundStatus) (model.Appointment, error) {
	if status != model.OutboundNotSent && status != model.OutboundSent {
		return model.Appointment{}, model.Invalid("outbound_status", "unknown value")
	}

	now := s.clock.Now()
	var appt model.Appointment
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		appt, err = tx.Appointments().GetForUpdate(ctx, workspaceID, id)
		if err != nil {
			return err
		}
		if appt.OutboundStatus == status {
			return nil
		}
		appt.OutboundStatus = status
		appt.UpdatedAt = now
		return tx.Appointments().Update(ctx, appt)
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func (s *Service) Get(ctx context.Context, workspaceID, id string) (model.Appointment, error) {
	return s.store.GetAppointment(ctx, workspaceID, id)
}

func (s *Service) List(ctx context.Context, f storage.ListFilter) ([]model.Appointment, error) {
	if f.WorkspaceID == "" {
		return nil, model.Invalid("workspace_id", "required")
	}
	return s.store.ListAppointments(ctx, f)
}

// ErrTransitionNotAllowed rejects a status move the appointment lifecycle
// does not permit.
var ErrTransitionNotAllowed = errors.New("appointment_transition_not_allowed")

func (s *Service) emit(ctx context.Context, tx storage.Tx, eventType string, appt model.Appointment) error {
	payload, err := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"workspace_id":   appt.WorkspaceID,
		"trainer_id":     appt.TrainerID,
		"student_id":     appt.StudentID,
		"start_time":     appt.StartTime.UTC().Format(time.RFC3339),
		"end_time":       appt.EndTime.UTC().Format(time.RFC3339),
		"status":         appt.Status,
	})
	if err != nil {
		return err
	}
	return tx.Outbox().Insert(ctx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     eventType,
		Payload:       payload,
	})
}

func validateWindow(start, end time.Time) error {
	if start.IsZero() {
		return model.Invalid("start_time", "required")
	}
	if end.IsZero() {
		return model.Invalid("end_time", "required")
	}
	if !end.After(start) {
		return model.Invalid("end_time", "must be after start_time")
	}
	if end.Sub(start) > maxAppointmentDuration {
		return model.Invalid("end_time", "window exceeds 24h")
	}
	return nil
}
