// Package storage defines the persistence boundary of the appointment
// service. Write paths run through Store.InTx so the conflict check, the
// appointment write, the reminder reconciliation and the outbox insert
// commit or roll back together.
package storage

import (
	"context"
	"time"

	"github.com/traindesk/traindesk/services/appointment-service/internal/conflict"
	"github.com/traindesk/traindesk/services/appointment-service/internal/model"
	"github.com/traindesk/traindesk/services/appointment-service/internal/outbox"
	"github.com/traindesk/traindesk/services/appointment-service/internal/reminder"
)

// Store is the root handle. Reads go straight through; every mutation
// runs inside InTx.
type Store interface {
	// InTx runs fn inside one transaction, committing when fn returns nil.
	InTx(ctx context.Context, fn func(Tx) error) error

	GetAppointment(ctx context.Context, workspaceID, id string) (model.Appointment, error)
	ListAppointments(ctx context.Context, f ListFilter) ([]model.Appointment, error)
	GetSeries(ctx context.Context, workspaceID, id string) (model.AppointmentSeries, error)
}

// Tx is the transactional view handed to InTx callbacks.
type Tx interface {
	Appointments() AppointmentRepo
	Series() SeriesRepo
	Reminders() reminder.SyncRepo
	Outbox() OutboxWriter
	Idempotency() IdempotencyRepo

	// LockParticipants serializes bookings touching the same trainer or
	// student in a workspace for the duration of the transaction, so two
	// concurrent writes cannot both pass the overlap check.
	LockParticipants(ctx context.Context, workspaceID, trainerID, studentID string) error
}

// ListFilter narrows an appointment listing. Zero fields match everything
// in the workspace.
type ListFilter struct {
	WorkspaceID string
	TrainerID   string
	StudentID   string
	SeriesID    string
	Status      model.AppointmentStatus
	From        *time.Time
	To          *time.Time
	Limit       int
}

type AppointmentRepo interface {
	Insert(ctx context.Context, appt model.Appointment) error
	Get(ctx context.Context, workspaceID, id string) (model.Appointment, error)
	// GetForUpdate row-locks the appointment for the rest of the
	// transaction.
	GetForUpdate(ctx context.Context, workspaceID, id string) (model.Appointment, error)
	Update(ctx context.Context, appt model.Appointment) error
	CountOverlapping(ctx context.Context, f conflict.OverlapFilter) (int, error)
	// DeletePlannedFutureBySeries removes still-planned, non-exception
	// occurrences of the series starting at or after from, returning the
	// removed appointment IDs so their reminders can be cancelled.
	DeletePlannedFutureBySeries(ctx context.Context, workspaceID, seriesID string, from time.Time) ([]string, error)
}

type SeriesRepo interface {
	Insert(ctx context.Context, s model.AppointmentSeries) error
	Get(ctx context.Context, workspaceID, id string) (model.AppointmentSeries, error)
	GetForUpdate(ctx context.Context, workspaceID, id string) (model.AppointmentSeries, error)
	Update(ctx context.Context, s model.AppointmentSeries) error
}

// OutboxWriter enqueues an event in the same transaction as the state it
// announces.
type OutboxWriter interface {
	Insert(ctx context.Context, evt outbox.Event) error
}

// IdempotencyRepo backs Idempotency-Key replay on booking creation. Claim
// inserts the key, or returns the stored response when the key was already
// finalized by an earlier request.
type IdempotencyRepo interface {
	Claim(ctx context.Context, workspaceID, key string) (stored []byte, replay bool, err error)
	Finalize(ctx context.Context, workspaceID, key string, response []byte) error
}
