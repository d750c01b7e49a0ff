package model

import "time"

type AppointmentStatus string

const (
	AppointmentPlanned   AppointmentStatus = "planned"
	AppointmentDone      AppointmentStatus = "done"
	AppointmentCancelled AppointmentStatus = "cancelled"
	AppointmentNoShow    AppointmentStatus = "no_show"
)

// OutboundStatus tracks whether an operator pushed the appointment to the
// student over an outbound channel. It is independent of the reminder
// subsystem.
type OutboundStatus string

const (
	OutboundNotSent OutboundStatus = "not_sent"
	OutboundSent    OutboundStatus = "sent"
)

// Appointment is one scheduled training session. Times are stored in UTC
// with a half-open [StartTime, EndTime) range. Rows are never hard-deleted;
// cancellation is a status.
type Appointment struct {
	ID             string
	WorkspaceID    string
	TrainerID      string
	StudentID      string
	StartTime      time.Time
	EndTime        time.Time
	Status         AppointmentStatus
	SeriesID       string // empty for stand-alone appointments
	OccurrenceDate *time.Time
	IsException    bool // instance diverges from its series template
	Location       string
	Notes          string
	OutboundStatus OutboundStatus
	CancelledAt    *time.Time
	CancelReason   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CanTransitionTo reports whether the appointment lifecycle allows moving
// from s to target. Same-status moves are idempotent no-ops.
func (s AppointmentStatus) CanTransitionTo(target AppointmentStatus) bool {
	if s == target {
		return true
	}
	switch s {
	case AppointmentPlanned:
		return target == AppointmentDone || target == AppointmentCancelled || target == AppointmentNoShow
	case AppointmentDone:
		return target == AppointmentPlanned
	case AppointmentNoShow:
		return target == AppointmentPlanned || target == AppointmentDone || target == AppointmentCancelled
	case AppointmentCancelled:
		return target == AppointmentPlanned
	}
	return false
}
