package model

import "time"

type ReminderStatus string

const (
	ReminderPending   ReminderStatus = "pending"
	ReminderReady     ReminderStatus = "ready"
	ReminderSent      ReminderStatus = "sent"
	ReminderCancelled ReminderStatus = "cancelled"
	ReminderMissed    ReminderStatus = "missed"
	ReminderFailed    ReminderStatus = "failed"
	ReminderEscalated ReminderStatus = "escalated"
)

const ChannelWhatsApp = "whatsapp"

// Reminder is one scheduled notification attempt. The
// (AppointmentID, Channel, ScheduledFor) triple is unique; it is the
// identity reconciliation works against.
type Reminder struct {
	ID              string
	WorkspaceID     string
	AppointmentID   string
	Channel         string
	ScheduledFor    time.Time
	Status          ReminderStatus
	AttemptCount    int
	LastAttemptedAt *time.Time
	NextRetryAt     *time.Time
	OpenedAt        *time.Time
	MarkedSentAt    *time.Time
	MarkedSentBy    string
	EscalatedAt     *time.Time
	FailureReason   string
	OffsetMinutes   int // the policy offset that produced this slot
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
