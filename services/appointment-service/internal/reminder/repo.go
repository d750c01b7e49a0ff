package reminder

import (
	"context"
	"time"

	"github.com/traindesk/traindesk/services/appointment-service/internal/model"
	"github.com/traindesk/traindesk/services/appointment-service/internal/policy"
)

// SyncRepo is the transactional slice of the reminder store that Sync
// needs. Implementations scope it to the appointment write's transaction.
type SyncRepo interface {
	ListByAppointment(ctx context.Context, workspaceID, appointmentID, channel string) ([]model.Reminder, error)
	Insert(ctx context.Context, rem model.Reminder) error
	Update(ctx context.Context, rem model.Reminder) error
	// DeleteOutsideSet removes reminders for the appointment/channel whose
	// scheduled_for is not in keep AND whose status is still pending,
	// ready, or missed. Terminal/history rows stay.
	DeleteOutsideSet(ctx context.Context, appointmentID, channel string, keep []time.Time) (int, error)
	// CancelActive moves every pending/ready reminder of the appointment
	// to cancelled.
	CancelActive(ctx context.Context, appointmentID string) (int, error)
}

// Repo is the full reminder store used by the sweeps and operator moves.
// Every batch method is a conditional set-based update (status plus
// timestamp predicates) so overlapping sweep runs converge instead of
// double-transitioning rows.
type Repo interface {
	SyncRepo

	Get(ctx context.Context, workspaceID, id string) (model.Reminder, error)

	// WorkspacesWithDuePending lists workspaces that have at least one
	// pending reminder due at or before now.
	WorkspacesWithDuePending(ctx context.Context, now time.Time) ([]string, error)
	// PromoteDuePending moves due pending reminders of the workspace to
	// ready, returning the number of rows moved.
	PromoteDuePending(ctx context.Context, workspaceID string, now time.Time) (int, error)
	// MarkMissedDue moves every pending or ready reminder whose
	// scheduled_for is at or before now to missed.
	MarkMissedDue(ctx context.Context, now time.Time) (int, error)

	// WorkspacesWithFailed lists workspaces holding failed reminders.
	WorkspacesWithFailed(ctx context.Context) ([]string, error)
	// RetryDueFailed moves failed reminders with next_retry_at <= now and
	// attempt_count < maxAttempts back to pending, incrementing
	// attempt_count and clearing next_retry_at.
	RetryDueFailed(ctx context.Context, workspaceID string, now time.Time, maxAttempts int) (int, error)
	// EscalateExhausted moves failed reminders with attempt_count >=
	// maxAttempts to escalated, stamping escalated_at, and returns the
	// rows it moved.
	EscalateExhausted(ctx context.Context, workspaceID string, now time.Time, maxAttempts int) ([]model.Reminder, error)
}

// PolicyProvider resolves the current reminder policy of a workspace.
type PolicyProvider interface {
	ReminderPolicy(ctx context.Context, workspaceID string) (policy.Policy, error)
}

// EscalationNotifier is told about each newly escalated reminder so an
// alternate channel can pick it up. Implementations must not block on
// delivery.
type EscalationNotifier interface {
	ReminderEscalated(ctx context.Context, rem model.Reminder)
}
