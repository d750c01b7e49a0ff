package outbox

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/traindesk/traindesk/libs/db"
	"github.com/traindesk/traindesk/services/appointment-service/internal/model"
)

// EscalationNotifier writes reminder.escalated.v1 events so an
// alternate-channel consumer can take over exhausted reminders. Failures
// are logged, not raised: escalation itself already committed.
type EscalationNotifier struct {
	pool   *db.Pool
	repo   *Repository
	logger *slog.Logger
}

func NewEscalationNotifier(pool *db.Pool, repo *Repository, logger *slog.Logger) *EscalationNotifier {
	return &EscalationNotifier{pool: pool, repo: repo, logger: logger}
}

func (n *EscalationNotifier) ReminderEscalated(ctx context.Context, rem model.Reminder) {
	payload, err := json.Marshal(map[string]any{
		"reminder_id":    rem.ID,
		"workspace_id":   rem.WorkspaceID,
		"appointment_id": rem.AppointmentID,
		"channel":        rem.Channel,
		"scheduled_for":  rem.ScheduledFor.UTC().Format(time.RFC3339),
		"attempt_count":  rem.AttemptCount,
		"failure_reason": rem.FailureReason,
	})
	if err != nil {
		n.logger.Error("failed to build escalation payload", "err", err)
		return
	}
	if err := n.repo.Insert(ctx, n.pool, Event{
		AggregateType: "reminder",
		AggregateID:   rem.ID,
		EventType:     EventReminderEscalated,
		Payload:       payload,
	}); err != nil {
		n.logger.Error("failed to enqueue escalation event", "err", err, "reminder_id", rem.ID)
	}
}
