package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/traindesk/traindesk/libs/db"
	"github.com/traindesk/traindesk/services/appointment-service/internal/model"
	"github.com/traindesk/traindesk/services/appointment-service/internal/reminder"
)

const reminderColumns = `id, workspace_id, appointment_id, channel, scheduled_for, status,
	attempt_count, last_attempted_at, next_retry_at, opened_at,
	marked_sent_at, COALESCE(marked_sent_by, ''), escalated_at,
	COALESCE(failure_reason, ''), offset_minutes, created_at, updated_at`

// reminderStore is the transaction-scoped write side used by the
// reconciliation pass of an appointment write.
type reminderStore struct {
	q querier
}

func (s reminderStore) ListByAppointment(ctx context.Context, workspaceID, appointmentID, channel string) ([]model.Reminder, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+reminderColumns+`
		FROM appointment_reminders
		WHERE workspace_id = $1 AND appointment_id = $2 AND channel = $3
		ORDER BY scheduled_for ASC
	`, workspaceID, appointmentID, channel)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReminders(rows)
}

func (s reminderStore) Insert(ctx context.Context, rem model.Reminder) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO appointment_reminders
			(id, workspace_id, appointment_id, channel, scheduled_for, status,
			 attempt_count, offset_minutes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, rem.ID, rem.WorkspaceID, rem.AppointmentID, rem.Channel,
		rem.ScheduledFor, rem.Status, rem.AttemptCount, rem.OffsetMinutes,
		rem.CreatedAt, rem.UpdatedAt)
	return err
}

func (s reminderStore) Update(ctx context.Context, rem model.Reminder) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE appointment_reminders
		SET scheduled_for = $3,
			status = $4,
			attempt_count = $5,
			last_attempted_at = $6,
			next_retry_at = $7,
			opened_at = $8,
			marked_sent_at = $9,
			marked_sent_by = $10,
			escalated_at = $11,
			failure_reason = $12,
			offset_minutes = $13,
			updated_at = $14
		WHERE id = $1 AND workspace_id = $2
	`, rem.ID, rem.WorkspaceID,
		rem.ScheduledFor, rem.Status, rem.AttemptCount,
		rem.LastAttemptedAt, rem.NextRetryAt, rem.OpenedAt,
		rem.MarkedSentAt, rem.MarkedSentBy, rem.EscalatedAt,
		rem.FailureReason, rem.OffsetMinutes, rem.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (s reminderStore) DeleteOutsideSet(ctx context.Context, appointmentID, channel string, keep []time.Time) (int, error) {
	tag, err := s.q.Exec(ctx, `
		DELETE FROM appointment_reminders
		WHERE appointment_id = $1
			AND channel = $2
			AND status IN ('pending', 'ready', 'missed')
			AND NOT (scheduled_for = ANY($3::timestamptz[]))
	`, appointmentID, channel, keep)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s reminderStore) CancelActive(ctx context.Context, appointmentID string) (int, error) {
	tag, err := s.q.Exec(ctx, `
		UPDATE appointment_reminders
		SET status = 'cancelled',
			updated_at = now()
		WHERE appointment_id = $1
			AND status IN ('pending', 'ready')
	`, appointmentID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// Reminders is the pool-scoped reminder store backing the sweeps and the
// operator endpoints. Each sweep method is one conditional set-based
// statement so concurrent runs converge.
type Reminders struct {
	reminderStore
	pool *db.Pool
}

func NewReminders(pool *db.Pool) *Reminders {
	return &Reminders{reminderStore: reminderStore{q: pool}, pool: pool}
}

func (s *Reminders) Get(ctx context.Context, workspaceID, id string) (model.Reminder, error) {
	rem, err := scanReminder(s.pool.QueryRow(ctx, `
		SELECT `+reminderColumns+`
		FROM appointment_reminders
		WHERE id = $1 AND workspace_id = $2
	`, id, workspaceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Reminder{}, model.ErrNotFound
	}
	return rem, err
}

func (s *Reminders) WorkspacesWithDuePending(ctx context.Context, now time.Time) ([]string, error) {
	return s.listWorkspaces(ctx, `
		SELECT DISTINCT workspace_id
		FROM appointment_reminders
		WHERE status = 'pending' AND scheduled_for <= $1
	`, now)
}

func (s *Reminders) PromoteDuePending(ctx context.Context, workspaceID string, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE appointment_reminders
		SET status = 'ready',
			updated_at = now()
		WHERE workspace_id = $1
			AND status = 'pending'
			AND scheduled_for <= $2
	`, workspaceID, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *Reminders) MarkMissedDue(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE appointment_reminders
		SET status = 'missed',
			updated_at = now()
		WHERE status IN ('pending', 'ready')
			AND scheduled_for <= $1
	`, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *Reminders) WorkspacesWithFailed(ctx context.Context) ([]string, error) {
	return s.listWorkspaces(ctx, `
		SELECT DISTINCT workspace_id
		FROM appointment_reminders
		WHERE status = 'failed'
	`)
}

func (s *Reminders) RetryDueFailed(ctx context.Context, workspaceID string, now time.Time, maxAttempts int) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE appointment_reminders
		SET status = 'pending',
			attempt_count = attempt_count + 1,
			next_retry_at = NULL,
			updated_at = now()
		WHERE workspace_id = $1
			AND status = 'failed'
			AND attempt_count < $3
			AND (next_retry_at IS NULL OR next_retry_at <= $2)
	`, workspaceID, now, maxAttempts)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *Reminders) EscalateExhausted(ctx context.Context, workspaceID string, now time.Time, maxAttempts int) ([]model.Reminder, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE appointment_reminders
		SET status = 'escalated',
			escalated_at = $2,
			updated_at = now()
		WHERE workspace_id = $1
			AND status = 'failed'
			AND attempt_count >= $3
		RETURNING `+reminderColumns+`
	`, workspaceID, now, maxAttempts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReminders(rows)
}

func (s *Reminders) listWorkspaces(ctx context.Context, sql string, args ...any) ([]string, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workspaces []string
	for rows.Next() {
		var ws string
		if err := rows.Scan(&ws); err != nil {
			return nil, err
		}
		workspaces = append(workspaces, ws)
	}
	return workspaces, rows.Err()
}

var _ reminder.Repo = (*Reminders)(nil)

func scanReminders(rows pgx.Rows) ([]model.Reminder, error) {
	var rems []model.Reminder
	for rows.Next() {
		rem, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		rems = append(rems, rem)
	}
	return rems, rows.Err()
}

func scanReminder(row pgx.Row) (model.Reminder, error) {
	var rem model.Reminder
	err := row.Scan(
		&rem.ID,
		&rem.WorkspaceID,
		&rem.AppointmentID,
		&rem.Channel,
		&rem.ScheduledFor,
		&rem.Status,
		&rem.AttemptCount,
		&rem.LastAttemptedAt,
		&rem.NextRetryAt,
		&rem.OpenedAt,
		&rem.MarkedSentAt,
		&rem.MarkedSentBy,
		&rem.EscalatedAt,
		&rem.FailureReason,
		&rem.OffsetMinutes,
		&rem.CreatedAt,
		&rem.UpdatedAt,
	)
	if err != nil {
		return model.Reminder{}, err
	}
	return rem, nil
}
