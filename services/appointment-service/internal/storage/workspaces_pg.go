package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/traindesk/traindesk/libs/db"
	"github.com/traindesk/traindesk/services/appointment-service/internal/model"
	"github.com/traindesk/traindesk/services/appointment-service/internal/policy"
	"github.com/traindesk/traindesk/services/appointment-service/internal/reminder"
)

// Workspaces resolves per-workspace settings. The reminder policy lives
// as a JSONB document on the workspace row; an absent or broken document
// resolves to defaults.
type Workspaces struct {
	pool *db.Pool
}

func NewWorkspaces(pool *db.Pool) *Workspaces {
	return &Workspaces{pool: pool}
}

func (s *Workspaces) ReminderPolicy(ctx context.Context, workspaceID string) (policy.Policy, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(reminder_policy, '{}'::jsonb)
		FROM workspaces
		WHERE id = $1
	`, workspaceID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return policy.Policy{}, model.ErrNotFound
	}
	if err != nil {
		return policy.Policy{}, err
	}
	return policy.Parse(raw), nil
}

var _ reminder.PolicyProvider = (*Workspaces)(nil)
