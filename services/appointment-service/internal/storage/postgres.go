package storage

import (
	"context"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/traindesk/traindesk/libs/db"
	"github.com/traindesk/traindesk/services/appointment-service/internal/model"
	"github.com/traindesk/traindesk/services/appointment-service/internal/outbox"
	"github.com/traindesk/traindesk/services/appointment-service/internal/reminder"
)

// querier is the slice of pgx shared by pool and transaction handles.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ Store = (*PG)(nil)

// PG is the Postgres-backed Store.
type PG struct {
	pool       *db.Pool
	outboxRepo *outbox.Repository
}

func NewPG(pool *db.Pool, outboxRepo *outbox.Repository) *PG {
	return &PG{pool: pool, outboxRepo: outboxRepo}
}

func (s *PG) InTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx, outboxRepo: s.outboxRepo}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PG) GetAppointment(ctx context.Context, workspaceID, id string) (model.Appointment, error) {
	return appointmentStore{q: s.pool}.Get(ctx, workspaceID, id)
}

func (s *PG) ListAppointments(ctx context.Context, f ListFilter) ([]model.Appointment, error) {
	return appointmentStore{q: s.pool}.list(ctx, f)
}

func (s *PG) GetSeries(ctx context.Context, workspaceID, id string) (model.AppointmentSeries, error) {
	return seriesStore{q: s.pool}.Get(ctx, workspaceID, id)
}

type pgTx struct {
	tx         pgx.Tx
	outboxRepo *outbox.Repository
}

func (t *pgTx) Appointments() AppointmentRepo { return appointmentStore{q: t.tx} }
func (t *pgTx) Series() SeriesRepo            { return seriesStore{q: t.tx} }
func (t *pgTx) Reminders() reminder.SyncRepo  { return reminderStore{q: t.tx} }
func (t *pgTx) Idempotency() IdempotencyRepo  { return idempotencyStore{q: t.tx} }

func (t *pgTx) Outbox() OutboxWriter {
	return outboxWriter{tx: t.tx, repo: t.outboxRepo}
}

type outboxWriter struct {
	tx   pgx.Tx
	repo *outbox.Repository
}

func (w outboxWriter) Insert(ctx context.Context, evt outbox.Event) error {
	return w.repo.Insert(ctx, w.tx, evt)
}

// LockParticipants takes transaction-scoped advisory locks on the
// (workspace, trainer) and (workspace, student) pairs. Keys are acquired
// in sorted order so two transactions touching the same pair of people
// cannot deadlock on each other.
func (t *pgTx) LockParticipants(ctx context.Context, workspaceID, trainerID, studentID string) error {
	keys := []string{
		workspaceID + "/trainer/" + trainerID,
		workspaceID + "/student/" + studentID,
	}
	sort.Strings(keys)
	for _, key := range keys {
		if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return err
		}
	}
	return nil
}
