package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/traindesk/traindesk/services/appointment-service/internal/conflict"
	"github.com/traindesk/traindesk/services/appointment-service/internal/model"
)

const appointmentColumns = `id, workspace_id, trainer_id, student_id, start_time, end_time, status,
	COALESCE(series_id::text, ''), occurrence_date, is_exception,
	COALESCE(location, ''), COALESCE(notes, ''), outbound_status,
	cancelled_at, COALESCE(cancel_reason, ''), created_at, updated_at`

type appointmentStore struct {
	q querier
}

func (s appointmentStore) Insert(ctx context.Context, appt model.Appointment) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO appointments
			(id, workspace_id, trainer_id, student_id, start_time, end_time, status,
			 series_id, occurrence_date, is_exception, location, notes, outbound_status,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, '')::uuid, $9, $10, $11, $12, $13, $14, $15)
	`, appt.ID, appt.WorkspaceID, appt.TrainerID, appt.StudentID,
		appt.StartTime, appt.EndTime, appt.Status,
		appt.SeriesID, appt.OccurrenceDate, appt.IsException,
		appt.Location, appt.Notes, appt.OutboundStatus,
		appt.CreatedAt, appt.UpdatedAt)
	return err
}

func (s appointmentStore) Get(ctx context.Context, workspaceID, id string) (model.Appointment, error) {
	return s.scanOne(s.q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND workspace_id = $2
	`, id, workspaceID))
}

func (s appointmentStore) GetForUpdate(ctx context.Context, workspaceID, id string) (model.Appointment, error) {
	return s.scanOne(s.q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND workspace_id = $2
		FOR UPDATE
	`, id, workspaceID))
}

func (s appointmentStore) Update(ctx context.Context, appt model.Appointment) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE appointments
		SET start_time = $3,
			end_time = $4,
			status = $5,
			is_exception = $6,
			location = $7,
			notes = $8,
			outbound_status = $9,
			cancelled_at = $10,
			cancel_reason = $11,
			updated_at = $12
		WHERE id = $1 AND workspace_id = $2
	`, appt.ID, appt.WorkspaceID,
		appt.StartTime, appt.EndTime, appt.Status, appt.IsException,
		appt.Location, appt.Notes, appt.OutboundStatus,
		appt.CancelledAt, appt.CancelReason, appt.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

// CountOverlapping implements the half-open [start, end) intersection
// check over non-cancelled appointments touching either participant.
func (s appointmentStore) CountOverlapping(ctx context.Context, f conflict.OverlapFilter) (int, error) {
	var n int
	err := s.q.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM appointments
		WHERE workspace_id = $1
			AND (trainer_id = $2 OR student_id = $3)
			AND status <> 'cancelled'
			AND start_time < $5
			AND end_time > $4
			AND id <> COALESCE(NULLIF($6, '')::uuid, '00000000-0000-0000-0000-000000000000'::uuid)
	`, f.WorkspaceID, f.TrainerID, f.StudentID, f.Start, f.End, f.IgnoreAppointmentID).Scan(&n)
	return n, err
}

func (s appointmentStore) DeletePlannedFutureBySeries(ctx context.Context, workspaceID, seriesID string, from time.Time) ([]string, error) {
	rows, err := s.q.Query(ctx, `
		DELETE FROM appointments
		WHERE workspace_id = $1
			AND series_id = $2
			AND status = 'planned'
			AND is_exception = false
			AND start_time >= $3
		RETURNING id
	`, workspaceID, seriesID, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s appointmentStore) list(ctx context.Context, f ListFilter) ([]model.Appointment, error) {
	where := []string{"workspace_id = $1"}
	args := []any{f.WorkspaceID}

	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.TrainerID != "" {
		add("trainer_id = $%d", f.TrainerID)
	}
	if f.StudentID != "" {
		add("student_id = $%d", f.StudentID)
	}
	if f.SeriesID != "" {
		add("series_id = $%d", f.SeriesID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.From != nil {
		add("end_time > $%d", *f.From)
	}
	if f.To != nil {
		add("start_time < $%d", *f.To)
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := s.q.Query(ctx, fmt.Sprintf(`
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE %s
		ORDER BY start_time ASC
		LIMIT $%d
	`, strings.Join(where, " AND "), len(args)), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := s.scanOne(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	return appts, rows.Err()
}

func (s appointmentStore) scanOne(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	err := row.Scan(
		&appt.ID,
		&appt.WorkspaceID,
		&appt.TrainerID,
		&appt.StudentID,
		&appt.StartTime,
		&appt.EndTime,
		&appt.Status,
		&appt.SeriesID,
		&appt.OccurrenceDate,
		&appt.IsException,
		&appt.Location,
		&appt.Notes,
		&appt.OutboundStatus,
		&appt.CancelledAt,
		&appt.CancelReason,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, model.ErrNotFound
	}
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}
