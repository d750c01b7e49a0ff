package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/traindesk/traindesk/services/appointment-service/internal/model"
)

const seriesColumns = `id, workspace_id, trainer_id, student_id, COALESCE(title, ''), COALESCE(location, ''),
	frequency, recurrence_interval, weekdays, until, occurrence_count,
	start_date, start_minutes, end_minutes, status, created_at, updated_at`

type seriesStore struct {
	q querier
}

func (s seriesStore) Insert(ctx context.Context, series model.AppointmentSeries) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO appointment_series
			(id, workspace_id, trainer_id, student_id, title, location,
			 frequency, recurrence_interval, weekdays, until, occurrence_count,
			 start_date, start_minutes, end_minutes, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, series.ID, series.WorkspaceID, series.TrainerID, series.StudentID,
		series.Title, series.Location,
		series.Rule.Frequency, series.Rule.Interval, weekdaysToPg(series.Rule.Weekdays),
		series.Rule.Until, series.Rule.Count,
		series.StartDate, series.StartMinutes, series.EndMinutes,
		series.Status, series.CreatedAt, series.UpdatedAt)
	return err
}

func (s seriesStore) Get(ctx context.Context, workspaceID, id string) (model.AppointmentSeries, error) {
	return s.scanOne(s.q.QueryRow(ctx, `
		SELECT `+seriesColumns+`
		FROM appointment_series
		WHERE id = $1 AND workspace_id = $2
	`, id, workspaceID))
}

func (s seriesStore) GetForUpdate(ctx context.Context, workspaceID, id string) (model.AppointmentSeries, error) {
	return s.scanOne(s.q.QueryRow(ctx, `
		SELECT `+seriesColumns+`
		FROM appointment_series
		WHERE id = $1 AND workspace_id = $2
		FOR UPDATE
	`, id, workspaceID))
}

func (s seriesStore) Update(ctx context.Context, series model.AppointmentSeries) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE appointment_series
		SET title = $3,
			location = $4,
			frequency = $5,
			recurrence_interval = $6,
			weekdays = $7,
			until = $8,
			occurrence_count = $9,
			start_date = $10,
			start_minutes = $11,
			end_minutes = $12,
			status = $13,
			updated_at = $14
		WHERE id = $1 AND workspace_id = $2
	`, series.ID, series.WorkspaceID,
		series.Title, series.Location,
		series.Rule.Frequency, series.Rule.Interval, weekdaysToPg(series.Rule.Weekdays),
		series.Rule.Until, series.Rule.Count,
		series.StartDate, series.StartMinutes, series.EndMinutes,
		series.Status, series.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (s seriesStore) scanOne(row pgx.Row) (model.AppointmentSeries, error) {
	var series model.AppointmentSeries
	var weekdays []int32
	err := row.Scan(
		&series.ID,
		&series.WorkspaceID,
		&series.TrainerID,
		&series.StudentID,
		&series.Title,
		&series.Location,
		&series.Rule.Frequency,
		&series.Rule.Interval,
		&weekdays,
		&series.Rule.Until,
		&series.Rule.Count,
		&series.StartDate,
		&series.StartMinutes,
		&series.EndMinutes,
		&series.Status,
		&series.CreatedAt,
		&series.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.AppointmentSeries{}, model.ErrNotFound
	}
	if err != nil {
		return model.AppointmentSeries{}, err
	}
	series.Rule.Weekdays = weekdaysFromPg(weekdays)
	return series, nil
}

func weekdaysToPg(days []int) []int32 {
	out := make([]int32, len(days))
	for i, d := range days {
		out[i] = int32(d)
	}
	return out
}

func weekdaysFromPg(days []int32) []int {
	if len(days) == 0 {
		return nil
	}
	out := make([]int, len(days))
	for i, d := range days {
		out[i] = int(d)
	}
	return out
}
