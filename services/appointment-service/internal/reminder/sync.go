package reminder

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/traindesk/traindesk/services/appointment-service/internal/model"
	"github.com/traindesk/traindesk/services/appointment-service/internal/policy"
)

// SyncResult reports what a reconciliation run changed.
type SyncResult struct {
	Inserted  int
	Updated   int
	Deleted   int
	Cancelled int
}

// Sync reconciles the appointment's reminder rows against the target slot
// set derived from the workspace's resolved offsets. It is explicit set
// algebra (insert / update / delete sets) keyed by scheduled_for, safe to
// run repeatedly: with unchanged inputs it converges to zero changes.
//
// Callers run it inside the same transaction as the appointment write.
func Sync(ctx context.Context, repo SyncRepo, appt model.Appointment, pol policy.Policy, now time.Time) (SyncResult, error) {
	var res SyncResult

	if appt.Status == model.AppointmentCancelled {
		n, err := repo.CancelActive(ctx, appt.ID)
		if err != nil {
			return res, err
		}
		res.Cancelled = n
		return res, nil
	}

	offsets := policy.ResolveOffsets(pol)

	type slot struct {
		at     time.Time
		offset int
	}
	targets := make([]slot, 0, len(offsets))
	for _, offset := range offsets {
		targets = append(targets, slot{
			at:     appt.StartTime.Add(-time.Duration(offset) * time.Minute).UTC(),
			offset: offset,
		})
	}

	existing, err := repo.ListByAppointment(ctx, appt.WorkspaceID, appt.ID, model.ChannelWhatsApp)
	if err != nil {
		return res, err
	}
	byTime := make(map[int64]model.Reminder, len(existing))
	for _, rem := range existing {
		byTime[rem.ScheduledFor.UTC().Unix()] = rem
	}

	keep := make([]time.Time, 0, len(targets))
	for _, target := range targets {
		keep = append(keep, target.at)

		current, ok := byTime[target.at.Unix()]
		if !ok {
			status := model.ReminderPending
			if !target.at.After(now) {
				// The slot is already in the past; it was never deliverable.
				status = model.ReminderMissed
			}
			if err := repo.Insert(ctx, model.Reminder{
				ID:            uuid.NewString(),
				WorkspaceID:   appt.WorkspaceID,
				AppointmentID: appt.ID,
				Channel:       model.ChannelWhatsApp,
				ScheduledFor:  target.at,
				Status:        status,
				OffsetMinutes: target.offset,
				CreatedAt:     now,
				UpdatedAt:     now,
			}); err != nil {
				return res, err
			}
			res.Inserted++
			continue
		}

		// A row cancelled by an earlier cancel-sync still occupies its
		// slot. Reactivation revives it as a fresh attempt; otherwise the
		// appointment would keep zero active reminders.
		if current.Status == model.ReminderCancelled {
			current.Status = model.ReminderPending
			if !target.at.After(now) {
				current.Status = model.ReminderMissed
			}
			current.AttemptCount = 0
			current.LastAttemptedAt = nil
			current.NextRetryAt = nil
			current.EscalatedAt = nil
			current.FailureReason = ""
			current.OffsetMinutes = target.offset
			current.UpdatedAt = now
			if err := repo.Update(ctx, current); err != nil {
				return res, err
			}
			res.Updated++
			continue
		}

		if current.OffsetMinutes != target.offset {
			current.OffsetMinutes = target.offset
			current.UpdatedAt = now
			if err := repo.Update(ctx, current); err != nil {
				return res, err
			}
			res.Updated++
		}
	}

	deleted, err := repo.DeleteOutsideSet(ctx, appt.ID, model.ChannelWhatsApp, keep)
	if err != nil {
		return res, err
	}
	res.Deleted = deleted
	return res, nil
}
