package memory

import (
	"context"
	"sort"
	"time"

	"github.com/traindesk/traindesk/services/appointment-service/internal/model"
)

type remRepo struct {
	d *data
}

func (r remRepo) ListByAppointment(_ context.Context, workspaceID, appointmentID, channel string) ([]model.Reminder, error) {
	var out []model.Reminder
	for _, rem := range r.d.reminders {
		if rem.WorkspaceID == workspaceID && rem.AppointmentID == appointmentID && rem.Channel == channel {
			out = append(out, rem)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledFor.Before(out[j].ScheduledFor) })
	return out, nil
}

func (r remRepo) Insert(_ context.Context, rem model.Reminder) error {
	r.d.reminders[rem.ID] = rem
	return nil
}

func (r remRepo) Update(_ context.Context, rem model.Reminder) error {
	if _, ok := r.d.reminders[rem.ID]; !ok {
		return model.ErrNotFound
	}
	r.d.reminders[rem.ID] = rem
	return nil
}

func (r remRepo) DeleteOutsideSet(_ context.Context, appointmentID, channel string, keep []time.Time) (int, error) {
	keepSet := make(map[time.Time]bool, len(keep))
	for _, t := range keep {
		keepSet[t.UTC()] = true
	}
	n := 0
	for id, rem := range r.d.reminders {
		if rem.AppointmentID != appointmentID || rem.Channel != channel {
			continue
		}
		switch rem.Status {
		case model.ReminderPending, model.ReminderReady, model.ReminderMissed:
		default:
			continue
		}
		if keepSet[rem.ScheduledFor.UTC()] {
			continue
		}
		delete(r.d.reminders, id)
		n++
	}
	return n, nil
}

func (r remRepo) CancelActive(_ context.Context, appointmentID string) (int, error) {
	n := 0
	for id, rem := range r.d.reminders {
		if rem.AppointmentID != appointmentID {
			continue
		}
		if rem.Status != model.ReminderPending && rem.Status != model.ReminderReady {
			continue
		}
		rem.Status = model.ReminderCancelled
		r.d.reminders[id] = rem
		n++
	}
	return n, nil
}

// The pool-scoped reminder.Repo surface used by the sweeps.

func (s *Store) ListByAppointment(ctx context.Context, workspaceID, appointmentID, channel string) ([]model.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return remRepo{d: s.data}.ListByAppointment(ctx, workspaceID, appointmentID, channel)
}

func (s *Store) Insert(ctx context.Context, rem model.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return remRepo{d: s.data}.Insert(ctx, rem)
}

func (s *Store) Update(ctx context.Context, rem model.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return remRepo{d: s.data}.Update(ctx, rem)
}

func (s *Store) DeleteOutsideSet(ctx context.Context, appointmentID, channel string, keep []time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return remRepo{d: s.data}.DeleteOutsideSet(ctx, appointmentID, channel, keep)
}

func (s *Store) CancelActive(ctx context.Context, appointmentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return remRepo{d: s.data}.CancelActive(ctx, appointmentID)
}

func (s *Store) Get(_ context.Context, workspaceID, id string) (model.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rem, ok := s.data.reminders[id]
	if !ok || rem.WorkspaceID != workspaceID {
		return model.Reminder{}, model.ErrNotFound
	}
	return rem, nil
}

func (s *Store) WorkspacesWithDuePending(_ context.Context, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]bool{}
	for _, rem := range s.data.reminders {
		if rem.Status == model.ReminderPending && !rem.ScheduledFor.After(now) {
			seen[rem.WorkspaceID] = true
		}
	}
	return sortedKeys(seen), nil
}

func (s *Store) PromoteDuePending(_ context.Context, workspaceID string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, rem := range s.data.reminders {
		if rem.WorkspaceID != workspaceID || rem.Status != model.ReminderPending || rem.ScheduledFor.After(now) {
			continue
		}
		rem.Status = model.ReminderReady
		rem.UpdatedAt = now
		s.data.reminders[id] = rem
		n++
	}
	return n, nil
}

func (s *Store) MarkMissedDue(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, rem := range s.data.reminders {
		if rem.Status != model.ReminderPending && rem.Status != model.ReminderReady {
			continue
		}
		if rem.ScheduledFor.After(now) {
			continue
		}
		rem.Status = model.ReminderMissed
		rem.UpdatedAt = now
		s.data.reminders[id] = rem
		n++
	}
	return n, nil
}

func (s *Store) WorkspacesWithFailed(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]bool{}
	for _, rem := range s.data.reminders {
		if rem.Status == model.ReminderFailed {
			seen[rem.WorkspaceID] = true
		}
	}
	return sortedKeys(seen), nil
}

func (s *Store) RetryDueFailed(_ context.Context, workspaceID string, now time.Time, maxAttempts int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, rem := range s.data.reminders {
		if rem.WorkspaceID != workspaceID || rem.Status != model.ReminderFailed {
			continue
		}
		if rem.AttemptCount >= maxAttempts {
			continue
		}
		if rem.NextRetryAt != nil && rem.NextRetryAt.After(now) {
			continue
		}
		rem.Status = model.ReminderPending
		rem.AttemptCount++
		rem.NextRetryAt = nil
		rem.UpdatedAt = now
		s.data.reminders[id] = rem
		n++
	}
	return n, nil
}

func (s *Store) EscalateExhausted(_ context.Context, workspaceID string, now time.Time, maxAttempts int) ([]model.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var moved []model.Reminder
	for id, rem := range s.data.reminders {
		if rem.WorkspaceID != workspaceID || rem.Status != model.ReminderFailed {
			continue
		}
		if rem.AttemptCount < maxAttempts {
			continue
		}
		rem.Status = model.ReminderEscalated
		rem.EscalatedAt = &now
		rem.UpdatedAt = now
		s.data.reminders[id] = rem
		moved = append(moved, rem)
	}
	sort.Slice(moved, func(i, j int) bool { return moved[i].ID < moved[j].ID })
	return moved, nil
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
