package reminder

import (
	"context"
	"sort"
	"time"

	"github.com/traindesk/traindesk/services/appointment-service/internal/model"
	"github.com/traindesk/traindesk/services/appointment-service/internal/policy"
)

// fakeRepo is an in-memory Repo for lifecycle tests.
type fakeRepo struct {
	rows map[string]*model.Reminder
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{rows: map[string]*model.Reminder{}}
}

func (f *fakeRepo) add(rem model.Reminder) {
	cp := rem
	f.rows[rem.ID] = &cp
}

func (f *fakeRepo) ListByAppointment(_ context.Context, workspaceID, appointmentID, channel string) ([]model.Reminder, error) {
	var out []model.Reminder
	for _, r := range f.rows {
		if r.WorkspaceID == workspaceID && r.AppointmentID == appointmentID && r.Channel == channel {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledFor.Before(out[j].ScheduledFor) })
	return out, nil
}

func (f *fakeRepo) Insert(_ context.Context, rem model.Reminder) error {
	cp := rem
	f.rows[rem.ID] = &cp
	return nil
}

func (f *fakeRepo) Update(_ context.Context, rem model.Reminder) error {
	cp := rem
	f.rows[rem.ID] = &cp
	return nil
}

func (f *fakeRepo) DeleteOutsideSet(_ context.Context, appointmentID, channel string, keep []time.Time) (int, error) {
	keepSet := map[int64]struct{}{}
	for _, t := range keep {
		keepSet[t.UTC().Unix()] = struct{}{}
	}
	n := 0
	for id, r := range f.rows {
		if r.AppointmentID != appointmentID || r.Channel != channel {
			continue
		}
		switch r.Status {
		case model.ReminderPending, model.ReminderReady, model.ReminderMissed:
		default:
			continue
		}
		if _, ok := keepSet[r.ScheduledFor.UTC().Unix()]; !ok {
			delete(f.rows, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) CancelActive(_ context.Context, appointmentID string) (int, error) {
	n := 0
	for _, r := range f.rows {
		if r.AppointmentID != appointmentID {
			continue
		}
		if r.Status == model.ReminderPending || r.Status == model.ReminderReady {
			r.Status = model.ReminderCancelled
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) Get(_ context.Context, workspaceID, id string) (model.Reminder, error) {
	r, ok := f.rows[id]
	if !ok || r.WorkspaceID != workspaceID {
		return model.Reminder{}, model.ErrNotFound
	}
	return *r, nil
}

func (f *fakeRepo) WorkspacesWithDuePending(_ context.Context, now time.Time) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	for _, r := range f.rows {
		if r.Status == model.ReminderPending && !r.ScheduledFor.After(now) {
			if _, dup := seen[r.WorkspaceID]; !dup {
				seen[r.WorkspaceID] = struct{}{}
				out = append(out, r.WorkspaceID)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeRepo) PromoteDuePending(_ context.Context, workspaceID string, now time.Time) (int, error) {
	n := 0
	for _, r := range f.rows {
		if r.WorkspaceID == workspaceID && r.Status == model.ReminderPending && !r.ScheduledFor.After(now) {
			r.Status = model.ReminderReady
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) MarkMissedDue(_ context.Context, now time.Time) (int, error) {
	n := 0
	for _, r := range f.rows {
		if (r.Status == model.ReminderPending || r.Status == model.ReminderReady) && !r.ScheduledFor.After(now) {
			r.Status = model.ReminderMissed
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) WorkspacesWithFailed(_ context.Context) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	for _, r := range f.rows {
		if r.Status == model.ReminderFailed {
			if _, dup := seen[r.WorkspaceID]; !dup {
				seen[r.WorkspaceID] = struct{}{}
				out = append(out, r.WorkspaceID)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeRepo) RetryDueFailed(_ context.Context, workspaceID string, now time.Time, maxAttempts int) (int, error) {
	n := 0
	for _, r := range f.rows {
		if r.WorkspaceID != workspaceID || r.Status != model.ReminderFailed {
			continue
		}
		if r.NextRetryAt == nil || r.NextRetryAt.After(now) {
			continue
		}
		if r.AttemptCount >= maxAttempts {
			continue
		}
		r.AttemptCount++
		r.Status = model.ReminderPending
		r.NextRetryAt = nil
		n++
	}
	return n, nil
}

func (f *fakeRepo) EscalateExhausted(_ context.Context, workspaceID string, now time.Time, maxAttempts int) ([]model.Reminder, error) {
	var out []model.Reminder
	for _, r := range f.rows {
		if r.WorkspaceID == workspaceID && r.Status == model.ReminderFailed && r.AttemptCount >= maxAttempts {
			r.Status = model.ReminderEscalated
			at := now
			r.EscalatedAt = &at
			out = append(out, *r)
		}
	}
	return out, nil
}

var _ Repo = (*fakeRepo)(nil)

// fakePolicies maps workspace ids to policies.
type fakePolicies map[string]policy.Policy

func (f fakePolicies) ReminderPolicy(_ context.Context, workspaceID string) (policy.Policy, error) {
	return f[workspaceID], nil
}
