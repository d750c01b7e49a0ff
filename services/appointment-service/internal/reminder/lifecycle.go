package reminder

import (
	"context"
	"log/slog"

	"github.com/traindesk/traindesk/libs/clockx"
	"github.com/traindesk/traindesk/services/appointment-service/internal/model"
	"github.com/traindesk/traindesk/services/appointment-service/internal/policy"
)

// Lifecycle drives the periodic sweeps and the manual operator moves.
// Sweeps are stateless batch jobs: each run scopes its work by status and
// timestamp predicates only, so concurrent duplicate invocations converge.
type Lifecycle struct {
	repo     Repo
	policies PolicyProvider
	clock    clockx.Clock
	logger   *slog.Logger
	notifier EscalationNotifier // optional
}

func NewLifecycle(repo Repo, policies PolicyProvider, clock clockx.Clock, logger *slog.Logger, notifier EscalationNotifier) *Lifecycle {
	return &Lifecycle{
		repo:     repo,
		policies: policies,
		clock:    clock,
		logger:   logger,
		notifier: notifier,
	}
}

// PrepareReady promotes due pending reminders to ready, except in
// workspaces currently inside their quiet period; those stay pending and
// get picked up on a later tick once quiet hours end.
func (l *Lifecycle) PrepareReady(ctx context.Context) (int, error) {
	now := l.clock.Now()
	workspaces, err := l.repo.WorkspacesWithDuePending(ctx, now)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, ws := range workspaces {
		pol, err := l.policies.ReminderPolicy(ctx, ws)
		if err != nil {
			l.logger.Warn("policy fetch failed; workspace skipped this tick", "workspace_id", ws, "err", err)
			continue
		}
		if policy.InQuietPeriod(now, pol) {
			l.logger.Debug("quiet period, promotion deferred", "workspace_id", ws)
			continue
		}
		n, err := l.repo.PromoteDuePending(ctx, ws, now)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// MarkMissed moves pending/ready reminders whose scheduled time has
// passed to missed. Independent of quiet hours: a reminder held back by
// PrepareReady is still caught here once its slot is gone.
func (l *Lifecycle) MarkMissed(ctx context.Context) (int, error) {
	return l.repo.MarkMissedDue(ctx, l.clock.Now())
}

// RetryFailed requeues failed reminders whose backoff elapsed and whose
// attempt budget is not exhausted. Rows at or over the budget are left
// for EscalateStale.
func (l *Lifecycle) RetryFailed(ctx context.Context) (int, error) {
	now := l.clock.Now()
	workspaces, err := l.repo.WorkspacesWithFailed(ctx)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, ws := range workspaces {
		pol, err := l.policies.ReminderPolicy(ctx, ws)
		if err != nil {
			l.logger.Warn("policy fetch failed; workspace skipped this tick", "workspace_id", ws, "err", err)
			continue
		}
		rp := policy.ResolveRetry(pol)
		n, err := l.repo.RetryDueFailed(ctx, ws, now, rp.MaxAttempts)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// EscalateStale marks failed reminders that exhausted their retry budget
// as escalated. Exhaustion is not an error; escalation is the designed
// outcome and the notifier hands the row to an alternate channel.
func (l *Lifecycle) EscalateStale(ctx context.Context) (int, error) {
	now := l.clock.Now()
	workspaces, err := l.repo.WorkspacesWithFailed(ctx)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, ws := range workspaces {
		pol, err := l.policies.ReminderPolicy(ctx, ws)
		if err != nil {
			l.logger.Warn("policy fetch failed; workspace skipped this tick", "workspace_id", ws, "err", err)
			continue
		}
		rp := policy.ResolveRetry(pol)
		if !rp.EscalateOnExhausted {
			continue
		}
		rows, err := l.repo.EscalateExhausted(ctx, ws, now, rp.MaxAttempts)
		if err != nil {
			return total, err
		}
		total += len(rows)
		if l.notifier != nil {
			for _, rem := range rows {
				l.notifier.ReminderEscalated(ctx, rem)
			}
		}
	}
	return total, nil
}

// Requeue is the manual override: escalated, failed, and missed reminders
// go back to pending with the operator's reason recorded. Terminal
// reminders are returned unchanged.
func (l *Lifecycle) Requeue(ctx context.Context, workspaceID, id, reason string) (model.Reminder, error) {
	rem, err := l.repo.Get(ctx, workspaceID, id)
	if err != nil {
		return model.Reminder{}, err
	}

	switch rem.Status {
	case model.ReminderEscalated, model.ReminderFailed, model.ReminderMissed:
	default:
		return rem, nil
	}

	rem.Status = model.ReminderPending
	rem.EscalatedAt = nil
	rem.FailureReason = reason
	rem.UpdatedAt = l.clock.Now()
	if err := l.repo.Update(ctx, rem); err != nil {
		return model.Reminder{}, err
	}
	return rem, nil
}

// MarkSent records a successful delivery reported by the external
// dispatcher. Legal only from ready; repeated calls are no-ops.
func (l *Lifecycle) MarkSent(ctx context.Context, workspaceID, id, by string) (model.Reminder, error) {
	rem, err := l.repo.Get(ctx, workspaceID, id)
	if err != nil {
		return model.Reminder{}, err
	}
	if rem.Status == model.ReminderSent {
		return rem, nil
	}
	if !CanTransition(rem.Status, model.ReminderSent) {
		return model.Reminder{}, ErrInvalidTransition
	}

	now := l.clock.Now()
	rem.Status = model.ReminderSent
	rem.MarkedSentAt = &now
	rem.MarkedSentBy = by
	rem.LastAttemptedAt = &now
	rem.UpdatedAt = now
	if err := l.repo.Update(ctx, rem); err != nil {
		return model.Reminder{}, err
	}
	return rem, nil
}

// MarkFailed records a delivery error reported by the external
// dispatcher and schedules the retry per the workspace backoff ladder.
func (l *Lifecycle) MarkFailed(ctx context.Context, workspaceID, id, reason string) (model.Reminder, error) {
	rem, err := l.repo.Get(ctx, workspaceID, id)
	if err != nil {
		return model.Reminder{}, err
	}
	if rem.Status == model.ReminderFailed {
		return rem, nil
	}
	if !CanTransition(rem.Status, model.ReminderFailed) {
		return model.Reminder{}, ErrInvalidTransition
	}

	pol, err := l.policies.ReminderPolicy(ctx, workspaceID)
	if err != nil {
		return model.Reminder{}, err
	}
	rp := policy.ResolveRetry(pol)

	now := l.clock.Now()
	nextRetry := now.Add(rp.NextBackoff(rem.AttemptCount))
	rem.Status = model.ReminderFailed
	rem.FailureReason = reason
	rem.LastAttemptedAt = &now
	rem.NextRetryAt = &nextRetry
	rem.UpdatedAt = now
	if err := l.repo.Update(ctx, rem); err != nil {
		return model.Reminder{}, err
	}
	return rem, nil
}

// MarkOpened stamps the read receipt once; later calls keep the first
// timestamp. Status does not change.
func (l *Lifecycle) MarkOpened(ctx context.Context, workspaceID, id string) (model.Reminder, error) {
	rem, err := l.repo.Get(ctx, workspaceID, id)
	if err != nil {
		return model.Reminder{}, err
	}
	if rem.OpenedAt != nil {
		return rem, nil
	}
	now := l.clock.Now()
	rem.OpenedAt = &now
	rem.UpdatedAt = now
	if err := l.repo.Update(ctx, rem); err != nil {
		return model.Reminder{}, err
	}
	return rem, nil
}

// CancelPending cancels every pending/ready reminder of an appointment.
// Used when the appointment itself is cancelled.
func (l *Lifecycle) CancelPending(ctx context.Context, appointmentID string) (int, error) {
	return l.repo.CancelActive(ctx, appointmentID)
}

// List returns the reminders of one appointment within the workspace,
// ordering left to the repository.
func (l *Lifecycle) List(ctx context.Context, workspaceID, appointmentID string) ([]model.Reminder, error) {
	return l.repo.ListByAppointment(ctx, workspaceID, appointmentID, model.ChannelWhatsApp)
}
