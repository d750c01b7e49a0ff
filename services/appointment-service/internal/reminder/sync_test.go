package reminder

import (
	"context"
	"testing"
	"time"

	"github.com/traindesk/traindesk/services/appointment-service/internal/model"
	"github.com/traindesk/traindesk/services/appointment-service/internal/policy"
)

func testAppointment(start time.Time) model.Appointment {
	return model.Appointment{
		ID:          "appt-1",
		WorkspaceID: "ws-1",
		TrainerID:   "tr-1",
		StudentID:   "st-1",
		StartTime:   start,
		EndTime:     start.Add(time.Hour),
		Status:      model.AppointmentPlanned,
	}
}

func TestSync_CreatesSlotsFromOffsets(t *testing.T) {
	repo := newFakeRepo()
	now := time.Date(2026, 2, 18, 9, 0, 0, 0, time.UTC)
	appt := testAppointment(time.Date(2026, 2, 20, 10, 0, 0, 0, time.UTC))

	res, err := Sync(context.Background(), repo, appt, policy.Policy{}, now)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if res.Inserted != 2 {
		t.Fatalf("expected 2 inserts from default offsets, got %d", res.Inserted)
	}

	rows, _ := repo.ListByAppointment(context.Background(), appt.WorkspaceID, appt.ID, model.ChannelWhatsApp)
	if len(rows) != 2 {
		t.Fatalf("expected 2 reminders, got %d", len(rows))
	}
	// Default offsets 1440 and 120 minutes before start, ascending by slot.
	if !rows[0].ScheduledFor.Equal(appt.StartTime.Add(-24 * time.Hour)) {
		t.Fatalf("first slot wrong: %s", rows[0].ScheduledFor)
	}
	if !rows[1].ScheduledFor.Equal(appt.StartTime.Add(-2 * time.Hour)) {
		t.Fatalf("second slot wrong: %s", rows[1].ScheduledFor)
	}
	for _, r := range rows {
		if r.Status != model.ReminderPending {
			t.Fatalf("future slot should start pending, got %s", r.Status)
		}
	}
}

func TestSync_PastSlotStartsMissed(t *testing.T) {
	repo := newFakeRepo()
	// Appointment in three hours: the 24h slot is already gone, the 2h one is live.
	now := time.Date(2026, 2, 20, 7, 0, 0, 0, time.UTC)
	appt := testAppointment(time.Date(2026, 2, 20, 10, 0, 0, 0, time.UTC))

	if _, err := Sync(context.Background(), repo, appt, policy.Policy{}, now); err != nil {
		t.Fatalf("sync: %v", err)
	}
	rows, _ := repo.ListByAppointment(context.Background(), appt.WorkspaceID, appt.ID, model.ChannelWhatsApp)
	if rows[0].Status != model.ReminderMissed {
		t.Fatalf("24h slot should start missed, got %s", rows[0].Status)
	}
	if rows[1].Status != model.ReminderPending {
		t.Fatalf("2h slot should start pending, got %s", rows[1].Status)
	}
}

func TestSync_Idempotent(t *testing.T) {
	repo := newFakeRepo()
	now := time.Date(2026, 2, 18, 9, 0, 0, 0, time.UTC)
	appt := testAppointment(time.Date(2026, 2, 20, 10, 0, 0, 0, time.UTC))
	pol := policy.Policy{WhatsAppOffsetsMinutes: []float64{60, 1440}}

	if _, err := Sync(context.Background(), repo, appt, pol, now); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	res, err := Sync(context.Background(), repo, appt, pol, now)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if res.Inserted != 0 || res.Updated != 0 || res.Deleted != 0 {
		t.Fatalf("second sync should be a no-op, got %+v", res)
	}
	rows, _ := repo.ListByAppointment(context.Background(), appt.WorkspaceID, appt.ID, model.ChannelWhatsApp)
	if len(rows) != 2 {
		t.Fatalf("expected 2 reminders after repeated sync, got %d", len(rows))
	}
}

func TestSync_RescheduleMovesActiveSlotsOnly(t *testing.T) {
	repo := newFakeRepo()
	now := time.Date(2026, 2, 18, 9, 0, 0, 0, time.UTC)
	appt := testAppointment(time.Date(2026, 2, 20, 10, 0, 0, 0, time.UTC))

	if _, err := Sync(context.Background(), repo, appt, policy.Policy{}, now); err != nil {
		t.Fatalf("sync: %v", err)
	}

	// One reminder already went out; it is history and must survive.
	rows, _ := repo.ListByAppointment(context.Background(), appt.WorkspaceID, appt.ID, model.ChannelWhatsApp)
	sent := rows[0]
	sent.Status = model.ReminderSent
	_ = repo.Update(context.Background(), sent)

	appt.StartTime = appt.StartTime.Add(2 * time.Hour)
	appt.EndTime = appt.EndTime.Add(2 * time.Hour)
	res, err := Sync(context.Background(), repo, appt, policy.Policy{}, now)
	if err != nil {
		t.Fatalf("resync: %v", err)
	}
	if res.Inserted != 2 {
		t.Fatalf("expected 2 new slots, got %d", res.Inserted)
	}
	if res.Deleted != 1 {
		t.Fatalf("expected only the pending old slot deleted, got %d", res.Deleted)
	}

	rows, _ = repo.ListByAppointment(context.Background(), appt.WorkspaceID, appt.ID, model.ChannelWhatsApp)
	if len(rows) != 3 {
		t.Fatalf("expected 2 new + 1 sent historical row, got %d", len(rows))
	}
	foundSent := false
	for _, r := range rows {
		if r.Status == model.ReminderSent {
			foundSent = true
		}
	}
	if !foundSent {
		t.Fatal("sent reminder was deleted; history must be preserved")
	}
}

func TestSync_CancelledAppointmentCancelsActive(t *testing.T) {
	repo := newFakeRepo()
	now := time.Date(2026, 2, 18, 9, 0, 0, 0, time.UTC)
	appt := testAppointment(time.Date(2026, 2, 20, 10, 0, 0, 0, time.UTC))

	if _, err := Sync(context.Background(), repo, appt, policy.Policy{}, now); err != nil {
		t.Fatalf("sync: %v", err)
	}

	appt.Status = model.AppointmentCancelled
	res, err := Sync(context.Background(), repo, appt, policy.Policy{}, now)
	if err != nil {
		t.Fatalf("cancel sync: %v", err)
	}
	if res.Cancelled != 2 {
		t.Fatalf("expected 2 cancelled reminders, got %d", res.Cancelled)
	}
	rows, _ := repo.ListByAppointment(context.Background(), appt.WorkspaceID, appt.ID, model.ChannelWhatsApp)
	for _, r := range rows {
		if r.Status != model.ReminderCancelled {
			t.Fatalf("expected cancelled, got %s", r.Status)
		}
	}
}

func TestSync_ReactivationRevivesCancelledRows(t *testing.T) {
	repo := newFakeRepo()
	now := time.Date(2026, 2, 18, 9, 0, 0, 0, time.UTC)
	appt := testAppointment(time.Date(2026, 2, 20, 10, 0, 0, 0, time.UTC))

	if _, err := Sync(context.Background(), repo, appt, policy.Policy{}, now); err != nil {
		t.Fatalf("sync: %v", err)
	}
	appt.Status = model.AppointmentCancelled
	if _, err := Sync(context.Background(), repo, appt, policy.Policy{}, now); err != nil {
		t.Fatalf("cancel sync: %v", err)
	}

	// The cancelled rows still occupy the target slots; bringing the
	// appointment back must converge to active reminders again.
	appt.Status = model.AppointmentPlanned
	res, err := Sync(context.Background(), repo, appt, policy.Policy{}, now)
	if err != nil {
		t.Fatalf("reactivation sync: %v", err)
	}
	if res.Updated != 2 {
		t.Fatalf("expected both cancelled rows revived, got %+v", res)
	}
	rows, _ := repo.ListByAppointment(context.Background(), appt.WorkspaceID, appt.ID, model.ChannelWhatsApp)
	if len(rows) != 2 {
		t.Fatalf("expected 2 reminders, got %d", len(rows))
	}
	for _, r := range rows {
		if r.Status != model.ReminderPending {
			t.Fatalf("revived slot should be pending, got %s", r.Status)
		}
		if r.AttemptCount != 0 || r.FailureReason != "" {
			t.Fatalf("revived slot should be a fresh attempt: %+v", r)
		}
	}
}

func TestSync_OffsetChangeReconcilesSet(t *testing.T) {
	repo := newFakeRepo()
	now := time.Date(2026, 2, 18, 9, 0, 0, 0, time.UTC)
	appt := testAppointment(time.Date(2026, 2, 20, 10, 0, 0, 0, time.UTC))

	if _, err := Sync(context.Background(), repo, appt, policy.Policy{WhatsAppOffsetsMinutes: []float64{1440, 120}}, now); err != nil {
		t.Fatalf("sync: %v", err)
	}
	res, err := Sync(context.Background(), repo, appt, policy.Policy{WhatsAppOffsetsMinutes: []float64{1440, 30}}, now)
	if err != nil {
		t.Fatalf("resync: %v", err)
	}
	if res.Inserted != 1 || res.Deleted != 1 {
		t.Fatalf("expected 1 insert + 1 delete, got %+v", res)
	}
	rows, _ := repo.ListByAppointment(context.Background(), appt.WorkspaceID, appt.ID, model.ChannelWhatsApp)
	if len(rows) != 2 {
		t.Fatalf("expected 2 reminders, got %d", len(rows))
	}
}
