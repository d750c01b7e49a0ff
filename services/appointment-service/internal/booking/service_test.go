package booking

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/traindesk/traindesk/libs/clockx"
	"github.com/traindesk/traindesk/services/appointment-service/internal/conflict"
	"github.com/traindesk/traindesk/services/appointment-service/internal/model"
	"github.com/traindesk/traindesk/services/appointment-service/internal/outbox"
	"github.com/traindesk/traindesk/services/appointment-service/internal/storage"
	"github.com/traindesk/traindesk/services/appointment-service/internal/storage/memory"
)

func newService(t *testing.T) (*Service, *memory.Store, *clockx.Frozen) {
	t.Helper()
	store := memory.NewStore()
	clock := clockx.NewFrozen(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	logger := slog.New(slog.DiscardHandler)
	return NewService(store, store, clock, logger), store, clock
}

func createInput(start, end time.Time) CreateInput {
	return CreateInput{
		WorkspaceID: "ws1",
		TrainerID:   "trainer-1",
		StudentID:   "student-1",
		StartTime:   start,
		EndTime:     end,
	}
}

func TestCreateRejectsOverlapAllowsAdjacent(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	day := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	if _, err := svc.Create(ctx, createInput(day.Add(10*time.Hour), day.Add(11*time.Hour))); err != nil {
		t.Fatalf("first booking: %v", err)
	}

	_, err := svc.Create(ctx, createInput(day.Add(10*time.Hour+30*time.Minute), day.Add(11*time.Hour+30*time.Minute)))
	if !errors.Is(err, conflict.ErrTimeSlotConflict) {
		t.Fatalf("overlapping booking: got %v, want ErrTimeSlotConflict", err)
	}

	// back-to-back is fine, the range is half-open
	if _, err := svc.Create(ctx, createInput(day.Add(11*time.Hour), day.Add(12*time.Hour))); err != nil {
		t.Fatalf("adjacent booking: %v", err)
	}
}

func TestCreateRejectsSharedStudentOverlap(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	day := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	if _, err := svc.Create(ctx, createInput(day.Add(10*time.Hour), day.Add(11*time.Hour))); err != nil {
		t.Fatalf("first booking: %v", err)
	}

	in := createInput(day.Add(10*time.Hour), day.Add(11*time.Hour))
	in.TrainerID = "trainer-2" // different trainer, same student
	if _, err := svc.Create(ctx, in); !errors.Is(err, conflict.ErrTimeSlotConflict) {
		t.Fatalf("student double-booking: got %v, want ErrTimeSlotConflict", err)
	}
}

func TestCreateBuildsDefaultReminderSlots(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	start := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)
	appt, err := svc.Create(ctx, createInput(start, start.Add(time.Hour)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	rems, err := store.ListByAppointment(ctx, "ws1", appt.ID, model.ChannelWhatsApp)
	if err != nil {
		t.Fatalf("list reminders: %v", err)
	}
	if len(rems) != 2 {
		t.Fatalf("got %d reminders, want 2", len(rems))
	}
	if !rems[0].ScheduledFor.Equal(start.Add(-24 * time.Hour)) {
		t.Fatalf("first slot at %v, want start-24h", rems[0].ScheduledFor)
	}
	if !rems[1].ScheduledFor.Equal(start.Add(-2 * time.Hour)) {
		t.Fatalf("second slot at %v, want start-2h", rems[1].ScheduledFor)
	}
	for _, rem := range rems {
		if rem.Status != model.ReminderPending {
			t.Fatalf("reminder %s status %s, want pending", rem.ID, rem.Status)
		}
	}
}

func TestCreateIdempotencyReplay(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	start := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)
	in := createInput(start, start.Add(time.Hour))
	in.IdempotencyKey = "req-abc"

	first, err := svc.Create(ctx, in)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	second, err := svc.Create(ctx, in)
	if err != nil {
		t.Fatalf("replay create: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("replay returned %s, want %s", second.ID, first.ID)
	}

	appts, err := store.ListAppointments(ctx, storage.ListFilter{WorkspaceID: "ws1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(appts) != 1 {
		t.Fatalf("got %d appointments, want 1", len(appts))
	}
	if n := countEvents(store, outbox.EventAppointmentCreated); n != 1 {
		t.Fatalf("got %d created events, want 1", n)
	}
}

func TestCancelStampsReasonAndCancelsReminders(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	start := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)
	appt, err := svc.Create(ctx, createInput(start, start.Add(time.Hour)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	cancelled, err := svc.Cancel(ctx, "ws1", appt.ID, "student sick")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != model.AppointmentCancelled {
		t.Fatalf("status %s, want cancelled", cancelled.Status)
	}
	if cancelled.CancelReason != "student sick" || cancelled.CancelledAt == nil {
		t.Fatalf("cancel metadata not recorded: %+v", cancelled)
	}

	rems, _ := store.ListByAppointment(ctx, "ws1", appt.ID, model.ChannelWhatsApp)
	for _, rem := range rems {
		if rem.Status != model.ReminderCancelled {
			t.Fatalf("reminder %s status %s, want cancelled", rem.ID, rem.Status)
		}
	}
	if n := countEvents(store, outbox.EventAppointmentCancelled); n != 1 {
		t.Fatalf("got %d cancelled events, want 1", n)
	}

	// cancelling again keeps the first reason
	again, err := svc.Cancel(ctx, "ws1", appt.ID, "other reason")
	if err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if again.CancelReason != "student sick" {
		t.Fatalf("second cancel overwrote reason: %q", again.CancelReason)
	}
}

func TestTransitionDoneRequiresStartedAppointment(t *testing.T) {
	svc, _, clock := newService(t)
	ctx := context.Background()

	start := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)
	appt, err := svc.Create(ctx, createInput(start, start.Add(time.Hour)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Transition(ctx, "ws1", appt.ID, model.AppointmentDone); !model.IsValidation(err) {
		t.Fatalf("done before start: got %v, want validation error", err)
	}

	clock.Set(start.Add(5 * time.Minute))
	done, err := svc.Transition(ctx, "ws1", appt.ID, model.AppointmentDone)
	if err != nil {
		t.Fatalf("done after start: %v", err)
	}
	if done.Status != model.AppointmentDone {
		t.Fatalf("status %s, want done", done.Status)
	}

	// done can be reverted to planned, but not cancelled
	if _, err := svc.Transition(ctx, "ws1", appt.ID, model.AppointmentCancelled); !errors.Is(err, ErrTransitionNotAllowed) {
		t.Fatalf("done->cancelled: got %v, want ErrTransitionNotAllowed", err)
	}
	if _, err := svc.Transition(ctx, "ws1", appt.ID, model.AppointmentPlanned); err != nil {
		t.Fatalf("done->planned: %v", err)
	}
}

func TestReactivationRechecksConflicts(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	start := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)
	first, err := svc.Create(ctx, createInput(start, start.Add(time.Hour)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Cancel(ctx, "ws1", first.ID, "freed up"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := svc.Create(ctx, createInput(start, start.Add(time.Hour))); err != nil {
		t.Fatalf("rebooking freed slot: %v", err)
	}

	if _, err := svc.Transition(ctx, "ws1", first.ID, model.AppointmentPlanned); !errors.Is(err, conflict.ErrTimeSlotConflict) {
		t.Fatalf("reactivation into taken slot: got %v, want ErrTimeSlotConflict", err)
	}
}

func TestReactivationRestoresReminders(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	start := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)
	appt, err := svc.Create(ctx, createInput(start, start.Add(time.Hour)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Cancel(ctx, "ws1", appt.ID, "sick"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if _, err := svc.Transition(ctx, "ws1", appt.ID, model.AppointmentPlanned); err != nil {
		t.Fatalf("reactivate: %v", err)
	}

	rems, _ := store.ListByAppointment(ctx, "ws1", appt.ID, model.ChannelWhatsApp)
	if len(rems) != 2 {
		t.Fatalf("got %d reminders after reactivation, want 2", len(rems))
	}
	for _, rem := range rems {
		if rem.Status != model.ReminderPending {
			t.Fatalf("reactivated appointment slot %s is %s, want pending",
				rem.ScheduledFor, rem.Status)
		}
	}
}

func TestRescheduleMovesReminderSlots(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	start := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)
	appt, err := svc.Create(ctx, createInput(start, start.Add(time.Hour)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	newStart := start.Add(48 * time.Hour)
	moved, err := svc.Reschedule(ctx, RescheduleInput{
		WorkspaceID:   "ws1",
		AppointmentID: appt.ID,
		StartTime:     newStart,
		EndTime:       newStart.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if !moved.StartTime.Equal(newStart) {
		t.Fatalf("start %v, want %v", moved.StartTime, newStart)
	}

	rems, _ := store.ListByAppointment(ctx, "ws1", appt.ID, model.ChannelWhatsApp)
	if len(rems) != 2 {
		t.Fatalf("got %d reminders after reschedule, want 2", len(rems))
	}
	if !rems[0].ScheduledFor.Equal(newStart.Add(-24 * time.Hour)) {
		t.Fatalf("first slot %v not rebuilt from new start", rems[0].ScheduledFor)
	}
	if n := countEvents(store, outbox.EventAppointmentRescheduled); n != 1 {
		t.Fatalf("got %d rescheduled events, want 1", n)
	}
}

func TestRescheduleRejectsOverlap(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	day := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	if _, err := svc.Create(ctx, createInput(day.Add(10*time.Hour), day.Add(11*time.Hour))); err != nil {
		t.Fatalf("first booking: %v", err)
	}
	second, err := svc.Create(ctx, createInput(day.Add(14*time.Hour), day.Add(15*time.Hour)))
	if err != nil {
		t.Fatalf("second booking: %v", err)
	}

	_, err = svc.Reschedule(ctx, RescheduleInput{
		WorkspaceID:   "ws1",
		AppointmentID: second.ID,
		StartTime:     day.Add(10*time.Hour + 15*time.Minute),
		EndTime:       day.Add(11*time.Hour + 15*time.Minute),
	})
	if !errors.Is(err, conflict.ErrTimeSlotConflict) {
		t.Fatalf("reschedule onto taken slot: got %v, want ErrTimeSlotConflict", err)
	}
}

func TestSetOutboundStatus(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	start := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)
	appt, err := svc.Create(ctx, createInput(start, start.Add(time.Hour)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if appt.OutboundStatus != model.OutboundNotSent {
		t.Fatalf("fresh appointment outbound status %s, want not_sent", appt.OutboundStatus)
	}

	updated, err := svc.SetOutboundStatus(ctx, "ws1", appt.ID, model.OutboundSent)
	if err != nil {
		t.Fatalf("set outbound: %v", err)
	}
	if updated.OutboundStatus != model.OutboundSent {
		t.Fatalf("outbound status %s, want sent", updated.OutboundStatus)
	}

	if _, err := svc.SetOutboundStatus(ctx, "ws1", appt.ID, "delivered"); !model.IsValidation(err) {
		t.Fatalf("bad outbound status: got %v, want validation error", err)
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	start := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)

	in := createInput(start, start) // zero-length window
	if _, err := svc.Create(ctx, in); !model.IsValidation(err) {
		t.Fatalf("empty window: got %v, want validation error", err)
	}

	in = createInput(start, start.Add(time.Hour))
	in.TrainerID = ""
	if _, err := svc.Create(ctx, in); !model.IsValidation(err) {
		t.Fatalf("missing trainer: got %v, want validation error", err)
	}
}

func countEvents(store *memory.Store, eventType string) int {
	n := 0
	for _, evt := range store.Events() {
		if evt.EventType == eventType {
			n++
		}
	}
	return n
}
