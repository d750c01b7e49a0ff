package reminder

import (
	"testing"

	"github.com/traindesk/traindesk/services/appointment-service/internal/model"
)

var allStatuses = []model.ReminderStatus{
	model.ReminderPending,
	model.ReminderReady,
	model.ReminderSent,
	model.ReminderCancelled,
	model.ReminderMissed,
	model.ReminderFailed,
	model.ReminderEscalated,
}

func TestCanTransition_SelfIsAlwaysAllowed(t *testing.T) {
	for _, st := range allStatuses {
		if !CanTransition(st, st) {
			t.Fatalf("%s -> %s should be an idempotent no-op", st, st)
		}
	}
}

func TestCanTransition_TerminalStates(t *testing.T) {
	for _, terminal := range []model.ReminderStatus{model.ReminderSent, model.ReminderCancelled} {
		for _, to := range allStatuses {
			if to == terminal {
				continue
			}
			if CanTransition(terminal, to) {
				t.Fatalf("%s is terminal, %s -> %s must be illegal", terminal, terminal, to)
			}
		}
	}
}

func TestCanTransition_SentOnlyFromReady(t *testing.T) {
	if CanTransition(model.ReminderPending, model.ReminderSent) {
		t.Fatal("pending -> sent must be illegal")
	}
	if !CanTransition(model.ReminderReady, model.ReminderSent) {
		t.Fatal("ready -> sent must be legal")
	}
	for _, from := range []model.ReminderStatus{model.ReminderMissed, model.ReminderFailed, model.ReminderEscalated} {
		if CanTransition(from, model.ReminderSent) {
			t.Fatalf("%s -> sent must be illegal", from)
		}
	}
}

func TestCanTransition_RecoveryEdges(t *testing.T) {
	legal := [][2]model.ReminderStatus{
		{model.ReminderPending, model.ReminderReady},
		{model.ReminderPending, model.ReminderMissed},
		{model.ReminderPending, model.ReminderCancelled},
		{model.ReminderReady, model.ReminderCancelled},
		{model.ReminderReady, model.ReminderMissed},
		{model.ReminderReady, model.ReminderFailed},
		{model.ReminderMissed, model.ReminderPending},
		{model.ReminderMissed, model.ReminderEscalated},
		{model.ReminderFailed, model.ReminderPending},
		{model.ReminderFailed, model.ReminderEscalated},
		{model.ReminderEscalated, model.ReminderPending},
		{model.ReminderEscalated, model.ReminderCancelled},
	}
	for _, edge := range legal {
		if !CanTransition(edge[0], edge[1]) {
			t.Fatalf("%s -> %s should be legal", edge[0], edge[1])
		}
	}

	illegal := [][2]model.ReminderStatus{
		{model.ReminderPending, model.ReminderEscalated},
		{model.ReminderPending, model.ReminderFailed},
		{model.ReminderReady, model.ReminderPending},
		{model.ReminderMissed, model.ReminderReady},
		{model.ReminderFailed, model.ReminderReady},
		{model.ReminderEscalated, model.ReminderSent},
	}
	for _, edge := range illegal {
		if CanTransition(edge[0], edge[1]) {
			t.Fatalf("%s -> %s should be illegal", edge[0], edge[1])
		}
	}
}
