// Package reminder owns the reminder state machine and its lifecycle
// operations: the sync reconciliation run with appointment writes, the
// four periodic sweeps, and the manual operator moves.
package reminder

import (
	"errors"

	"github.com/traindesk/traindesk/services/appointment-service/internal/model"
)

// ErrInvalidTransition rejects a state machine move not present in the
// transition table. The write never happens.
var ErrInvalidTransition = errors.New("invalid_reminder_transition")

// transitions lists every legal edge. sent and cancelled are terminal.
var transitions = map[model.ReminderStatus][]model.ReminderStatus{
	model.ReminderPending:   {model.ReminderReady, model.ReminderCancelled, model.ReminderMissed},
	model.ReminderReady:     {model.ReminderSent, model.ReminderCancelled, model.ReminderMissed, model.ReminderFailed},
	model.ReminderMissed:    {model.ReminderPending, model.ReminderEscalated},
	model.ReminderFailed:    {model.ReminderPending, model.ReminderEscalated},
	model.ReminderEscalated: {model.ReminderPending, model.ReminderCancelled},
	model.ReminderSent:      {},
	model.ReminderCancelled: {},
}

// CanTransition reports whether from may move to to. A same-state move is
// always allowed as an idempotent no-op.
func CanTransition(from, to model.ReminderStatus) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
