// Package conflict decides whether a candidate time range would
// double-book a trainer or a student inside a workspace.
package conflict

import (
	"context"
	"errors"
	"time"
)

// ErrTimeSlotConflict is the stable machine-readable rejection for an
// overlapping booking. Callers surface it as a conflict, not a crash.
var ErrTimeSlotConflict = errors.New("time_slot_conflict")

// OverlapFilter is the explicit query shape the guard runs: any
// non-cancelled appointment in the workspace involving the trainer or the
// student whose stored range intersects [Start, End).
type OverlapFilter struct {
	WorkspaceID         string
	TrainerID           string
	StudentID           string
	Start               time.Time
	End                 time.Time
	IgnoreAppointmentID string // the row being updated, if any
}

// AppointmentIndex is the slice of the appointment repository the guard
// needs. The caller is responsible for running Assert inside the same
// transaction as the subsequent write.
type AppointmentIndex interface {
	CountOverlapping(ctx context.Context, f OverlapFilter) (int, error)
}

// Assert returns ErrTimeSlotConflict when an active appointment overlaps
// the candidate range. Adjacent ranges (existing end == candidate start)
// do not conflict.
func Assert(ctx context.Context, idx AppointmentIndex, f OverlapFilter) error {
	n, err := idx.CountOverlapping(ctx, f)
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrTimeSlotConflict
	}
	return nil
}

// Overlaps is the half-open interval test used everywhere overlap is
// decided: [aStart,aEnd) intersects [bStart,bEnd).
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}
