package conflict

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"
)

type staticIndex struct {
	intervals [][2]time.Time
}

func (s *staticIndex) CountOverlapping(_ context.Context, f OverlapFilter) (int, error) {
	n := 0
	for _, iv := range s.intervals {
		if Overlaps(iv[0], iv[1], f.Start, f.End) {
			n++
		}
	}
	return n, nil
}

func TestAssert_AdjacentIsNotAConflict(t *testing.T) {
	base := time.Date(2026, 2, 20, 10, 0, 0, 0, time.UTC)
	idx := &staticIndex{intervals: [][2]time.Time{{base, base.Add(time.Hour)}}}

	// Back-to-back booking starting exactly at the existing end.
	err := Assert(context.Background(), idx, OverlapFilter{
		Start: base.Add(time.Hour),
		End:   base.Add(2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("adjacent range should be free, got %v", err)
	}

	// Half-hour overlap must be rejected.
	err = Assert(context.Background(), idx, OverlapFilter{
		Start: base.Add(30 * time.Minute),
		End:   base.Add(90 * time.Minute),
	})
	if !errors.Is(err, ErrTimeSlotConflict) {
		t.Fatalf("expected time_slot_conflict, got %v", err)
	}
}

func TestAssert_ContainedAndSpanningRanges(t *testing.T) {
	base := time.Date(2026, 2, 20, 10, 0, 0, 0, time.UTC)
	idx := &staticIndex{intervals: [][2]time.Time{{base, base.Add(time.Hour)}}}

	cases := []struct {
		name       string
		start, end time.Time
		conflict   bool
	}{
		{"inside", base.Add(15 * time.Minute), base.Add(45 * time.Minute), true},
		{"covers", base.Add(-time.Hour), base.Add(2 * time.Hour), true},
		{"identical", base, base.Add(time.Hour), true},
		{"before", base.Add(-2 * time.Hour), base.Add(-time.Hour), false},
		{"touches start", base.Add(-time.Hour), base, false},
	}
	for _, tc := range cases {
		err := Assert(context.Background(), idx, OverlapFilter{Start: tc.start, End: tc.end})
		if tc.conflict && !errors.Is(err, ErrTimeSlotConflict) {
			t.Fatalf("%s: expected conflict, got %v", tc.name, err)
		}
		if !tc.conflict && err != nil {
			t.Fatalf("%s: expected free, got %v", tc.name, err)
		}
	}
}

// Property: for random interval sets, Assert rejects exactly the candidates
// that genuinely intersect an existing interval under half-open semantics.
func TestAssert_RandomIntervalsProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	day := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	for iter := 0; iter < 200; iter++ {
		idx := &staticIndex{}
		for i := 0; i < 5; i++ {
			start := day.Add(time.Duration(rng.Intn(20)) * time.Hour)
			idx.intervals = append(idx.intervals, [2]time.Time{
				start, start.Add(time.Duration(1+rng.Intn(3)) * time.Hour),
			})
		}

		candStart := day.Add(time.Duration(rng.Intn(22)) * time.Hour)
		candEnd := candStart.Add(time.Duration(1+rng.Intn(3)) * time.Hour)

		wantConflict := false
		for _, iv := range idx.intervals {
			if candStart.Before(iv[1]) && iv[0].Before(candEnd) {
				wantConflict = true
				break
			}
		}

		err := Assert(context.Background(), idx, OverlapFilter{Start: candStart, End: candEnd})
		gotConflict := errors.Is(err, ErrTimeSlotConflict)
		if gotConflict != wantConflict {
			t.Fatalf("iter %d: candidate [%s,%s) conflict=%v, want %v",
				iter, candStart, candEnd, gotConflict, wantConflict)
		}
	}
}
