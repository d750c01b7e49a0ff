// Package recurrence turns a series' repeating rule into bounded,
// ordered candidate dates and materializes them through the same
// appointment-creation path single bookings use.
package recurrence

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/traindesk/traindesk/services/appointment-service/internal/conflict"
	"github.com/traindesk/traindesk/services/appointment-service/internal/model"
)

const (
	// LookaheadDays is the hard horizon for open-ended rules, independent
	// of the occurrence cap.
	LookaheadDays = 180

	maxOccurrences     = 365
	defaultOccurrences = 365
)

// Creator materializes one candidate date into a concrete appointment.
// A conflict.ErrTimeSlotConflict return is expected and counted; any
// other error aborts expansion.
type Creator interface {
	CreateOccurrence(ctx context.Context, series model.AppointmentSeries, date time.Time) error
}

// Result counts what one expansion run produced.
type Result struct {
	Generated        int
	SkippedConflicts int
}

// Expand computes the candidate dates for the series starting at the
// "from" boundary (so edits can regenerate only a suffix), evaluated at
// the given instant. Results are ascending, bounded by the rule's count
// cap, its until date, and the lookahead horizon.
func Expand(series model.AppointmentSeries, from, now time.Time) []time.Time {
	interval := series.Rule.Interval
	if interval < 1 {
		interval = 1
	}
	count := series.Rule.Count
	if count <= 0 || count > maxOccurrences {
		count = defaultOccurrences
	}

	endBoundary := dateOf(now.AddDate(0, 0, LookaheadDays))
	if u := series.Rule.Until; u != nil && dateOf(*u).Before(endBoundary) {
		endBoundary = dateOf(*u)
	}

	start := dateOf(series.StartDate)
	lower := start
	if f := dateOf(from); f.After(lower) {
		lower = f
	}
	if endBoundary.Before(lower) {
		return nil
	}

	switch series.Rule.Frequency {
	case model.FrequencyMonthly:
		return expandMonthly(start, lower, endBoundary, interval, count)
	default:
		return expandWeekly(start, lower, endBoundary, interval, count, series.Rule.Weekdays)
	}
}

// The count cap anchors at the series start: candidates between start and
// the "from" boundary consume the cap even though they are not emitted,
// so a suffix regeneration cannot mint occurrences past the rule's total.
func expandWeekly(start, lower, endBoundary time.Time, interval, count int, weekdays []int) []time.Time {
	days := normalizeWeekdays(weekdays, start)

	var out []time.Time
	total := 0
	weekStart := mondayOf(start)
	for !weekStart.After(endBoundary) && total < count {
		for _, wd := range days {
			d := weekStart.AddDate(0, 0, wd-1)
			if d.Before(start) || d.After(endBoundary) {
				continue
			}
			total++
			if !d.Before(lower) {
				out = append(out, d)
			}
			if total == count {
				break
			}
		}
		weekStart = weekStart.AddDate(0, 0, 7*interval)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func expandMonthly(start, lower, endBoundary time.Time, interval, count int) []time.Time {
	var out []time.Time
	// Offsets anchor on the original start day so a 31st never drifts
	// after passing through a short month.
	for k, total := 0, 0; total < count; k += interval {
		d := addMonthsNoOverflow(start, k)
		if d.After(endBoundary) {
			break
		}
		total++
		if !d.Before(lower) {
			out = append(out, d)
		}
	}
	return out
}

// normalizeWeekdays clamps ISO weekday values into [1,7] and
// deduplicates; an empty set falls back to the start date's own weekday.
func normalizeWeekdays(weekdays []int, start time.Time) []int {
	seen := map[int]struct{}{}
	var out []int
	for _, wd := range weekdays {
		if wd < 1 {
			wd = 1
		}
		if wd > 7 {
			wd = 7
		}
		if _, dup := seen[wd]; dup {
			continue
		}
		seen[wd] = struct{}{}
		out = append(out, wd)
	}
	if len(out) == 0 {
		out = []int{isoWeekday(start)}
	}
	sort.Ints(out)
	return out
}

// addMonthsNoOverflow adds months keeping the anchor's day-of-month,
// clamping to the target month's last day instead of rolling over (Jan 31
// + 1 month = Feb 28/29, not Mar 2/3).
func addMonthsNoOverflow(anchor time.Time, months int) time.Time {
	y, m, d := anchor.Date()
	first := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC).AddDate(0, months, 0)
	if last := daysIn(first.Year(), first.Month()); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, time.UTC)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// isoWeekday maps Go weekdays to ISO numbering (Monday=1 .. Sunday=7).
func isoWeekday(t time.Time) int {
	if wd := int(t.Weekday()); wd != 0 {
		return wd
	}
	return 7
}

func mondayOf(t time.Time) time.Time {
	return dateOf(t).AddDate(0, 0, 1-isoWeekday(t))
}

func dateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Expander ties candidate generation to appointment materialization.
type Expander struct {
	creator Creator
}

func NewExpander(creator Creator) *Expander {
	return &Expander{creator: creator}
}

// Materialize creates one appointment per candidate date. Conflicting
// candidates are skipped and counted; the rest of the batch continues.
func (e *Expander) Materialize(ctx context.Context, series model.AppointmentSeries, from, now time.Time) (Result, error) {
	var res Result
	for _, date := range Expand(series, from, now) {
		err := e.creator.CreateOccurrence(ctx, series, date)
		if err != nil {
			if errors.Is(err, conflict.ErrTimeSlotConflict) {
				res.SkippedConflicts++
				continue
			}
			return res, err
		}
		res.Generated++
	}
	return res, nil
}
