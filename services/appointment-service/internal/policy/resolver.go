package policy

import (
	"sort"
	"time"
)

// ResolveOffsets canonicalizes the configured reminder offsets: coerce to
// integer minutes, drop non-positive values, deduplicate, sort descending.
// An empty result falls back to DefaultOffsets.
func ResolveOffsets(p Policy) []int {
	seen := make(map[int]struct{}, len(p.WhatsAppOffsetsMinutes))
	var out []int
	for _, raw := range p.WhatsAppOffsetsMinutes {
		m := int(raw)
		if m <= 0 {
			continue
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	if len(out) == 0 {
		out = make([]int, len(DefaultOffsets))
		copy(out, DefaultOffsets)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}

// ResolveRetry fills missing retry sub-keys individually with defaults.
func ResolveRetry(p Policy) RetryPolicy {
	rp := RetryPolicy{
		MaxAttempts:         p.Retry.MaxAttempts,
		EscalateOnExhausted: true,
	}
	if rp.MaxAttempts <= 0 {
		rp.MaxAttempts = DefaultMaxAttempts
	}
	if len(p.Retry.BackoffMinutes) > 0 {
		rp.BackoffMinutes = append([]int(nil), p.Retry.BackoffMinutes...)
	} else {
		rp.BackoffMinutes = append([]int(nil), DefaultBackoffMinutes...)
	}
	if p.Retry.EscalateOnExhausted != nil {
		rp.EscalateOnExhausted = *p.Retry.EscalateOnExhausted
	}
	return rp
}

// InQuietPeriod reports whether ts falls inside the workspace's quiet
// window. Weekend mute is checked first against the policy timezone; the
// clock window may wrap midnight (22:00-08:00).
func InQuietPeriod(ts time.Time, p Policy) bool {
	loc := time.UTC
	if tz := p.QuietHours.Timezone; tz != "" {
		if parsed, err := time.LoadLocation(tz); err == nil {
			loc = parsed
		}
	}
	local := ts.In(loc)

	if p.WeekendMute {
		if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return true
		}
	}

	if !p.QuietHours.Enabled {
		return false
	}
	start, okStart := parseClock(p.QuietHours.Start)
	end, okEnd := parseClock(p.QuietHours.End)
	if !okStart || !okEnd || start == end {
		return false
	}

	minute := local.Hour()*60 + local.Minute()
	if start > end {
		// Wraps midnight: quiet when at/after start or before end.
		return minute >= start || minute < end
	}
	return minute >= start && minute < end
}

// parseClock converts "HH:MM" into minutes from midnight.
func parseClock(s string) (int, bool) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}
