package policy

import (
	"reflect"
	"testing"
	"time"
)

func TestResolveOffsets_Canonicalizes(t *testing.T) {
	p := Policy{WhatsAppOffsetsMinutes: []float64{120, 1440, 120, 60.9, -5, 0}}
	got := ResolveOffsets(p)
	want := []int{1440, 120, 60}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestResolveOffsets_EmptyFallsBackToDefaults(t *testing.T) {
	for _, offsets := range [][]float64{nil, {}, {0, -5}} {
		got := ResolveOffsets(Policy{WhatsAppOffsetsMinutes: offsets})
		if !reflect.DeepEqual(got, []int{1440, 120}) {
			t.Fatalf("offsets %v: expected defaults, got %v", offsets, got)
		}
	}
}

func TestResolveOffsets_Idempotent(t *testing.T) {
	p := Policy{WhatsAppOffsetsMinutes: []float64{30, 120, 30}}
	first := ResolveOffsets(p)

	var again Policy
	for _, m := range first {
		again.WhatsAppOffsetsMinutes = append(again.WhatsAppOffsetsMinutes, float64(m))
	}
	second := ResolveOffsets(again)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("resolve is not idempotent: %v vs %v", first, second)
	}
	for i := 1; i < len(second); i++ {
		if second[i] >= second[i-1] {
			t.Fatalf("offsets not strictly descending: %v", second)
		}
	}
}

func TestResolveRetry_Defaults(t *testing.T) {
	rp := ResolveRetry(Policy{})
	if rp.MaxAttempts != 2 {
		t.Fatalf("expected max_attempts 2, got %d", rp.MaxAttempts)
	}
	if !reflect.DeepEqual(rp.BackoffMinutes, []int{15, 30}) {
		t.Fatalf("expected default backoff, got %v", rp.BackoffMinutes)
	}
	if !rp.EscalateOnExhausted {
		t.Fatal("expected escalate_on_exhausted default true")
	}
}

func TestResolveRetry_PartialOverride(t *testing.T) {
	off := false
	rp := ResolveRetry(Policy{Retry: Retry{MaxAttempts: 5, EscalateOnExhausted: &off}})
	if rp.MaxAttempts != 5 {
		t.Fatalf("expected max_attempts 5, got %d", rp.MaxAttempts)
	}
	if !reflect.DeepEqual(rp.BackoffMinutes, []int{15, 30}) {
		t.Fatalf("backoff should fall back individually, got %v", rp.BackoffMinutes)
	}
	if rp.EscalateOnExhausted {
		t.Fatal("expected escalate_on_exhausted false")
	}
}

func TestRetryPolicy_NextBackoffClampsToLastRung(t *testing.T) {
	rp := ResolveRetry(Policy{Retry: Retry{BackoffMinutes: []int{10, 20}}})
	if d := rp.NextBackoff(0); d != 10*time.Minute {
		t.Fatalf("attempt 0: expected 10m, got %s", d)
	}
	if d := rp.NextBackoff(1); d != 20*time.Minute {
		t.Fatalf("attempt 1: expected 20m, got %s", d)
	}
	if d := rp.NextBackoff(7); d != 20*time.Minute {
		t.Fatalf("attempt 7: expected last rung 20m, got %s", d)
	}
}

func TestInQuietPeriod_WrapsMidnight(t *testing.T) {
	p := Policy{QuietHours: QuietHours{Enabled: true, Timezone: "UTC", Start: "22:00", End: "08:00"}}

	cases := []struct {
		hour int
		want bool
	}{
		{23, true},
		{3, true},
		{14, false},
		{22, true},
		{8, false},
	}
	for _, tc := range cases {
		ts := time.Date(2026, 3, 4, tc.hour, 0, 0, 0, time.UTC) // a Wednesday
		if got := InQuietPeriod(ts, p); got != tc.want {
			t.Fatalf("hour %d: expected %v, got %v", tc.hour, tc.want, got)
		}
	}
}

func TestInQuietPeriod_PlainWindow(t *testing.T) {
	p := Policy{QuietHours: QuietHours{Enabled: true, Start: "12:00", End: "14:00"}}
	if !InQuietPeriod(time.Date(2026, 3, 4, 13, 0, 0, 0, time.UTC), p) {
		t.Fatal("13:00 should be quiet")
	}
	if InQuietPeriod(time.Date(2026, 3, 4, 14, 0, 0, 0, time.UTC), p) {
		t.Fatal("end boundary is exclusive")
	}
	if !InQuietPeriod(time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC), p) {
		t.Fatal("start boundary is inclusive")
	}
}

func TestInQuietPeriod_WeekendMute(t *testing.T) {
	p := Policy{WeekendMute: true, QuietHours: QuietHours{Timezone: "UTC"}}
	sat := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)
	if !InQuietPeriod(sat, p) {
		t.Fatal("saturday should be muted")
	}
	mon := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)
	if InQuietPeriod(mon, p) {
		t.Fatal("monday should not be muted")
	}
}

func TestInQuietPeriod_TimezoneShiftsWeekend(t *testing.T) {
	// 23:00 UTC Friday is already Saturday in Auckland.
	p := Policy{WeekendMute: true, QuietHours: QuietHours{Timezone: "Pacific/Auckland"}}
	fri := time.Date(2026, 3, 6, 23, 0, 0, 0, time.UTC)
	if !InQuietPeriod(fri, p) {
		t.Fatal("friday 23:00 UTC should be weekend in Auckland")
	}
}

func TestInQuietPeriod_DisabledAndBadConfig(t *testing.T) {
	if InQuietPeriod(time.Now().UTC(), Policy{}) {
		t.Fatal("zero policy should never be quiet")
	}
	p := Policy{QuietHours: QuietHours{Enabled: true, Start: "whenever", End: "08:00"}}
	if InQuietPeriod(time.Date(2026, 3, 4, 3, 0, 0, 0, time.UTC), p) {
		t.Fatal("unparsable window should be ignored")
	}
}

func TestParse_BrokenDocumentYieldsDefaults(t *testing.T) {
	p := Parse([]byte(`{not json`))
	if got := ResolveOffsets(p); !reflect.DeepEqual(got, []int{1440, 120}) {
		t.Fatalf("expected default offsets, got %v", got)
	}
	p = Parse([]byte(`{"whatsapp_offsets_minutes":[60,1440]}`))
	if got := ResolveOffsets(p); !reflect.DeepEqual(got, []int{1440, 60}) {
		t.Fatalf("expected [1440 60], got %v", got)
	}
}
