// Package policy normalizes a workspace's reminder configuration into
// canonical values. Everything here is pure: no state, no I/O.
package policy

import (
	"encoding/json"
	"time"
)

type QuietHours struct {
	Enabled  bool   `json:"enabled"`
	Timezone string `json:"timezone"`
	Start    string `json:"start"` // "HH:MM" local
	End      string `json:"end"`
}

type Retry struct {
	MaxAttempts         int    `json:"max_attempts"`
	BackoffMinutes      []int  `json:"backoff_minutes"`
	EscalateOnExhausted *bool  `json:"escalate_on_exhausted"`
}

// Policy is the JSON-shaped reminder configuration owned by the workspace
// aggregate. This engine only reads it.
type Policy struct {
	WhatsAppOffsetsMinutes []float64  `json:"whatsapp_offsets_minutes"`
	QuietHours             QuietHours `json:"quiet_hours"`
	WeekendMute            bool       `json:"weekend_mute"`
	Retry                  Retry      `json:"retry"`
}

// Parse decodes a raw policy document. A nil/empty document or a broken
// one yields the zero policy, which resolves to defaults everywhere;
// workspace settings are user-edited JSON and must never take the engine
// down.
func Parse(raw []byte) Policy {
	var p Policy
	if len(raw) == 0 {
		return p
	}
	_ = json.Unmarshal(raw, &p)
	return p
}

// DefaultOffsets is used when a workspace configures no usable offsets:
// 24 hours and 2 hours before start.
var DefaultOffsets = []int{1440, 120}

const (
	DefaultMaxAttempts = 2
)

var DefaultBackoffMinutes = []int{15, 30}

// RetryPolicy is the resolved retry configuration.
type RetryPolicy struct {
	MaxAttempts         int
	BackoffMinutes      []int
	EscalateOnExhausted bool
}

// NextBackoff returns the delay before the next retry after the given
// number of attempts. Attempts past the end of the ladder reuse the last
// rung.
func (r RetryPolicy) NextBackoff(attempts int) time.Duration {
	if len(r.BackoffMinutes) == 0 {
		return time.Duration(DefaultBackoffMinutes[len(DefaultBackoffMinutes)-1]) * time.Minute
	}
	idx := attempts
	if idx < 0 {
		idx = 0
	}
	if idx >= len(r.BackoffMinutes) {
		idx = len(r.BackoffMinutes) - 1
	}
	return time.Duration(r.BackoffMinutes[idx]) * time.Minute
}
