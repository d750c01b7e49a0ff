package clockx

import "time"

// Clock abstracts wall time so sweeps and quiet-hours math can be tested
// against a frozen instant. Implementations must return UTC.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// System returns the real clock.
func System() Clock { return systemClock{} }

// Frozen is a settable clock for tests.
type Frozen struct {
	Current time.Time
}

func NewFrozen(t time.Time) *Frozen { return &Frozen{Current: t.UTC()} }

func (f *Frozen) Now() time.Time { return f.Current }

// Advance moves the frozen clock forward.
func (f *Frozen) Advance(d time.Duration) { f.Current = f.Current.Add(d) }

// Set jumps the frozen clock to t.
func (f *Frozen) Set(t time.Time) { f.Current = t.UTC() }
