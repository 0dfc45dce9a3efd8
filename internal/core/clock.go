package core

import "time"

// Clock abstracts wall-clock reads and timer creation so the scheduling
// loop can be driven by virtual time in tests.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) Timer
}

// Timer is the subset of time.Timer the scheduling loop needs.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

type systemClock struct{}

// SystemClock is the production Clock backed by the time package.
var SystemClock Clock = systemClock{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) NewTimer(d time.Duration) Timer {
	return systemTimer{t: time.NewTimer(d)}
}

type systemTimer struct{ t *time.Timer }

func (s systemTimer) C() <-chan time.Time { return s.t.C }
func (s systemTimer) Stop() bool          { return s.t.Stop() }
