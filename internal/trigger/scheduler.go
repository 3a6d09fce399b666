package trigger

import "time"

// Cancel stops a deferred action. It reports whether the action was prevented
// from running.
type Cancel func() bool

// Scheduler runs deferred actions.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Cancel
}

type systemScheduler struct{}

func (systemScheduler) AfterFunc(d time.Duration, f func()) Cancel {
	return time.AfterFunc(d, f).Stop
}

// SystemScheduler returns a Scheduler backed by time.AfterFunc.
func SystemScheduler() Scheduler {
	return systemScheduler{}
}
