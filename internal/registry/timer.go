package registry

import "time"

// TimerFactory abstracts the host's delayed-execution primitive so the
// registry's arming logic is portable (and testable with a manual clock).
type TimerFactory interface {
	// Arm schedules fn to run once after d and returns its cancel token.
	Arm(d time.Duration, fn func()) Timer
}

// Timer is the cancel token of one armed timer.
type Timer interface {
	// Disarm cancels the timer. It returns false when the callback
	// already ran or was already queued to run; callers must not rely
	// on Disarm alone to suppress the callback's effect.
	Disarm() bool
}

// SystemTimers backs timers with time.AfterFunc.
func SystemTimers() TimerFactory { return sysFactory{} }

type sysFactory struct{}

func (sysFactory) Arm(d time.Duration, fn func()) Timer {
	return sysTimer{t: time.AfterFunc(d, fn)}
}

type sysTimer struct{ t *time.Timer }

func (s sysTimer) Disarm() bool { return s.t.Stop() }
