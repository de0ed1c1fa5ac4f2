package app

import "time"

// Timer cancellable delayed action
type Timer interface {
	// Stop prevents the action from firing, false if it already fired or was stopped
	Stop() bool
}

// Clock time source of the read tracker, replaced by a fake clock in tests
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SystemClock wall clock backed by time.AfterFunc
var SystemClock Clock = systemClock{}
