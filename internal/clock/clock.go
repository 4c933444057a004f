package clock

import "time"

// Clock abstracts time so date-dependent code (yearly code sequences, issue
// dates) can be tested.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

// New returns the wall clock.
func New() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}
