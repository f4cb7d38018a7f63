package onboarding

import "time"

// Clock supplies the current time so sweeps and transitions can be tested
// without waiting on the wall clock.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
