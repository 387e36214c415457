package contracts

import "time"

// Timer is a pending callback scheduled on a Clock.
type Timer interface {
	// Stop cancels the callback. It reports false if the callback already ran or was stopped.
	Stop() bool
}

// Clock is the single event loop every component schedules on. Callbacks
// registered with AfterFunc never run concurrently with each other.
type Clock interface {
	// Now returns the elapsed time on a monotonic clock.
	Now() time.Duration
	// AfterFunc runs f on the loop after d. A zero delay queues f behind
	// the callbacks already pending.
	AfterFunc(d time.Duration, f func()) Timer
}
