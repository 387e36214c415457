// Package timing provides the single event loop every console component
// schedules on, and a deterministic fake of it for tests.
//
// Components never lock: timers, media events, surface messages and
// operator commands are all callbacks executed one at a time by the loop.
// Code running outside the loop (HTTP handlers, the operator console)
// enters it with Loop.Do.
package timing
