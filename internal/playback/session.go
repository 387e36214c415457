// Package playback coordinates the loaded tracks of one session: it plays
// and pauses them together and loops them on the boundary of the longest
// track, holding shorter tracks in a waiting state until the restart.
package playback

import "fmt"

// State is the transport state of a session.
type State int

const (
	Stopped State = iota
	Playing
	// Restarting spans the window between "all tracks paused and rewound"
	// and "all tracks resumed". End-of-stream handlers are inert inside it.
	Restarting
)

func (s State) String() string {
	switch s {
	case Playing:
		return "playing"
	case Restarting:
		return "restarting"
	default:
		return "stopped"
	}
}

var transitions = map[State][]State{
	Stopped:    {Playing},
	Playing:    {Stopped, Restarting},
	Restarting: {Playing, Stopped},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Session is the mutable state shared by the coordinator's operations.
type Session struct {
	state        State
	loop         bool
	resetPending bool
}

func (s *Session) transition(to State) error {
	if s.state == to {
		return nil
	}
	if !canTransition(s.state, to) {
		return fmt.Errorf("invalid session transition %s -> %s", s.state, to)
	}
	s.state = to
	return nil
}
