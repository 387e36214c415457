package playback

import "github.com/leandrodaf/trackmix/sdk/contracts"

// endTolerance is how close to its duration a stream counts as finished.
const endTolerance = 0.1

// Track is one loaded slot.
type Track struct {
	Slot  int
	Kind  contracts.TrackKind
	Name  string
	Media contracts.MediaHandle

	// Waiting is set when the track ended before the reference track and is
	// held paused until the next synchronized restart.
	Waiting bool

	seq      uint64
	offEnded func()
	offMeta  func()
}

// AtEnd reports whether the track's stream reached its natural end.
func (t *Track) AtEnd() bool {
	return atEnd(t.Media)
}

func atEnd(m contracts.MediaHandle) bool {
	if m.Ended() {
		return true
	}
	d := m.Duration()
	return d > 0 && m.CurrentTime() >= d-endTolerance
}

func (t *Track) unbind() {
	if t.offEnded != nil {
		t.offEnded()
		t.offEnded = nil
	}
}
