package contracts

// TrackKind distinguishes mono audio tracks from stereo video tracks.
type TrackKind int

const (
	// KindAudio is a single-channel track routed through one gain stage.
	KindAudio TrackKind = iota
	// KindVideo is a stereo track split into left/right gain stages.
	KindVideo
)

func (k TrackKind) String() string {
	if k == KindVideo {
		return "video"
	}
	return "audio"
}

// MediaEvent names an event emitted by a MediaHandle.
type MediaEvent string

const (
	EventPlay           MediaEvent = "play"
	EventPause          MediaEvent = "pause"
	EventTimeUpdate     MediaEvent = "timeupdate"
	EventSeeked         MediaEvent = "seeked"
	EventRateChange     MediaEvent = "ratechange"
	EventEnded          MediaEvent = "ended"
	EventLoadedMetadata MediaEvent = "loadedmetadata"
)

// MediaHandle is an external decoding primitive. Positions and durations
// are in seconds. Events are delivered asynchronously on the Clock loop.
type MediaHandle interface {
	Duration() float64 // 0 while unknown.
	CurrentTime() float64
	Paused() bool
	Ended() bool
	PlaybackRate() float64

	Play() error
	Pause()
	Seek(t float64)
	SetPlaybackRate(rate float64)
	// Reload resets the source so a stream that reached its natural end can play again.
	Reload()
	// SetSinkID redirects the element's output to another device.
	SetSinkID(deviceID string) error

	// On registers fn for ev and returns a function removing it.
	On(ev MediaEvent, fn func()) (off func())
}
