package contracts

// CommandType is the discriminator of a surface protocol message.
type CommandType string

const (
	CmdLoadVideo       CommandType = "LOAD_VIDEO"
	CmdSetLoop         CommandType = "SET_LOOP"
	CmdPlay            CommandType = "PLAY"
	CmdPause           CommandType = "PAUSE"
	CmdSeek            CommandType = "SEEK"
	CmdSetPlaybackRate CommandType = "SET_PLAYBACK_RATE"
	CmdRestartVideo    CommandType = "RESTART_VIDEO"
	CmdResetVideo      CommandType = "RESET_VIDEO"
	CmdGetVideoStatus  CommandType = "GET_VIDEO_STATUS"

	// Inbound.
	MsgWindowReady CommandType = "VIDEO_WINDOW_READY"
	MsgVideoStatus CommandType = "VIDEO_STATUS"
	MsgVideoEnded  CommandType = "VIDEO_ENDED"
)

// MessageData carries the optional payload fields of every message type.
type MessageData struct {
	URL         string   `json:"url,omitempty"`
	Filename    string   `json:"filename,omitempty"`
	Loop        *bool    `json:"loop,omitempty"`
	Time        *float64 `json:"time,omitempty"`
	Rate        *float64 `json:"rate,omitempty"`
	Ended       *bool    `json:"ended,omitempty"`
	CurrentTime *float64 `json:"currentTime,omitempty"`
}

// SurfaceMessage is one protocol message in either direction.
type SurfaceMessage struct {
	Type CommandType  `json:"type"`
	Data *MessageData `json:"data,omitempty"`
}

// Surface is an out-of-process render surface reachable only by messages.
type Surface interface {
	ID() string
	// Send queues msg for delivery. It fails with ErrSurfaceUnavailable once closed.
	Send(msg SurfaceMessage) error
	// OnMessage registers the inbound handler. Messages are delivered on the Clock loop.
	OnMessage(fn func(SurfaceMessage))
	Closed() bool
	Close() error
}

// SurfaceFactory opens a render surface for a track slot.
type SurfaceFactory interface {
	Open(slot int) (Surface, error)
}

// MediaPublisher exposes a local file to render surfaces.
type MediaPublisher interface {
	// Register returns the URL surfaces load path from and a function revoking it.
	Register(path string) (url string, revoke func())
}
