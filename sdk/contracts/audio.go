package contracts

// ChannelInterpretation controls how a node maps channels between inputs.
type ChannelInterpretation string

const (
	Speakers ChannelInterpretation = "speakers"
	Discrete ChannelInterpretation = "discrete"
)

// ChannelCountMode controls how a node derives its channel count.
type ChannelCountMode string

const (
	Max      ChannelCountMode = "max"
	Explicit ChannelCountMode = "explicit"
)

// AudioNode is a vertex of a per-track signal graph.
type AudioNode interface {
	// Connect wires output of this node into input of dst.
	Connect(dst AudioNode, output, input int) error
	// Disconnect removes every outgoing connection.
	Disconnect()
	NumberOfInputs() int
	NumberOfOutputs() int
}

// GainNode scales its input by a linear factor.
type GainNode interface {
	AudioNode
	SetGain(linear float64)
	Gain() float64
}

// ChannelNode is a node whose channel layout can be pinned (mergers, destinations).
type ChannelNode interface {
	AudioNode
	ConfigureChannels(count int, mode ChannelCountMode, interp ChannelInterpretation)
}

// AudioContext owns the nodes of one graph and its output device.
type AudioContext interface {
	DeviceID() string
	// MaxChannelCount reports the output device's channel count.
	MaxChannelCount() (int, error)

	CreateMediaSource(media MediaHandle) (AudioNode, error)
	CreateGain() GainNode
	CreateSplitter(outputs int) AudioNode
	CreateMerger(inputs int) ChannelNode
	Destination() ChannelNode

	// SetSinkID redirects the context output. It returns an error wrapping
	// ErrDevice when the environment cannot redirect.
	SetSinkID(deviceID string) error
	Suspended() bool
	Resume() error
	Close() error
}

// AudioDevice is an output device as reported by the backend.
type AudioDevice struct {
	ID          string
	Label       string
	MaxChannels int
}

// AudioBackend creates contexts bound to output devices.
type AudioBackend interface {
	NewContext(deviceID string) (AudioContext, error)
	Devices() ([]AudioDevice, error)
}
