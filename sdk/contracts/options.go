package contracts

import "time"

// MIDIOutputConfig holds configuration for the platform MIDI output port.
type MIDIOutputConfig struct {
	ClientName string // Name registered with the OS MIDI service.
	PortName   string // Name of the output port.
}

// Sinks groups the protocol sinks the console hands finished records to.
type Sinks struct {
	Transport TransportSink
	Timecode  TimecodeSink
	Triggers  map[string]TriggerSink // keyed by the name triggers refer to
}

// ClientOptions defines the configuration options for the console and the MIDI output.
type ClientOptions struct {
	Logger           Logger            // Logger for logging events and errors.
	LogLevel         LogLevel          // Level of logging to use.
	LogFilePath      string            // File path for logging if file logging is enabled.
	MIDIOutputConfig *MIDIOutputConfig // Configuration specific to the MIDI output port.

	Clock          Clock          // Event loop; defaults to a real-time loop.
	AudioBackend   AudioBackend   // Defaults to the in-memory graph backend.
	Sinks          Sinks          // Missing sinks are replaced with no-ops.
	SurfaceFactory SurfaceFactory // Nil disables video surfaces.
	MediaPublisher MediaPublisher // Nil hands surfaces file:// URLs.

	SettleDelay     time.Duration // Pause between rewind and resume during a loop restart.
	SampleInterval  time.Duration // Master timeline sampling period.
	MergerFloor     int           // Minimum merger size.
	DefaultChannels int           // Channel count assumed when a device query fails.
}

// Option is a function that modifies ClientOptions.
type Option func(*ClientOptions)

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(opts *ClientOptions) {
		opts.Logger = l
	}
}

// WithLogLevel sets the logging level.
func WithLogLevel(level LogLevel) Option {
	return func(opts *ClientOptions) {
		opts.LogLevel = level
	}
}

// WithLogFile directs logs to path.
func WithLogFile(path string) Option {
	return func(opts *ClientOptions) {
		opts.LogFilePath = path
	}
}

// WithMIDIOutputConfig sets the MIDI output port configuration.
func WithMIDIOutputConfig(config MIDIOutputConfig) Option {
	return func(opts *ClientOptions) {
		opts.MIDIOutputConfig = &config
	}
}

// WithClock sets the event loop every component schedules on.
func WithClock(c Clock) Option {
	return func(opts *ClientOptions) {
		opts.Clock = c
	}
}

// WithAudioBackend sets the audio graph backend.
func WithAudioBackend(b AudioBackend) Option {
	return func(opts *ClientOptions) {
		opts.AudioBackend = b
	}
}

// WithTransportSink sets where clock transport bytes go.
func WithTransportSink(s TransportSink) Option {
	return func(opts *ClientOptions) {
		opts.Sinks.Transport = s
	}
}

// WithTimecodeSink sets where timecode frames go.
func WithTimecodeSink(s TimecodeSink) Option {
	return func(opts *ClientOptions) {
		opts.Sinks.Timecode = s
	}
}

// WithTriggerSink registers a trigger destination under name.
func WithTriggerSink(name string, s TriggerSink) Option {
	return func(opts *ClientOptions) {
		if opts.Sinks.Triggers == nil {
			opts.Sinks.Triggers = map[string]TriggerSink{}
		}
		opts.Sinks.Triggers[name] = s
	}
}

// WithSurfaceFactory enables video surfaces.
func WithSurfaceFactory(f SurfaceFactory) Option {
	return func(opts *ClientOptions) {
		opts.SurfaceFactory = f
	}
}

// WithMediaPublisher sets how video files are exposed to surfaces.
func WithMediaPublisher(p MediaPublisher) Option {
	return func(opts *ClientOptions) {
		opts.MediaPublisher = p
	}
}

// WithSettleDelay overrides the loop restart settling delay.
func WithSettleDelay(d time.Duration) Option {
	return func(opts *ClientOptions) {
		opts.SettleDelay = d
	}
}

// WithSampleInterval overrides the master timeline sampling period.
func WithSampleInterval(d time.Duration) Option {
	return func(opts *ClientOptions) {
		opts.SampleInterval = d
	}
}

// WithMergerFloor overrides the minimum merger size.
func WithMergerFloor(n int) Option {
	return func(opts *ClientOptions) {
		opts.MergerFloor = n
	}
}

// WithDefaultChannels overrides the channel count assumed when a device query fails.
func WithDefaultChannels(n int) Option {
	return func(opts *ClientOptions) {
		opts.DefaultChannels = n
	}
}
