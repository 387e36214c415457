package contracts

// MIDICommand is a single-byte MIDI status.
type MIDICommand byte

const (
	// NoteOn is the MIDI command for a Note On event (0x90).
	NoteOn MIDICommand = 0x90
	// NoteOff is the MIDI command for a Note Off event (0x80).
	NoteOff MIDICommand = 0x80

	// TimingClock is the real-time clock tick, sent 24 times per quarter note.
	TimingClock MIDICommand = 0xF8
	// Start restarts the external sequencer from the top.
	Start MIDICommand = 0xFA
	// Continue resumes the external sequencer from its current position.
	Continue MIDICommand = 0xFB
	// Stop halts the external sequencer.
	Stop MIDICommand = 0xFC
)

// String returns the transport name of real-time commands.
func (c MIDICommand) String() string {
	switch c {
	case TimingClock:
		return "clock"
	case Start:
		return "start"
	case Continue:
		return "continue"
	case Stop:
		return "stop"
	case NoteOn:
		return "note-on"
	case NoteOff:
		return "note-off"
	default:
		return "unknown"
	}
}

// DeviceInfo describes a MIDI output destination.
type DeviceInfo struct {
	Name         string // Device name.
	Manufacturer string // Device manufacturer.
	EntityName   string // Name of the entity to which the device belongs.
}

// TransportSink receives real-time transport bytes from the clock generator.
type TransportSink interface {
	SendTransport(cmd MIDICommand) error
}

// MIDIOutput is a platform MIDI output port.
type MIDIOutput interface {
	TransportSink
	ListDevices() ([]DeviceInfo, error) // Lists available MIDI destinations.
	SelectDevice(deviceID int) error    // Opens a destination by index; closes the previous one.
	Send(data []byte) error             // Sends a raw short message.
	Stop() error                        // Closes the port and releases resources.
}
