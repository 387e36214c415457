//go:build darwin
// +build darwin

package mididarwin

import (
	"errors"
	"fmt"
	"sync"

	"github.com/leandrodaf/trackmix/sdk/contracts"
	"github.com/youpy/go-coremidi"
)

// Error definitions for MIDI connection and output issues.
var (
	ErrNoMIDIDevices     = errors.New("no MIDI destinations found")
	ErrInvalidMIDIDevice = errors.New("invalid MIDI device")
	ErrCreateOutputPort  = errors.New("error creating output port")
	ErrNoDeviceSelected  = errors.New("no MIDI destination selected")
	ErrClientStopped     = errors.New("MIDI output stopped")
)

// OutputMid sends MIDI to a CoreMIDI destination on Darwin (macOS).
type OutputMid struct {
	logger      contracts.Logger
	client      coremidi.Client     // CoreMIDI client instance.
	port        coremidi.OutputPort // Output port the packets leave through.
	destination *coremidi.Destination
	mu          sync.Mutex // Guards destination and stopped.
	stopped     bool
	stopOnce    sync.Once
}

// NewMIDIOutput creates a CoreMIDI client and output port.
func NewMIDIOutput(options *contracts.ClientOptions) (contracts.MIDIOutput, error) {
	client, err := coremidi.NewClient(options.MIDIOutputConfig.ClientName)
	if err != nil {
		return nil, err
	}
	port, err := coremidi.NewOutputPort(client, options.MIDIOutputConfig.PortName)
	if err != nil {
		options.Logger.Error(ErrCreateOutputPort.Error())
		return nil, fmt.Errorf("%w: %v", ErrCreateOutputPort, err)
	}
	options.Logger.Info("MIDI output successfully created",
		options.Logger.Field().String("client", options.MIDIOutputConfig.ClientName))

	return &OutputMid{logger: options.Logger, client: client, port: port}, nil
}

// ListDevices returns the available MIDI destinations.
func (m *OutputMid) ListDevices() ([]contracts.DeviceInfo, error) {
	destinations, err := coremidi.AllDestinations()
	if err != nil {
		return nil, fmt.Errorf("error listing MIDI destinations: %w", err)
	}
	if len(destinations) == 0 {
		m.logger.Warn(ErrNoMIDIDevices.Error())
		return nil, ErrNoMIDIDevices
	}

	devices := make([]contracts.DeviceInfo, len(destinations))
	for i, d := range destinations {
		entity := d.Entity()
		devices[i] = contracts.DeviceInfo{
			Name:         d.Name(),
			EntityName:   entity.Name(),
			Manufacturer: entity.Manufacturer(),
		}
	}
	return devices, nil
}

// SelectDevice routes further output to the destination at deviceID.
func (m *OutputMid) SelectDevice(deviceID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	destinations, err := coremidi.AllDestinations()
	if err != nil {
		return fmt.Errorf("error retrieving MIDI destinations: %w", err)
	}
	if deviceID < 0 || deviceID >= len(destinations) {
		m.logger.Error(ErrInvalidMIDIDevice.Error(), m.logger.Field().Int("deviceID", deviceID))
		return ErrInvalidMIDIDevice
	}

	d := destinations[deviceID]
	m.destination = &d
	m.logger.Info("MIDI destination selected",
		m.logger.Field().Int("deviceID", deviceID),
		m.logger.Field().String("deviceName", d.Name()))
	return nil
}

// Send writes one MIDI message to the selected destination.
func (m *OutputMid) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return ErrClientStopped
	}
	if m.destination == nil {
		return ErrNoDeviceSelected
	}
	packet := coremidi.NewPacket(data, 0)
	if err := packet.Send(&m.port, m.destination); err != nil {
		return fmt.Errorf("send to %s: %w", m.destination.Name(), err)
	}
	return nil
}

// SendTransport writes a single real-time byte.
func (m *OutputMid) SendTransport(cmd contracts.MIDICommand) error {
	return m.Send([]byte{byte(cmd)})
}

// Stop sends a transport Stop to the selected destination and refuses further output.
func (m *OutputMid) Stop() error {
	m.stopOnce.Do(func() {
		m.logger.Info("Stopping MIDI output")
		if err := m.SendTransport(contracts.Stop); err != nil && !errors.Is(err, ErrNoDeviceSelected) {
			m.logger.Warn("Final Stop not delivered", m.logger.Field().Error("error", err))
		}
		m.mu.Lock()
		m.stopped = true
		m.destination = nil
		m.mu.Unlock()
	})
	return nil
}
