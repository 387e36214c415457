//go:build !darwin
// +build !darwin

package mididarwin

import (
	"fmt"

	"github.com/leandrodaf/trackmix/sdk/contracts"
)

// errUnavailable is returned by every output operation off macOS.
var errUnavailable = fmt.Errorf("%w: CoreMIDI is not available on this platform", contracts.ErrDevice)

type DummyMIDIOutput struct {
	logger contracts.Logger
}

func NewMIDIOutput(options *contracts.ClientOptions) (contracts.MIDIOutput, error) {
	options.Logger.Info("Using dummy MIDI output for non-macOS system")
	return &DummyMIDIOutput{
		logger: options.Logger,
	}, nil
}

func (m *DummyMIDIOutput) ListDevices() ([]contracts.DeviceInfo, error) {
	m.logger.Warn("ListDevices called on dummy MIDI output")
	return nil, errUnavailable
}

func (m *DummyMIDIOutput) SelectDevice(deviceID int) error {
	m.logger.Warn("SelectDevice called on dummy MIDI output")
	return errUnavailable
}

func (m *DummyMIDIOutput) Send(data []byte) error {
	return errUnavailable
}

func (m *DummyMIDIOutput) SendTransport(cmd contracts.MIDICommand) error {
	return errUnavailable
}

func (m *DummyMIDIOutput) Stop() error {
	m.logger.Debug("Stop called on dummy MIDI output")
	return nil
}
