//go:build !windows
// +build !windows

package midiwindows

import (
	"fmt"

	"github.com/leandrodaf/trackmix/sdk/contracts"
)

var errUnavailable = fmt.Errorf("%w: winmm is not available on this platform", contracts.ErrDevice)

type dummyMIDIOutput struct {
	logger contracts.Logger
}

// NewMIDIOutput initializes a dummy MIDI output for non-Windows systems.
func NewMIDIOutput(options *contracts.ClientOptions) (contracts.MIDIOutput, error) {
	options.Logger.Info("Using dummy MIDI output for non-Windows system")
	return &dummyMIDIOutput{
		logger: options.Logger,
	}, nil
}

// ListDevices logs a warning and reports that MIDI output is unavailable on this platform.
func (m *dummyMIDIOutput) ListDevices() ([]contracts.DeviceInfo, error) {
	m.logger.Warn("ListDevices called on dummy MIDI output")
	return nil, errUnavailable
}

// SelectDevice logs a warning and reports that MIDI output is unavailable on this platform.
func (m *dummyMIDIOutput) SelectDevice(deviceID int) error {
	m.logger.Warn("SelectDevice called on dummy MIDI output")
	return errUnavailable
}

func (m *dummyMIDIOutput) Send(data []byte) error {
	return errUnavailable
}

func (m *dummyMIDIOutput) SendTransport(cmd contracts.MIDICommand) error {
	return errUnavailable
}

// Stop is a no-op.
func (m *dummyMIDIOutput) Stop() error {
	return nil
}
