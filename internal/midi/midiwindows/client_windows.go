//go:build windows
// +build windows

package midiwindows

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/leandrodaf/trackmix/sdk/contracts"
	"golang.org/x/sys/windows"
)

// Type definitions for MIDI handles
type HMIDIOUT windows.Handle

// CALLBACK_NULL opens the device without a completion callback.
const CALLBACK_NULL = 0x00000000

// Struct representing MIDI output device capabilities (MIDIOUTCAPSW)
type midiOutCaps struct {
	wMid           uint16
	wPid           uint16
	vDriverVersion uint32
	szPname        [32]uint16
	wTechnology    uint16
	wVoices        uint16
	wNotes         uint16
	wChannelMask   uint16
	dwSupport      uint32
}

var (
	ErrNoMIDIDevices    = errors.New("no MIDI output devices found")
	ErrNoDeviceSelected = errors.New("no MIDI output device selected")
	ErrShortMessage     = errors.New("short messages carry 1 to 3 bytes")
)

// OutputMid sends MIDI through a winmm output device on Windows
type OutputMid struct {
	logger  contracts.Logger
	handle  HMIDIOUT
	open    bool
	mu      sync.Mutex
	stopped bool
}

// Load the winmm.dll library and required functions
var (
	winmm                 = windows.NewLazySystemDLL("winmm.dll")
	procMidiOutGetNumDevs = winmm.NewProc("midiOutGetNumDevs")
	procMidiOutGetDevCaps = winmm.NewProc("midiOutGetDevCapsW")
	procMidiOutOpen       = winmm.NewProc("midiOutOpen")
	procMidiOutShortMsg   = winmm.NewProc("midiOutShortMsg")
	procMidiOutReset      = winmm.NewProc("midiOutReset")
	procMidiOutClose      = winmm.NewProc("midiOutClose")
)

// NewMIDIOutput creates a MIDI output for Windows
func NewMIDIOutput(options *contracts.ClientOptions) (contracts.MIDIOutput, error) {
	options.Logger.Info("MIDI output created for Windows")
	return &OutputMid{logger: options.Logger}, nil
}

// ListDevices lists the available MIDI output devices
func (m *OutputMid) ListDevices() ([]contracts.DeviceInfo, error) {
	r0, _, _ := procMidiOutGetNumDevs.Call()
	numDevices := uint32(r0)
	if numDevices == 0 {
		m.logger.Warn(ErrNoMIDIDevices.Error())
		return nil, ErrNoMIDIDevices
	}

	devices := make([]contracts.DeviceInfo, numDevices)
	for i := uint32(0); i < numDevices; i++ {
		var caps midiOutCaps
		r1, _, _ := procMidiOutGetDevCaps.Call(
			uintptr(i),
			uintptr(unsafe.Pointer(&caps)),
			unsafe.Sizeof(caps),
		)
		if r1 != 0 {
			m.logger.Warn("Failed to get information for MIDI device", m.logger.Field().Int("deviceID", int(i)))
			continue
		}
		deviceName := windows.UTF16ToString(caps.szPname[:])
		devices[i] = contracts.DeviceInfo{
			Name:         deviceName,
			EntityName:   deviceName,
			Manufacturer: fmt.Sprintf("MID: %d PID: %d", caps.wMid, caps.wPid),
		}
	}
	return devices, nil
}

// SelectDevice opens a MIDI output device, closing the previous one
func (m *OutputMid) SelectDevice(deviceID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.open {
		if err := m.closeDevice(); err != nil {
			return fmt.Errorf("failed to close previous MIDI device: %w", err)
		}
	}

	r1, _, err := procMidiOutOpen.Call(
		uintptr(unsafe.Pointer(&m.handle)),
		uintptr(deviceID),
		0,
		0,
		CALLBACK_NULL,
	)
	if r1 != 0 {
		m.logger.Error("Failed to open MIDI device", m.logger.Field().Int("deviceID", deviceID), m.logger.Field().Error("error", err))
		return fmt.Errorf("%w: failed to open MIDI device %d (mmresult %d)", contracts.ErrDevice, deviceID, r1)
	}

	m.open = true
	m.stopped = false
	m.logger.Info("MIDI device connected", m.logger.Field().Int("deviceID", deviceID))
	return nil
}

// Send packs up to three bytes into a short message
func (m *OutputMid) Send(data []byte) error {
	if len(data) == 0 || len(data) > 3 {
		return ErrShortMessage
	}
	var msg uint32
	for i, b := range data {
		msg |= uint32(b) << (8 * i)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open || m.stopped {
		return ErrNoDeviceSelected
	}
	r1, _, _ := procMidiOutShortMsg.Call(uintptr(m.handle), uintptr(msg))
	if r1 != 0 {
		return fmt.Errorf("midiOutShortMsg failed (mmresult %d)", r1)
	}
	return nil
}

// SendTransport writes a single real-time byte
func (m *OutputMid) SendTransport(cmd contracts.MIDICommand) error {
	return m.Send([]byte{byte(cmd)})
}

// Stop resets and closes the device
func (m *OutputMid) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.open {
		m.logger.Debug("No MIDI device is connected")
		return nil
	}
	if err := m.closeDevice(); err != nil {
		return fmt.Errorf("failed to close MIDI device: %w", err)
	}
	m.stopped = true
	m.logger.Info("MIDI output closed")
	return nil
}

// closeDevice releases the handle
func (m *OutputMid) closeDevice() error {
	if m.handle == 0 {
		return fmt.Errorf("invalid MIDI device handle")
	}

	procMidiOutShortMsg.Call(uintptr(m.handle), uintptr(contracts.Stop))
	r1, _, err := procMidiOutReset.Call(uintptr(m.handle))
	if r1 != 0 {
		m.logger.Error("Failed to reset MIDI device", m.logger.Field().Error("error", err))
		return err
	}

	r1, _, err = procMidiOutClose.Call(uintptr(m.handle))
	if r1 != 0 {
		m.logger.Error("Failed to close MIDI device", m.logger.Field().Error("error", err))
		return err
	}

	m.open = false
	m.handle = 0
	return nil
}
