package midi

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/leandrodaf/trackmix/internal/midi/mididarwin"
	"github.com/leandrodaf/trackmix/internal/midi/midiwindows"
	"github.com/leandrodaf/trackmix/sdk/contracts"
)

// ErrUnsupportedOS is returned when the operating system has no MIDI output driver.
var ErrUnsupportedOS = errors.New("unsupported operating system")

// outputInitializers maps OS names to MIDI output initializers.
var outputInitializers = map[string]func(*contracts.ClientOptions) (contracts.MIDIOutput, error){
	"darwin":  mididarwin.NewMIDIOutput,  // macOS (CoreMIDI) output.
	"windows": midiwindows.NewMIDIOutput, // Windows (winmm) output.
}

// NewOutput initializes the MIDI output for the current operating system.
// It supports macOS (Darwin) and Windows, returning ErrUnsupportedOS otherwise.
func NewOutput(opts *contracts.ClientOptions) (contracts.MIDIOutput, error) {
	return newOutputFor(runtime.GOOS, opts)
}

func newOutputFor(goos string, opts *contracts.ClientOptions) (contracts.MIDIOutput, error) {
	if initializer, exists := outputInitializers[goos]; exists {
		return initializer(opts)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedOS, goos)
}
