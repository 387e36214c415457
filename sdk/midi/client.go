package midi

import (
	"github.com/leandrodaf/trackmix/sdk/contracts"
)

// NewMIDIOutput creates a MIDI output port with the specified options.
// It applies default options and picks the platform driver.
//
// opts ...contracts.Option: A variadic list of option functions to customize the output configuration.
//
// Returns:
//   - contracts.MIDIOutput: The platform MIDI output.
//   - error: An error, if any occurred during the creation of the output.
func NewMIDIOutput(opts ...contracts.Option) (contracts.MIDIOutput, error) {
	options, err := applyDefaultOptions(opts...)
	if err != nil {
		return nil, err
	}

	output, err := NewOutput(&options)
	if err != nil {
		return nil, err
	}

	return output, nil
}
