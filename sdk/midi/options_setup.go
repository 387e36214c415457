package midi

import (
	"github.com/leandrodaf/trackmix/internal/logger"
	"github.com/leandrodaf/trackmix/sdk/contracts"
)

// applyDefaultOptions sets default values for ClientOptions if not explicitly provided.
func applyDefaultOptions(opts ...contracts.Option) (contracts.ClientOptions, error) {
	options := &contracts.ClientOptions{}
	for _, opt := range opts {
		opt(options)
	}

	if options.Logger == nil {
		options.Logger = logger.NewZapLogger()
	}
	if options.LogLevel == 0 {
		options.LogLevel = contracts.InfoLevel
	}
	if options.LogFilePath != "" {
		options.Logger.SetDestination(contracts.FileLog, options.LogFilePath)
	}

	if options.MIDIOutputConfig == nil {
		options.MIDIOutputConfig = &contracts.MIDIOutputConfig{}
	}
	if options.MIDIOutputConfig.ClientName == "" {
		options.MIDIOutputConfig.ClientName = "trackmix"
	}
	if options.MIDIOutputConfig.PortName == "" {
		options.MIDIOutputConfig.PortName = "trackmix clock"
	}

	options.Logger.SetLevel(options.LogLevel)
	return *options, nil
}
