package console

import (
	"time"

	"github.com/leandrodaf/trackmix/internal/graph"
	"github.com/leandrodaf/trackmix/internal/logger"
	"github.com/leandrodaf/trackmix/internal/playback"
	"github.com/leandrodaf/trackmix/internal/timing"
	"github.com/leandrodaf/trackmix/sdk/contracts"
)

// DefaultSampleInterval is how often the master timeline is read.
const DefaultSampleInterval = 250 * time.Millisecond

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
	options.Logger.SetLevel(options.LogLevel)

	if options.Clock == nil {
		options.Clock = timing.NewLoop()
	}
	if options.AudioBackend == nil {
		options.AudioBackend = graph.NewBackend()
	}
	if options.SettleDelay <= 0 {
		options.SettleDelay = playback.DefaultSettleDelay
	}
	if options.SampleInterval <= 0 {
		options.SampleInterval = DefaultSampleInterval
	}
	return *options, nil
}
