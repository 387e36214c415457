package sink

import (
	"github.com/leandrodaf/trackmix/sdk/contracts"
	"go.uber.org/multierr"
)

// Fanout delivers every record to all of its sinks. One failing sink does
// not stop delivery to the rest; the failures are combined.
type Fanout struct {
	Timecode  []contracts.TimecodeSink
	Triggers  []contracts.TriggerSink
	Transport []contracts.TransportSink
}

func (f *Fanout) SendTimecode(frame contracts.TimecodeFrame) error {
	var err error
	for _, s := range f.Timecode {
		err = multierr.Append(err, s.SendTimecode(frame))
	}
	return err
}

func (f *Fanout) SendTrigger(p contracts.TriggerPayload) error {
	var err error
	for _, s := range f.Triggers {
		err = multierr.Append(err, s.SendTrigger(p))
	}
	return err
}

func (f *Fanout) SendTransport(cmd contracts.MIDICommand) error {
	var err error
	for _, s := range f.Transport {
		err = multierr.Append(err, s.SendTransport(cmd))
	}
	return err
}

// Log records every outbound message at debug level.
type Log struct {
	Logger contracts.Logger
}

func (l Log) SendTimecode(frame contracts.TimecodeFrame) error {
	l.Logger.Debug("Timecode out", l.Logger.Field().String("timecode", frame.String()))
	return nil
}

func (l Log) SendTrigger(p contracts.TriggerPayload) error {
	l.Logger.Debug("Trigger out",
		l.Logger.Field().String("address", p.Address),
		l.Logger.Field().String("action", string(p.Action)),
		l.Logger.Field().Float64("time", p.Time))
	return nil
}

func (l Log) SendTransport(cmd contracts.MIDICommand) error {
	if cmd != contracts.TimingClock {
		l.Logger.Debug("Transport out", l.Logger.Field().String("command", cmd.String()))
	}
	return nil
}
