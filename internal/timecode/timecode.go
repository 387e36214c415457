// Package timecode converts playhead positions to SMPTE-style frames and
// hands them to a timecode sink.
package timecode

import (
	"fmt"
	"math"

	"github.com/leandrodaf/trackmix/sdk/contracts"
)

// DefaultFPS is the frame rate used when none is configured.
const DefaultFPS = 25.0

// Rates lists the supported frame rates.
var Rates = []float64{24, 25, 29.97, 30}

// ValidFPS reports whether fps is one of Rates.
func ValidFPS(fps float64) bool {
	for _, r := range Rates {
		if fps == r {
			return true
		}
	}
	return false
}

// FromSeconds splits t into hours, minutes, seconds and frames. Each field
// is derived from t directly; negative input is treated as zero.
func FromSeconds(t, fps float64) contracts.TimecodeFrame {
	if t < 0 || math.IsNaN(t) {
		t = 0
	}
	f := contracts.TimecodeFrame{
		Hours:   int(math.Floor(t / 3600)),
		Minutes: int(math.Floor(math.Mod(t, 3600) / 60)),
		Seconds: int(math.Floor(math.Mod(t, 60))),
		FPS:     fps,
	}
	_, frac := math.Modf(t)
	f.Frames = int(math.Floor(frac * fps))
	if limit := int(math.Ceil(fps)) - 1; f.Frames > limit {
		f.Frames = limit
	}
	return f
}

// Status is a snapshot of the emitter.
type Status struct {
	Enabled   bool
	FPS       float64
	Last      string
	Sent      uint64
	Failed    uint64
	LastError string
}

// Emitter samples the playhead into frames for a sink.
type Emitter struct {
	sink    contracts.TimecodeSink
	logger  contracts.Logger
	enabled bool
	fps     float64

	last         contracts.TimecodeFrame
	sent, failed uint64
	lastErr      error
}

// NewEmitter creates a disabled emitter at DefaultFPS.
func NewEmitter(sink contracts.TimecodeSink, logger contracts.Logger) *Emitter {
	return &Emitter{sink: sink, logger: logger, fps: DefaultFPS}
}

func (e *Emitter) SetEnabled(on bool) { e.enabled = on }
func (e *Emitter) Enabled() bool      { return e.enabled }

// SetSink replaces the destination. A nil sink discards frames.
func (e *Emitter) SetSink(sink contracts.TimecodeSink) { e.sink = sink }

// SetFPS changes the frame rate. Unsupported rates are rejected.
func (e *Emitter) SetFPS(fps float64) error {
	if !ValidFPS(fps) {
		return fmt.Errorf("%w: frame rate %v not in %v", contracts.ErrValidation, fps, Rates)
	}
	e.fps = fps
	return nil
}

// Sample converts t and sends it when enabled. It returns the frame and
// whether it was handed to the sink. Sink failures are recorded, not returned.
func (e *Emitter) Sample(t float64) (contracts.TimecodeFrame, bool) {
	frame := FromSeconds(t, e.fps)
	if !e.enabled || e.sink == nil {
		return frame, false
	}
	e.last = frame
	if err := e.sink.SendTimecode(frame); err != nil {
		e.failed++
		e.lastErr = err
		e.logger.Warn("Timecode send failed",
			e.logger.Field().String("timecode", frame.String()),
			e.logger.Field().Error("error", err))
		return frame, false
	}
	e.sent++
	e.logger.Debug("Timecode sent", e.logger.Field().String("timecode", frame.String()))
	return frame, true
}

// Status returns a snapshot.
func (e *Emitter) Status() Status {
	s := Status{Enabled: e.enabled, FPS: e.fps, Last: e.last.String(), Sent: e.sent, Failed: e.failed}
	if e.lastErr != nil {
		s.LastError = e.lastErr.Error()
	}
	return s
}
