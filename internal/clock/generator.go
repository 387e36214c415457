// Package clock generates a MIDI beat clock: 24 timing bytes per quarter
// note plus the Start, Continue and Stop transport bytes.
package clock

import (
	"fmt"
	"math"
	"time"

	"github.com/leandrodaf/trackmix/sdk/contracts"
)

const (
	PPQN       = 24
	MinBPM     = 20.0
	MaxBPM     = 400.0
	DefaultBPM = 120.0
	// StartTolerance is the window in seconds around a beat within which
	// CheckStartTime accepts the playhead as being on it.
	StartTolerance = 0.05
	// RestartGap separates the Stop and Start bytes of a restart.
	RestartGap = 10 * time.Millisecond
)

// ValidBPM reports whether bpm is inside [MinBPM, MaxBPM].
func ValidBPM(bpm float64) bool {
	return bpm >= MinBPM && bpm <= MaxBPM && !math.IsNaN(bpm)
}

// TickPeriod returns the interval between timing bytes at bpm.
func TickPeriod(bpm float64) time.Duration {
	return time.Duration(60 * float64(time.Second) / bpm / PPQN)
}

// BeatInBar maps a beat number, possibly negative, to its 1-based position in a bar.
func BeatInBar(n, beatsPerBar int) int {
	return ((n%beatsPerBar)+beatsPerBar)%beatsPerBar + 1
}

// Beat is a beat located on the playhead by CheckStartTime.
type Beat struct {
	Number int // relative to the start offset; negative before it
	InBar  int
}

// Status is a snapshot of the generator for display.
type Status struct {
	Enabled     bool
	Playing     bool
	BPM         float64
	Valid       bool
	BeatsPerBar int
	Beat        int // metronome position in the bar, 0 while stopped
	Ticks       uint64
	Sent        uint64
	Failed      uint64
	LastError   string
}

// Generator is the drift-corrected clock. It is driven by its Clock and
// must only be used from that clock's loop.
type Generator struct {
	clk    contracts.Clock
	sink   contracts.TransportSink
	logger contracts.Logger

	enabled     bool
	bpm         float64
	valid       bool
	beatsPerBar int
	startOffset float64

	playing      bool
	timer        contracts.Timer
	restartTimer contracts.Timer
	expectedNext time.Duration
	tickCount    int
	beatCounter  int

	hasSentStart bool
	lastBeat     int
	haveLastBeat bool

	onClick func(inBar int)

	ticks, sent, failed uint64
	lastErr             error
}

// New creates a disabled generator at DefaultBPM in 4/4.
func New(clk contracts.Clock, sink contracts.TransportSink, logger contracts.Logger) *Generator {
	return &Generator{
		clk:         clk,
		sink:        sink,
		logger:      logger,
		bpm:         DefaultBPM,
		valid:       true,
		beatsPerBar: 4,
	}
}

// SetSink replaces the transport destination. A nil sink discards bytes.
func (g *Generator) SetSink(sink contracts.TransportSink) {
	g.sink = sink
}

// OnClick registers the metronome hook, called on every quarter note with
// the position in the bar. Position 1 is the accented beat.
func (g *Generator) OnClick(fn func(inBar int)) {
	g.onClick = fn
}

// SetEnabled gates every send. Disabling a running clock stops it.
func (g *Generator) SetEnabled(on bool) {
	if !on && g.playing {
		g.Stop()
	}
	g.enabled = on
	g.logger.Info("MIDI clock enabled state changed", g.logger.Field().Bool("enabled", on))
}

// SetBPM changes the tempo. An out-of-range value stops the clock and
// suppresses every send until a valid tempo is set; it is not an error
// for the caller. A valid change while playing reschedules the next tick
// from now and keeps the beat phase.
func (g *Generator) SetBPM(bpm float64) {
	g.bpm = bpm
	g.valid = ValidBPM(bpm)
	if !g.valid {
		g.logger.Warn("BPM out of range; clock stopped",
			g.logger.Field().Float64("bpm", bpm),
			g.logger.Field().Error("error", fmt.Errorf("%w: bpm %v outside [%v, %v]", contracts.ErrTransportInvalid, bpm, MinBPM, MaxBPM)))
		g.halt()
		return
	}
	if g.playing && g.timer != nil {
		g.timer.Stop()
		g.schedule()
	}
	g.logger.Info("BPM updated", g.logger.Field().Float64("bpm", bpm))
}

// SetBeatsPerBar sets the time signature numerator. Values below 1 are ignored.
func (g *Generator) SetBeatsPerBar(n int) {
	if n >= 1 {
		g.beatsPerBar = n
	}
}

// SetStartOffset sets the playhead time in seconds of beat zero.
func (g *Generator) SetStartOffset(sec float64) {
	g.startOffset = max(0, sec)
	g.ResetStart()
}

func (g *Generator) StartOffset() float64 { return g.startOffset }
func (g *Generator) Playing() bool        { return g.playing }

// Start begins the clock with a Start byte.
func (g *Generator) Start() { g.begin(contracts.Start) }

// Continue begins the clock with a Continue byte.
func (g *Generator) Continue() { g.begin(contracts.Continue) }

func (g *Generator) begin(cmd contracts.MIDICommand) {
	if !g.enabled || g.playing || !g.valid {
		return
	}
	g.playing = true
	g.tickCount = 0
	g.send(cmd)
	g.beatCounter = 1
	g.click()
	g.schedule()
	g.logger.Info("MIDI clock running",
		g.logger.Field().String("command", cmd.String()),
		g.logger.Field().Float64("bpm", g.bpm))
}

// Stop sends a Stop byte and halts the clock.
func (g *Generator) Stop() {
	if !g.playing {
		return
	}
	g.send(contracts.Stop)
	g.halt()
	g.logger.Info("MIDI clock stopped")
}

// Restart sends Stop, then Start RestartGap later, realigning downstream
// devices to bar one. It does nothing unless the clock is running.
func (g *Generator) Restart() {
	if !g.enabled || !g.playing {
		return
	}
	g.send(contracts.Stop)
	g.cancelTimers()
	g.restartTimer = g.clk.AfterFunc(RestartGap, func() {
		g.restartTimer = nil
		if !g.playing {
			return
		}
		g.send(contracts.Start)
		g.tickCount = 0
		g.beatCounter = 1
		g.click()
		g.schedule()
	})
	g.logger.Debug("MIDI clock restarted")
}

// ResetStart re-arms the one-time Start of CheckStartTime.
func (g *Generator) ResetStart() {
	g.hasSentStart = false
	g.haveLastBeat = false
}

// CheckStartTime locates the playhead t (seconds) on the beat grid. It
// reports a beat when t is within StartTolerance of one that has not been
// reported yet, and starts the clock the first time t reaches the start offset.
func (g *Generator) CheckStartTime(t float64) (Beat, bool) {
	if !g.valid {
		return Beat{}, false
	}
	if !g.hasSentStart && math.Abs(t-g.startOffset) <= StartTolerance {
		g.Start()
		g.hasSentStart = g.playing
	}

	interval := 60 / g.bpm
	n := int(math.Floor((t - g.startOffset) / interval))
	at := g.startOffset + float64(n)*interval
	if math.Abs(t-at) > StartTolerance || (g.haveLastBeat && n == g.lastBeat) {
		return Beat{}, false
	}
	g.lastBeat, g.haveLastBeat = n, true
	return Beat{Number: n, InBar: BeatInBar(n, g.beatsPerBar)}, true
}

// Status returns a snapshot.
func (g *Generator) Status() Status {
	s := Status{
		Enabled:     g.enabled,
		Playing:     g.playing,
		BPM:         g.bpm,
		Valid:       g.valid,
		BeatsPerBar: g.beatsPerBar,
		Ticks:       g.ticks,
		Sent:        g.sent,
		Failed:      g.failed,
	}
	if g.playing {
		s.Beat = g.beatCounter
	}
	if g.lastErr != nil {
		s.LastError = g.lastErr.Error()
	}
	return s
}

// schedule arms the first tick one period from now.
func (g *Generator) schedule() {
	period := TickPeriod(g.bpm)
	g.expectedNext = g.clk.Now() + period
	g.timer = g.clk.AfterFunc(period, g.tick)
}

func (g *Generator) tick() {
	if !g.playing {
		return
	}
	g.ticks++
	g.send(contracts.TimingClock)

	g.tickCount++
	if g.tickCount >= PPQN {
		g.tickCount = 0
		g.beatCounter = g.beatCounter%g.beatsPerBar + 1
		g.click()
	}

	period := TickPeriod(g.bpm)
	lateness := g.clk.Now() - g.expectedNext
	g.expectedNext += period
	g.timer = g.clk.AfterFunc(max(0, period-lateness), g.tick)
}

func (g *Generator) click() {
	if g.onClick != nil {
		g.onClick(g.beatCounter)
	}
}

func (g *Generator) halt() {
	g.playing = false
	g.beatCounter = 0
	g.cancelTimers()
}

func (g *Generator) cancelTimers() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	if g.restartTimer != nil {
		g.restartTimer.Stop()
		g.restartTimer = nil
	}
}

func (g *Generator) send(cmd contracts.MIDICommand) {
	if !g.enabled || !g.valid || g.sink == nil {
		return
	}
	if err := g.sink.SendTransport(cmd); err != nil {
		g.failed++
		g.lastErr = err
		g.logger.Warn("MIDI send failed",
			g.logger.Field().String("command", cmd.String()),
			g.logger.Field().Error("error", err))
		return
	}
	g.sent++
}
