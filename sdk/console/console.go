// Package console assembles the mixing console: one event loop driving the
// audio router, the playback session, video surfaces, the MIDI clock,
// timecode and cue triggers.
package console

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"path/filepath"
	"time"

	"github.com/leandrodaf/trackmix/internal/clock"
	"github.com/leandrodaf/trackmix/internal/media"
	"github.com/leandrodaf/trackmix/internal/playback"
	"github.com/leandrodaf/trackmix/internal/router"
	"github.com/leandrodaf/trackmix/internal/timecode"
	"github.com/leandrodaf/trackmix/internal/trigger"
	"github.com/leandrodaf/trackmix/internal/videosync"
	"github.com/leandrodaf/trackmix/sdk/contracts"
)

// rewindThreshold is how far the playhead must fall back between two
// samples for the triggers to be re-armed.
const rewindThreshold = 1.0

type runner interface {
	Run(ctx context.Context) error
	Do(ctx context.Context, f func()) error
}

// Console is the assembled mixer. Except for Run and Do, its methods must
// be called on the console loop.
type Console struct {
	clk       contracts.Clock
	logger    contracts.Logger
	backend   contracts.AudioBackend
	publisher contracts.MediaPublisher

	router   *router.Router
	playback *playback.Coordinator
	video    *videosync.Bridge
	clock    *clock.Generator
	timecode *timecode.Emitter
	triggers *trigger.Scheduler

	interval time.Duration
	sampler  contracts.Timer
	lastTime float64
}

// NewConsole creates a console with the specified options.
//
// Without WithClock the console gets its own real-time loop, which does
// nothing until Run is called.
func NewConsole(opts ...contracts.Option) (*Console, error) {
	options, err := applyDefaultOptions(opts...)
	if err != nil {
		return nil, err
	}
	log := options.Logger

	c := &Console{
		clk:       options.Clock,
		logger:    log,
		backend:   options.AudioBackend,
		publisher: options.MediaPublisher,
		interval:  options.SampleInterval,
	}
	c.router = router.New(options.AudioBackend, log.Named("router"), options.MergerFloor, options.DefaultChannels)
	c.playback = playback.New(c.clk, c.router, log.Named("playback"), options.SettleDelay)
	c.video = videosync.New(c.clk, options.SurfaceFactory, c.playback, log.Named("video"))
	c.playback.SetBridge(c.video)

	c.clock = clock.New(c.clk, options.Sinks.Transport, log.Named("clock"))
	c.timecode = timecode.NewEmitter(options.Sinks.Timecode, log.Named("timecode"))
	c.triggers = trigger.NewScheduler(log.Named("trigger"))
	for name, s := range options.Sinks.Triggers {
		c.triggers.SetSink(name, s)
	}

	c.playback.SetHooks(playback.Hooks{
		Start:     c.onRestartBegin,
		PlayState: c.onPlayState,
		Restarted: c.onRestarted,
		Reset:     c.onReset,
		Waiting: func(slot int) {
			log.Debug("Track held until loop restart", log.Field().Int("slot", slot))
		},
	})
	c.sampler = c.clk.AfterFunc(c.interval, c.sampleTick)
	return c, nil
}

func (c *Console) Router() *router.Router          { return c.router }
func (c *Console) Playback() *playback.Coordinator { return c.playback }
func (c *Console) Video() *videosync.Bridge        { return c.video }
func (c *Console) Clock() *clock.Generator         { return c.clock }
func (c *Console) Timecode() *timecode.Emitter     { return c.timecode }
func (c *Console) Triggers() *trigger.Scheduler    { return c.triggers }
func (c *Console) Backend() contracts.AudioBackend { return c.backend }
func (c *Console) EventClock() contracts.Clock     { return c.clk }
func (c *Console) Logger() contracts.Logger        { return c.logger }

// Run drives the console loop until ctx is cancelled. With an injected
// clock that is not a loop it only waits for ctx.
func (c *Console) Run(ctx context.Context) error {
	if r, ok := c.clk.(runner); ok {
		return r.Run(ctx)
	}
	<-ctx.Done()
	return ctx.Err()
}

// Do runs f on the console loop and waits for it. It is safe from any goroutine.
func (c *Console) Do(ctx context.Context, f func()) error {
	if r, ok := c.clk.(runner); ok {
		return r.Do(ctx, f)
	}
	f()
	return nil
}

// Load probes path and loads it into slot. duration, when positive,
// overrides the probed length and is required for containers that cannot
// be probed.
func (c *Console) Load(slot int, path string, duration float64) error {
	info, err := media.Probe(path)
	if err != nil {
		return err
	}
	if duration > 0 {
		info.Duration = duration
	}
	if info.Duration <= 0 {
		return fmt.Errorf("%w: duration of %s is unknown", contracts.ErrValidation, info.Name)
	}
	return c.LoadMedia(slot, info.Kind, info.Name, media.NewVirtual(c.clk, info.Name, info.Duration), path)
}

// LoadMedia loads an already opened handle into slot. Video tracks also
// get a render surface; a surface that cannot be opened is logged and the
// track keeps playing its audio.
func (c *Console) LoadMedia(slot int, kind contracts.TrackKind, name string, m contracts.MediaHandle, path string) error {
	c.video.Detach(slot)
	if err := c.playback.Load(slot, kind, name, m); err != nil {
		return err
	}
	if kind == contracts.KindVideo {
		if err := c.video.Attach(slot, m, c.source(name, path)); err != nil {
			c.logger.Warn("Video surface unavailable",
				c.logger.Field().Int("slot", slot),
				c.logger.Field().Error("error", err))
		}
	}
	c.sample()
	return nil
}

func (c *Console) source(name, path string) videosync.Source {
	src := videosync.Source{Filename: name}
	if path == "" {
		return src
	}
	if c.publisher != nil {
		src.URL, src.Release = c.publisher.Register(path)
		return src
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	src.URL = (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
	return src
}

// Unload empties slot.
func (c *Console) Unload(slot int) error {
	c.video.Detach(slot)
	return c.playback.Unload(slot)
}

// TogglePlay starts or pauses every track and reports the new state.
func (c *Console) TogglePlay() (bool, error) {
	return c.playback.TogglePlayPause()
}

// Restart rewinds every track and resumes them together.
func (c *Console) Restart() {
	c.playback.RestartAll()
}

// Reset stops every track at 0.
func (c *Console) Reset() {
	c.playback.Reset()
}

// SetLoop enables or disables synchronized looping.
func (c *Console) SetLoop(loop bool) {
	c.playback.SetLoop(loop)
}

// Seek moves every track to t seconds and re-arms every trigger.
func (c *Console) Seek(t float64) error {
	if math.IsNaN(t) || math.IsInf(t, 0) || t < 0 {
		return fmt.Errorf("%w: seek position %v", contracts.ErrValidation, t)
	}
	c.playback.SeekAll(t)
	c.triggers.ResetAll()
	c.lastTime = c.Position()
	return nil
}

// SetMaster sets the master level applied to every track.
func (c *Console) SetMaster(db float64, muted bool) {
	c.router.Master().Set(db, muted)
}

// Devices lists the audio outputs.
func (c *Console) Devices() ([]contracts.AudioDevice, error) {
	devices, err := c.backend.Devices()
	if err != nil {
		return nil, fmt.Errorf("%w: listing outputs: %v", contracts.ErrDevice, err)
	}
	return devices, nil
}

// Close stops sampling, the clock and every surface.
func (c *Console) Close() {
	if c.sampler != nil {
		c.sampler.Stop()
		c.sampler = nil
	}
	c.clock.Stop()
	for _, t := range c.playback.Tracks() {
		c.video.Detach(t.Slot)
	}
}

// Position returns the reference track's playhead, or 0.
func (c *Console) Position() float64 {
	if ref := c.playback.Reference(); ref != nil {
		return ref.Media.CurrentTime()
	}
	return 0
}

func (c *Console) onPlayState(playing bool) {
	if !playing {
		c.clock.Stop()
		return
	}
	t, offset := c.Position(), c.clock.StartOffset()
	switch {
	case t > offset+clock.StartTolerance:
		c.clock.Continue()
	case offset <= 0:
		c.clock.Start()
	}
	// Otherwise the sampler starts the clock when the playhead reaches the offset.
}

func (c *Console) onRestartBegin() {
	c.triggers.SignalStart(0)
	c.triggers.ResetAll()
	c.lastTime = 0
}

func (c *Console) onRestarted() {
	c.clock.ResetStart()
	if c.clock.StartOffset() <= 0 {
		c.clock.Restart()
		return
	}
	c.clock.Stop()
}

func (c *Console) onReset() {
	c.clock.Stop()
	c.clock.ResetStart()
	c.triggers.ResetAll()
	c.lastTime = 0
}

func (c *Console) sampleTick() {
	c.sample()
	c.sampler = c.clk.AfterFunc(c.interval, c.sampleTick)
}

// sample reads the reference playhead and feeds triggers, timecode and the clock.
func (c *Console) sample() {
	ref := c.playback.Reference()
	if ref == nil {
		c.lastTime = 0
		return
	}
	t := ref.Media.CurrentTime()
	if t < c.lastTime-rewindThreshold {
		c.triggers.ResetAll()
		c.logger.Debug("Playhead moved back; triggers re-armed",
			c.logger.Field().Float64("from", c.lastTime),
			c.logger.Field().Float64("to", t))
	}
	c.lastTime = t

	if !ref.Media.Paused() && !ref.Media.Ended() {
		c.triggers.Sample(t)
		if beat, ok := c.clock.CheckStartTime(t); ok {
			c.logger.Debug("Beat",
				c.logger.Field().Int("beat", beat.Number),
				c.logger.Field().Int("inBar", beat.InBar))
		}
	}
	if t > 0 {
		c.timecode.Sample(t)
	}
}
