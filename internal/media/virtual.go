// Package media provides a clock-driven media handle and file probing.
//
// Virtual stands in for an external decoder: it tracks position against
// the console clock, emits the usual element events asynchronously and
// reaches its natural end after Duration seconds of playback.
package media

import (
	"fmt"
	"time"

	"github.com/leandrodaf/trackmix/sdk/contracts"
)

// TimeUpdateInterval is how often a playing Virtual emits timeupdate.
const TimeUpdateInterval = 250 * time.Millisecond

type listener struct {
	fn      func()
	removed bool
}

// Virtual implements contracts.MediaHandle on a contracts.Clock.
type Virtual struct {
	clk      contracts.Clock
	name     string
	duration float64

	pos     float64
	anchor  time.Duration
	playing bool
	ended   bool
	rate    float64
	sinkID  string

	endTimer  contracts.Timer
	tickTimer contracts.Timer
	listeners map[contracts.MediaEvent][]*listener

	// RequireReload makes Play fail after a natural end until Reload is called.
	RequireReload bool
	// PlayErr, when set, makes every Play fail.
	PlayErr error
	// SinkErr, when set, makes SetSinkID fail.
	SinkErr error
}

// NewVirtual creates a paused handle of the given duration in seconds.
func NewVirtual(clk contracts.Clock, name string, duration float64) *Virtual {
	return &Virtual{
		clk:       clk,
		name:      name,
		duration:  duration,
		rate:      1,
		sinkID:    "default",
		listeners: map[contracts.MediaEvent][]*listener{},
	}
}

func (v *Virtual) Name() string          { return v.name }
func (v *Virtual) Duration() float64     { return v.duration }
func (v *Virtual) Paused() bool          { return !v.playing }
func (v *Virtual) Ended() bool           { return v.ended }
func (v *Virtual) PlaybackRate() float64 { return v.rate }
func (v *Virtual) SinkID() string        { return v.sinkID }

// CurrentTime returns the playback position in seconds.
func (v *Virtual) CurrentTime() float64 {
	if !v.playing {
		return v.pos
	}
	t := v.pos + (v.clk.Now() - v.anchor).Seconds()*v.rate
	return min(t, v.duration)
}

// Play starts playback. At a natural end it restarts from 0 unless RequireReload is set.
func (v *Virtual) Play() error {
	if v.PlayErr != nil {
		return fmt.Errorf("%w: %s: %v", contracts.ErrPlaySuppressed, v.name, v.PlayErr)
	}
	if v.ended {
		if v.RequireReload {
			return fmt.Errorf("%w: %s ended and was not reloaded", contracts.ErrPlaySuppressed, v.name)
		}
		v.pos = 0
		v.ended = false
	}
	if v.playing {
		return nil
	}
	v.playing = true
	v.anchor = v.clk.Now()
	v.schedule()
	v.emit(contracts.EventPlay)
	return nil
}

// Pause stops playback in place.
func (v *Virtual) Pause() {
	if !v.playing {
		return
	}
	v.pos = v.CurrentTime()
	v.playing = false
	v.cancelTimers()
	v.emit(contracts.EventPause)
}

// Seek moves the position, clamped to [0, Duration].
func (v *Virtual) Seek(t float64) {
	v.pos = max(0, min(t, v.duration))
	v.anchor = v.clk.Now()
	v.ended = false
	if v.playing {
		v.schedule()
	}
	v.emit(contracts.EventSeeked)
	v.emit(contracts.EventTimeUpdate)
}

// SetPlaybackRate changes the speed without moving the position.
func (v *Virtual) SetPlaybackRate(rate float64) {
	if rate <= 0 || rate == v.rate {
		return
	}
	v.pos = v.CurrentTime()
	v.anchor = v.clk.Now()
	v.rate = rate
	if v.playing {
		v.schedule()
	}
	v.emit(contracts.EventRateChange)
}

// Reload resets the source to a paused state at 0.
func (v *Virtual) Reload() {
	v.cancelTimers()
	v.playing = false
	v.ended = false
	v.pos = 0
	v.emit(contracts.EventLoadedMetadata)
}

// SetSinkID records the output device.
func (v *Virtual) SetSinkID(deviceID string) error {
	if v.SinkErr != nil {
		return fmt.Errorf("%w: %v", contracts.ErrDevice, v.SinkErr)
	}
	v.sinkID = deviceID
	return nil
}

// On registers fn for ev.
func (v *Virtual) On(ev contracts.MediaEvent, fn func()) (off func()) {
	l := &listener{fn: fn}
	v.listeners[ev] = append(v.listeners[ev], l)
	return func() {
		l.removed = true
		ls := v.listeners[ev]
		for i, x := range ls {
			if x == l {
				v.listeners[ev] = append(ls[:i:i], ls[i+1:]...)
				break
			}
		}
	}
}

// Listeners reports how many handlers are registered for ev.
func (v *Virtual) Listeners(ev contracts.MediaEvent) int {
	return len(v.listeners[ev])
}

func (v *Virtual) schedule() {
	v.cancelTimers()
	remaining := (v.duration - v.pos) / v.rate
	v.endTimer = v.clk.AfterFunc(time.Duration(remaining*float64(time.Second)), v.reachEnd)
	v.tickTimer = v.clk.AfterFunc(TimeUpdateInterval, v.tick)
}

func (v *Virtual) tick() {
	if !v.playing {
		return
	}
	v.emit(contracts.EventTimeUpdate)
	v.tickTimer = v.clk.AfterFunc(TimeUpdateInterval, v.tick)
}

func (v *Virtual) reachEnd() {
	if !v.playing {
		return
	}
	v.cancelTimers()
	v.pos = v.duration
	v.playing = false
	v.ended = true
	v.emit(contracts.EventTimeUpdate)
	v.emit(contracts.EventPause)
	v.emit(contracts.EventEnded)
}

func (v *Virtual) cancelTimers() {
	if v.endTimer != nil {
		v.endTimer.Stop()
		v.endTimer = nil
	}
	if v.tickTimer != nil {
		v.tickTimer.Stop()
		v.tickTimer = nil
	}
}

// emit delivers ev on the next loop turn to the listeners registered now
// and still registered at delivery.
func (v *Virtual) emit(ev contracts.MediaEvent) {
	ls := append([]*listener(nil), v.listeners[ev]...)
	if len(ls) == 0 {
		return
	}
	v.clk.AfterFunc(0, func() {
		for _, l := range ls {
			if !l.removed {
				l.fn()
			}
		}
	})
}
