package playback

import (
	"fmt"
	"sort"
	"time"

	"github.com/leandrodaf/trackmix/sdk/contracts"
	"go.uber.org/multierr"
)

const (
	// DefaultSettleDelay lets reloads complete before a restart resumes playback.
	DefaultSettleDelay = 100 * time.Millisecond
	// ResetHold is how long after the first play following a reset the reset flag stays raised.
	ResetHold = time.Second
)

// Graphs is the part of the audio router the coordinator depends on.
type Graphs interface {
	CreateGraph(slot int, kind contracts.TrackKind, media contracts.MediaHandle) error
	Teardown(slot int)
	ResumeAll() error
}

// VideoBridge receives the coordinator's restart and reset signals.
type VideoBridge interface {
	PauseSync()
	ResumeSync()
	Broadcast(cmd contracts.CommandType)
	SetLoop(loop bool)
}

// Hooks are optional session notifications.
type Hooks struct {
	Start     func()             // a loop restart began; fire start cues
	PlayState func(playing bool) // transport started or stopped
	Restarted func()             // every track resumed after a loop restart
	Reset     func()             // hard stop completed
	Waiting   func(slot int)     // a track entered the waiting state
}

// Coordinator owns the session state machine. It must only be used from the clock's loop.
type Coordinator struct {
	clk    contracts.Clock
	graphs Graphs
	logger contracts.Logger
	bridge VideoBridge
	hooks  Hooks
	settle time.Duration

	session   Session
	tracks    map[int]*Track
	reference *Track
	seq       uint64

	restartGen  uint64
	settleTimer contracts.Timer
	resetTimer  contracts.Timer
}

// New creates a coordinator. A zero settle selects DefaultSettleDelay.
func New(clk contracts.Clock, graphs Graphs, logger contracts.Logger, settle time.Duration) *Coordinator {
	if settle <= 0 {
		settle = DefaultSettleDelay
	}
	return &Coordinator{
		clk:    clk,
		graphs: graphs,
		logger: logger,
		bridge: nopBridge{},
		settle: settle,
		tracks: map[int]*Track{},
	}
}

// SetBridge attaches the video bridge.
func (c *Coordinator) SetBridge(b VideoBridge) {
	if b == nil {
		b = nopBridge{}
	}
	c.bridge = b
}

// SetHooks replaces the session notifications.
func (c *Coordinator) SetHooks(h Hooks) {
	c.hooks = h
}

func (c *Coordinator) State() State       { return c.session.state }
func (c *Coordinator) Playing() bool      { return c.session.state != Stopped }
func (c *Coordinator) Restarting() bool   { return c.session.state == Restarting }
func (c *Coordinator) ResetPending() bool { return c.session.resetPending }
func (c *Coordinator) Loop() bool         { return c.session.loop }

// Reference returns the current longest track, or nil.
func (c *Coordinator) Reference() *Track {
	return c.reference
}

// Track returns the track in slot, or nil.
func (c *Coordinator) Track(slot int) *Track {
	return c.tracks[slot]
}

// Tracks returns the loaded tracks ordered by slot.
func (c *Coordinator) Tracks() []*Track {
	out := make([]*Track, 0, len(c.tracks))
	for _, t := range c.tracks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out
}

// Load puts media into slot, replacing whatever was there, and recomputes
// the reference track.
func (c *Coordinator) Load(slot int, kind contracts.TrackKind, name string, media contracts.MediaHandle) error {
	if old, ok := c.tracks[slot]; ok {
		c.release(old)
	}
	if err := c.graphs.CreateGraph(slot, kind, media); err != nil {
		return fmt.Errorf("loading %s into slot %d: %w", name, slot, err)
	}
	c.seq++
	t := &Track{Slot: slot, Kind: kind, Name: name, Media: media, seq: c.seq}
	t.offMeta = media.On(contracts.EventLoadedMetadata, c.recomputeReference)
	c.tracks[slot] = t
	c.recomputeReference()

	c.logger.Info("Track loaded",
		c.logger.Field().Int("slot", slot),
		c.logger.Field().String("name", name),
		c.logger.Field().String("kind", kind.String()),
		c.logger.Field().Float64("duration", media.Duration()))
	return nil
}

// Unload removes the track in slot.
func (c *Coordinator) Unload(slot int) error {
	t, ok := c.tracks[slot]
	if !ok {
		return fmt.Errorf("%w: slot %d", contracts.ErrUnknownTrack, slot)
	}
	c.release(t)
	delete(c.tracks, slot)
	c.recomputeReference()
	return nil
}

// TogglePlayPause starts or pauses every track together and reports the new state.
func (c *Coordinator) TogglePlayPause() (playing bool, err error) {
	if len(c.tracks) == 0 {
		return false, fmt.Errorf("%w: add a file first", contracts.ErrNoTrackLoaded)
	}
	if c.Playing() {
		c.pause()
		return false, nil
	}
	c.play()
	return true, nil
}

func (c *Coordinator) play() {
	if err := c.graphs.ResumeAll(); err != nil {
		c.logger.Warn("Failed to resume audio contexts", c.logger.Field().Error("error", err))
	}
	if c.reference != nil && c.reference.AtEnd() {
		c.rewindAll()
	}
	for _, t := range c.Tracks() {
		if t.Waiting || t.AtEnd() {
			continue
		}
		c.playTrack(t)
	}
	c.setState(Playing)

	if c.session.resetPending {
		if c.resetTimer != nil {
			c.resetTimer.Stop()
		}
		c.resetTimer = c.clk.AfterFunc(ResetHold, func() {
			c.session.resetPending = false
			c.resetTimer = nil
		})
	}
	c.notifyPlayState(true)
}

func (c *Coordinator) pause() {
	c.cancelRestart()
	for _, t := range c.Tracks() {
		t.Media.Pause()
	}
	c.setState(Stopped)
	c.notifyPlayState(false)
}

// SetLoop enables or disables synchronized looping.
func (c *Coordinator) SetLoop(loop bool) {
	c.session.loop = loop
	c.bindEnded()
	c.bridge.SetLoop(loop)
	c.logger.Info("Loop changed", c.logger.Field().Bool("loop", loop))
}

// RestartAll rewinds every track and resumes them together after the settle delay.
func (c *Coordinator) RestartAll() {
	if c.Restarting() {
		return
	}
	if err := c.session.transition(Restarting); err != nil {
		c.logger.Warn("Restart ignored", c.logger.Field().Error("error", err))
		return
	}
	c.restartGen++
	gen := c.restartGen
	c.logger.Info("Restarting all tracks", c.logger.Field().Int("tracks", len(c.tracks)))

	if c.hooks.Start != nil {
		c.hooks.Start()
	}
	c.bridge.PauseSync()
	c.rewindAll()
	c.bridge.Broadcast(contracts.CmdRestartVideo)

	c.settleTimer = c.clk.AfterFunc(c.settle, func() {
		if gen != c.restartGen || !c.Restarting() {
			return
		}
		c.settleTimer = nil
		c.resumeAfterRestart()
	})
}

func (c *Coordinator) resumeAfterRestart() {
	var errs error
	for _, t := range c.Tracks() {
		errs = multierr.Append(errs, c.playTrack(t))
	}
	c.setState(Playing)
	c.bridge.ResumeSync()
	if errs != nil {
		c.logger.Warn("Restart resumed with suppressed tracks",
			c.logger.Field().Int("failed", len(multierr.Errors(errs))))
	}
	if c.hooks.Restarted != nil {
		c.hooks.Restarted()
	}
}

// Reset is a hard stop: every track paused at 0, transient flags cleared.
func (c *Coordinator) Reset() {
	c.cancelRestart()
	wasPlaying := c.Playing()
	c.session.state = Stopped
	c.session.resetPending = true
	for _, t := range c.tracks {
		t.Waiting = false
	}
	if c.resetTimer != nil {
		c.resetTimer.Stop()
		c.resetTimer = nil
	}
	c.bridge.Broadcast(contracts.CmdResetVideo)
	c.rewindAll()

	c.logger.Info("Session reset")
	if c.hooks.Reset != nil {
		c.hooks.Reset()
	}
	if wasPlaying {
		c.notifyPlayState(false)
	}
}

// SeekAll moves every track to t. Tracks shorter than t are held waiting;
// waiting tracks that t lands inside are released. A seek to or past the
// end of the reference track ends it: the session restarts when looping
// and stops otherwise.
func (c *Coordinator) SeekAll(t float64) {
	refEnded := false
	for _, tr := range c.Tracks() {
		d := tr.Media.Duration()
		if d > 0 && t >= d {
			tr.Media.Pause()
			tr.Media.Seek(d)
			if tr == c.reference {
				refEnded = true
				continue
			}
			tr.Waiting = c.session.loop
			continue
		}
		tr.Media.Seek(t)
		if tr.Waiting {
			tr.Waiting = false
			if c.Playing() {
				c.playTrack(tr)
			}
		}
	}
	if refEnded {
		// A paused seek never reports ended.
		c.onReferenceEnded(c.reference)
	}
}

// rewindAll pauses every track at 0, reloading streams that reached their end.
func (c *Coordinator) rewindAll() {
	for _, t := range c.Tracks() {
		ended := t.AtEnd()
		t.Media.Pause()
		if ended {
			t.Media.Reload()
		} else {
			t.Media.Seek(0)
		}
		t.Waiting = false
	}
}

func (c *Coordinator) playTrack(t *Track) error {
	if err := t.Media.Play(); err != nil {
		c.logger.Warn("Play suppressed",
			c.logger.Field().Int("slot", t.Slot),
			c.logger.Field().String("name", t.Name),
			c.logger.Field().Error("error", err))
		return err
	}
	return nil
}

func (c *Coordinator) onReferenceEnded(t *Track) {
	if t != c.reference {
		return
	}
	if !c.session.loop {
		if c.session.state == Playing {
			c.logger.Info("Reference track ended", c.logger.Field().Int("slot", t.Slot))
			c.setState(Stopped)
			c.notifyPlayState(false)
		}
		return
	}
	if c.session.state != Playing {
		return
	}
	c.RestartAll()
}

func (c *Coordinator) onTrackEnded(t *Track) {
	if !c.session.loop || c.session.state != Playing {
		return
	}
	t.Media.Pause()
	t.Waiting = true
	c.logger.Debug("Track waiting for loop", c.logger.Field().Int("slot", t.Slot))
	if c.hooks.Waiting != nil {
		c.hooks.Waiting(t.Slot)
	}
}

// recomputeReference picks the longest track; equal durations go to the most recently loaded.
func (c *Coordinator) recomputeReference() {
	var ref *Track
	for _, t := range c.tracks {
		d := t.Media.Duration()
		if d <= 0 {
			continue
		}
		if ref == nil || d > ref.Media.Duration() || (d == ref.Media.Duration() && t.seq > ref.seq) {
			ref = t
		}
	}
	if ref != c.reference {
		if ref != nil {
			c.logger.Info("Reference track changed",
				c.logger.Field().Int("slot", ref.Slot),
				c.logger.Field().Float64("duration", ref.Media.Duration()))
		}
		c.reference = ref
	}
	c.bindEnded()
}

// bindEnded gives the reference track the loop listener and every other
// track the waiting listener, removing old bindings first.
func (c *Coordinator) bindEnded() {
	for _, t := range c.tracks {
		t.unbind()
	}
	for _, t := range c.tracks {
		t := t
		if t == c.reference {
			t.offEnded = t.Media.On(contracts.EventEnded, func() { c.onReferenceEnded(t) })
		} else {
			t.offEnded = t.Media.On(contracts.EventEnded, func() { c.onTrackEnded(t) })
		}
	}
}

func (c *Coordinator) release(t *Track) {
	t.unbind()
	if t.offMeta != nil {
		t.offMeta()
		t.offMeta = nil
	}
	t.Media.Pause()
	c.graphs.Teardown(t.Slot)
	if c.reference == t {
		c.reference = nil
	}
}

// cancelRestart drops a pending resume and turns drift correction back on.
func (c *Coordinator) cancelRestart() {
	c.restartGen++
	if c.settleTimer != nil {
		c.settleTimer.Stop()
		c.settleTimer = nil
		c.bridge.ResumeSync()
	}
}

func (c *Coordinator) setState(to State) {
	if err := c.session.transition(to); err != nil {
		c.logger.Warn("Unexpected session transition", c.logger.Field().Error("error", err))
		c.session.state = to
	}
}

func (c *Coordinator) notifyPlayState(playing bool) {
	if c.hooks.PlayState != nil {
		c.hooks.PlayState(playing)
	}
}

type nopBridge struct{}

func (nopBridge) PauseSync()                      {}
func (nopBridge) ResumeSync()                     {}
func (nopBridge) Broadcast(contracts.CommandType) {}
func (nopBridge) SetLoop(bool)                    {}
