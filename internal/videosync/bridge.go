// Package videosync keeps out-of-process video surfaces phase-locked to
// their audio tracks. The bridge only sends commands; apart from the
// one-time ready handshake it never waits for a reply.
package videosync

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/leandrodaf/trackmix/sdk/contracts"
)

const (
	// HardDrift forces a SEEK regardless of when the last correction was sent.
	HardDrift = 1.0
	// SoftDrift triggers a SEEK only when SoftInterval has passed since the last correction.
	SoftDrift    = 0.3
	SoftInterval = 5 * time.Second
	// A sampled time falling from above LoopJumpFrom to below LoopJumpTo is a
	// replay the bridge did not initiate.
	LoopJumpFrom = 10.0
	LoopJumpTo   = 1.0
	// InitialSyncDelay is the wait between the ready handshake and the first full sync.
	InitialSyncDelay = 500 * time.Millisecond
	// StatusCheckDelay is how long PLAY waits for a VIDEO_STATUS reply.
	StatusCheckDelay = 50 * time.Millisecond
	// DefaultLeaseInterval is how often surface liveness is checked.
	DefaultLeaseInterval = time.Second

	nearStart   = 0.1
	nearEnd     = 0.1
	initialSeek = 1.0
)

// SessionState is the playback session as seen by the bridge.
type SessionState interface {
	Restarting() bool
	ResetPending() bool
	Loop() bool
}

// Source is the media handed to a surface. Release revokes it.
type Source struct {
	URL      string
	Filename string
	Release  func()
}

type link struct {
	slot    int
	surface contracts.Surface
	media   contracts.MediaHandle
	source  Source

	ready bool
	ended bool // last state reported by the surface

	lastAudioTime float64
	lastSync      time.Duration
	synced        bool

	offs        []func()
	initial     contracts.Timer
	statusCheck contracts.Timer
	lease       *Lease
}

// Bridge maps track slots to render surfaces.
type Bridge struct {
	clk           contracts.Clock
	factory       contracts.SurfaceFactory
	session       SessionState
	logger        contracts.Logger
	leaseInterval time.Duration

	links      map[int]*link
	batching   bool
	syncPaused bool
}

// New creates a bridge. A nil factory makes Attach fail with ErrSurfaceUnavailable.
func New(clk contracts.Clock, factory contracts.SurfaceFactory, session SessionState, logger contracts.Logger) *Bridge {
	return &Bridge{
		clk:           clk,
		factory:       factory,
		session:       session,
		logger:        logger,
		leaseInterval: DefaultLeaseInterval,
		links:         map[int]*link{},
	}
}

// SetLeaseInterval changes how often liveness is checked for surfaces attached afterwards.
func (b *Bridge) SetLeaseInterval(d time.Duration) {
	if d > 0 {
		b.leaseInterval = d
	}
}

// Attach opens a surface for slot and binds it to media once the surface
// reports ready. An existing surface for the slot is released first.
func (b *Bridge) Attach(slot int, media contracts.MediaHandle, src Source) error {
	if b.factory == nil {
		return fmt.Errorf("%w: no surface transport configured", contracts.ErrSurfaceUnavailable)
	}
	b.Detach(slot)

	s, err := b.factory.Open(slot)
	if err != nil {
		if src.Release != nil {
			src.Release()
		}
		return fmt.Errorf("%w: slot %d: %v", contracts.ErrSurfaceUnavailable, slot, err)
	}
	l := &link{slot: slot, surface: s, media: media, source: src}
	s.OnMessage(func(msg contracts.SurfaceMessage) { b.handle(l, msg) })
	l.lease = NewLease(b.clk, b.leaseInterval, func() bool { return !s.Closed() }, func() { b.expire(l) })
	b.links[slot] = l

	b.logger.Info("Video surface opened",
		b.logger.Field().Int("slot", slot),
		b.logger.Field().String("surface", s.ID()),
		b.logger.Field().String("file", src.Filename))
	return nil
}

// Detach closes slot's surface and releases everything bound to it.
func (b *Bridge) Detach(slot int) {
	if l, ok := b.links[slot]; ok {
		b.release(l)
		if err := l.surface.Close(); err != nil {
			b.logger.Debug("Surface close failed", b.logger.Field().Int("slot", slot), b.logger.Field().Error("error", err))
		}
	}
}

// Attached reports whether slot has a live surface, and whether it completed the handshake.
func (b *Bridge) Attached(slot int) (attached, ready bool) {
	l, ok := b.links[slot]
	if !ok {
		return false, false
	}
	return true, l.ready
}

// PauseSync suspends drift correction, e.g. while a restart rewinds every track.
func (b *Bridge) PauseSync() { b.syncPaused = true }

// ResumeSync re-enables drift correction.
func (b *Bridge) ResumeSync() { b.syncPaused = false }

// Broadcast sends cmd to every ready surface. RESTART_VIDEO and RESET_VIDEO
// also clear the surface's ended state and drift reference.
func (b *Bridge) Broadcast(cmd contracts.CommandType) {
	b.batching = true
	defer func() { b.batching = false }()

	for _, l := range b.ordered() {
		if !l.ready {
			continue
		}
		if cmd == contracts.CmdRestartVideo || cmd == contracts.CmdResetVideo {
			l.ended = false
			l.lastAudioTime = 0
			l.synced = false
		}
		b.send(l, contracts.SurfaceMessage{Type: cmd})
	}
}

// SetLoop forwards the loop flag to every ready surface.
func (b *Bridge) SetLoop(loop bool) {
	for _, l := range b.ordered() {
		if l.ready {
			b.send(l, loopMessage(loop))
		}
	}
}

func (b *Bridge) ordered() []*link {
	out := make([]*link, 0, len(b.links))
	for _, l := range b.links {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].slot < out[j].slot })
	return out
}

func (b *Bridge) handle(l *link, msg contracts.SurfaceMessage) {
	if b.links[l.slot] != l {
		return
	}
	switch msg.Type {
	case contracts.MsgWindowReady:
		b.onReady(l)
	case contracts.MsgVideoEnded:
		l.ended = true
	case contracts.MsgVideoStatus:
		if msg.Data != nil && msg.Data.Ended != nil {
			l.ended = *msg.Data.Ended
		}
	default:
		b.logger.Debug("Unexpected surface message",
			b.logger.Field().Int("slot", l.slot), b.logger.Field().String("type", string(msg.Type)))
	}
}

func (b *Bridge) onReady(l *link) {
	l.ready = true
	b.logger.Info("Video surface ready", b.logger.Field().Int("slot", l.slot))

	b.send(l, contracts.SurfaceMessage{
		Type: contracts.CmdLoadVideo,
		Data: &contracts.MessageData{URL: l.source.URL, Filename: l.source.Filename},
	})
	b.send(l, loopMessage(b.session.Loop()))

	b.unbind(l)
	m := l.media
	l.offs = []func(){
		m.On(contracts.EventPlay, func() { b.syncPlayPause(l) }),
		m.On(contracts.EventPause, func() { b.syncPlayPause(l) }),
		m.On(contracts.EventTimeUpdate, func() { b.syncTime(l) }),
		m.On(contracts.EventSeeked, func() { b.syncSeek(l) }),
		m.On(contracts.EventRateChange, func() { b.syncRate(l) }),
	}

	if l.initial != nil {
		l.initial.Stop()
	}
	l.initial = b.clk.AfterFunc(InitialSyncDelay, func() {
		l.initial = nil
		if b.links[l.slot] != l || b.shouldSkip(l) {
			return
		}
		b.syncPlayPause(l)
		if m.CurrentTime() > initialSeek {
			b.syncSeek(l)
		}
		b.syncRate(l)
		b.send(l, loopMessage(b.session.Loop()))
	})
}

func (b *Bridge) inFlight() bool {
	return b.session.Restarting() || b.session.ResetPending()
}

// shouldSkip suppresses commands while a batch is being sent, and to a
// surface that already ended unless a restart or reset is in flight.
func (b *Bridge) shouldSkip(l *link) bool {
	if b.batching || !l.ready {
		return true
	}
	if b.inFlight() {
		return false
	}
	return l.ended
}

func (b *Bridge) syncPlayPause(l *link) {
	if b.shouldSkip(l) {
		return
	}
	m := l.media
	if m.Paused() {
		b.stopStatusCheck(l)
		b.send(l, contracts.SurfaceMessage{Type: contracts.CmdPause})
		return
	}
	if b.inFlight() {
		if m.CurrentTime() < nearStart {
			l.ended = false
			b.send(l, contracts.SurfaceMessage{Type: contracts.CmdRestartVideo})
		} else {
			b.send(l, contracts.SurfaceMessage{Type: contracts.CmdPlay})
		}
		return
	}
	if mediaAtEnd(m) {
		return
	}
	b.send(l, contracts.SurfaceMessage{Type: contracts.CmdGetVideoStatus})
	if b.links[l.slot] != l {
		return
	}
	b.stopStatusCheck(l)
	l.statusCheck = b.clk.AfterFunc(StatusCheckDelay, func() {
		l.statusCheck = nil
		// The reply, if any, has updated l.ended by now.
		if b.links[l.slot] != l || l.ended || m.Paused() || mediaAtEnd(m) {
			return
		}
		b.send(l, contracts.SurfaceMessage{Type: contracts.CmdPlay})
	})
}

func (b *Bridge) stopStatusCheck(l *link) {
	if l.statusCheck != nil {
		l.statusCheck.Stop()
		l.statusCheck = nil
	}
}

func (b *Bridge) syncTime(l *link) {
	if b.shouldSkip(l) || b.syncPaused {
		return
	}
	m := l.media
	if !b.inFlight() && (l.ended || mediaAtEnd(m)) {
		return
	}

	now := b.clk.Now()
	t := m.CurrentTime()
	if t < LoopJumpTo && l.lastAudioTime > LoopJumpFrom {
		l.lastAudioTime = t
		return
	}

	drift := math.Abs(t - l.lastAudioTime)
	quiet := !l.synced || now-l.lastSync > SoftInterval
	if drift > HardDrift || (drift > SoftDrift && quiet) {
		l.lastSync = now
		l.synced = true
		b.send(l, seekMessage(t))
	}
	l.lastAudioTime = t
}

func (b *Bridge) syncSeek(l *link) {
	if b.shouldSkip(l) {
		return
	}
	t := l.media.CurrentTime()
	b.send(l, seekMessage(t))
	l.lastAudioTime = t
	l.lastSync = b.clk.Now()
	l.synced = true
}

func (b *Bridge) syncRate(l *link) {
	if b.shouldSkip(l) {
		return
	}
	rate := l.media.PlaybackRate()
	b.send(l, contracts.SurfaceMessage{Type: contracts.CmdSetPlaybackRate, Data: &contracts.MessageData{Rate: &rate}})
}

func (b *Bridge) send(l *link, msg contracts.SurfaceMessage) {
	err := l.surface.Send(msg)
	if err == nil {
		return
	}
	b.logger.Warn("Surface send failed",
		b.logger.Field().Int("slot", l.slot),
		b.logger.Field().String("type", string(msg.Type)),
		b.logger.Field().Error("error", err))
	if errors.Is(err, contracts.ErrSurfaceUnavailable) {
		b.expire(l)
	}
}

// expire releases a surface that went away on its own.
func (b *Bridge) expire(l *link) {
	if b.links[l.slot] != l {
		return
	}
	b.logger.Warn("Video surface closed; resources released",
		b.logger.Field().Int("slot", l.slot),
		b.logger.Field().String("surface", l.surface.ID()))
	b.release(l)
}

func (b *Bridge) release(l *link) {
	l.lease.Stop()
	if l.initial != nil {
		l.initial.Stop()
		l.initial = nil
	}
	b.stopStatusCheck(l)
	b.unbind(l)
	if l.source.Release != nil {
		l.source.Release()
		l.source.Release = nil
	}
	if b.links[l.slot] == l {
		delete(b.links, l.slot)
	}
}

func (b *Bridge) unbind(l *link) {
	for _, off := range l.offs {
		off()
	}
	l.offs = nil
}

func mediaAtEnd(m contracts.MediaHandle) bool {
	if m.Ended() {
		return true
	}
	d := m.Duration()
	return d > 0 && m.CurrentTime() >= d-nearEnd
}

func loopMessage(loop bool) contracts.SurfaceMessage {
	return contracts.SurfaceMessage{Type: contracts.CmdSetLoop, Data: &contracts.MessageData{Loop: &loop}}
}

func seekMessage(t float64) contracts.SurfaceMessage {
	return contracts.SurfaceMessage{Type: contracts.CmdSeek, Data: &contracts.MessageData{Time: &t}}
}
