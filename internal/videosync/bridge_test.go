package videosync

import (
	"testing"
	"time"

	"github.com/leandrodaf/trackmix/internal/logger"
	"github.com/leandrodaf/trackmix/internal/media"
	"github.com/leandrodaf/trackmix/internal/timing"
	"github.com/leandrodaf/trackmix/sdk/contracts"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeSession struct {
	restarting, resetPending, loop bool
}

func (s *fakeSession) Restarting() bool   { return s.restarting }
func (s *fakeSession) ResetPending() bool { return s.resetPending }
func (s *fakeSession) Loop() bool         { return s.loop }

// stubMedia is a MediaHandle whose position is set by the test.
type stubMedia struct {
	t, duration float64
	paused      bool
	ended       bool
	rate        float64
	handlers    map[contracts.MediaEvent][]func()
}

func newStubMedia(duration float64) *stubMedia {
	return &stubMedia{duration: duration, paused: true, rate: 1, handlers: map[contracts.MediaEvent][]func(){}}
}

func (m *stubMedia) Duration() float64           { return m.duration }
func (m *stubMedia) CurrentTime() float64        { return m.t }
func (m *stubMedia) Paused() bool                { return m.paused }
func (m *stubMedia) Ended() bool                 { return m.ended }
func (m *stubMedia) PlaybackRate() float64       { return m.rate }
func (m *stubMedia) Play() error                 { m.paused = false; return nil }
func (m *stubMedia) Pause()                      { m.paused = true }
func (m *stubMedia) Seek(t float64)              { m.t = t }
func (m *stubMedia) SetPlaybackRate(r float64)   { m.rate = r }
func (m *stubMedia) Reload()                     {}
func (m *stubMedia) SetSinkID(string) error      { return nil }

func (m *stubMedia) On(ev contracts.MediaEvent, fn func()) func() {
	m.handlers[ev] = append(m.handlers[ev], fn)
	i := len(m.handlers[ev]) - 1
	return func() { m.handlers[ev][i] = nil }
}

func (m *stubMedia) fire(ev contracts.MediaEvent) {
	for _, fn := range m.handlers[ev] {
		if fn != nil {
			fn()
		}
	}
}

func (m *stubMedia) listeners() int {
	n := 0
	for _, fns := range m.handlers {
		for _, fn := range fns {
			if fn != nil {
				n++
			}
		}
	}
	return n
}

type bridgeFixture struct {
	clk     *timing.Fake
	factory *ChannelFactory
	session *fakeSession
	bridge  *Bridge
	logs    *observer.ObservedLogs
}

func newBridgeFixture(t *testing.T) *bridgeFixture {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	clk := timing.NewFake()
	f := &bridgeFixture{
		clk:     clk,
		factory: NewChannelFactory(clk),
		session: &fakeSession{},
		logs:    logs,
	}
	f.bridge = New(clk, f.factory, f.session, logger.NewZapLoggerWith(zap.New(core)))
	return f
}

// attachReady attaches m to slot, completes the handshake and clears the outbox.
func (f *bridgeFixture) attachReady(t *testing.T, slot int, m contracts.MediaHandle) *ChannelSurface {
	t.Helper()
	if err := f.bridge.Attach(slot, m, Source{URL: "/media/x", Filename: "clip.mp4"}); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	s := f.factory.Surface(slot)
	s.Deliver(contracts.SurfaceMessage{Type: contracts.MsgWindowReady})
	f.clk.Advance(InitialSyncDelay + StatusCheckDelay)
	s.Drain()
	return s
}

func types(msgs []contracts.SurfaceMessage) []contracts.CommandType {
	out := make([]contracts.CommandType, len(msgs))
	for i, m := range msgs {
		out[i] = m.Type
	}
	return out
}

func equalTypes(a []contracts.CommandType, b ...contracts.CommandType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestReadyHandshake(t *testing.T) {
	f := newBridgeFixture(t)
	f.session.loop = true
	m := newStubMedia(20)
	m.t = 4
	m.paused = false

	if err := f.bridge.Attach(1, m, Source{URL: "/media/tok", Filename: "clip.mp4"}); err != nil {
		t.Fatal(err)
	}
	s := f.factory.Surface(1)
	if _, ready := f.bridge.Attached(1); ready {
		t.Fatal("surface ready before handshake")
	}
	if got := s.Drain(); len(got) != 0 {
		t.Fatalf("commands sent before ready: %v", types(got))
	}

	s.Deliver(contracts.SurfaceMessage{Type: contracts.MsgWindowReady})
	f.clk.Flush()
	got := s.Drain()
	if !equalTypes(types(got), contracts.CmdLoadVideo, contracts.CmdSetLoop) {
		t.Fatalf("handshake = %v", types(got))
	}
	if got[0].Data.URL != "/media/tok" || got[0].Data.Filename != "clip.mp4" {
		t.Errorf("LOAD_VIDEO data = %+v", got[0].Data)
	}
	if !*got[1].Data.Loop {
		t.Error("SET_LOOP should carry loop=true")
	}

	f.clk.Advance(InitialSyncDelay)
	got = s.Drain()
	want := []contracts.CommandType{contracts.CmdGetVideoStatus, contracts.CmdSeek, contracts.CmdSetPlaybackRate, contracts.CmdSetLoop}
	if !equalTypes(types(got), want...) {
		t.Fatalf("initial sync = %v, want %v", types(got), want)
	}
	if *got[1].Data.Time != 4 {
		t.Errorf("initial seek = %v", *got[1].Data.Time)
	}
	f.clk.Advance(StatusCheckDelay)
	if got := s.Drain(); !equalTypes(types(got), contracts.CmdPlay) {
		t.Fatalf("after status check = %v", types(got))
	}
}

func TestDriftThrottle(t *testing.T) {
	f := newBridgeFixture(t)
	m := newStubMedia(60)
	m.paused = false
	s := f.attachReady(t, 1, m)

	sample := func(at float64) []contracts.SurfaceMessage {
		m.t = at
		m.fire(contracts.EventTimeUpdate)
		return s.Drain()
	}

	// First correction: never synced, 0.5s > soft threshold.
	if got := sample(0.5); !equalTypes(types(got), contracts.CmdSeek) {
		t.Fatalf("first soft drift = %v", types(got))
	}
	f.clk.Advance(time.Second)
	// Soft drift within the quiet interval is ignored.
	if got := sample(1.0); len(got) != 0 {
		t.Fatalf("soft drift inside interval sent %v", types(got))
	}
	// Hard drift is always corrected.
	if got := sample(2.5); !equalTypes(types(got), contracts.CmdSeek) || *got[0].Data.Time != 2.5 {
		t.Fatalf("hard drift = %v", types(got))
	}
	f.clk.Advance(SoftInterval + time.Second)
	if got := sample(3.0); !equalTypes(types(got), contracts.CmdSeek) {
		t.Fatalf("soft drift after interval = %v", types(got))
	}
	if got := sample(3.2); len(got) != 0 {
		t.Fatalf("small drift sent %v", types(got))
	}
}

func TestLoopJumpOnlyUpdatesReference(t *testing.T) {
	f := newBridgeFixture(t)
	m := newStubMedia(60)
	m.paused = false
	s := f.attachReady(t, 1, m)

	m.t = 12
	m.fire(contracts.EventTimeUpdate)
	s.Drain()

	m.t = 0.4
	m.fire(contracts.EventTimeUpdate)
	if got := s.Drain(); len(got) != 0 {
		t.Fatalf("loop jump sent %v", types(got))
	}
	f.clk.Advance(SoftInterval + time.Second)
	m.t = 0.6
	m.fire(contracts.EventTimeUpdate)
	if got := s.Drain(); len(got) != 0 {
		t.Fatalf("reference was not updated by the jump: %v", types(got))
	}
}

func TestEndedSurfaceIsSkipped(t *testing.T) {
	f := newBridgeFixture(t)
	m := newStubMedia(30)
	m.paused = false
	s := f.attachReady(t, 1, m)

	s.Deliver(contracts.SurfaceMessage{Type: contracts.MsgVideoEnded})
	f.clk.Flush()

	m.t = 5
	m.fire(contracts.EventTimeUpdate)
	m.fire(contracts.EventPlay)
	if got := s.Drain(); len(got) != 0 {
		t.Fatalf("ended surface received %v", types(got))
	}

	// A restart in flight overrides the ended state.
	f.session.restarting = true
	m.t = 0
	m.fire(contracts.EventPlay)
	if got := s.Drain(); !equalTypes(types(got), contracts.CmdRestartVideo) {
		t.Fatalf("play during restart = %v", types(got))
	}
	m.t = 0.5
	m.fire(contracts.EventPlay)
	if got := s.Drain(); !equalTypes(types(got), contracts.CmdPlay) {
		t.Fatalf("play past start during restart = %v", types(got))
	}
}

func TestVideoStatusUpdatesEnded(t *testing.T) {
	f := newBridgeFixture(t)
	m := newStubMedia(30)
	m.paused = false
	s := f.attachReady(t, 1, m)

	ended := true
	s.Deliver(contracts.SurfaceMessage{Type: contracts.MsgVideoStatus, Data: &contracts.MessageData{Ended: &ended}})
	f.clk.Flush()
	m.fire(contracts.EventPlay)
	if got := s.Drain(); len(got) != 0 {
		t.Fatalf("sent %v to ended surface", types(got))
	}

	ended = false
	s.Deliver(contracts.SurfaceMessage{Type: contracts.MsgVideoStatus, Data: &contracts.MessageData{Ended: &ended}})
	f.clk.Flush()
	m.fire(contracts.EventPlay)
	if got := s.Drain(); !equalTypes(types(got), contracts.CmdGetVideoStatus) {
		t.Fatalf("after status = %v", types(got))
	}
	f.clk.Advance(StatusCheckDelay)
	if got := s.Drain(); !equalTypes(types(got), contracts.CmdPlay) {
		t.Fatalf("after status check = %v", types(got))
	}
}

func TestPlayWaitsForStatusReply(t *testing.T) {
	f := newBridgeFixture(t)
	m := newStubMedia(30)
	m.paused = false
	s := f.attachReady(t, 1, m)

	// The surface reports it ended inside the check window: no PLAY.
	m.fire(contracts.EventPlay)
	if got := s.Drain(); !equalTypes(types(got), contracts.CmdGetVideoStatus) {
		t.Fatalf("play = %v", types(got))
	}
	ended := true
	s.Deliver(contracts.SurfaceMessage{Type: contracts.MsgVideoStatus, Data: &contracts.MessageData{Ended: &ended}})
	f.clk.Advance(StatusCheckDelay)
	if got := s.Drain(); len(got) != 0 {
		t.Fatalf("ended surface received %v", types(got))
	}

	// A pause inside the window cancels the pending PLAY.
	ended = false
	s.Deliver(contracts.SurfaceMessage{Type: contracts.MsgVideoStatus, Data: &contracts.MessageData{Ended: &ended}})
	f.clk.Flush()
	m.fire(contracts.EventPlay)
	m.paused = true
	m.fire(contracts.EventPause)
	f.clk.Advance(StatusCheckDelay)
	if got := s.Drain(); !equalTypes(types(got), contracts.CmdGetVideoStatus, contracts.CmdPause) {
		t.Fatalf("play then pause = %v", types(got))
	}

	// A detached surface gets nothing once the window closes.
	m.paused = false
	m.fire(contracts.EventPlay)
	s.Drain()
	f.bridge.Detach(1)
	f.clk.Advance(StatusCheckDelay)
	if got := s.Drain(); len(got) != 0 {
		t.Fatalf("detached surface received %v", types(got))
	}
	if f.clk.Pending() != 0 {
		t.Errorf("%d timers left after detach", f.clk.Pending())
	}
}

func TestBroadcastSuppressesEchoes(t *testing.T) {
	f := newBridgeFixture(t)
	m := newStubMedia(30)
	m.paused = false
	s := f.attachReady(t, 1, m)
	s.Deliver(contracts.SurfaceMessage{Type: contracts.MsgVideoEnded})
	f.clk.Flush()

	f.bridge.Broadcast(contracts.CmdRestartVideo)
	if got := s.Drain(); !equalTypes(types(got), contracts.CmdRestartVideo) {
		t.Fatalf("broadcast = %v", types(got))
	}
	// The ended state was cleared by the restart.
	m.t = 0.2
	m.fire(contracts.EventPlay)
	f.clk.Advance(StatusCheckDelay)
	if got := s.Drain(); !equalTypes(types(got), contracts.CmdGetVideoStatus, contracts.CmdPlay) {
		t.Fatalf("play after restart broadcast = %v", types(got))
	}
}

func TestPauseSyncStopsDriftCorrection(t *testing.T) {
	f := newBridgeFixture(t)
	m := newStubMedia(60)
	m.paused = false
	s := f.attachReady(t, 1, m)

	f.bridge.PauseSync()
	m.t = 8
	m.fire(contracts.EventTimeUpdate)
	if got := s.Drain(); len(got) != 0 {
		t.Fatalf("drift correction while paused: %v", types(got))
	}
	f.bridge.ResumeSync()
	m.t = 10
	m.fire(contracts.EventTimeUpdate)
	if got := s.Drain(); !equalTypes(types(got), contracts.CmdSeek) {
		t.Fatalf("after resume = %v", types(got))
	}
}

func TestLeaseReleasesClosedSurface(t *testing.T) {
	f := newBridgeFixture(t)
	clip := media.NewVirtual(f.clk, "clip", 30)
	released := 0
	if err := f.bridge.Attach(2, clip, Source{URL: "/media/a", Release: func() { released++ }}); err != nil {
		t.Fatal(err)
	}
	s := f.factory.Surface(2)
	s.Deliver(contracts.SurfaceMessage{Type: contracts.MsgWindowReady})
	f.clk.Advance(InitialSyncDelay)
	if clip.Listeners(contracts.EventTimeUpdate) != 1 {
		t.Fatal("timeupdate listener not bound")
	}

	s.Close()
	f.clk.Advance(DefaultLeaseInterval)
	if attached, _ := f.bridge.Attached(2); attached {
		t.Fatal("closed surface still attached")
	}
	if released != 1 {
		t.Errorf("release called %d times", released)
	}
	for _, ev := range []contracts.MediaEvent{contracts.EventPlay, contracts.EventPause, contracts.EventTimeUpdate, contracts.EventSeeked, contracts.EventRateChange} {
		if n := clip.Listeners(ev); n != 0 {
			t.Errorf("%s listeners = %d after release", ev, n)
		}
	}
	if f.logs.FilterMessage("Video surface closed; resources released").Len() != 1 {
		t.Error("expected one release warning")
	}
	f.clk.Advance(5 * DefaultLeaseInterval)
	if released != 1 {
		t.Errorf("release repeated: %d", released)
	}
}

func TestSendToClosedSurfaceExpiresLink(t *testing.T) {
	f := newBridgeFixture(t)
	m := newStubMedia(30)
	m.paused = false
	s := f.attachReady(t, 1, m)

	s.Close()
	m.fire(contracts.EventPlay)
	if attached, _ := f.bridge.Attached(1); attached {
		t.Fatal("link survived a failed send")
	}
	if m.listeners() != 0 {
		t.Errorf("%d listeners left bound", m.listeners())
	}
}

func TestAttachReplacesSlot(t *testing.T) {
	f := newBridgeFixture(t)
	first := newStubMedia(30)
	old := f.attachReady(t, 1, first)
	second := newStubMedia(40)
	f.attachReady(t, 1, second)

	if !old.Closed() {
		t.Error("previous surface not closed")
	}
	if first.listeners() != 0 {
		t.Error("previous media still bound")
	}
	// Late messages from the old surface are ignored.
	old.Deliver(contracts.SurfaceMessage{Type: contracts.MsgVideoEnded})
	f.clk.Flush()
	if _, ready := f.bridge.Attached(1); !ready {
		t.Error("replacement not ready")
	}
}

func TestAttachFailures(t *testing.T) {
	f := newBridgeFixture(t)
	f.factory.Blocked = true
	released := false
	err := f.bridge.Attach(1, newStubMedia(1), Source{Release: func() { released = true }})
	if err == nil {
		t.Fatal("expected error from blocked factory")
	}
	if !released {
		t.Error("source not released after failed open")
	}

	nb := New(f.clk, nil, f.session, logger.NewZapLoggerWith(zap.NewNop()))
	if err := nb.Attach(1, newStubMedia(1), Source{}); err == nil {
		t.Fatal("expected error without a factory")
	}
}
