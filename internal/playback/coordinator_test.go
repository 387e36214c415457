package playback

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/leandrodaf/trackmix/internal/graph"
	"github.com/leandrodaf/trackmix/internal/logger"
	"github.com/leandrodaf/trackmix/internal/media"
	"github.com/leandrodaf/trackmix/internal/router"
	"github.com/leandrodaf/trackmix/internal/timing"
	"github.com/leandrodaf/trackmix/sdk/contracts"
	"go.uber.org/zap"
)

type recordingBridge struct {
	calls []string
}

func (b *recordingBridge) PauseSync()  { b.calls = append(b.calls, "pause-sync") }
func (b *recordingBridge) ResumeSync() { b.calls = append(b.calls, "resume-sync") }
func (b *recordingBridge) Broadcast(cmd contracts.CommandType) {
	b.calls = append(b.calls, string(cmd))
}
func (b *recordingBridge) count(call string) int {
	n := 0
	for _, c := range b.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (b *recordingBridge) SetLoop(loop bool) {
	if loop {
		b.calls = append(b.calls, "loop-on")
	} else {
		b.calls = append(b.calls, "loop-off")
	}
}

type fixture struct {
	clk       *timing.Fake
	coord     *Coordinator
	bridge    *recordingBridge
	waiting   map[int]int
	restarted int
	starts    int
	playState []bool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.NewZapLoggerWith(zap.NewNop())
	clk := timing.NewFake()
	r := router.New(graph.NewBackend(), log, 0, 0)
	f := &fixture{clk: clk, bridge: &recordingBridge{}, waiting: map[int]int{}}
	f.coord = New(clk, r, log, 0)
	f.coord.SetBridge(f.bridge)
	f.coord.SetHooks(Hooks{
		Start:     func() { f.starts++ },
		Restarted: func() { f.restarted++ },
		Waiting:   func(slot int) { f.waiting[slot]++ },
		PlayState: func(p bool) { f.playState = append(f.playState, p) },
	})
	return f
}

func (f *fixture) load(t *testing.T, slot int, kind contracts.TrackKind, duration float64) *media.Virtual {
	t.Helper()
	v := media.NewVirtual(f.clk, "track", duration)
	v.RequireReload = true
	if err := f.coord.Load(slot, kind, "track", v); err != nil {
		t.Fatalf("Load(%d): %v", slot, err)
	}
	return v
}

// advance steps the clock in small increments so event delivery interleaves like a live loop.
func (f *fixture) advance(d time.Duration) {
	const step = 50 * time.Millisecond
	for d > 0 {
		s := min(step, d)
		f.clk.Advance(s)
		d -= s
	}
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestCoordinator_TogglePlayPauseRequiresTrack(t *testing.T) {
	f := newFixture(t)
	if _, err := f.coord.TogglePlayPause(); !errors.Is(err, contracts.ErrNoTrackLoaded) {
		t.Errorf("err = %v, want ErrNoTrackLoaded", err)
	}
}

func TestCoordinator_LoopCycleWithHeterogeneousDurations(t *testing.T) {
	f := newFixture(t)
	a := f.load(t, 0, contracts.KindAudio, 10)
	b := f.load(t, 1, contracts.KindAudio, 15)
	c := f.load(t, 2, contracts.KindAudio, 7)
	f.coord.SetLoop(true)

	if ref := f.coord.Reference(); ref == nil || ref.Slot != 1 {
		t.Fatalf("reference = %+v, want slot 1", ref)
	}
	if _, err := f.coord.TogglePlayPause(); err != nil {
		t.Fatal(err)
	}

	f.advance(15*time.Second + 50*time.Millisecond)
	if !f.coord.Restarting() {
		t.Fatalf("state = %s, want restarting inside the settle window", f.coord.State())
	}
	if f.waiting[0] != 1 || f.waiting[2] != 1 || f.waiting[1] != 0 {
		t.Errorf("waiting counts = %v, want slot0=1 slot2=1 slot1=0", f.waiting)
	}
	for i, v := range []*media.Virtual{a, b, c} {
		if v.CurrentTime() != 0 || !v.Paused() {
			t.Errorf("track %d at %v paused=%v, want rewound and paused", i, v.CurrentTime(), v.Paused())
		}
	}

	f.advance(50 * time.Millisecond)
	if f.coord.Restarting() || f.restarted != 1 {
		t.Fatalf("restarting=%v restarted=%d, want resumed once", f.coord.Restarting(), f.restarted)
	}
	for i, tr := range f.coord.Tracks() {
		if tr.Waiting {
			t.Errorf("track %d still waiting", i)
		}
		if tr.Media.Paused() || tr.Media.CurrentTime() != 0 {
			t.Errorf("track %d at %v paused=%v, want playing from 0", i, tr.Media.CurrentTime(), tr.Media.Paused())
		}
	}

	f.advance(15*time.Second + 100*time.Millisecond)
	if f.restarted != 2 {
		t.Errorf("restarted = %d after two cycles, want 2", f.restarted)
	}
	if f.waiting[0] != 2 || f.waiting[2] != 2 {
		t.Errorf("waiting counts = %v, want 2 per non-reference track", f.waiting)
	}
	if f.starts != 2 {
		t.Errorf("start signals = %d, want 2", f.starts)
	}
}

func TestCoordinator_EndToEndAudioAndVideo(t *testing.T) {
	f := newFixture(t)
	audio := f.load(t, 0, contracts.KindAudio, 10)
	video := f.load(t, 1, contracts.KindVideo, 20)
	f.coord.SetLoop(true)
	_, _ = f.coord.TogglePlayPause()

	f.advance(10*time.Second + 100*time.Millisecond)
	tr := f.coord.Track(0)
	if !tr.Waiting || !audio.Paused() {
		t.Fatalf("audio waiting=%v paused=%v, want held at end", tr.Waiting, audio.Paused())
	}
	if f.coord.State() != Playing || f.restarted != 0 {
		t.Fatalf("audio end restarted the session")
	}
	if video.Paused() {
		t.Fatal("video stopped with the audio track")
	}

	f.advance(10*time.Second + 100*time.Millisecond)
	if f.restarted != 1 {
		t.Fatalf("restarted = %d at t=20.2s, want 1", f.restarted)
	}
	f.advance(time.Second)
	if audio.Paused() || video.Paused() {
		t.Fatalf("audio paused=%v video paused=%v, want both playing", audio.Paused(), video.Paused())
	}
	if !near(audio.CurrentTime(), video.CurrentTime()) {
		t.Errorf("audio at %v, video at %v, want aligned", audio.CurrentTime(), video.CurrentTime())
	}
	if audio.CurrentTime() < 1 || audio.CurrentTime() > 1.2 {
		t.Errorf("audio at %v, want ~1.1s into the new pass", audio.CurrentTime())
	}

	want := []string{"loop-on", "pause-sync", string(contracts.CmdRestartVideo), "resume-sync"}
	if len(f.bridge.calls) != len(want) {
		t.Fatalf("bridge calls = %v, want %v", f.bridge.calls, want)
	}
	for i := range want {
		if f.bridge.calls[i] != want[i] {
			t.Errorf("bridge call %d = %s, want %s", i, f.bridge.calls[i], want[i])
		}
	}
}

func TestCoordinator_RestartSurvivesSuppressedPlay(t *testing.T) {
	f := newFixture(t)
	bad := f.load(t, 0, contracts.KindAudio, 5)
	good := f.load(t, 1, contracts.KindAudio, 8)
	f.coord.SetLoop(true)
	_, _ = f.coord.TogglePlayPause()

	f.advance(6 * time.Second)
	bad.PlayErr = errors.New("decoder busy")
	f.advance(2*time.Second + 200*time.Millisecond)

	if f.coord.Restarting() || f.restarted != 1 {
		t.Fatalf("restarting=%v restarted=%d, want restart completed", f.coord.Restarting(), f.restarted)
	}
	if good.Paused() {
		t.Error("healthy track did not resume")
	}
	if !bad.Paused() {
		t.Error("failing track reported playing")
	}
}

func TestCoordinator_ReferenceRebinding(t *testing.T) {
	f := newFixture(t)
	short := f.load(t, 0, contracts.KindAudio, 10)
	long := f.load(t, 1, contracts.KindVideo, 20)
	tie := f.load(t, 2, contracts.KindAudio, 20)

	if ref := f.coord.Reference(); ref == nil || ref.Slot != 2 {
		t.Fatalf("reference = %+v, want slot 2 (last loaded of equal duration)", ref)
	}
	for i, v := range []*media.Virtual{short, long, tie} {
		if n := v.Listeners(contracts.EventEnded); n != 1 {
			t.Errorf("track %d has %d ended listeners, want 1", i, n)
		}
	}

	if err := f.coord.Unload(2); err != nil {
		t.Fatal(err)
	}
	if ref := f.coord.Reference(); ref == nil || ref.Slot != 1 {
		t.Fatalf("reference after unload = %+v, want slot 1", ref)
	}
	if tie.Listeners(contracts.EventEnded) != 0 {
		t.Error("unloaded track kept its ended listener")
	}
}

func TestCoordinator_ReplacingSlotReleasesOldMedia(t *testing.T) {
	f := newFixture(t)
	old := f.load(t, 0, contracts.KindAudio, 10)
	_, _ = f.coord.TogglePlayPause()
	f.advance(time.Second)

	f.load(t, 0, contracts.KindAudio, 12)
	if !old.Paused() {
		t.Error("replaced media still playing")
	}
	if old.Listeners(contracts.EventEnded) != 0 || old.Listeners(contracts.EventLoadedMetadata) != 0 {
		t.Error("replaced media kept listeners")
	}
	if ref := f.coord.Reference(); ref.Media.Duration() != 12 {
		t.Errorf("reference duration = %v, want 12", ref.Media.Duration())
	}
}

func TestCoordinator_ResetIsIdempotent(t *testing.T) {
	f := newFixture(t)
	a := f.load(t, 0, contracts.KindAudio, 10)
	b := f.load(t, 1, contracts.KindVideo, 20)
	f.coord.SetLoop(true)
	_, _ = f.coord.TogglePlayPause()
	f.advance(12 * time.Second)

	for i := 0; i < 2; i++ {
		f.coord.Reset()
		f.clk.Flush()
		if f.coord.State() != Stopped || !f.coord.ResetPending() {
			t.Fatalf("reset %d: state=%s resetPending=%v", i, f.coord.State(), f.coord.ResetPending())
		}
		for j, v := range []*media.Virtual{a, b} {
			if v.CurrentTime() != 0 || !v.Paused() || v.Ended() {
				t.Errorf("reset %d: track %d at %v paused=%v ended=%v", i, j, v.CurrentTime(), v.Paused(), v.Ended())
			}
		}
		for _, tr := range f.coord.Tracks() {
			if tr.Waiting {
				t.Errorf("reset %d: slot %d still waiting", i, tr.Slot)
			}
		}
	}

	_, _ = f.coord.TogglePlayPause()
	if !f.coord.ResetPending() {
		t.Error("reset flag cleared immediately on play")
	}
	f.advance(ResetHold)
	if f.coord.ResetPending() {
		t.Error("reset flag still raised after hold")
	}
	if a.Paused() || b.Paused() {
		t.Error("tracks did not play after reset")
	}
}

func TestCoordinator_WithoutLoopReferenceEndStops(t *testing.T) {
	f := newFixture(t)
	f.load(t, 0, contracts.KindAudio, 3)
	f.load(t, 1, contracts.KindAudio, 5)
	_, _ = f.coord.TogglePlayPause()

	f.advance(6 * time.Second)
	if f.waiting[0] != 0 {
		t.Error("track entered waiting state with loop disabled")
	}
	if f.coord.State() != Stopped {
		t.Errorf("state = %s, want stopped", f.coord.State())
	}
	if n := len(f.playState); n != 2 || f.playState[1] {
		t.Errorf("play states = %v, want [true false]", f.playState)
	}

	playing, _ := f.coord.TogglePlayPause()
	if !playing {
		t.Fatal("toggle did not start playback")
	}
	f.clk.Flush()
	for _, tr := range f.coord.Tracks() {
		if tr.Media.Paused() {
			t.Errorf("slot %d not replayed from the top", tr.Slot)
		}
	}
}

func TestCoordinator_PauseDuringRestartCancelsResume(t *testing.T) {
	f := newFixture(t)
	v := f.load(t, 0, contracts.KindAudio, 2)
	f.coord.SetLoop(true)
	_, _ = f.coord.TogglePlayPause()

	f.advance(2*time.Second + 50*time.Millisecond)
	if !f.coord.Restarting() {
		t.Fatalf("state = %s, want restarting", f.coord.State())
	}
	playing, err := f.coord.TogglePlayPause()
	if err != nil || playing {
		t.Fatalf("toggle = (%v, %v), want paused", playing, err)
	}
	f.advance(time.Second)
	if !v.Paused() || f.restarted != 0 {
		t.Errorf("paused=%v restarted=%d, want the pending resume dropped", v.Paused(), f.restarted)
	}
	if p, r := f.bridge.count("pause-sync"), f.bridge.count("resume-sync"); p != 1 || r != 1 {
		t.Errorf("pause-sync=%d resume-sync=%d, want drift correction restored", p, r)
	}

	// Playing again inside a fresh cycle restarts normally.
	_, _ = f.coord.TogglePlayPause()
	f.advance(2*time.Second + 200*time.Millisecond)
	if f.restarted != 1 {
		t.Errorf("restarted = %d after resuming, want 1", f.restarted)
	}
	if p, r := f.bridge.count("pause-sync"), f.bridge.count("resume-sync"); p != r {
		t.Errorf("pause-sync=%d resume-sync=%d, want balanced", p, r)
	}
}

func TestCoordinator_ResetDuringRestartResumesSync(t *testing.T) {
	f := newFixture(t)
	f.load(t, 0, contracts.KindAudio, 2)
	f.coord.SetLoop(true)
	_, _ = f.coord.TogglePlayPause()

	f.advance(2*time.Second + 50*time.Millisecond)
	if !f.coord.Restarting() {
		t.Fatalf("state = %s, want restarting", f.coord.State())
	}
	f.coord.Reset()
	f.advance(time.Second)
	if f.restarted != 0 || f.coord.State() != Stopped {
		t.Errorf("restarted=%d state=%s after reset", f.restarted, f.coord.State())
	}
	if p, r := f.bridge.count("pause-sync"), f.bridge.count("resume-sync"); p != 1 || r != 1 {
		t.Errorf("pause-sync=%d resume-sync=%d, want drift correction restored", p, r)
	}
}

func TestCoordinator_SeekPastReferenceEnd(t *testing.T) {
	t.Run("loop restarts", func(t *testing.T) {
		f := newFixture(t)
		a := f.load(t, 0, contracts.KindAudio, 10)
		b := f.load(t, 1, contracts.KindAudio, 20)
		f.coord.SetLoop(true)
		_, _ = f.coord.TogglePlayPause()
		f.advance(time.Second)

		f.coord.SeekAll(25)
		if !f.coord.Restarting() {
			t.Fatalf("state = %s, want restarting", f.coord.State())
		}
		f.advance(time.Second)
		if f.restarted != 1 || f.coord.State() != Playing {
			t.Fatalf("restarted=%d state=%s, want one restart", f.restarted, f.coord.State())
		}
		if a.Paused() || b.Paused() {
			t.Errorf("a.paused=%v b.paused=%v, want both playing", a.Paused(), b.Paused())
		}
		if b.CurrentTime() > 1.1 {
			t.Errorf("reference at %v, want near the top", b.CurrentTime())
		}
	})

	t.Run("no loop stops", func(t *testing.T) {
		f := newFixture(t)
		f.load(t, 0, contracts.KindAudio, 10)
		f.load(t, 1, contracts.KindAudio, 20)
		_, _ = f.coord.TogglePlayPause()
		f.advance(time.Second)

		f.coord.SeekAll(20)
		if f.coord.State() != Stopped {
			t.Fatalf("state = %s, want stopped", f.coord.State())
		}
		if n := len(f.playState); n != 2 || f.playState[1] {
			t.Errorf("play states = %v, want [true false]", f.playState)
		}
		for _, tr := range f.coord.Tracks() {
			if tr.Waiting {
				t.Errorf("slot %d waiting with loop disabled", tr.Slot)
			}
		}
	})

	t.Run("paused seek plays from the top", func(t *testing.T) {
		f := newFixture(t)
		a := f.load(t, 0, contracts.KindAudio, 10)
		f.coord.SetLoop(true)

		f.coord.SeekAll(12)
		if f.coord.State() != Stopped || f.restarted != 0 {
			t.Fatalf("state=%s restarted=%d, want untouched session", f.coord.State(), f.restarted)
		}
		_, _ = f.coord.TogglePlayPause()
		f.advance(500 * time.Millisecond)
		if a.Paused() || a.CurrentTime() > 0.6 {
			t.Errorf("track at %v paused=%v, want replay from 0", a.CurrentTime(), a.Paused())
		}
	})
}

func TestTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		ok       bool
	}{
		{Stopped, Playing, true},
		{Stopped, Restarting, false},
		{Playing, Restarting, true},
		{Restarting, Playing, true},
		{Restarting, Stopped, true},
	}
	for _, tt := range tests {
		if got := canTransition(tt.from, tt.to); got != tt.ok {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
}
