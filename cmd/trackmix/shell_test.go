package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/leandrodaf/trackmix/internal/logger"
	"github.com/leandrodaf/trackmix/internal/router"
	"github.com/leandrodaf/trackmix/internal/sink"
	"github.com/leandrodaf/trackmix/internal/timing"
	"github.com/leandrodaf/trackmix/sdk/console"
	"github.com/leandrodaf/trackmix/sdk/contracts"
	"go.uber.org/zap"
)

func newShell(t *testing.T) (*shell, *bytes.Buffer) {
	t.Helper()
	log := logger.NewZapLoggerWith(zap.NewNop())
	c, err := console.NewConsole(
		contracts.WithClock(timing.NewFake()),
		contracts.WithLogger(log),
		contracts.WithTriggerSink("log", sink.Log{Logger: log}),
	)
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	return &shell{console: c, out: &out}, &out
}

func run(t *testing.T, s *shell, lines ...string) {
	t.Helper()
	for _, line := range lines {
		if _, err := s.exec(context.Background(), line); err != nil {
			t.Fatalf("%q: %v", line, err)
		}
	}
}

func TestShell_LoadPlayStatus(t *testing.T) {
	s, out := newShell(t)
	run(t, s, "load 1 intro.mp3 12", "loop on", "play", "status")

	got := out.String()
	for _, want := range []string{"slot 1: intro.mp3", "playing: true", "playing  loop=true", "intro.mp3"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if !s.console.Playback().Loop() {
		t.Error("loop not enabled")
	}
}

func TestShell_Routing(t *testing.T) {
	s, out := newShell(t)
	run(t, s, "load 1 intro.mp3 12", "channel 1 mono 5", "gain 1 mono -6", "master -3 mute")

	if !strings.Contains(out.String(), "channel 5 not available, using 0") {
		t.Errorf("missing correction notice:\n%s", out.String())
	}
	r, err := s.console.Router().Route(1, router.Mono)
	if err != nil || r.Channel != 0 {
		t.Errorf("route = %+v, %v", r, err)
	}
	if db, muted := s.console.Router().Master().Level(); db != -3 || !muted {
		t.Errorf("master = %v muted=%v", db, muted)
	}
}

func TestShell_Triggers(t *testing.T) {
	s, out := newShell(t)
	run(t, s, "trigger add log 2.5 string GO", "trigger list")

	list := s.console.Triggers().List()
	if len(list) != 1 || list[0].Text != "GO" || list[0].Time != 2.5 {
		t.Fatalf("triggers = %+v", list)
	}
	id := list[0].ID[:8]
	if !strings.Contains(out.String(), id) {
		t.Errorf("list output missing %s:\n%s", id, out.String())
	}

	run(t, s, "trigger restart "+id+" on", "trigger fire "+id)
	if tr := s.console.Triggers().List()[0]; !tr.OnRestart || tr.Fired != 1 {
		t.Errorf("after restart/fire = %+v", tr)
	}

	run(t, s, "trigger rm "+id)
	if n := len(s.console.Triggers().List()); n != 0 {
		t.Errorf("%d triggers left", n)
	}
}

func TestShell_Errors(t *testing.T) {
	s, _ := newShell(t)
	tests := []struct {
		line string
		want error
	}{
		{"frobnicate", contracts.ErrValidation},
		{"load x song.mp3", contracts.ErrValidation},
		{"load 1 notes.txt 3", contracts.ErrValidation},
		{"play", contracts.ErrNoTrackLoaded},
		{"seek -4", contracts.ErrValidation},
		{"bpm fast", contracts.ErrValidation},
		{"timecode fps 23", contracts.ErrValidation},
		{"midi devices", contracts.ErrDevice},
		{"udp HELLO", contracts.ErrDevice},
		{"trigger add nowhere 3", contracts.ErrValidation},
		{"trigger rm 0123456789", contracts.ErrUnknownTrigger},
		{"unload 4", contracts.ErrUnknownTrack},
	}
	for _, tt := range tests {
		if _, err := s.exec(context.Background(), tt.line); !errors.Is(err, tt.want) {
			t.Errorf("%q: err = %v, want %v", tt.line, err, tt.want)
		}
	}
}

func TestShell_OutOfRangeBPMStopsClock(t *testing.T) {
	s, _ := newShell(t)
	run(t, s, "midi on", "bpm 500")
	if st := s.console.Clock().Status(); st.Valid || st.BPM != 500 {
		t.Errorf("clock = %+v", st)
	}
	run(t, s, "bpm 128")
	if st := s.console.Clock().Status(); !st.Valid {
		t.Errorf("clock = %+v", st)
	}
}

func TestShell_Quit(t *testing.T) {
	s, _ := newShell(t)
	for _, line := range []string{"quit", "exit"} {
		if quit, err := s.exec(context.Background(), line); !quit || err != nil {
			t.Errorf("%q = %v, %v", line, quit, err)
		}
	}
	if quit, _ := s.exec(context.Background(), "   "); quit {
		t.Error("blank line quit")
	}
}

func TestClockTime(t *testing.T) {
	for in, want := range map[float64]string{0: "00:00:00", 61.9: "00:01:01", 3725.5: "01:02:05"} {
		if got := clockTime(in); got != want {
			t.Errorf("clockTime(%v) = %s, want %s", in, got, want)
		}
	}
}
