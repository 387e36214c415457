package trigger

import (
	"errors"
	"math"
	"testing"

	"github.com/leandrodaf/trackmix/internal/logger"
	"github.com/leandrodaf/trackmix/sdk/contracts"
	"go.uber.org/zap"
)

type payloadSink struct {
	got []contracts.TriggerPayload
	err error
}

func (s *payloadSink) SendTrigger(p contracts.TriggerPayload) error {
	if s.err != nil {
		return s.err
	}
	s.got = append(s.got, p)
	return nil
}

func newScheduler(t *testing.T) (*Scheduler, *payloadSink) {
	t.Helper()
	s := NewScheduler(logger.NewZapLoggerWith(zap.NewNop()))
	sink := &payloadSink{}
	s.SetSink("osc", sink)
	return s, sink
}

func TestFiresOncePerCrossing(t *testing.T) {
	s, sink := newScheduler(t)
	if _, err := s.Add(Config{Time: 5.0, Sink: "osc"}); err != nil {
		t.Fatal(err)
	}

	for i := 0; i <= 100; i++ {
		s.Sample(float64(i) * 0.1)
	}
	if len(sink.got) != 1 {
		t.Fatalf("fired %d times while crossing, want 1", len(sink.got))
	}
	if p := sink.got[0]; math.Abs(p.Time-4.6) > 1e-9 || p.Action != contracts.ActionStart {
		t.Errorf("payload = %+v", p)
	}

	// Sampling the window again does nothing until re-armed.
	s.Sample(5.0)
	if len(sink.got) != 1 {
		t.Fatal("refired without ResetAll")
	}
	s.ResetAll()
	s.Sample(5.2)
	if len(sink.got) != 2 {
		t.Fatal("did not fire after ResetAll")
	}
}

func TestWindowIsOpenAtTheEdges(t *testing.T) {
	s, sink := newScheduler(t)
	s.Add(Config{Time: 5.0, Sink: "osc"})
	s.Sample(4.5)
	s.Sample(5.5)
	if len(sink.got) != 0 {
		t.Fatalf("fired at the window edge: %+v", sink.got)
	}
	s.Sample(4.51)
	if len(sink.got) != 1 {
		t.Fatal("did not fire inside the window")
	}
}

func TestTriggersFireIndependently(t *testing.T) {
	s, sink := newScheduler(t)
	udp := &payloadSink{}
	s.SetSink("udp", udp)
	s.Add(Config{Time: 1, Sink: "osc"})
	s.Add(Config{Time: 1, Sink: "udp", DataType: contracts.TriggerString, Text: "GO"})
	s.Add(Config{Time: 3, Sink: "osc", Disabled: true})

	if n := s.Sample(1.1); n != 2 {
		t.Fatalf("Sample fired %d", n)
	}
	if len(sink.got) != 1 || len(udp.got) != 1 || udp.got[0].Text != "GO" {
		t.Fatalf("osc %v udp %v", sink.got, udp.got)
	}
	if n := s.Sample(3); n != 0 {
		t.Error("disabled trigger fired")
	}
}

func TestAddValidation(t *testing.T) {
	s, _ := newScheduler(t)

	cases := []Config{
		{Time: -1, Sink: "osc"},
		{Time: math.NaN(), Sink: "osc"},
		{Time: 1, Sink: "missing"},
		{Time: 1, Sink: "osc", Address: "trigger"},
		{Time: 1, Sink: "osc", DataType: "blob"},
	}
	for _, c := range cases {
		if _, err := s.Add(c); !errors.Is(err, contracts.ErrValidation) {
			t.Errorf("Add(%+v) = %v, want validation error", c, err)
		}
	}

	tr, err := s.Add(Config{Time: 2, Sink: "osc", Number: 3.5})
	if err != nil {
		t.Fatal(err)
	}
	if tr.Address != DefaultAddress || tr.DataType != contracts.TriggerFloat || tr.Number != 1 {
		t.Errorf("defaults = %+v", tr.Config)
	}
	tr, _ = s.Add(Config{Time: 2, Sink: "osc", DataType: contracts.TriggerInteger, Number: -4})
	if tr.Number != 0 {
		t.Errorf("integer clamp = %v", tr.Number)
	}
	tr, _ = s.Add(Config{Time: 2, Sink: "osc", DataType: contracts.TriggerString, Text: "  "})
	if tr.Text != DefaultText {
		t.Errorf("text fallback = %q", tr.Text)
	}
}

func TestRemoveUpdateAndFire(t *testing.T) {
	s, sink := newScheduler(t)
	tr, _ := s.Add(Config{Time: 5, Sink: "osc"})

	if err := s.Fire(tr.ID[:8], contracts.ActionStop, 0.5); err != nil {
		t.Fatal(err)
	}
	if len(sink.got) != 1 || sink.got[0].Action != contracts.ActionStop {
		t.Fatalf("manual fire = %+v", sink.got)
	}

	s.Sample(5)
	if err := s.Update(tr.ID, Config{Time: 6, Sink: "osc"}); err != nil {
		t.Fatal(err)
	}
	s.Sample(6)
	if len(sink.got) != 3 {
		t.Fatalf("moved trigger did not fire in the same pass: %d", len(sink.got))
	}

	if err := s.Remove(tr.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(tr.ID); !errors.Is(err, contracts.ErrUnknownTrigger) {
		t.Fatalf("second Remove = %v", err)
	}
	if err := s.Fire("nope", contracts.ActionStart, 0); !errors.Is(err, contracts.ErrUnknownTrigger) {
		t.Fatalf("Fire unknown = %v", err)
	}
	if len(s.List()) != 0 {
		t.Error("trigger still listed")
	}
}

func TestSignalStart(t *testing.T) {
	s, sink := newScheduler(t)
	s.Add(Config{Time: 30, Sink: "osc", OnRestart: true})
	s.Add(Config{Time: 30, Sink: "osc"})
	s.SignalStart(0)
	if len(sink.got) != 1 {
		t.Fatalf("SignalStart sent %d", len(sink.got))
	}
	s.Sample(30)
	if len(sink.got) != 3 {
		t.Error("SignalStart should not disarm triggers")
	}
}

func TestSendFailureRecorded(t *testing.T) {
	s, sink := newScheduler(t)
	sink.err = errors.New("no route")
	s.Add(Config{Time: 1, Sink: "osc"})
	s.Sample(1)
	got := s.List()[0]
	if got.Failed != 1 || got.LastError != "no route" {
		t.Fatalf("trigger = %+v", got)
	}
	sink.err = nil
	s.Sample(1)
	if len(sink.got) != 0 {
		t.Error("a failed send still counts as fired for the pass")
	}
}
