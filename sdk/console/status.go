package console

import (
	"github.com/leandrodaf/trackmix/internal/clock"
	"github.com/leandrodaf/trackmix/internal/router"
	"github.com/leandrodaf/trackmix/internal/timecode"
	"github.com/leandrodaf/trackmix/internal/trigger"
	"github.com/leandrodaf/trackmix/sdk/contracts"
)

// TrackStatus describes one loaded slot.
type TrackStatus struct {
	Slot       int
	Name       string
	Kind       contracts.TrackKind
	Time       float64
	Duration   float64
	Playing    bool
	Waiting    bool
	Reference  bool
	Device     string
	Video      bool
	VideoReady bool
}

// Status is a snapshot of the whole console.
type Status struct {
	State       string
	Loop        bool
	Position    float64
	Duration    float64
	MasterDB    float64
	MasterMuted bool
	Tracks      []TrackStatus
	Clock       clock.Status
	Timecode    timecode.Status
	Triggers    []trigger.Trigger
}

// Status returns a snapshot.
func (c *Console) Status() Status {
	s := Status{
		State:    c.playback.State().String(),
		Loop:     c.playback.Loop(),
		Position: c.Position(),
		Clock:    c.clock.Status(),
		Timecode: c.timecode.Status(),
		Triggers: c.triggers.List(),
	}
	s.MasterDB, s.MasterMuted = c.router.Master().Level()

	ref := c.playback.Reference()
	if ref != nil {
		s.Duration = ref.Media.Duration()
	}
	for _, t := range c.playback.Tracks() {
		ts := TrackStatus{
			Slot:      t.Slot,
			Name:      t.Name,
			Kind:      t.Kind,
			Time:      t.Media.CurrentTime(),
			Duration:  t.Media.Duration(),
			Playing:   !t.Media.Paused(),
			Waiting:   t.Waiting,
			Reference: t == ref,
		}
		side := router.Mono
		if t.Kind == contracts.KindVideo {
			side = router.Left
		}
		if r, err := c.router.Route(t.Slot, side); err == nil {
			ts.Device = r.DeviceID
		}
		ts.Video, ts.VideoReady = c.video.Attached(t.Slot)
		s.Tracks = append(s.Tracks, ts)
	}
	return s
}
