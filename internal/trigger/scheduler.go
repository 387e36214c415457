// Package trigger fires time-cued messages as the playhead passes them.
package trigger

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/leandrodaf/trackmix/sdk/contracts"
)

const (
	// Tolerance is the half-width in seconds of the window around a target time.
	Tolerance = 0.5

	DefaultAddress = "/trigger/start"
	DefaultText    = "START"
	DefaultValue   = 1.0

	notFired = -1.0
)

// Config describes one trigger. An empty address, data type or text takes
// the defaults above.
type Config struct {
	Name     string
	Time     float64 // playhead position in seconds
	Sink     string  // registered sink name
	Address  string
	DataType contracts.TriggerDataType
	Number   float64
	Text     string
	// OnRestart also fires the trigger when every track restarts together.
	OnRestart bool
	Disabled  bool
}

// Trigger is a registered trigger and its firing state.
type Trigger struct {
	ID string
	Config

	lastFired float64
	Fired     uint64
	Failed    uint64
	LastError string
}

// Scheduler owns the ordered trigger set. It must only be used from the
// console loop.
type Scheduler struct {
	logger   contracts.Logger
	sinks    map[string]contracts.TriggerSink
	triggers []*Trigger
}

// NewScheduler creates an empty scheduler.
func NewScheduler(logger contracts.Logger) *Scheduler {
	return &Scheduler{logger: logger, sinks: map[string]contracts.TriggerSink{}}
}

// SetSink registers sink under name, replacing any previous one. A nil sink removes it.
func (s *Scheduler) SetSink(name string, sink contracts.TriggerSink) {
	if sink == nil {
		delete(s.sinks, name)
		return
	}
	s.sinks[name] = sink
}

// Add validates cfg, corrects out-of-range values and appends the trigger.
func (s *Scheduler) Add(cfg Config) (*Trigger, error) {
	cfg, err := s.normalize(cfg)
	if err != nil {
		return nil, err
	}
	t := &Trigger{ID: uuid.NewString(), Config: cfg, lastFired: notFired}
	s.triggers = append(s.triggers, t)
	s.logger.Info("Trigger added",
		s.logger.Field().String("id", t.ID),
		s.logger.Field().String("sink", cfg.Sink),
		s.logger.Field().Float64("time", cfg.Time))
	return t, nil
}

// Update replaces the configuration of trigger id. Its fired state is kept,
// so a changed target time can fire in the current pass.
func (s *Scheduler) Update(id string, cfg Config) error {
	t, err := s.find(id)
	if err != nil {
		return err
	}
	cfg, err = s.normalize(cfg)
	if err != nil {
		return err
	}
	t.Config = cfg
	return nil
}

// Remove deletes trigger id.
func (s *Scheduler) Remove(id string) error {
	for i, t := range s.triggers {
		if t.ID == id {
			s.triggers = append(s.triggers[:i], s.triggers[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", contracts.ErrUnknownTrigger, id)
}

// List returns the triggers in insertion order.
func (s *Scheduler) List() []Trigger {
	out := make([]Trigger, len(s.triggers))
	for i, t := range s.triggers {
		out[i] = *t
	}
	return out
}

// Sample fires every enabled trigger whose target lies within Tolerance of
// t and that has not fired for that target since the last ResetAll.
func (s *Scheduler) Sample(t float64) int {
	n := 0
	for _, tr := range s.triggers {
		if tr.Disabled || math.Abs(t-tr.Time) >= Tolerance || tr.lastFired == tr.Time {
			continue
		}
		tr.lastFired = tr.Time
		s.send(tr, contracts.ActionStart, t)
		n++
	}
	return n
}

// ResetAll re-arms every trigger.
func (s *Scheduler) ResetAll() {
	for _, tr := range s.triggers {
		tr.lastFired = notFired
	}
}

// SignalStart fires the OnRestart triggers. It does not change their
// armed state.
func (s *Scheduler) SignalStart(t float64) {
	for _, tr := range s.triggers {
		if tr.OnRestart && !tr.Disabled {
			s.send(tr, contracts.ActionStart, t)
		}
	}
}

// Fire sends trigger id immediately, regardless of time or armed state.
func (s *Scheduler) Fire(id string, action contracts.TriggerAction, t float64) error {
	tr, err := s.find(id)
	if err != nil {
		return err
	}
	return s.send(tr, action, t)
}

func (s *Scheduler) find(id string) (*Trigger, error) {
	for _, t := range s.triggers {
		if t.ID == id || (len(id) >= 8 && strings.HasPrefix(t.ID, id)) {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", contracts.ErrUnknownTrigger, id)
}

func (s *Scheduler) send(tr *Trigger, action contracts.TriggerAction, t float64) error {
	sink, ok := s.sinks[tr.Sink]
	if !ok {
		err := fmt.Errorf("trigger %s: sink %q not configured", tr.ID, tr.Sink)
		tr.Failed++
		tr.LastError = err.Error()
		s.logger.Warn("Trigger dropped", s.logger.Field().Error("error", err))
		return err
	}
	p := contracts.TriggerPayload{
		Address:  tr.Address,
		DataType: tr.DataType,
		Number:   tr.Number,
		Text:     tr.Text,
		Time:     t,
		Action:   action,
	}
	if err := sink.SendTrigger(p); err != nil {
		tr.Failed++
		tr.LastError = err.Error()
		s.logger.Warn("Trigger send failed",
			s.logger.Field().String("id", tr.ID),
			s.logger.Field().String("sink", tr.Sink),
			s.logger.Field().Error("error", err))
		return err
	}
	tr.Fired++
	tr.LastError = ""
	s.logger.Info("Trigger fired",
		s.logger.Field().String("id", tr.ID),
		s.logger.Field().String("action", string(action)),
		s.logger.Field().Float64("time", t))
	return nil
}

// normalize rejects what has no safe default and clamps the rest.
func (s *Scheduler) normalize(cfg Config) (Config, error) {
	if math.IsNaN(cfg.Time) || math.IsInf(cfg.Time, 0) || cfg.Time < 0 {
		return cfg, fmt.Errorf("%w: trigger time %v", contracts.ErrValidation, cfg.Time)
	}
	if _, ok := s.sinks[cfg.Sink]; !ok {
		return cfg, fmt.Errorf("%w: unknown trigger sink %q", contracts.ErrValidation, cfg.Sink)
	}
	cfg.Address = strings.TrimSpace(cfg.Address)
	if cfg.Address == "" {
		cfg.Address = DefaultAddress
	}
	if !strings.HasPrefix(cfg.Address, "/") {
		return cfg, fmt.Errorf("%w: address %q must start with /", contracts.ErrValidation, cfg.Address)
	}

	switch cfg.DataType {
	case "", contracts.TriggerFloat:
		cfg.DataType = contracts.TriggerFloat
		cfg.Number = s.clamp(cfg.Number, DefaultValue)
	case contracts.TriggerInteger:
		cfg.Number = math.Trunc(s.clamp(cfg.Number, DefaultValue))
	case contracts.TriggerString:
		cfg.Text = strings.TrimSpace(cfg.Text)
		if cfg.Text == "" {
			cfg.Text = DefaultText
		}
	default:
		return cfg, fmt.Errorf("%w: data type %q", contracts.ErrValidation, cfg.DataType)
	}
	return cfg, nil
}

func (s *Scheduler) clamp(v, fallback float64) float64 {
	if math.IsNaN(v) {
		s.logger.Warn("Trigger value corrected", s.logger.Field().Float64("value", fallback))
		return fallback
	}
	c := max(0, min(1, v))
	if c != v {
		s.logger.Warn("Trigger value clamped",
			s.logger.Field().Float64("requested", v),
			s.logger.Field().Float64("value", c))
	}
	return c
}
