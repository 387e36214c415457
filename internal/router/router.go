package router

import (
	"fmt"
	"math"

	"github.com/leandrodaf/trackmix/sdk/contracts"
	"go.uber.org/multierr"
)

const (
	// DefaultMergerFloor is the smallest merger ever built.
	DefaultMergerFloor = 18
	// DefaultChannels is assumed when a device cannot report its channel count.
	DefaultChannels = 2
	// DefaultDevice is the backend's default output.
	DefaultDevice = "default"
)

// Side selects a gain stage within a track graph.
type Side int

const (
	// Mono is the single stage of an audio track.
	Mono Side = iota
	// Left is the left stage of a video track.
	Left
	// Right is the right stage of a video track.
	Right
)

func (s Side) String() string {
	switch s {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return "mono"
	}
}

// ParseSide maps "left", "right" and anything else to a Side.
func ParseSide(s string) Side {
	switch s {
	case "left", "l":
		return Left
	case "right", "r":
		return Right
	default:
		return Mono
	}
}

// Route is the current output assignment of one gain stage.
type Route struct {
	DeviceID    string
	Channel     int
	MaxChannels int
}

// DeviceResult reports how a device change was carried out.
type DeviceResult struct {
	MediaRedirected   bool
	ContextRedirected bool
	Rebuilt           bool
	DeviceID          string // device the graph ended up on
	Corrected         []Side // stages moved back to channel 0
}

type stage struct {
	gain    contracts.GainNode
	channel int
	db      float64
	muted   bool
}

type trackGraph struct {
	kind        contracts.TrackKind
	media       contracts.MediaHandle
	deviceID    string
	maxChannels int

	ctx      contracts.AudioContext
	source   contracts.AudioNode
	splitter contracts.AudioNode
	merger   contracts.ChannelNode
	master   contracts.GainNode
	stages   map[Side]*stage
}

// settings is the part of a graph that survives a rebuild.
type settings struct {
	deviceID string
	stages   map[Side]stage
}

// Router owns every per-track audio graph.
type Router struct {
	backend         contracts.AudioBackend
	logger          contracts.Logger
	mergerFloor     int
	defaultChannels int
	graphs          map[int]*trackGraph
	master          *MasterBus
}

// New creates a router on backend. Zero floor/default values select the defaults.
func New(backend contracts.AudioBackend, logger contracts.Logger, mergerFloor, defaultChannels int) *Router {
	if mergerFloor <= 0 {
		mergerFloor = DefaultMergerFloor
	}
	if defaultChannels <= 0 {
		defaultChannels = DefaultChannels
	}
	return &Router{
		backend:         backend,
		logger:          logger,
		mergerFloor:     mergerFloor,
		defaultChannels: defaultChannels,
		graphs:          map[int]*trackGraph{},
		master:          newMasterBus(),
	}
}

// Master returns the master bus.
func (r *Router) Master() *MasterBus {
	return r.master
}

// CreateGraph builds the graph for slot. An existing graph for the slot is
// fully disconnected first and its routing is carried over.
func (r *Router) CreateGraph(slot int, kind contracts.TrackKind, media contracts.MediaHandle) error {
	prev := settings{deviceID: DefaultDevice}
	if old, ok := r.graphs[slot]; ok {
		if old.kind == kind {
			prev = old.snapshot()
		} else {
			prev.deviceID = old.deviceID
		}
		r.Teardown(slot)
	}
	g, err := r.build(kind, media, prev)
	if err != nil {
		return err
	}
	r.graphs[slot] = g
	r.master.attach(slot, g.master)
	r.logger.Info("Audio graph created",
		r.logger.Field().Int("slot", slot),
		r.logger.Field().String("kind", kind.String()),
		r.logger.Field().String("device", g.deviceID),
		r.logger.Field().Int("mergerInputs", g.merger.NumberOfInputs()))
	return nil
}

// Teardown disconnects every node of slot's graph and closes its context.
func (r *Router) Teardown(slot int) {
	g, ok := r.graphs[slot]
	if !ok {
		return
	}
	g.disconnect()
	if err := g.ctx.Close(); err != nil {
		r.logger.Warn("Failed to close audio context", r.logger.Field().Int("slot", slot), r.logger.Field().Error("error", err))
	}
	r.master.detach(slot)
	delete(r.graphs, slot)
}

// SetChannel moves one gain stage to a merger input. Out-of-range
// requests land on channel 0 and report corrected=true.
func (r *Router) SetChannel(slot int, side Side, channel int) (applied int, corrected bool, err error) {
	g, st, err := r.stage(slot, side)
	if err != nil {
		return 0, false, err
	}
	applied = connectToChannel(st, g.merger, channel, g.maxChannels)
	st.channel = applied
	corrected = applied != channel
	if corrected {
		r.logger.Warn("Channel out of range; routed to channel 1",
			r.logger.Field().Int("slot", slot),
			r.logger.Field().String("side", side.String()),
			r.logger.Field().Int("requested", channel))
	}
	return applied, corrected, nil
}

// SetGain sets a stage's level. Muting writes a zero gain and leaves the node connected.
func (r *Router) SetGain(slot int, side Side, db float64, muted bool) error {
	_, st, err := r.stage(slot, side)
	if err != nil {
		return err
	}
	st.db = db
	st.muted = muted
	st.apply()
	return nil
}

// SetDevice moves slot's output to deviceID. The media element and the
// context are redirected independently; the graph is rebuilt only when
// both redirects fail, and falls back to the default device when the
// rebuild fails too.
func (r *Router) SetDevice(slot int, deviceID string) (DeviceResult, error) {
	g, ok := r.graphs[slot]
	if !ok {
		return DeviceResult{}, fmt.Errorf("%w: slot %d", contracts.ErrUnknownTrack, slot)
	}
	res := DeviceResult{DeviceID: deviceID}

	mediaErr := g.media.SetSinkID(deviceID)
	res.MediaRedirected = mediaErr == nil
	ctxErr := g.ctx.SetSinkID(deviceID)
	res.ContextRedirected = ctxErr == nil

	log := r.logger
	if mediaErr != nil {
		log.Warn("Media output redirect failed", log.Field().Int("slot", slot), log.Field().Error("error", mediaErr))
	}
	if ctxErr != nil {
		log.Warn("Context output redirect failed", log.Field().Int("slot", slot), log.Field().Error("error", ctxErr))
	}

	if res.MediaRedirected || res.ContextRedirected {
		g.deviceID = deviceID
		g.maxChannels = r.MaxChannels(deviceID)
		g.ctx.Destination().ConfigureChannels(g.maxChannels, contracts.Explicit, contracts.Discrete)
		res.Corrected = r.revalidate(g)
		return res, nil
	}

	prev := g.snapshot()
	prev.deviceID = deviceID
	kind, media := g.kind, g.media
	r.Teardown(slot)

	rebuilt, err := r.build(kind, media, prev)
	if err != nil {
		log.Warn("Rebuild on requested device failed; using default output",
			log.Field().Int("slot", slot), log.Field().String("device", deviceID), log.Field().Error("error", err))
		prev.deviceID = DefaultDevice
		res.DeviceID = DefaultDevice
		var fallbackErr error
		rebuilt, fallbackErr = r.build(kind, media, prev)
		if fallbackErr != nil {
			return res, multierr.Append(err, fallbackErr)
		}
	}
	r.graphs[slot] = rebuilt
	r.master.attach(slot, rebuilt.master)
	res.Rebuilt = true
	res.Corrected = r.revalidate(rebuilt)
	log.Info("Audio graph rebuilt for device", log.Field().Int("slot", slot), log.Field().String("device", res.DeviceID))
	return res, nil
}

// Route reports the current assignment of a stage.
func (r *Router) Route(slot int, side Side) (Route, error) {
	g, st, err := r.stage(slot, side)
	if err != nil {
		return Route{}, err
	}
	return Route{DeviceID: g.deviceID, Channel: st.channel, MaxChannels: g.maxChannels}, nil
}

// ResumeAll resumes every suspended context.
func (r *Router) ResumeAll() error {
	var errs error
	for slot, g := range r.graphs {
		if !g.ctx.Suspended() {
			continue
		}
		if err := g.ctx.Resume(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("slot %d: %w", slot, err))
		}
	}
	return errs
}

// MaxChannels reports a device's channel count, or the default count when it cannot be queried.
func (r *Router) MaxChannels(deviceID string) int {
	ctx, err := r.backend.NewContext(deviceID)
	if err != nil {
		return r.defaultChannels
	}
	defer ctx.Close()
	return r.queryChannels(ctx)
}

func (r *Router) stage(slot int, side Side) (*trackGraph, *stage, error) {
	g, ok := r.graphs[slot]
	if !ok {
		return nil, nil, fmt.Errorf("%w: slot %d has no file loaded", contracts.ErrUnknownTrack, slot)
	}
	st, ok := g.stages[side]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s track has no %s stage", contracts.ErrValidation, g.kind, side)
	}
	return g, st, nil
}

func (r *Router) queryChannels(ctx contracts.AudioContext) int {
	n, err := ctx.MaxChannelCount()
	if err != nil || n <= 0 {
		r.logger.Warn("Channel count query failed; assuming default",
			r.logger.Field().String("device", ctx.DeviceID()),
			r.logger.Field().Int("channels", r.defaultChannels))
		return r.defaultChannels
	}
	return n
}

func (r *Router) build(kind contracts.TrackKind, media contracts.MediaHandle, prev settings) (*trackGraph, error) {
	ctx, err := r.backend.NewContext(prev.deviceID)
	if err != nil {
		if prev.deviceID == DefaultDevice {
			return nil, err
		}
		r.logger.Warn("Output device unavailable; using default",
			r.logger.Field().String("device", prev.deviceID), r.logger.Field().Error("error", err))
		prev.deviceID = DefaultDevice
		if ctx, err = r.backend.NewContext(DefaultDevice); err != nil {
			return nil, err
		}
	}

	g := &trackGraph{
		kind:     kind,
		media:    media,
		deviceID: ctx.DeviceID(),
		ctx:      ctx,
		stages:   map[Side]*stage{},
	}
	g.maxChannels = r.queryChannels(ctx)
	size := max(g.maxChannels, r.mergerFloor)

	dest := ctx.Destination()
	dest.ConfigureChannels(g.maxChannels, contracts.Explicit, contracts.Discrete)
	g.merger = ctx.CreateMerger(size)
	g.merger.ConfigureChannels(size, contracts.Explicit, contracts.Discrete)
	g.master = ctx.CreateGain()

	if g.source, err = ctx.CreateMediaSource(media); err != nil {
		ctx.Close()
		return nil, err
	}

	wire := func(from contracts.AudioNode, output int, side Side, defaultChannel int) error {
		st := &stage{gain: ctx.CreateGain(), channel: defaultChannel}
		if p, ok := prev.stages[side]; ok {
			st.channel, st.db, st.muted = p.channel, p.db, p.muted
		}
		if err := from.Connect(st.gain, output, 0); err != nil {
			return err
		}
		st.channel = connectToChannel(st, g.merger, st.channel, g.maxChannels)
		st.apply()
		g.stages[side] = st
		return nil
	}

	switch kind {
	case contracts.KindVideo:
		g.splitter = ctx.CreateSplitter(2)
		err = multierr.Combine(
			g.source.Connect(g.splitter, 0, 0),
			wire(g.splitter, 0, Left, 0),
			wire(g.splitter, 1, Right, 1),
		)
	default:
		err = wire(g.source, 0, Mono, 0)
	}
	if err == nil {
		err = multierr.Combine(g.merger.Connect(g.master, 0, 0), g.master.Connect(dest, 0, 0))
	}
	if err != nil {
		g.disconnect()
		ctx.Close()
		return nil, err
	}
	return g, nil
}

// revalidate moves stages whose channel no longer exists on the device back to channel 0.
func (r *Router) revalidate(g *trackGraph) []Side {
	var corrected []Side
	for _, side := range []Side{Mono, Left, Right} {
		st, ok := g.stages[side]
		if !ok || st.channel < g.maxChannels {
			continue
		}
		st.channel = connectToChannel(st, g.merger, 0, g.maxChannels)
		corrected = append(corrected, side)
	}
	return corrected
}

// connectToChannel reconnects a stage at channel, or at 0 when channel is
// not an input of the merger or not a channel of the device. It returns
// the input actually used.
func connectToChannel(st *stage, merger contracts.AudioNode, channel, deviceChannels int) int {
	st.gain.Disconnect()
	target := channel
	if target < 0 || target >= min(merger.NumberOfInputs(), deviceChannels) {
		target = 0
	}
	if err := st.gain.Connect(merger, 0, target); err != nil {
		// input 0 always exists on a merger
		_ = st.gain.Connect(merger, 0, 0)
		target = 0
	}
	return target
}

func (st *stage) apply() {
	if st.muted || math.IsInf(st.db, -1) {
		st.gain.SetGain(0)
		return
	}
	st.gain.SetGain(DBToLinear(st.db))
}

func (g *trackGraph) snapshot() settings {
	s := settings{deviceID: g.deviceID, stages: map[Side]stage{}}
	for side, st := range g.stages {
		s.stages[side] = stage{channel: st.channel, db: st.db, muted: st.muted}
	}
	return s
}

func (g *trackGraph) disconnect() {
	for _, st := range g.stages {
		st.gain.Disconnect()
	}
	if g.source != nil {
		g.source.Disconnect()
	}
	if g.splitter != nil {
		g.splitter.Disconnect()
	}
	g.merger.Disconnect()
	g.master.Disconnect()
}
