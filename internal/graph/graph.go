// Package graph is an in-memory audio graph backend. It records topology,
// gains and device bindings without rendering samples, which is all the
// router needs from a backend and all the tests need to inspect.
package graph

import (
	"fmt"
	"sort"
	"sync"

	"github.com/leandrodaf/trackmix/sdk/contracts"
)

// Backend is a virtual patchbay of output devices.
type Backend struct {
	mu      sync.Mutex
	devices map[string]contracts.AudioDevice
	order   []string

	// SinkSwitch controls whether contexts can redirect their output in place.
	SinkSwitch bool
	// FailChannelQuery makes MaxChannelCount fail on every context.
	FailChannelQuery bool

	contexts []*Context
}

// NewBackend creates a backend exposing a stereo "default" device.
func NewBackend() *Backend {
	b := &Backend{devices: map[string]contracts.AudioDevice{}, SinkSwitch: true}
	b.AddDevice(contracts.AudioDevice{ID: "default", Label: "Default Output", MaxChannels: 2})
	return b
}

// AddDevice registers or replaces an output device.
func (b *Backend) AddDevice(d contracts.AudioDevice) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.devices[d.ID]; !ok {
		b.order = append(b.order, d.ID)
	}
	b.devices[d.ID] = d
}

// Devices lists devices in registration order.
func (b *Backend) Devices() ([]contracts.AudioDevice, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]contracts.AudioDevice, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.devices[id])
	}
	return out, nil
}

// NewContext opens a context bound to deviceID ("" selects the default device).
func (b *Backend) NewContext(deviceID string) (contracts.AudioContext, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if deviceID == "" {
		deviceID = "default"
	}
	if _, ok := b.devices[deviceID]; !ok {
		return nil, fmt.Errorf("%w: unknown output device %q", contracts.ErrDevice, deviceID)
	}
	c := &Context{backend: b, deviceID: deviceID, suspended: true}
	c.destination = &Node{ctx: c, kind: "destination", inputs: 1}
	b.contexts = append(b.contexts, c)
	return c, nil
}

// Contexts returns every context ever opened, closed ones included.
func (b *Backend) Contexts() []*Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Context(nil), b.contexts...)
}

func (b *Backend) maxChannels(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.devices[id].MaxChannels
}

func (b *Backend) hasDevice(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.devices[id]
	return ok
}

// Context is one virtual audio context.
type Context struct {
	backend     *Backend
	deviceID    string
	suspended   bool
	closed      bool
	destination *Node
	nodes       []*Node
}

func (c *Context) DeviceID() string { return c.deviceID }

func (c *Context) MaxChannelCount() (int, error) {
	if c.backend.FailChannelQuery {
		return 0, fmt.Errorf("%w: channel count unavailable", contracts.ErrDevice)
	}
	return c.backend.maxChannels(c.deviceID), nil
}

func (c *Context) CreateMediaSource(media contracts.MediaHandle) (contracts.AudioNode, error) {
	if c.closed {
		return nil, fmt.Errorf("%w: context closed", contracts.ErrDevice)
	}
	return c.add(&Node{kind: "source", outputs: 1, Media: media}), nil
}

func (c *Context) CreateGain() contracts.GainNode {
	return c.add(&Node{kind: "gain", inputs: 1, outputs: 1, gain: 1})
}

func (c *Context) CreateSplitter(outputs int) contracts.AudioNode {
	return c.add(&Node{kind: "splitter", inputs: 1, outputs: outputs})
}

func (c *Context) CreateMerger(inputs int) contracts.ChannelNode {
	return c.add(&Node{kind: "merger", inputs: inputs, outputs: 1})
}

func (c *Context) Destination() contracts.ChannelNode { return c.destination }

func (c *Context) SetSinkID(deviceID string) error {
	if !c.backend.SinkSwitch {
		return fmt.Errorf("%w: output redirection unsupported", contracts.ErrDevice)
	}
	if !c.backend.hasDevice(deviceID) {
		return fmt.Errorf("%w: unknown output device %q", contracts.ErrDevice, deviceID)
	}
	c.deviceID = deviceID
	return nil
}

func (c *Context) Suspended() bool { return c.suspended }

func (c *Context) Resume() error {
	if c.closed {
		return fmt.Errorf("%w: context closed", contracts.ErrDevice)
	}
	c.suspended = false
	return nil
}

func (c *Context) Close() error {
	c.closed = true
	return nil
}

// Closed reports whether Close was called.
func (c *Context) Closed() bool { return c.closed }

// Nodes returns every node created on the context.
func (c *Context) Nodes() []*Node { return c.nodes }

func (c *Context) add(n *Node) *Node {
	n.ctx = c
	c.nodes = append(c.nodes, n)
	return n
}

// Edge is one output-to-input connection.
type Edge struct {
	To     *Node
	Output int
	Input  int
}

// Node is a virtual audio node. It implements GainNode and ChannelNode so
// the router can use one type for every role.
type Node struct {
	ctx     *Context
	kind    string
	inputs  int
	outputs int
	gain    float64
	edges   []Edge

	ChannelCount   int
	CountMode      contracts.ChannelCountMode
	Interpretation contracts.ChannelInterpretation
	Media          contracts.MediaHandle
}

func (n *Node) Kind() string { return n.kind }

func (n *Node) Connect(dst contracts.AudioNode, output, input int) error {
	to, ok := dst.(*Node)
	if !ok || to.ctx != n.ctx {
		return fmt.Errorf("%w: cannot connect across contexts", contracts.ErrDevice)
	}
	if output < 0 || output >= n.outputs {
		return fmt.Errorf("%w: output %d out of range [0,%d)", contracts.ErrValidation, output, n.outputs)
	}
	if input < 0 || input >= to.inputs {
		return fmt.Errorf("%w: input %d out of range [0,%d)", contracts.ErrValidation, input, to.inputs)
	}
	n.edges = append(n.edges, Edge{To: to, Output: output, Input: input})
	return nil
}

func (n *Node) Disconnect() { n.edges = nil }

func (n *Node) NumberOfInputs() int  { return n.inputs }
func (n *Node) NumberOfOutputs() int { return n.outputs }

func (n *Node) SetGain(linear float64) { n.gain = linear }
func (n *Node) Gain() float64          { return n.gain }

func (n *Node) ConfigureChannels(count int, mode contracts.ChannelCountMode, interp contracts.ChannelInterpretation) {
	n.ChannelCount = count
	n.CountMode = mode
	n.Interpretation = interp
}

// Edges returns outgoing connections ordered by output then input.
func (n *Node) Edges() []Edge {
	out := append([]Edge(nil), n.edges...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Output == out[j].Output {
			return out[i].Input < out[j].Input
		}
		return out[i].Output < out[j].Output
	})
	return out
}

// Connected reports whether n has any outgoing connection.
func (n *Node) Connected() bool { return len(n.edges) > 0 }
