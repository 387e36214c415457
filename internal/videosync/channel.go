package videosync

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/leandrodaf/trackmix/sdk/contracts"
)

// ChannelSurface is an in-process message channel standing in for a render
// surface. Outbound messages collect in an outbox; Deliver plays the role
// of the remote side.
type ChannelSurface struct {
	id  string
	clk contracts.Clock

	mu      sync.Mutex
	outbox  []contracts.SurfaceMessage
	handler func(contracts.SurfaceMessage)
	closed  bool
}

// NewChannelSurface creates an open surface delivering inbound messages on clk.
func NewChannelSurface(clk contracts.Clock) *ChannelSurface {
	return &ChannelSurface{id: uuid.NewString(), clk: clk}
}

func (s *ChannelSurface) ID() string { return s.id }

// Send appends msg to the outbox.
func (s *ChannelSurface) Send(msg contracts.SurfaceMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: surface %s closed", contracts.ErrSurfaceUnavailable, s.id)
	}
	s.outbox = append(s.outbox, msg)
	return nil
}

func (s *ChannelSurface) OnMessage(fn func(contracts.SurfaceMessage)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = fn
}

// Deliver queues an inbound message for the registered handler.
func (s *ChannelSurface) Deliver(msg contracts.SurfaceMessage) {
	s.mu.Lock()
	h, closed := s.handler, s.closed
	s.mu.Unlock()
	if h == nil || closed {
		return
	}
	s.clk.AfterFunc(0, func() { h(msg) })
}

// Drain returns and clears the outbox.
func (s *ChannelSurface) Drain() []contracts.SurfaceMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.outbox
	s.outbox = nil
	return out
}

func (s *ChannelSurface) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *ChannelSurface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ChannelFactory opens a ChannelSurface per slot.
type ChannelFactory struct {
	clk      contracts.Clock
	surfaces map[int]*ChannelSurface
	// Blocked makes Open fail, like a popup blocker would.
	Blocked bool
}

// NewChannelFactory creates a factory delivering on clk.
func NewChannelFactory(clk contracts.Clock) *ChannelFactory {
	return &ChannelFactory{clk: clk, surfaces: map[int]*ChannelSurface{}}
}

func (f *ChannelFactory) Open(slot int) (contracts.Surface, error) {
	if f.Blocked {
		return nil, fmt.Errorf("surface for slot %d blocked", slot)
	}
	s := NewChannelSurface(f.clk)
	f.surfaces[slot] = s
	return s, nil
}

// Surface returns the last surface opened for slot.
func (f *ChannelFactory) Surface(slot int) *ChannelSurface {
	return f.surfaces[slot]
}
