// Package sink encodes finished timecode frames, triggers and transport
// bytes and puts them on the wire.
package sink

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/leandrodaf/trackmix/internal/config"
	"github.com/leandrodaf/trackmix/sdk/contracts"
)

// UDPSender writes datagrams to a changeable IPv4 target from one
// broadcast-enabled socket.
type UDPSender struct {
	mu     sync.Mutex
	conn   net.PacketConn
	target *net.UDPAddr
}

// NewUDPSender opens an unbound IPv4 socket with SO_BROADCAST set and
// targets ip:port.
func NewUDPSender(ctx context.Context, ip string, port int) (*UDPSender, error) {
	target, err := resolve(ip, port)
	if err != nil {
		return nil, err
	}
	lc := net.ListenConfig{Control: enableBroadcast}
	conn, err := lc.ListenPacket(ctx, "udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("open udp socket: %w", err)
	}
	return &UDPSender{conn: conn, target: target}, nil
}

// SetTarget changes the destination. Invalid targets leave it unchanged.
func (s *UDPSender) SetTarget(ip string, port int) error {
	target, err := resolve(ip, port)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.target = target
	s.mu.Unlock()
	return nil
}

// Target returns the destination as ip:port.
func (s *UDPSender) Target() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target.String()
}

// LocalAddr returns the socket's bound address.
func (s *UDPSender) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// Send writes b as one datagram.
func (s *UDPSender) Send(b []byte) error {
	s.mu.Lock()
	target := s.target
	s.mu.Unlock()
	if _, err := s.conn.WriteTo(b, target); err != nil {
		return fmt.Errorf("send to %s: %w", target, err)
	}
	return nil
}

func (s *UDPSender) Close() error {
	return s.conn.Close()
}

func resolve(ip string, port int) (*net.UDPAddr, error) {
	if !config.IsValidIPv4(ip) {
		return nil, fmt.Errorf("%w: invalid IPv4 address %q", contracts.ErrValidation, ip)
	}
	if !config.IsValidPort(port) {
		return nil, fmt.Errorf("%w: invalid port %d", contracts.ErrValidation, port)
	}
	return net.ResolveUDPAddr("udp4", net.JoinHostPort(ip, strconv.Itoa(port)))
}
