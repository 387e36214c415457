package sink

import (
	"context"
	"strings"
	"sync"

	"github.com/leandrodaf/trackmix/sdk/contracts"
)

const (
	// DefaultTextPort is the default port of plain-text UDP triggers.
	DefaultTextPort = 9998
	startMessage    = "START"
	stopMessage     = "STOP"
)

// SanitizeText keeps printable ASCII only, falling back to START when nothing is left.
func SanitizeText(s string) string {
	clean := strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e {
			return -1
		}
		return r
	}, s)
	if clean == "" {
		return startMessage
	}
	return clean
}

// UDPText sends triggers as bare ASCII datagrams.
type UDPText struct {
	*UDPSender

	mu      sync.Mutex
	message string
}

// NewUDPText opens a sender targeting ip:port that sends message on start.
func NewUDPText(ctx context.Context, ip string, port int, message string) (*UDPText, error) {
	s, err := NewUDPSender(ctx, ip, port)
	if err != nil {
		return nil, err
	}
	return &UDPText{UDPSender: s, message: SanitizeText(message)}, nil
}

// SetMessage changes the default start message.
func (u *UDPText) SetMessage(m string) {
	u.mu.Lock()
	u.message = SanitizeText(m)
	u.mu.Unlock()
}

// Message returns the default start message.
func (u *UDPText) Message() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.message
}

// SendTrigger sends STOP for stop actions. Start actions send the payload
// text when it has one, otherwise the configured message.
func (u *UDPText) SendTrigger(p contracts.TriggerPayload) error {
	msg := u.Message()
	switch {
	case p.Action == contracts.ActionStop:
		msg = stopMessage
	case p.DataType == contracts.TriggerString && p.Text != "":
		msg = p.Text
	}
	return u.Send([]byte(SanitizeText(msg)))
}
