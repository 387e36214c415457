package sink

import (
	"context"
	"fmt"

	"github.com/hypebeast/go-osc/osc"
	"github.com/leandrodaf/trackmix/sdk/contracts"
)

// DefaultOSCPort is the usual listening port of show-control OSC receivers.
const DefaultOSCPort = 7000

// EncodeOSC builds the OSC message for p. A stop action sends 0 for
// numeric types and "STOP" for strings.
func EncodeOSC(p contracts.TriggerPayload) ([]byte, error) {
	msg := osc.NewMessage(p.Address)
	stop := p.Action == contracts.ActionStop
	switch p.DataType {
	case contracts.TriggerInteger:
		v := int32(p.Number)
		if stop {
			v = 0
		}
		msg.Append(v)
	case contracts.TriggerString:
		v := p.Text
		if stop {
			v = stopMessage
		}
		msg.Append(v)
	default:
		v := float32(p.Number)
		if stop {
			v = 0
		}
		msg.Append(v)
	}
	b, err := msg.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode osc %s: %w", p.Address, err)
	}
	return b, nil
}

// OSC sends triggers as OSC messages over UDP.
type OSC struct {
	*UDPSender
}

// NewOSC opens a sender targeting ip:port.
func NewOSC(ctx context.Context, ip string, port int) (*OSC, error) {
	s, err := NewUDPSender(ctx, ip, port)
	if err != nil {
		return nil, err
	}
	return &OSC{UDPSender: s}, nil
}

func (o *OSC) SendTrigger(p contracts.TriggerPayload) error {
	b, err := EncodeOSC(p)
	if err != nil {
		return err
	}
	return o.Send(b)
}
