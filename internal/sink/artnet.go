package sink

import (
	"context"

	"github.com/leandrodaf/trackmix/sdk/contracts"
)

// ArtNetPort is the standard Art-Net UDP port.
const ArtNetPort = 6454

const (
	opTimeCode  = 0x9700
	protVersion = 14
	// ArtTimeCodeLen is the size of an ArtTimeCode packet.
	ArtTimeCodeLen = 19
)

// Art-Net timecode types.
const (
	TypeFilm  byte = 0 // 24 fps
	TypeEBU   byte = 1 // 25 fps
	TypeDF    byte = 2 // 29.97 fps drop frame
	TypeSMPTE byte = 3 // 30 fps
)

var artNetID = [8]byte{'A', 'r', 't', '-', 'N', 'e', 't', 0}

// ArtNetType maps a frame rate to its timecode type. Unknown rates map to EBU.
func ArtNetType(fps float64) byte {
	switch fps {
	case 24:
		return TypeFilm
	case 29.97:
		return TypeDF
	case 30:
		return TypeSMPTE
	default:
		return TypeEBU
	}
}

// EncodeArtTimeCode builds an OpTimeCode packet for frame on stream.
func EncodeArtTimeCode(frame contracts.TimecodeFrame, stream byte) []byte {
	b := make([]byte, ArtTimeCodeLen)
	copy(b, artNetID[:])
	b[8] = byte(opTimeCode & 0xff) // OpCode, little endian
	b[9] = byte(opTimeCode >> 8)
	b[10] = 0 // ProtVerHi
	b[11] = protVersion
	b[12] = 0 // Filler1
	b[13] = stream
	b[14] = byte(frame.Frames)
	b[15] = byte(frame.Seconds)
	b[16] = byte(frame.Minutes)
	b[17] = byte(frame.Hours)
	b[18] = ArtNetType(frame.FPS)
	return b
}

// ArtNet sends timecode frames as ArtTimeCode packets.
type ArtNet struct {
	*UDPSender
	Stream byte
}

// NewArtNet opens a sender targeting ip:port.
func NewArtNet(ctx context.Context, ip string, port int) (*ArtNet, error) {
	s, err := NewUDPSender(ctx, ip, port)
	if err != nil {
		return nil, err
	}
	return &ArtNet{UDPSender: s}, nil
}

func (a *ArtNet) SendTimecode(frame contracts.TimecodeFrame) error {
	return a.Send(EncodeArtTimeCode(frame, a.Stream))
}
