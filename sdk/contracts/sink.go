package contracts

import "fmt"

// TimecodeFrame is one sampled timecode position. Frames is always in [0, FPS).
type TimecodeFrame struct {
	Hours   int     `json:"hours"`
	Minutes int     `json:"minutes"`
	Seconds int     `json:"seconds"`
	Frames  int     `json:"frames"`
	FPS     float64 `json:"fps"`
}

// String formats the frame as HH:MM:SS:FF.
func (f TimecodeFrame) String() string {
	return fmt.Sprintf("%02d:%02d:%02d:%02d", f.Hours, f.Minutes, f.Seconds, f.Frames)
}

// TimecodeSink encodes and transmits timecode frames.
type TimecodeSink interface {
	SendTimecode(frame TimecodeFrame) error
}

// TriggerDataType is the argument type carried by a trigger.
type TriggerDataType string

const (
	TriggerFloat   TriggerDataType = "float"
	TriggerInteger TriggerDataType = "integer"
	TriggerString  TriggerDataType = "string"
)

// TriggerAction distinguishes start cues from stop cues.
type TriggerAction string

const (
	ActionStart TriggerAction = "start"
	ActionStop  TriggerAction = "stop"
)

// TriggerPayload is a finished trigger message handed to a TriggerSink.
type TriggerPayload struct {
	Address  string          `json:"address"`
	DataType TriggerDataType `json:"dataType"`
	Number   float64         `json:"number,omitempty"`
	Text     string          `json:"text,omitempty"`
	Time     float64         `json:"time"`
	Action   TriggerAction   `json:"action"`
}

// TriggerSink encodes and transmits trigger payloads.
type TriggerSink interface {
	SendTrigger(p TriggerPayload) error
}
