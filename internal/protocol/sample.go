package protocol

import (
	"encoding/json"
	"fmt"
)

// Frame layout constants
const (
	FrameStart   = 0xA0
	FrameEnd     = 0xC0
	FrameSize    = 33 // Start + counter + payload + end
	PayloadSize  = 30
	EEGChannels  = 8
	AccelAxes    = 3
	eegGroupSize = 3
	accelOffset  = EEGChannels * eegGroupSize // 24
)

// Commands understood by the board
const (
	CmdReset       byte = 'v'
	CmdStreamStart byte = 'b'
	CmdStreamStop  byte = 's'
)

// BaudRate is the serial speed of the OpenBCI dongle
const BaudRate = 115200

// Conversion factors for the default board configuration
const (
	// MicrovoltsPerCount is 4.5 V / gain 24 / (2^23 - 1)
	MicrovoltsPerCount = 0.02235
	// GPerCount is the LIS3DH scale at +/-4 g
	GPerCount = 0.002
)

// Terminator ends every text response in idle mode
var Terminator = []byte("$$$")

// Sample is one decoded streaming frame.
//
// The arrays make Sample a plain value: copies never share storage, so a
// Sample handed to one consumer cannot be changed under another.
type Sample struct {
	Counter       uint8
	EEG           [EEGChannels]int32
	Accelerometer [AccelAxes]int32
}

// String returns a debug representation of the sample
func (s Sample) String() string {
	return fmt.Sprintf("Sample{counter=%d, eeg=%v, accel=%v}", s.Counter, s.EEG, s.Accelerometer)
}

// Microvolts converts the EEG channels to microvolts
func (s Sample) Microvolts() [EEGChannels]float64 {
	var uv [EEGChannels]float64
	for i, c := range s.EEG {
		uv[i] = float64(c) * MicrovoltsPerCount
	}
	return uv
}

// Acceleration converts the accelerometer axes to g
func (s Sample) Acceleration() [AccelAxes]float64 {
	var g [AccelAxes]float64
	for i, c := range s.Accelerometer {
		g[i] = float64(c) * GPerCount
	}
	return g
}

// MarshalJSON encodes the sample as [counter, [eeg...], [x, y, z]]
func (s Sample) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{s.Counter, s.EEG, s.Accelerometer})
}

// UnmarshalJSON decodes the array form written by MarshalJSON
func (s *Sample) UnmarshalJSON(data []byte) error {
	var raw [3]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode sample: %w", err)
	}
	var out Sample
	if err := json.Unmarshal(raw[0], &out.Counter); err != nil {
		return fmt.Errorf("decode sample counter: %w", err)
	}
	if err := json.Unmarshal(raw[1], &out.EEG); err != nil {
		return fmt.Errorf("decode sample eeg: %w", err)
	}
	if err := json.Unmarshal(raw[2], &out.Accelerometer); err != nil {
		return fmt.Errorf("decode sample accelerometer: %w", err)
	}
	*s = out
	return nil
}

// Mode selects how the parser interprets incoming bytes
type Mode int

const (
	ModeIdle Mode = iota
	ModeDebug
	ModeSampleStream
)

// String returns a human-readable mode name
func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeDebug:
		return "debug"
	case ModeSampleStream:
		return "sample_stream"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// CommandName returns a human-readable name for a command byte
func CommandName(cmd byte) string {
	switch cmd {
	case CmdReset:
		return "reset"
	case CmdStreamStart:
		return "stream_start"
	case CmdStreamStop:
		return "stream_stop"
	default:
		return fmt.Sprintf("unknown(0x%02x)", cmd)
	}
}
