package protocol

import (
	"fmt"
)

// Frame constructors, the inverse of the decoder. Used by the board
// simulator and by tests that need well-formed wire data.

const (
	// MaxInt24 and MinInt24 bound a signed 24-bit value
	MaxInt24 = 1<<23 - 1
	MinInt24 = -1 << 23
)

// EncodeInt24 writes v as a 3-byte big-endian two's complement value.
// Bits above the low 24 are discarded.
func EncodeInt24(dst []byte, v int32) {
	_ = dst[2]
	dst[0] = byte(v >> 16)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v)
}

// EncodeInt16 writes v as a 2-byte big-endian two's complement value
func EncodeInt16(dst []byte, v int32) {
	_ = dst[1]
	dst[0] = byte(v >> 8)
	dst[1] = byte(v)
}

// BuildPayload packs channel and axis values into a frame payload
//
// Payload Structure:
//
//	[0-23]  eeg     8 x signed 24-bit, big-endian
//	[24-29] accel   3 x signed 16-bit, big-endian
func BuildPayload(eeg [EEGChannels]int32, accel [AccelAxes]int32) ([PayloadSize]byte, error) {
	var payload [PayloadSize]byte
	for i, v := range eeg {
		if v < MinInt24 || v > MaxInt24 {
			return payload, fmt.Errorf("channel %d value %d out of 24-bit range", i, v)
		}
		EncodeInt24(payload[i*eegGroupSize:], v)
	}
	for i, v := range accel {
		if v < -1<<15 || v > 1<<15-1 {
			return payload, fmt.Errorf("axis %d value %d out of 16-bit range", i, v)
		}
		EncodeInt16(payload[accelOffset+i*2:], v)
	}
	return payload, nil
}

// BuildFrame wraps a payload into a complete 33-byte streaming frame
//
// Frame Structure:
//
//	[0]     0xA0     Start marker
//	[1]     counter  Sample counter
//	[2-31]  payload
//	[32]    0xC0     End marker
func BuildFrame(counter uint8, payload [PayloadSize]byte) []byte {
	frame := make([]byte, FrameSize)
	frame[0] = FrameStart
	frame[1] = counter
	copy(frame[2:], payload[:])
	frame[FrameSize-1] = FrameEnd
	return frame
}

// BuildSampleFrame encodes a Sample as a streaming frame
func BuildSampleFrame(s Sample) ([]byte, error) {
	payload, err := BuildPayload(s.EEG, s.Accelerometer)
	if err != nil {
		return nil, fmt.Errorf("failed to build payload: %w", err)
	}
	return BuildFrame(s.Counter, payload), nil
}

// BuildTextResponse terminates a text reply the way the board does
func BuildTextResponse(text string) []byte {
	out := make([]byte, 0, len(text)+len(Terminator))
	out = append(out, text...)
	return append(out, Terminator...)
}
