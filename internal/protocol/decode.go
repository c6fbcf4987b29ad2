package protocol

import (
	"encoding/binary"

	"golang.org/x/sys/cpu"
)

// The ADS1299 outputs 24-bit two's complement, MSB first. There is no
// 24-bit integer type, so each group is read as a signed high byte and
// an unsigned low 16 bits. The sign lives entirely in the high byte, so
// shifting it up sign-extends the whole value.

// DecodeInt24 decodes one 3-byte big-endian signed value
func DecodeInt24(b []byte) int32 {
	_ = b[2]
	return int32(int8(b[0]))<<16 | int32(binary.BigEndian.Uint16(b[1:3]))
}

// DecodeInt16 decodes one 2-byte big-endian signed value
func DecodeInt16(b []byte) int32 {
	_ = b[1]
	return int32(int8(b[0]))<<8 | int32(b[1])
}

// DecodeInt24s decodes len(dst) consecutive 3-byte groups starting at offset
func DecodeInt24s(dst []int32, buf []byte, offset int) {
	for i := range dst {
		dst[i] = DecodeInt24(buf[offset+i*3:])
	}
}

// DecodeInt16s decodes len(dst) consecutive 2-byte groups starting at offset
func DecodeInt16s(dst []int32, buf []byte, offset int) {
	for i := range dst {
		dst[i] = DecodeInt16(buf[offset+i*2:])
	}
}

// Strategy decodes a frame payload into channel and axis values.
// Every implementation must produce identical output for identical input.
type Strategy interface {
	Name() string
	DecodePayload(payload *[PayloadSize]byte) (eeg [EEGChannels]int32, accel [AccelAxes]int32)
}

// ScalarStrategy decodes one group at a time
type ScalarStrategy struct{}

func (ScalarStrategy) Name() string { return "scalar" }

func (ScalarStrategy) DecodePayload(payload *[PayloadSize]byte) (eeg [EEGChannels]int32, accel [AccelAxes]int32) {
	DecodeInt24s(eeg[:], payload[:], 0)
	DecodeInt16s(accel[:], payload[:], accelOffset)
	return eeg, accel
}

// WordStrategy loads 12 bytes as one 64-bit and one 32-bit word and
// extracts four channels from them, cutting the number of loads by four.
type WordStrategy struct{}

func (WordStrategy) Name() string { return "word" }

func (WordStrategy) DecodePayload(payload *[PayloadSize]byte) (eeg [EEGChannels]int32, accel [AccelAxes]int32) {
	for g := 0; g < 2; g++ {
		base := g * 12
		hi := binary.BigEndian.Uint64(payload[base : base+8])
		lo := binary.BigEndian.Uint32(payload[base+8 : base+12])

		eeg[g*4+0] = signExtend24(uint32(hi >> 40))
		eeg[g*4+1] = signExtend24(uint32(hi >> 16))
		eeg[g*4+2] = signExtend24(uint32(hi&0xFFFF)<<8 | lo>>24)
		eeg[g*4+3] = signExtend24(lo)
	}

	axes := binary.BigEndian.Uint32(payload[accelOffset : accelOffset+4])
	accel[0] = int32(int16(axes >> 16))
	accel[1] = int32(int16(axes))
	accel[2] = int32(int16(binary.BigEndian.Uint16(payload[accelOffset+4 : accelOffset+6])))
	return eeg, accel
}

// signExtend24 sign-extends the low 24 bits of v
func signExtend24(v uint32) int32 {
	return int32(v<<8) >> 8
}

// SelectStrategy picks the decode strategy for the running CPU.
// Wide-register CPUs use WordStrategy; everything else falls back to
// ScalarStrategy.
func SelectStrategy() Strategy {
	if cpu.X86.HasAVX2 || cpu.ARM64.HasASIMD {
		return WordStrategy{}
	}
	return ScalarStrategy{}
}

// StrategyByName returns a strategy by name, or SelectStrategy() for "auto" or ""
func StrategyByName(name string) (Strategy, bool) {
	switch name {
	case "", "auto":
		return SelectStrategy(), true
	case "scalar":
		return ScalarStrategy{}, true
	case "word":
		return WordStrategy{}, true
	default:
		return nil, false
	}
}

// Decode converts a frame into a Sample using the given strategy
func (f SampleFrame) Decode(s Strategy) Sample {
	eeg, accel := s.DecodePayload(&f.Payload)
	return Sample{
		Counter:       f.Counter,
		EEG:           eeg,
		Accelerometer: accel,
	}
}
