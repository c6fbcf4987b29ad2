package protocol

import (
	"math/rand"
	"testing"
)

func TestDecodeInt24(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  int32
	}{
		{name: "max positive", input: []byte{0x7F, 0xFF, 0xFF}, want: 8388607},
		{name: "one", input: []byte{0x00, 0x00, 0x01}, want: 1},
		{name: "min negative", input: []byte{0x80, 0x00, 0x00}, want: -8388608},
		{name: "minus one", input: []byte{0xFF, 0xFF, 0xFF}, want: -1},
		{name: "mixed bytes", input: []byte{0x02, 0x04, 0x08}, want: 0x20408},
		{name: "zero", input: []byte{0x00, 0x00, 0x00}, want: 0},
		{name: "low bytes high bit set", input: []byte{0x00, 0xFF, 0xFF}, want: 0xFFFF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecodeInt24(tt.input); got != tt.want {
				t.Errorf("DecodeInt24(% x) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestDecodeInt16(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  int32
	}{
		{name: "max positive", input: []byte{0x7F, 0xFF}, want: 32767},
		{name: "min negative", input: []byte{0x80, 0x00}, want: -32768},
		{name: "minus one", input: []byte{0xFF, 0xFF}, want: -1},
		{name: "low byte high bit set", input: []byte{0x00, 0x80}, want: 128},
		{name: "mixed bytes", input: []byte{0x12, 0x34}, want: 0x1234},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecodeInt16(tt.input); got != tt.want {
				t.Errorf("DecodeInt16(% x) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestDecodeInt24sOffset(t *testing.T) {
	buf := []byte{0xEE, 0x00, 0x00, 0x01, 0xFF, 0xFF, 0xFF, 0x7F, 0xFF, 0xFF}
	got := make([]int32, 3)
	DecodeInt24s(got, buf, 1)

	want := []int32{1, -1, 8388607}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("group %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestDecodeInt16sOffset(t *testing.T) {
	buf := []byte{0xEE, 0xEE, 0xFF, 0xFE, 0x00, 0x10}
	got := make([]int32, 2)
	DecodeInt16s(got, buf, 2)

	if got[0] != -2 || got[1] != 16 {
		t.Errorf("DecodeInt16s = %v, want [-2 16]", got)
	}
}

func TestStrategiesAgree(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	scalar := ScalarStrategy{}
	word := WordStrategy{}

	check := func(payload [PayloadSize]byte) {
		t.Helper()
		se, sa := scalar.DecodePayload(&payload)
		we, wa := word.DecodePayload(&payload)
		if se != we || sa != wa {
			t.Fatalf("strategies disagree on % x:\nscalar=%v %v\nword=%v %v", payload, se, sa, we, wa)
		}
	}

	var edge [PayloadSize]byte
	check(edge)
	for i := range edge {
		edge[i] = 0xFF
	}
	check(edge)
	for i := range edge {
		edge[i] = 0x80
	}
	check(edge)

	for n := 0; n < 5000; n++ {
		var payload [PayloadSize]byte
		rng.Read(payload[:])
		check(payload)
	}
}

func TestStrategyMatchesFormula(t *testing.T) {
	eeg := [EEGChannels]int32{MaxInt24, MinInt24, -1, 1, 0x20408, -123456, 0, 4242}
	accel := [AccelAxes]int32{-32768, 32767, -5}
	payload, err := BuildPayload(eeg, accel)
	if err != nil {
		t.Fatalf("BuildPayload() error = %v", err)
	}

	for _, s := range []Strategy{ScalarStrategy{}, WordStrategy{}, SelectStrategy()} {
		t.Run(s.Name(), func(t *testing.T) {
			gotEEG, gotAccel := s.DecodePayload(&payload)
			if gotEEG != eeg {
				t.Errorf("eeg = %v, want %v", gotEEG, eeg)
			}
			if gotAccel != accel {
				t.Errorf("accel = %v, want %v", gotAccel, accel)
			}
		})
	}
}

func TestStrategyByName(t *testing.T) {
	tests := []struct {
		name   string
		want   string
		wantOK bool
	}{
		{name: "scalar", want: "scalar", wantOK: true},
		{name: "word", want: "word", wantOK: true},
		{name: "auto", want: SelectStrategy().Name(), wantOK: true},
		{name: "", want: SelectStrategy().Name(), wantOK: true},
		{name: "simd", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ok := StrategyByName(tt.name)
			if ok != tt.wantOK {
				t.Fatalf("StrategyByName(%q) ok = %v, want %v", tt.name, ok, tt.wantOK)
			}
			if ok && s.Name() != tt.want {
				t.Errorf("StrategyByName(%q) = %s, want %s", tt.name, s.Name(), tt.want)
			}
		})
	}
}

func BenchmarkScalarStrategy(b *testing.B) {
	var payload [PayloadSize]byte
	rand.New(rand.NewSource(2)).Read(payload[:])
	s := ScalarStrategy{}
	for i := 0; i < b.N; i++ {
		s.DecodePayload(&payload)
	}
}

func BenchmarkWordStrategy(b *testing.B) {
	var payload [PayloadSize]byte
	rand.New(rand.NewSource(2)).Read(payload[:])
	s := WordStrategy{}
	for i := 0; i < b.N; i++ {
		s.DecodePayload(&payload)
	}
}
