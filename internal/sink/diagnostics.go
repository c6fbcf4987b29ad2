package sink

import (
	"go.uber.org/zap"

	"github.com/muurk/openbci/internal/logging"
	"github.com/muurk/openbci/internal/protocol"
)

// Diagnostics logs every Nth sample at debug level
type Diagnostics struct {
	every uint64
	seen  uint64
}

// NewDiagnostics logs one sample in every. Values below 1 log all samples.
func NewDiagnostics(every int) *Diagnostics {
	if every < 1 {
		every = 1
	}
	return &Diagnostics{every: uint64(every)}
}

// HandleSample is a bus subscriber
func (d *Diagnostics) HandleSample(s protocol.Sample) {
	d.seen++
	if (d.seen-1)%d.every != 0 {
		return
	}
	logging.Debug("Sample",
		zap.Uint64("seen", d.seen),
		zap.Uint8("counter", s.Counter),
		zap.Int32s("eeg", s.EEG[:]),
		zap.Int32s("accel", s.Accelerometer[:]),
	)
}

// Seen returns how many samples have been handled
func (d *Diagnostics) Seen() uint64 {
	return d.seen
}
