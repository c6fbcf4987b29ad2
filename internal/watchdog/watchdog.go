// Package watchdog detects lost samples and reports stream throughput.
//
// The board numbers frames with an 8-bit counter that wraps at 255. Any
// step other than +1 (modulo 256) means frames went missing between the
// board and us. The watchdog also keeps the arrival delta of the last
// 250 samples and reports how long a full window took, which is a direct
// check on the nominal 250 Hz rate.
package watchdog

import (
	"time"

	"github.com/muurk/openbci/internal/protocol"
)

// WindowSize is the number of inter-arrival deltas summed per report
const WindowSize = 250

// Reporter receives watchdog findings
type Reporter interface {
	// DroppedSamples is called when the counter skips from -> to
	DroppedSamples(count int, from, to uint8)
	// Throughput is called with the time taken by the last WindowSize samples
	Throughput(total time.Duration)
}

// Stats is a cumulative snapshot of what the watchdog has seen
type Stats struct {
	Samples         uint64        `json:"samples"`
	Dropped         uint64        `json:"dropped"`
	DropEvents      uint64        `json:"drop_events"`
	LastWindow      time.Duration `json:"last_window_ns"`
	WindowsMeasured uint64        `json:"windows_measured"`
}

// Watchdog tracks frame counters. It is not safe for concurrent use; the
// device event loop owns it.
type Watchdog struct {
	reporter Reporter
	now      func() time.Time

	lastCount uint8
	haveCount bool
	lastTime  time.Time
	haveTime  bool

	deltas [WindowSize]time.Duration
	filled [WindowSize]bool
	unset  int // number of slots never written

	stats Stats
}

// Option configures a Watchdog
type Option func(*Watchdog)

// WithClock replaces time.Now. The clock must be monotonic.
func WithClock(now func() time.Time) Option {
	return func(w *Watchdog) {
		w.now = now
	}
}

// New creates a watchdog that reports to r (which may be nil)
func New(r Reporter, opts ...Option) *Watchdog {
	w := &Watchdog{
		reporter: r,
		now:      time.Now,
		unset:    WindowSize,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// HandleSample inspects one sample's counter and arrival time
func (w *Watchdog) HandleSample(s protocol.Sample) {
	c := s.Counter
	w.stats.Samples++

	if w.haveCount {
		increment := c - w.lastCount // uint8 arithmetic is modulo 256
		if increment != 1 {
			dropped := int(increment) - 1
			if increment == 0 {
				dropped = 255
			}
			w.stats.Dropped += uint64(dropped)
			w.stats.DropEvents++
			if w.reporter != nil {
				w.reporter.DroppedSamples(dropped, w.lastCount, c)
			}
		}
	}
	w.lastCount = c
	w.haveCount = true

	now := w.now()
	slot := int(c) % WindowSize
	if w.haveTime {
		if !w.filled[slot] {
			w.filled[slot] = true
			w.unset--
		}
		w.deltas[slot] = now.Sub(w.lastTime)
	}
	w.lastTime = now
	w.haveTime = true

	if slot == 0 && w.unset == 0 {
		var total time.Duration
		for _, d := range w.deltas {
			total += d
		}
		w.stats.LastWindow = total
		w.stats.WindowsMeasured++
		if w.reporter != nil {
			w.reporter.Throughput(total)
		}
	}
}

// Stats returns the cumulative counters
func (w *Watchdog) Stats() Stats {
	return w.stats
}

// Reset forgets the counter, timing window and statistics
func (w *Watchdog) Reset() {
	*w = Watchdog{
		reporter: w.reporter,
		now:      w.now,
		unset:    WindowSize,
	}
}
