package device

import (
	"time"

	"go.uber.org/zap"

	"github.com/muurk/openbci/internal/bus"
	"github.com/muurk/openbci/internal/logging"
	"github.com/muurk/openbci/internal/monitor"
)

// reporter turns watchdog findings into logs and metrics
type reporter struct {
	endpoint *string
}

func (r reporter) DroppedSamples(count int, from, to uint8) {
	monitor.DroppedSamples.Add(float64(count))
	logging.Warn("Dropped samples",
		zap.String("endpoint", *r.endpoint),
		zap.Int("count", count),
		zap.Uint8("from", from),
		zap.Uint8("to", to),
	)
}

func (r reporter) Throughput(total time.Duration) {
	monitor.WindowDuration.Set(total.Seconds())
	logging.Debug("Sample window",
		zap.String("endpoint", *r.endpoint),
		zap.Duration("duration", total),
	)
}

func subscriberFault(h bus.Handle, fault error) {
	monitor.SubscriberFaults.Inc()
	logging.Error("Subscriber failed",
		zap.Uint64("handle", uint64(h)),
		zap.Error(fault),
	)
}
