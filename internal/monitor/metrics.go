// Package monitor exposes Prometheus metrics for the streaming engine.
package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "openbci"

// Registry holds every collector in this package plus the Go runtime
// and process collectors.
var Registry = prometheus.NewRegistry()

var (
	// Link metrics
	BytesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bytes_received_total",
		Help:      "Bytes read from the device link",
	})

	ConnectionState = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connection_state",
		Help:      "Current connection state (0=disconnected 1=connecting 2=idle 3=streaming 4=closing)",
	})

	Sessions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_ended_total",
		Help:      "Device sessions ended, by outcome",
	}, []string{"outcome"})

	// Protocol metrics
	SamplesDecoded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "samples_decoded_total",
		Help:      "Streaming frames decoded into samples",
	})

	TextResponses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "text_responses_total",
		Help:      "Text responses received in idle mode",
	})

	DesyncEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "desync_events_total",
		Help:      "Times frame alignment was lost and recovered",
	})

	DesyncBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "desync_bytes_total",
		Help:      "Bytes discarded while resynchronizing",
	})

	// Watchdog metrics
	DroppedSamples = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dropped_samples_total",
		Help:      "Samples missing according to the frame counter",
	})

	WindowDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "window_duration_seconds",
		Help:      "Wall-clock time taken by the last 250 samples",
	})

	// Fanout metrics
	Subscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "subscribers",
		Help:      "Registered sample subscribers",
	})

	SubscriberFaults = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "subscriber_faults_total",
		Help:      "Subscriber callbacks that panicked",
	})

	ConsumerDrops = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "consumer_drops_total",
		Help:      "Samples dropped because a consumer queue was full",
	}, []string{"consumer"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		BytesReceived,
		ConnectionState,
		Sessions,
		SamplesDecoded,
		TextResponses,
		DesyncEvents,
		DesyncBytes,
		DroppedSamples,
		WindowDuration,
		Subscribers,
		SubscriberFaults,
		ConsumerDrops,
	)
}

// Handler serves the registry in the Prometheus exposition format
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
