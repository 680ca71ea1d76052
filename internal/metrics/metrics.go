// Package metrics provides Prometheus instrumentation for DatViz. It exposes
// gauges for stream viewers, counters for frames, API outcomes and credits,
// and histograms for frame and analyzer latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// StreamViewers tracks the current number of background stream viewers.
	StreamViewers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "datviz_stream_viewers",
		Help: "Current number of background stream viewers",
	})

	// StreamMessages counts stream messages, labeled by type: "sent",
	// "received", or "rejected".
	StreamMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "datviz_stream_messages_total",
		Help: "Total number of background stream messages",
	}, []string{"type"})

	// FrameDuration records the time to simulate and encode one frame.
	FrameDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "datviz_frame_duration_seconds",
		Help:    "Time to simulate and encode one background frame",
		Buckets: []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05},
	})

	// IPLookups counts public IP lookups by result: "ok" or "failed".
	IPLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "datviz_ip_lookups_total",
		Help: "Total number of public IP lookups",
	}, []string{"result"})

	// APIRequests counts API responses by route pattern and status code.
	APIRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "datviz_api_requests_total",
		Help: "Total number of API responses",
	}, []string{"route", "code"})

	// AnalyzerLatency records analyzer round-trip time by operation.
	AnalyzerLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "datviz_analyzer_latency_seconds",
		Help:    "Analyzer request latency in seconds",
		Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"op"})

	// CreditsDeducted counts prompt credits charged to users.
	CreditsDeducted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "datviz_credits_deducted_total",
		Help: "Total prompt credits charged",
	})

	// EventsPersisted counts audit events written, labeled by subject.
	EventsPersisted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "datviz_events_persisted_total",
		Help: "Total number of domain events persisted by the auditor",
	}, []string{"subject"})
)

func init() {
	prometheus.MustRegister(
		StreamViewers,
		StreamMessages,
		FrameDuration,
		IPLookups,
		APIRequests,
		AnalyzerLatency,
		CreditsDeducted,
		EventsPersisted,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
