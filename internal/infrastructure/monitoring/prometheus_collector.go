package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"aimon/internal/core/domain"
	"aimon/internal/core/ports"
)

// PrometheusCollector implements ports.SignalMetrics on a private registry
// so tests can run several collectors without duplicate registration panics.
type PrometheusCollector struct {
	registry *prometheus.Registry

	sessionsActive  prometheus.Gauge
	sessionsTotal   prometheus.Counter
	sessionDuration prometheus.Histogram

	candidatesForwarded *prometheus.CounterVec
	candidatesDropped   *prometheus.CounterVec

	segmentsTotal   prometheus.Counter
	segmentDuration prometheus.Histogram
	segmentBytes    prometheus.Counter
}

func NewPrometheusCollector() *PrometheusCollector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &PrometheusCollector{
		registry: registry,

		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "aimon_sessions_active",
			Help: "Number of call sessions currently live",
		}),
		sessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "aimon_sessions_total",
			Help: "Total number of call sessions started",
		}),
		sessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "aimon_session_duration_seconds",
			Help:    "Duration of completed call sessions",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),

		candidatesForwarded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aimon_ice_candidates_forwarded_total",
			Help: "ICE candidates published to the signaling channel",
		}, []string{"side"}),
		candidatesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aimon_ice_candidates_dropped_total",
			Help: "ICE candidates that failed to publish",
		}, []string{"side"}),

		segmentsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "aimon_recording_segments_total",
			Help: "Recording segments finalized",
		}),
		segmentDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "aimon_recording_segment_duration_seconds",
			Help:    "Duration of finalized recording segments",
			Buckets: []float64{1, 5, 10, 15, 20, 30, 60},
		}),
		segmentBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "aimon_recording_bytes_total",
			Help: "Total bytes written to recording segments",
		}),
	}
}

var _ ports.SignalMetrics = (*PrometheusCollector)(nil)

// Registry exposes the private registry for the /metrics handler.
func (p *PrometheusCollector) Registry() *prometheus.Registry {
	return p.registry
}

func (p *PrometheusCollector) SessionStarted() {
	p.sessionsActive.Inc()
	p.sessionsTotal.Inc()
}

func (p *PrometheusCollector) SessionEnded(duration time.Duration) {
	p.sessionsActive.Dec()
	p.sessionDuration.Observe(duration.Seconds())
}

func (p *PrometheusCollector) CandidateForwarded(side domain.CandidateSide) {
	p.candidatesForwarded.WithLabelValues(string(side)).Inc()
}

func (p *PrometheusCollector) CandidateDropped(side domain.CandidateSide) {
	p.candidatesDropped.WithLabelValues(string(side)).Inc()
}

func (p *PrometheusCollector) SegmentFinalized(seg domain.RecordingSegment) {
	p.segmentsTotal.Inc()
	p.segmentDuration.Observe(seg.Duration.Seconds())
	p.segmentBytes.Add(float64(seg.Size))
}
