// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "accountability_call"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Snapshot metrics
	SnapshotsTotal    *prometheus.CounterVec
	SnapshotLatency   prometheus.Histogram
	SessionsActive    prometheus.Gauge
	SegmentsDerived   prometheus.Counter
	TranscriptEvents  prometheus.Counter
	AgentStateChanges *prometheus.CounterVec

	// Segment metrics
	SegmentsCreated   prometheus.Counter
	SegmentsCompleted prometheus.Counter
	SegmentsDropped   *prometheus.CounterVec

	// Transcript metrics
	TranscriptsPartial prometheus.Counter
	TranscriptsFinal   prometheus.Counter

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// Token metrics
	TokensIssued   prometheus.Counter
	TokensRejected *prometheus.CounterVec

	// Live view metrics
	LiveClients prometheus.Gauge

	// gRPC metrics
	RPCTotal    *prometheus.CounterVec
	RPCDuration *prometheus.HistogramVec

	// Source metrics
	SourceErrors *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SnapshotsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "Total number of snapshots applied",
		}, []string{"origin"}),
		SnapshotLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "snapshot_apply_seconds",
			Help:      "Time to derive and publish a snapshot",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of rooms with a live session",
		}),
		SegmentsDerived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_derived_total",
			Help:      "Total number of segments derived across snapshots",
		}),
		TranscriptEvents: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_events_total",
			Help:      "Total number of transcription events received across snapshots",
		}),
		AgentStateChanges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_state_changes_total",
			Help:      "Total number of agent state transitions",
		}, []string{"state"}),

		SegmentsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_created_total",
			Help:      "Total number of distinct segments observed",
		}),
		SegmentsCompleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_completed_total",
			Help:      "Total number of segments completed with final transcript",
		}),
		SegmentsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_dropped_total",
			Help:      "Total number of segments dropped",
		}, []string{"reason"}),

		TranscriptsPartial: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_partial_total",
			Help:      "Total number of partial transcripts published",
		}),
		TranscriptsFinal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_final_total",
			Help:      "Total number of final transcripts published",
		}),

		KafkaPublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		TokensIssued: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_issued_total",
			Help:      "Total number of access tokens issued",
		}),
		TokensRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_rejected_total",
			Help:      "Total number of token requests rejected",
		}, []string{"reason"}),

		LiveClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_clients",
			Help:      "Number of connected live transcript websocket clients",
		}),

		RPCTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_requests_total",
			Help:      "Total number of gRPC requests",
		}, []string{"method", "code"}),
		RPCDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grpc_request_duration_seconds",
			Help:      "gRPC request duration in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"method"}),

		SourceErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_errors_total",
			Help:      "Total number of snapshot source errors",
		}, []string{"source"}),
	}
}

// RecordSnapshot records an applied snapshot.
func (m *Metrics) RecordSnapshot(origin string, events, segments int, latencySeconds float64) {
	m.SnapshotsTotal.WithLabelValues(origin).Inc()
	m.TranscriptEvents.Add(float64(events))
	m.SegmentsDerived.Add(float64(segments))
	m.SnapshotLatency.Observe(latencySeconds)
}

// RecordSessionOpened records a new room session.
func (m *Metrics) RecordSessionOpened() {
	m.SessionsActive.Inc()
}

// RecordSessionClosed records a room session ending.
func (m *Metrics) RecordSessionClosed() {
	m.SessionsActive.Dec()
}

// RecordAgentState records an agent state transition.
func (m *Metrics) RecordAgentState(state string) {
	m.AgentStateChanges.WithLabelValues(state).Inc()
}

// RecordSegmentCreated records a new segment id being observed.
func (m *Metrics) RecordSegmentCreated() {
	m.SegmentsCreated.Inc()
}

// RecordSegmentCompleted records a segment completed with final transcript.
func (m *Metrics) RecordSegmentCompleted() {
	m.SegmentsCompleted.Inc()
}

// RecordSegmentDropped records a segment being dropped.
func (m *Metrics) RecordSegmentDropped(reason string) {
	m.SegmentsDropped.WithLabelValues(reason).Inc()
}

// RecordPartialTranscript records a partial transcript published.
func (m *Metrics) RecordPartialTranscript() {
	m.TranscriptsPartial.Inc()
}

// RecordFinalTranscript records a final transcript published.
func (m *Metrics) RecordFinalTranscript() {
	m.TranscriptsFinal.Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordTokenIssued records an issued access token.
func (m *Metrics) RecordTokenIssued() {
	m.TokensIssued.Inc()
}

// RecordTokenRejected records a rejected token request.
func (m *Metrics) RecordTokenRejected(reason string) {
	m.TokensRejected.WithLabelValues(reason).Inc()
}

// RecordLiveClient adjusts the live client gauge by delta.
func (m *Metrics) RecordLiveClient(delta int) {
	m.LiveClients.Add(float64(delta))
}

// RecordRPC records a completed gRPC call.
func (m *Metrics) RecordRPC(method, code string, durationSeconds float64) {
	m.RPCTotal.WithLabelValues(method, code).Inc()
	m.RPCDuration.WithLabelValues(method).Observe(durationSeconds)
}

// RecordSourceError records a snapshot source failure.
func (m *Metrics) RecordSourceError(source string) {
	m.SourceErrors.WithLabelValues(source).Inc()
}
