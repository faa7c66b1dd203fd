package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the FLOAT stream client.
// Counters and histograms that mirror pipeline stats are fed by the client's
// periodic sync loop writing to the collectors directly; only the
// connection-scoped and HTTP metrics have event helpers.
type Metrics struct {
	// Outbound chunk metrics
	ChunksSent       prometheus.Counter
	ChunksAcked      prometheus.Counter
	Retransmits      prometheus.Counter
	SendQueueDepth   prometheus.Gauge
	SendOverflows    prometheus.Counter
	SendRejections   prometheus.Counter
	CongestionEvents prometheus.Counter

	// Connection metrics
	ConnectAttempts prometheus.Counter
	Reconnects      prometheus.Counter
	ParseErrors     prometheus.Counter
	ServerErrors    prometheus.Counter
	ConnectedTime   prometheus.Histogram

	// Playout metrics
	ChunksPlayed      prometheus.Counter
	ChunksAdmitted    prometheus.Counter
	CorruptionEvents  prometheus.Counter
	ReorderDrops      *prometheus.CounterVec
	GapFills          prometheus.Counter
	PlayoutQueueDepth prometheus.Gauge
	UnderrunEvents    prometheus.Counter
	UnderrunDuration  prometheus.Histogram
	SinkErrors        prometheus.Counter

	// Results
	ResultsReceived prometheus.Counter
	PartialResults  prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Outbound chunk metrics
		ChunksSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "float_chunks_sent_total",
			Help: "Total number of audio chunks sent to the server",
		}),
		ChunksAcked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "float_chunks_acked_total",
			Help: "Total number of audio chunks acknowledged by the server",
		}),
		Retransmits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "float_retransmits_total",
			Help: "Total number of chunk retransmissions after reconnect",
		}),
		SendQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "float_send_queue_depth",
			Help: "Current number of unacknowledged chunks in the send queue",
		}),
		SendOverflows: promauto.NewCounter(prometheus.CounterOpts{
			Name: "float_send_overflow_drops_total",
			Help: "Total number of chunks dropped by the send queue overflow policy",
		}),
		SendRejections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "float_send_rejections_total",
			Help: "Total number of enqueue attempts rejected by backpressure",
		}),
		CongestionEvents: promauto.NewCounter(prometheus.CounterOpts{
			Name: "float_congestion_events_total",
			Help: "Total number of congestion signals raised to the host",
		}),

		// Connection metrics
		ConnectAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "float_connect_attempts_total",
			Help: "Total number of connection attempts",
		}),
		Reconnects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "float_reconnects_total",
			Help: "Total number of successful reconnections",
		}),
		ParseErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "float_parse_errors_total",
			Help: "Total number of malformed inbound messages discarded",
		}),
		ServerErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "float_server_errors_total",
			Help: "Total number of error messages received from the server",
		}),
		ConnectedTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "float_connected_duration_seconds",
			Help:    "Duration of individual connections before loss or close",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1 hour
		}),

		// Playout metrics
		ChunksPlayed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "float_chunks_played_total",
			Help: "Total number of audio chunks written to the output sink",
		}),
		ChunksAdmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "float_chunks_admitted_total",
			Help: "Total number of chunks admitted to the playout queue",
		}),
		CorruptionEvents: promauto.NewCounter(prometheus.CounterOpts{
			Name: "float_corruption_events_total",
			Help: "Total number of corrupt chunks replaced with silence",
		}),
		ReorderDrops: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "float_reorder_drops_total",
			Help: "Total number of chunks dropped by the reorder window",
		}, []string{"reason"}),
		GapFills: promauto.NewCounter(prometheus.CounterOpts{
			Name: "float_gap_fills_total",
			Help: "Total number of silence chunks synthesized for missing sequences",
		}),
		PlayoutQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "float_playout_queue_depth",
			Help: "Current number of chunks buffered for playout",
		}),
		UnderrunEvents: promauto.NewCounter(prometheus.CounterOpts{
			Name: "float_underrun_events_total",
			Help: "Total number of playout underruns",
		}),
		UnderrunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "float_underrun_duration_seconds",
			Help:    "Duration of playout underruns",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 8), // 50ms to ~6s
		}),
		SinkErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "float_sink_errors_total",
			Help: "Total number of output sink write failures",
		}),

		// Results
		ResultsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "float_results_received_total",
			Help: "Total number of translated-audio results received",
		}),
		PartialResults: promauto.NewCounter(prometheus.CounterOpts{
			Name: "float_partial_results_total",
			Help: "Total number of partial (non-final) results received",
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "float_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "float_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// SetSendQueueDepth sets the current unacknowledged count
func (m *Metrics) SetSendQueueDepth(depth int) {
	m.SendQueueDepth.Set(float64(depth))
}

// SetPlayoutQueueDepth sets the current playout buffer depth
func (m *Metrics) SetPlayoutQueueDepth(depth int) {
	m.PlayoutQueueDepth.Set(float64(depth))
}

// RecordConnectAttempt increments the connection attempts counter
func (m *Metrics) RecordConnectAttempt() {
	m.ConnectAttempts.Inc()
}

// RecordConnectionClosed records how long a connection lasted
func (m *Metrics) RecordConnectionClosed(durationSeconds float64) {
	m.ConnectedTime.Observe(durationSeconds)
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}
