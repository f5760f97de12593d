package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the wake word service
type Metrics struct {
	// Session metrics
	ActiveSessions  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionDuration prometheus.Histogram

	// Protocol event metrics
	EventsReceived *prometheus.CounterVec
	ProtocolErrors prometheus.Counter

	// Detection metrics
	FramesProcessed     prometheus.Counter
	FrameProcessingTime prometheus.Histogram
	Detections          *prometheus.CounterVec
	NotDetected         prometheus.Counter

	// Detector pool metrics
	PoolHits            prometheus.Counter
	PoolMisses          prometheus.Counter
	EngineConstructions prometheus.Counter
	EngineInitFailures  prometheus.Counter
}

// NewMetrics creates all metrics and registers them with the given
// registerer (use prometheus.DefaultRegisterer in production)
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Session metrics
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wakeword_active_sessions",
			Help: "Current number of connected client sessions",
		}),
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "wakeword_sessions_created_total",
			Help: "Total number of client sessions created",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "wakeword_session_duration_seconds",
			Help:    "Duration of client sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68 minutes
		}),

		// Protocol event metrics
		EventsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wakeword_events_received_total",
			Help: "Total number of protocol events received",
		}, []string{"type"}),
		ProtocolErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "wakeword_protocol_errors_total",
			Help: "Total number of unexpected or malformed protocol events",
		}),

		// Detection metrics
		FramesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "wakeword_frames_processed_total",
			Help: "Total number of audio frames run through detection engines",
		}),
		FrameProcessingTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "wakeword_frame_processing_duration_seconds",
			Help:    "Time spent processing one audio frame",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 10), // 0.1ms to ~100ms
		}),
		Detections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wakeword_detections_total",
			Help: "Total number of wake word detections",
		}, []string{"keyword"}),
		NotDetected: factory.NewCounter(prometheus.CounterOpts{
			Name: "wakeword_not_detected_total",
			Help: "Total number of utterances that ended without a detection",
		}),

		// Detector pool metrics
		PoolHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "wakeword_pool_hits_total",
			Help: "Total number of adapter checkouts served from the idle pool",
		}),
		PoolMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "wakeword_pool_misses_total",
			Help: "Total number of adapter checkouts that constructed a new engine",
		}),
		EngineConstructions: factory.NewCounter(prometheus.CounterOpts{
			Name: "wakeword_engine_constructions_total",
			Help: "Total number of detection engine constructions",
		}),
		EngineInitFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "wakeword_engine_init_failures_total",
			Help: "Total number of failed detection engine constructions",
		}),
	}
}

// RecordSessionStarted records a new client session
func (m *Metrics) RecordSessionStarted() {
	m.SessionsCreated.Inc()
	m.ActiveSessions.Inc()
}

// RecordSessionEnded records a finished client session and its duration
func (m *Metrics) RecordSessionEnded(durationSeconds float64) {
	m.ActiveSessions.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordEvent records one received protocol event by type
func (m *Metrics) RecordEvent(eventType string) {
	m.EventsReceived.WithLabelValues(eventType).Inc()
}

// RecordProtocolError records an unexpected or malformed protocol event
func (m *Metrics) RecordProtocolError() {
	m.ProtocolErrors.Inc()
}

// RecordFrame records one processed audio frame
func (m *Metrics) RecordFrame(processingSeconds float64) {
	m.FramesProcessed.Inc()
	m.FrameProcessingTime.Observe(processingSeconds)
}

// RecordDetection records a wake word detection
func (m *Metrics) RecordDetection(keyword string) {
	m.Detections.WithLabelValues(keyword).Inc()
}

// RecordNotDetected records an utterance with no detection
func (m *Metrics) RecordNotDetected() {
	m.NotDetected.Inc()
}

// RecordCheckout records a pool checkout outcome
func (m *Metrics) RecordCheckout(cacheHit bool) {
	if cacheHit {
		m.PoolHits.Inc()
	} else {
		m.PoolMisses.Inc()
		m.EngineConstructions.Inc()
	}
}

// RecordEngineInitFailure records a failed engine construction
func (m *Metrics) RecordEngineInitFailure() {
	m.EngineInitFailures.Inc()
}
