package middleware

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/campusmate/tutor/internal/services/storage"
)

var (
	// Message metrics
	messagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tutor_messages_received_total",
		Help: "Total number of messages received",
	}, []string{"surface"})

	messagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tutor_messages_processed_total",
		Help: "Total number of messages processed",
	}, []string{"surface", "status"})

	// Routing metrics
	intentsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tutor_intents_detected_total",
		Help: "Messages routed per model",
	}, []string{"model"})

	backendFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tutor_backend_fallbacks_total",
		Help: "Replies served by the direct path instead of the backend",
	}, []string{"reason"})

	// Completion metrics
	completionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tutor_completion_duration_seconds",
		Help:    "Duration of completion requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"model", "status"})

	completionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tutor_completions_total",
		Help: "Total number of completion requests",
	}, []string{"model", "status"})

	// Cache metrics
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tutor_cache_hits_total",
		Help: "Total number of cache hits",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tutor_cache_misses_total",
		Help: "Total number of cache misses",
	})

	// Rate limit metrics
	rateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tutor_rate_limit_exceeded_total",
		Help: "Total number of rate limit exceeded events",
	}, []string{"surface"})

	// Storage metrics
	storageOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tutor_storage_operations_total",
		Help: "Total number of storage operations",
	}, []string{"backend", "operation", "status"})

	storageOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tutor_storage_operation_duration_seconds",
		Help:    "Duration of storage operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend", "operation"})

	// Rendering metrics
	renderDegraded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tutor_render_degraded_segments_total",
		Help: "Segments replaced by a placeholder or error note",
	}, []string{"kind"})

	activeClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tutor_active_clients",
		Help: "Number of clients with an open session store",
	})

	websocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tutor_websocket_connections",
		Help: "Number of open WebSocket connections",
	})
)

// Metrics provides methods to record metrics
type Metrics struct{}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) RecordMessageReceived(surface string) {
	messagesReceived.WithLabelValues(surface).Inc()
}

func (m *Metrics) RecordMessageProcessed(surface, status string) {
	messagesProcessed.WithLabelValues(surface, status).Inc()
}

func (m *Metrics) RecordIntent(model string) {
	intentsDetected.WithLabelValues(model).Inc()
}

func (m *Metrics) RecordBackendFallback(reason string) {
	backendFallbacks.WithLabelValues(reason).Inc()
}

// RecordCompletion records one completion call
func (m *Metrics) RecordCompletion(model, status string, duration time.Duration) {
	completionDuration.WithLabelValues(model, status).Observe(duration.Seconds())
	completionsTotal.WithLabelValues(model, status).Inc()
}

func (m *Metrics) RecordCacheHit() {
	cacheHits.Inc()
}

func (m *Metrics) RecordCacheMiss() {
	cacheMisses.Inc()
}

func (m *Metrics) RecordRateLimitExceeded(surface string) {
	rateLimitExceeded.WithLabelValues(surface).Inc()
}

// RecordStorageOperation records a storage operation
func (m *Metrics) RecordStorageOperation(backend, operation, status string, duration time.Duration) {
	storageOperations.WithLabelValues(backend, operation, status).Inc()
	storageOperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// StorageObserver adapts the storage hook to these metrics.
func (m *Metrics) StorageObserver() storage.Observer {
	return func(backend, op string, err error, elapsed time.Duration) {
		status := "ok"
		if err != nil {
			status = "error"
		}
		m.RecordStorageOperation(backend, op, status, elapsed)
	}
}

func (m *Metrics) RecordRenderDegraded(kind string, count int) {
	renderDegraded.WithLabelValues(kind).Add(float64(count))
}

func (m *Metrics) SetActiveClients(count int) {
	activeClients.Set(float64(count))
}

func (m *Metrics) WebSocketOpened() { websocketConnections.Inc() }
func (m *Metrics) WebSocketClosed() { websocketConnections.Dec() }

// Register mounts the Prometheus handler on router.
func Register(router *mux.Router, path string) {
	router.Handle(path, promhttp.Handler()).Methods(http.MethodGet)
}
