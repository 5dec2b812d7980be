// Package system provides system-level services for monitoring and maintenance.
package system

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"listenify.dev/syncengine/internal/utils"
)

// MetricsService provides application metrics collection functionality.
type MetricsService struct {
	logger *utils.Logger

	// RPC transport metrics
	wsConnectionsTotal   prometheus.Counter
	wsConnectionsActive  prometheus.Gauge
	rpcRequestsTotal     *prometheus.CounterVec
	rpcRequestDuration   *prometheus.HistogramVec
	wsConnectionDuration prometheus.Histogram

	// Stream Hub metrics
	hubBroadcastsTotal *prometheus.CounterVec
	hubSubscribersReaped *prometheus.CounterVec

	// Room Manager metrics
	roomsActive prometheus.Gauge
	roomMembers *prometheus.GaugeVec

	// Durable / Ephemeral store metrics
	storeOperationsTotal *prometheus.CounterVec
	storeErrorsTotal     *prometheus.CounterVec
	storeLatency         *prometheus.HistogramVec

	// System metrics
	systemMemoryUsage prometheus.Gauge
	systemGoroutines  prometheus.Gauge
}

// NewMetricsService creates a new metrics service.
func NewMetricsService(logger *utils.Logger) *MetricsService {
	m := &MetricsService{logger: logger.Named("metrics_service")}

	m.initTransportMetrics()
	m.initHubMetrics()
	m.initRoomMetrics()
	m.initStoreMetrics()
	m.initSystemMetrics()

	return m
}

// Handler returns an HTTP handler for exposing metrics.
func (m *MetricsService) Handler() http.Handler {
	return promhttp.Handler()
}

// Start periodically samples process memory and goroutine counts until
// ctx is cancelled.
func (m *MetricsService) Start(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				var memStats runtime.MemStats
				runtime.ReadMemStats(&memStats)
				m.SetSystemMemoryUsage(memStats.Alloc)
				m.SetSystemGoroutines(runtime.NumGoroutine())
			}
		}
	}()
}

func (m *MetricsService) initTransportMetrics() {
	m.wsConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "syncengine_ws_connections_total",
		Help: "Total number of WebSocket connections accepted.",
	})

	m.wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "syncengine_ws_connections_active",
		Help: "Number of active WebSocket connections.",
	})

	m.rpcRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syncengine_rpc_requests_total",
		Help: "Total number of JSON-RPC requests handled, by method and outcome.",
	}, []string{"method", "outcome"})

	m.rpcRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "syncengine_rpc_request_duration_seconds",
		Help:    "Duration of JSON-RPC request handling in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	m.wsConnectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "syncengine_ws_connection_duration_seconds",
		Help:    "Duration of WebSocket connections in seconds.",
		Buckets: prometheus.ExponentialBuckets(10, 2, 10),
	})
}

func (m *MetricsService) initHubMetrics() {
	m.hubBroadcastsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syncengine_hub_broadcasts_total",
		Help: "Total number of room events broadcast through the Stream Hub.",
	}, []string{"event_type"})

	m.hubSubscribersReaped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syncengine_hub_subscribers_reaped_total",
		Help: "Total number of subscribers reaped from a room hub, by reason.",
	}, []string{"reason"})
}

func (m *MetricsService) initRoomMetrics() {
	m.roomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "syncengine_rooms_active",
		Help: "Number of rooms currently ACTIVE.",
	})

	m.roomMembers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "syncengine_room_members",
		Help: "Number of members currently in a room.",
	}, []string{"room_id"})
}

func (m *MetricsService) initStoreMetrics() {
	m.storeOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syncengine_store_operations_total",
		Help: "Total number of store operations, by store and operation.",
	}, []string{"store", "operation"})

	m.storeErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syncengine_store_errors_total",
		Help: "Total number of failed store operations, by store and operation.",
	}, []string{"store", "operation"})

	m.storeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "syncengine_store_latency_seconds",
		Help:    "Store operation latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"store", "operation"})
}

func (m *MetricsService) initSystemMetrics() {
	m.systemMemoryUsage = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "syncengine_system_memory_usage_bytes",
		Help: "Memory usage in bytes.",
	})

	m.systemGoroutines = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "syncengine_system_goroutines",
		Help: "Number of goroutines.",
	})
}

// ObserveWSConnection records metrics for a closed WebSocket connection.
func (m *MetricsService) ObserveWSConnection(duration time.Duration) {
	m.wsConnectionDuration.Observe(duration.Seconds())
}

// IncWSConnectionsActive counts one accepted WebSocket connection and
// increments the active WebSocket connections gauge.
func (m *MetricsService) IncWSConnectionsActive() {
	m.wsConnectionsTotal.Inc()
	m.wsConnectionsActive.Inc()
}

// DecWSConnectionsActive decrements the active WebSocket connections gauge.
func (m *MetricsService) DecWSConnectionsActive() { m.wsConnectionsActive.Dec() }

// ObserveRPCRequest records metrics for one handled JSON-RPC request.
func (m *MetricsService) ObserveRPCRequest(method, outcome string, duration time.Duration) {
	m.rpcRequestsTotal.WithLabelValues(method, outcome).Inc()
	m.rpcRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// IncHubBroadcast records one room event broadcast through the Stream Hub.
func (m *MetricsService) IncHubBroadcast(eventType string) {
	m.hubBroadcastsTotal.WithLabelValues(eventType).Inc()
}

// IncHubSubscriberReaped records one subscriber reaped from a room hub.
func (m *MetricsService) IncHubSubscriberReaped(reason string) {
	m.hubSubscribersReaped.WithLabelValues(reason).Inc()
}

// SetRoomsActive sets the number of ACTIVE rooms.
func (m *MetricsService) SetRoomsActive(count int) { m.roomsActive.Set(float64(count)) }

// SetRoomMembers sets the member count for one room.
func (m *MetricsService) SetRoomMembers(roomID string, count int) {
	m.roomMembers.WithLabelValues(roomID).Set(float64(count))
}

// ObserveStoreOperation records metrics for one durable or ephemeral store
// operation.
func (m *MetricsService) ObserveStoreOperation(store, operation string, duration time.Duration, err error) {
	m.storeOperationsTotal.WithLabelValues(store, operation).Inc()
	m.storeLatency.WithLabelValues(store, operation).Observe(duration.Seconds())
	if err != nil {
		m.storeErrorsTotal.WithLabelValues(store, operation).Inc()
	}
}

// SetSystemMemoryUsage sets the system memory usage gauge.
func (m *MetricsService) SetSystemMemoryUsage(bytes uint64) { m.systemMemoryUsage.Set(float64(bytes)) }

// SetSystemGoroutines sets the goroutine count gauge.
func (m *MetricsService) SetSystemGoroutines(count int) { m.systemGoroutines.Set(float64(count)) }
