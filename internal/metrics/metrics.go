// Package metrics exposes every Prometheus recorder used across the
// Chat Hub and Stream Server: connection/message counters for the
// Session Hub, tier hit/miss counters for the Message Store, decision
// counters for the Rate Limiter and Moderation Engine, buffer/listener
// gauges for the Stream Core, and request counters for the Discovery
// Engine. One process-wide Registry is built by each binary's entry
// point and passed explicitly to every component; nothing here is a
// package-global.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Registry struct {
	// Session Hub connection metrics
	connectionsTotal    prometheus.Counter
	connectionsActive   prometheus.Gauge
	connectionDuration  prometheus.Histogram
	connectionsAccepted prometheus.Counter
	connectionsClosed   prometheus.Counter
	connectionsErrors   prometheus.Counter

	// Session Hub message metrics
	messagesReceived  prometheus.Counter
	messagesSent      prometheus.Counter
	messagesPerSecond prometheus.Gauge
	messageSize       prometheus.Histogram
	messageDuplicates prometheus.Counter
	messageLatency    prometheus.Histogram

	// Event bus (NATS)
	natsLatency          prometheus.Histogram
	natsConnectionStatus prometheus.Gauge
	natsReconnects       prometheus.Counter
	natsMessages         prometheus.Counter

	// Unified error model
	errorsTotal   prometheus.Counter
	errorsByKind  *prometheus.CounterVec
	lastErrorTime prometheus.Gauge

	// Resource sampling
	goroutinesCount prometheus.Gauge
	memoryUsage     prometheus.Gauge
	cpuUsage        prometheus.Gauge

	// Message Store tiers
	storeL1Hits      prometheus.Counter
	storeL1Misses    prometheus.Counter
	storeL2Hits      prometheus.Counter
	storeL2Misses    prometheus.Counter
	storeDBReads     prometheus.Counter
	storeDBWrites    prometheus.Counter
	storeBatchWrites prometheus.Counter
	storeReadLatency prometheus.Histogram
	storeWriteLatency prometheus.Histogram

	// Rate Limiter
	rateRequestsProcessed prometheus.Counter
	rateRequestsBlocked   *prometheus.CounterVec
	rateAttacksDetected   *prometheus.CounterVec
	rateBlacklistSize     prometheus.Gauge

	// Moderation Engine
	moderationViolations *prometheus.CounterVec
	moderationSanctions  *prometheus.CounterVec

	// Stream Core
	streamsActive      prometheus.Gauge
	listenersActive    prometheus.Gauge
	bufferUnderruns    prometheus.Counter
	bufferOverruns     prometheus.Counter
	chunksDropped      prometheus.Counter
	codecEncodeLatency prometheus.Histogram
	codecDecodeLatency prometheus.Histogram

	// Discovery Engine
	discoveryRequests  *prometheus.CounterVec
	discoveryLatency   prometheus.Histogram

	startTime    time.Time
	mu           sync.RWMutex
	clientsCount int64
}

func NewRegistry() *Registry {
	m := &Registry{
		startTime: time.Now(),

		connectionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hub_connections_total",
			Help: "Total number of WebSocket connections attempted",
		}),
		connectionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "hub_connections_active",
			Help: "Number of currently active WebSocket connections",
		}),
		connectionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "hub_connection_duration_seconds",
			Help:    "Duration of WebSocket connections",
			Buckets: prometheus.DefBuckets,
		}),
		connectionsAccepted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hub_connections_accepted_total",
			Help: "Total number of accepted WebSocket connections",
		}),
		connectionsClosed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hub_connections_closed_total",
			Help: "Total number of closed WebSocket connections",
		}),
		connectionsErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hub_connections_errors_total",
			Help: "Total number of WebSocket connection errors",
		}),

		messagesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hub_messages_received_total",
			Help: "Total number of messages received from clients",
		}),
		messagesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hub_messages_sent_total",
			Help: "Total number of messages sent to clients",
		}),
		messagesPerSecond: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "hub_messages_per_second",
			Help: "Current messages per second rate",
		}),
		messageSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "hub_message_size_bytes",
			Help:    "Size of WebSocket messages in bytes",
			Buckets: []float64{100, 500, 1000, 2000, 5000, 10000},
		}),
		messageDuplicates: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hub_messages_duplicates_total",
			Help: "Total number of duplicate messages dropped",
		}),
		messageLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "hub_message_latency_seconds",
			Help:    "Latency of message processing",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),

		natsLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "eventbus_message_latency_seconds",
			Help:    "Latency of event bus publish/handle",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		natsConnectionStatus: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "eventbus_connection_status",
			Help: "Event bus connection status (1=connected, 0=disconnected)",
		}),
		natsReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "eventbus_reconnects_total",
			Help: "Total number of event bus reconnections",
		}),
		natsMessages: promauto.NewCounter(prometheus.CounterOpts{
			Name: "eventbus_messages_total",
			Help: "Total number of event bus messages processed",
		}),

		errorsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors across all components",
		}),
		errorsByKind: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "errors_by_kind_total",
			Help: "Total number of errors by taxonomy kind",
		}, []string{"kind"}),
		lastErrorTime: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "last_error_timestamp",
			Help: "Timestamp of the last error",
		}),

		goroutinesCount: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "process_goroutines_count",
			Help: "Number of goroutines",
		}),
		memoryUsage: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "process_memory_usage_bytes",
			Help: "Heap memory usage in bytes",
		}),
		cpuUsage: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "process_cpu_usage_percent",
			Help: "Smoothed CPU usage percentage",
		}),

		storeL1Hits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "store_l1_hits_total", Help: "Message Store L1 cache hits",
		}),
		storeL1Misses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "store_l1_misses_total", Help: "Message Store L1 cache misses",
		}),
		storeL2Hits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "store_l2_hits_total", Help: "Message Store L2 cache hits",
		}),
		storeL2Misses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "store_l2_misses_total", Help: "Message Store L2 cache misses",
		}),
		storeDBReads: promauto.NewCounter(prometheus.CounterOpts{
			Name: "store_db_reads_total", Help: "Message Store L3 reads",
		}),
		storeDBWrites: promauto.NewCounter(prometheus.CounterOpts{
			Name: "store_db_writes_total", Help: "Message Store L3 writes",
		}),
		storeBatchWrites: promauto.NewCounter(prometheus.CounterOpts{
			Name: "store_batch_writes_total", Help: "Messages queued for batched L3 writes",
		}),
		storeReadLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "store_read_latency_seconds", Help: "Message Store read latency",
			Buckets: prometheus.DefBuckets,
		}),
		storeWriteLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "store_write_latency_seconds", Help: "Message Store write latency",
			Buckets: prometheus.DefBuckets,
		}),

		rateRequestsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ratelimit_requests_processed_total", Help: "Rate limiter requests processed",
		}),
		rateRequestsBlocked: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_requests_blocked_total", Help: "Rate limiter requests blocked by reason",
		}, []string{"reason"}),
		rateAttacksDetected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_attacks_detected_total", Help: "Attack patterns detected by type",
		}, []string{"type"}),
		rateBlacklistSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ratelimit_blacklist_size", Help: "Current blacklist entry count",
		}),

		moderationViolations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "moderation_violations_total", Help: "Violations detected by type",
		}, []string{"type"}),
		moderationSanctions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "moderation_sanctions_total", Help: "Sanctions applied by kind",
		}, []string{"sanction"}),

		streamsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "stream_streams_active", Help: "Currently live streams",
		}),
		listenersActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "stream_listeners_active", Help: "Currently subscribed listeners",
		}),
		bufferUnderruns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stream_buffer_underruns_total", Help: "Buffer underrun events",
		}),
		bufferOverruns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stream_buffer_overruns_total", Help: "Buffer overrun/full events",
		}),
		chunksDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stream_chunks_dropped_total", Help: "Chunks dropped under backpressure",
		}),
		codecEncodeLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "codec_encode_latency_seconds", Help: "Codec encode latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05},
		}),
		codecDecodeLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "codec_decode_latency_seconds", Help: "Codec decode latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05},
		}),

		discoveryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "discovery_requests_total", Help: "Discovery requests by kind (recommendations, trending, charts, radio)",
		}, []string{"kind"}),
		discoveryLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "discovery_latency_seconds", Help: "Discovery request latency",
			Buckets: prometheus.DefBuckets,
		}),
	}

	return m
}

// Session Hub
func (m *Registry) IncrementConnections() {
	m.connectionsTotal.Inc()
	m.connectionsAccepted.Inc()
	m.mu.Lock()
	m.clientsCount++
	m.mu.Unlock()
	m.connectionsActive.Inc()
}

func (m *Registry) DecrementConnections() {
	m.connectionsClosed.Inc()
	m.mu.Lock()
	m.clientsCount--
	m.mu.Unlock()
	m.connectionsActive.Dec()
}

func (m *Registry) RecordConnectionError() {
	m.connectionsErrors.Inc()
	m.errorsTotal.Inc()
}

func (m *Registry) RecordConnectionDuration(d time.Duration) { m.connectionDuration.Observe(d.Seconds()) }
func (m *Registry) IncrementMessagesReceived()                { m.messagesReceived.Inc() }
func (m *Registry) IncrementMessagesSent()                    { m.messagesSent.Inc() }
func (m *Registry) RecordMessageSize(size int)                { m.messageSize.Observe(float64(size)) }
func (m *Registry) IncrementDuplicates()                       { m.messageDuplicates.Inc() }
func (m *Registry) UpdateMessagesPerSecond(rate float64)       { m.messagesPerSecond.Set(rate) }
func (m *Registry) RecordMessageLatency(d time.Duration)       { m.messageLatency.Observe(d.Seconds()) }

// Event bus
func (m *Registry) RecordEventBusLatency(d time.Duration) { m.natsLatency.Observe(d.Seconds()) }
func (m *Registry) SetEventBusConnected(connected bool) {
	if connected {
		m.natsConnectionStatus.Set(1)
	} else {
		m.natsConnectionStatus.Set(0)
	}
}
func (m *Registry) IncrementEventBusReconnects() { m.natsReconnects.Inc() }
func (m *Registry) IncrementEventBusMessages()   { m.natsMessages.Inc() }

// Unified error model
func (m *Registry) RecordErrorKind(kind string) {
	m.errorsTotal.Inc()
	m.errorsByKind.WithLabelValues(kind).Inc()
	m.lastErrorTime.SetToCurrentTime()
}

// Resource sampling
func (m *Registry) UpdateGoroutinesCount(count int) { m.goroutinesCount.Set(float64(count)) }
func (m *Registry) UpdateMemoryUsage(bytes uint64)  { m.memoryUsage.Set(float64(bytes)) }
func (m *Registry) UpdateCPUUsage(percent float64)  { m.cpuUsage.Set(percent) }

// Message Store
func (m *Registry) RecordStoreL1(hit bool) {
	if hit {
		m.storeL1Hits.Inc()
	} else {
		m.storeL1Misses.Inc()
	}
}
func (m *Registry) RecordStoreL2(hit bool) {
	if hit {
		m.storeL2Hits.Inc()
	} else {
		m.storeL2Misses.Inc()
	}
}
func (m *Registry) IncrementStoreDBReads()        { m.storeDBReads.Inc() }
func (m *Registry) IncrementStoreDBWrites()       { m.storeDBWrites.Inc() }
func (m *Registry) IncrementStoreBatchWrites()    { m.storeBatchWrites.Inc() }
func (m *Registry) RecordStoreReadLatency(d time.Duration)  { m.storeReadLatency.Observe(d.Seconds()) }
func (m *Registry) RecordStoreWriteLatency(d time.Duration) { m.storeWriteLatency.Observe(d.Seconds()) }

// Rate Limiter
func (m *Registry) IncrementRateRequestsProcessed()      { m.rateRequestsProcessed.Inc() }
func (m *Registry) IncrementRateRequestsBlocked(reason string) { m.rateRequestsBlocked.WithLabelValues(reason).Inc() }
func (m *Registry) IncrementAttacksDetected(attackType string) { m.rateAttacksDetected.WithLabelValues(attackType).Inc() }
func (m *Registry) SetBlacklistSize(n int)               { m.rateBlacklistSize.Set(float64(n)) }

// Moderation
func (m *Registry) IncrementModerationViolation(violationType string) {
	m.moderationViolations.WithLabelValues(violationType).Inc()
}
func (m *Registry) IncrementModerationSanction(sanction string) {
	m.moderationSanctions.WithLabelValues(sanction).Inc()
}

// Stream Core
func (m *Registry) SetStreamsActive(n int)   { m.streamsActive.Set(float64(n)) }
func (m *Registry) SetListenersActive(n int) { m.listenersActive.Set(float64(n)) }
func (m *Registry) IncrementBufferUnderrun() { m.bufferUnderruns.Inc() }
func (m *Registry) IncrementBufferOverrun()  { m.bufferOverruns.Inc() }
func (m *Registry) IncrementChunksDropped()  { m.chunksDropped.Inc() }
func (m *Registry) RecordCodecEncodeLatency(d time.Duration) { m.codecEncodeLatency.Observe(d.Seconds()) }
func (m *Registry) RecordCodecDecodeLatency(d time.Duration) { m.codecDecodeLatency.Observe(d.Seconds()) }

// Discovery
func (m *Registry) IncrementDiscoveryRequest(kind string) { m.discoveryRequests.WithLabelValues(kind).Inc() }
func (m *Registry) RecordDiscoveryLatency(d time.Duration) { m.discoveryLatency.Observe(d.Seconds()) }

// Getters
func (m *Registry) GetActiveConnections() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.clientsCount
}

func (m *Registry) GetUptime() time.Duration { return time.Since(m.startTime) }

// MessageRateTracker computes a messages/sec rate from the difference
// between successive counter snapshots; the result is not smoothed.
type MessageRateTracker struct {
	lastCount   float64
	lastTime    time.Time
	currentRate float64
	mu          sync.RWMutex
}

func NewMessageRateTracker() *MessageRateTracker {
	return &MessageRateTracker{lastTime: time.Now()}
}

func (t *MessageRateTracker) Update(currentCount float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	dt := now.Sub(t.lastTime).Seconds()
	if dt > 0 {
		t.currentRate = (currentCount - t.lastCount) / dt
		t.lastCount = currentCount
		t.lastTime = now
	}
}

func (t *MessageRateTracker) GetRate() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.currentRate
}
