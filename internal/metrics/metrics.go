package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	EventsInserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staking_events_inserted_total",
			Help: "Total number of staking events inserted by event type",
		},
		[]string{"event_type"},
	)

	EventsDuplicates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staking_events_duplicates_total",
			Help: "Total number of staking events skipped as already indexed",
		},
		[]string{"event_type"},
	)

	EventsUnrecognized = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "staking_events_unrecognized_total",
			Help: "Total number of logs with an unknown event signature",
		},
	)

	EventsMalformed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "staking_events_malformed_total",
			Help: "Total number of logs with a known signature but undecodable payload",
		},
	)

	BackfilledBlocks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "staking_backfilled_blocks_total",
			Help: "Total number of blocks checkpointed by the backfill",
		},
	)

	ChunksRequeued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "staking_chunks_requeued_total",
			Help: "Total number of chunks re-queued after exhausting retry attempts",
		},
	)

	ReorgRollbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "staking_reorg_rollbacks_total",
			Help: "Total number of reorganization rollbacks performed",
		},
	)

	// RPC metrics
	RPCErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staking_rpc_errors_total",
			Help: "Total number of RPC errors by operation",
		},
		[]string{"operation"},
	)

	RPCRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staking_rpc_retries_total",
			Help: "Total number of RPC retries by operation",
		},
		[]string{"operation"},
	)

	RPCDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "staking_rpc_request_duration_seconds",
			Help:    "Duration of RPC requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Progress gauges
	HeadBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "staking_head_block",
			Help: "Latest chain head block number observed",
		},
	)

	HighestContiguousBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "staking_highest_contiguous_block",
			Help: "Highest block up to which the checkpoint log is gapless",
		},
	)

	BackfillLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "staking_backfill_lag_blocks",
			Help: "Distance between chain head and the highest contiguous checkpoint",
		},
	)

	// System metrics
	Uptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "staking_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)

	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "staking_goroutines",
			Help: "Number of active goroutines",
		},
	)

	MemoryUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "staking_memory_usage_bytes",
			Help: "Memory usage statistics",
		},
		[]string{"type"},
	)

	startTime = time.Now()
)

func EventsInsertedAdd(eventType string, count uint64) {
	EventsInserted.WithLabelValues(eventType).Add(float64(count))
}

func EventsDuplicatesAdd(eventType string, count uint64) {
	EventsDuplicates.WithLabelValues(eventType).Add(float64(count))
}

func EventsUnrecognizedInc() {
	EventsUnrecognized.Inc()
}

func EventsMalformedInc() {
	EventsMalformed.Inc()
}

func BackfilledBlocksAdd(count uint64) {
	BackfilledBlocks.Add(float64(count))
}

func ChunksRequeuedInc() {
	ChunksRequeued.Inc()
}

func ReorgRollbacksInc() {
	ReorgRollbacks.Inc()
}

func RPCErrorInc(operation string) {
	RPCErrors.WithLabelValues(operation).Inc()
}

func RPCRetryInc(operation string) {
	RPCRetries.WithLabelValues(operation).Inc()
}

func RPCDurationObserve(operation string, duration time.Duration) {
	RPCDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func HeadBlockSet(blockNum uint64) {
	HeadBlock.Set(float64(blockNum))
}

func HighestContiguousSet(blockNum uint64) {
	HighestContiguousBlock.Set(float64(blockNum))
}

func BackfillLagSet(lag uint64) {
	BackfillLag.Set(float64(lag))
}

// UpdateSystemMetrics updates runtime system metrics.
// This should be called periodically (e.g., every 15 seconds).
func UpdateSystemMetrics() {
	// Update uptime
	Uptime.Set(time.Since(startTime).Seconds())

	// Update goroutine count
	Goroutines.Set(float64(runtime.NumGoroutine()))

	// Update memory statistics
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	MemoryUsage.WithLabelValues("alloc").Set(float64(m.Alloc))
	MemoryUsage.WithLabelValues("total_alloc").Set(float64(m.TotalAlloc))
	MemoryUsage.WithLabelValues("sys").Set(float64(m.Sys))
	MemoryUsage.WithLabelValues("heap_inuse").Set(float64(m.HeapInuse))
}
