package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Compression metrics
	CompressionRatio = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ecowatt_compression_ratio",
			Help: "Average compression ratio (post/pre size) of each codec over its successful attempts",
		},
		[]string{"codec"},
	)

	CompressionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ecowatt_compression_duration_seconds",
			Help:    "Time spent running the compression tournament",
			Buckets: []float64{.005, .01, .025, .05, .1, .2, .5},
		},
		[]string{"codec"},
	)

	CompressionFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ecowatt_compression_failures_total",
			Help: "Total number of batches that fell back to raw binary",
		},
	)

	// Task supervisor / deadline monitor metrics
	DeadlineMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecowatt_deadline_misses_total",
			Help: "Total number of per-task deadline misses by task name",
		},
		[]string{"task"},
	)

	DeadlineMissesNetworkTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ecowatt_deadline_misses_network_total",
			Help: "Total number of deadline misses classified as network-related",
		},
	)

	RestartsTriggeredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ecowatt_supervisor_restarts_total",
			Help: "Total number of recovery reboots initiated by the deadline monitor",
		},
	)

	// Queue / ring depth metrics
	SampleQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ecowatt_sample_queue_depth",
			Help: "Current number of samples waiting in the polling pipeline queue",
		},
	)

	SampleQueueDropsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ecowatt_sample_queue_drops_total",
			Help: "Total number of samples dropped because the queue was full",
		},
	)

	CompressedRingDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ecowatt_compressed_ring_depth",
			Help: "Current number of compressed packets waiting in the upload ring",
		},
	)

	RegisterDecodeFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ecowatt_register_decode_fallbacks_total",
			Help: "Total number of requested registers that fell outside the returned range and were reported as 0",
		},
	)

	// Upload metrics
	UploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecowatt_uploads_total",
			Help: "Total number of upload attempts by outcome",
		},
		[]string{"outcome"}, // success, failure
	)

	UploadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ecowatt_upload_duration_seconds",
			Help:    "Time taken to serialize, wrap, and POST one aggregated batch",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Command executor metrics
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecowatt_commands_total",
			Help: "Total number of dispatched commands by outcome",
		},
		[]string{"outcome"}, // success, failure
	)

	// Firmware metrics
	FirmwarePhase = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ecowatt_firmware_phase",
			Help: "1 if the firmware update state machine is currently in the given phase, else 0",
		},
		[]string{"phase"},
	)

	FirmwareUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecowatt_firmware_updates_total",
			Help: "Total number of completed firmware update cycles by outcome",
		},
		[]string{"outcome"}, // applied, rolled_back, failed
	)

	// Configuration reconciler metrics
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ecowatt_reconciliation_duration_seconds",
			Help:    "Time taken for a configuration reconciliation tick",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ecowatt_reconciliation_cycles_total",
			Help: "Total number of reconciliation ticks completed",
		},
	)

	ConfigRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecowatt_config_rejections_total",
			Help: "Total number of rejected configuration keys by key name",
		},
		[]string{"key"},
	)

	// Fault recovery metrics
	FaultEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecowatt_fault_events_total",
			Help: "Total number of faults detected by kind",
		},
		[]string{"kind"},
	)

	SecurityCounter = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ecowatt_security_counter",
			Help: "Current value of the monotonic replay-protection counter",
		},
	)
)

func init() {
	prometheus.MustRegister(
		CompressionRatio,
		CompressionDuration,
		CompressionFailuresTotal,
		DeadlineMissesTotal,
		DeadlineMissesNetworkTotal,
		RestartsTriggeredTotal,
		SampleQueueDepth,
		SampleQueueDropsTotal,
		CompressedRingDepth,
		RegisterDecodeFallbacksTotal,
		UploadsTotal,
		UploadDuration,
		CommandsTotal,
		FirmwarePhase,
		FirmwareUpdatesTotal,
		ReconciliationDuration,
		ReconciliationCyclesTotal,
		ConfigRejectionsTotal,
		FaultEventsTotal,
		SecurityCounter,
	)
}

// Handler returns the Prometheus scrape handler, mounted at /metrics on
// bench/debug builds via `ecowatt run --metrics-addr`.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a small helper for timing an operation and recording it to a
// histogram once it completes.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a labeled histogram.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
