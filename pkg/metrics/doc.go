/*
Package metrics provides Prometheus metrics collection and exposition for
the EcoWatt telemetry endpoint.

Metrics are defined and registered at package init using the Prometheus
client library and exposed over HTTP for scraping.

# Metrics Catalog

Compression:

	ecowatt_compression_ratio{codec}          gauge
	ecowatt_compression_duration_seconds{codec} histogram
	ecowatt_compression_failures_total        counter

Task supervisor / deadline monitor:

	ecowatt_deadline_misses_total{task}           counter
	ecowatt_deadline_misses_network_total         counter
	ecowatt_supervisor_restarts_total             counter

Queues:

	ecowatt_sample_queue_depth       gauge
	ecowatt_sample_queue_drops_total counter
	ecowatt_compressed_ring_depth    gauge

Upload:

	ecowatt_uploads_total{outcome}          counter
	ecowatt_upload_duration_seconds         histogram

Commands:

	ecowatt_commands_total{outcome} counter

Firmware:

	ecowatt_firmware_phase{phase}          gauge
	ecowatt_firmware_updates_total{outcome} counter

Configuration reconciler:

	ecowatt_reconciliation_duration_seconds histogram
	ecowatt_reconciliation_cycles_total     counter
	ecowatt_config_rejections_total{key}    counter

Fault recovery and security:

	ecowatt_fault_events_total{kind} counter
	ecowatt_security_counter         gauge

# Usage

Gauge-style state (ring depth, firmware phase, security counter,
compression ratio) is sampled periodically by a Collector. The deadline
miss counters (pkg/supervisor), the sample queue depth and drop counter,
and the register decode fallback counter (pkg/polling) are updated inline
where the event occurs. The upload, command, firmware-update,
fault-event, compression duration and failure, reconciliation and
restart metrics are registered and exported, but no package in this
module updates them, so they stay at zero. A metric is updated inline
like this:

	metrics.CommandsTotal.WithLabelValues("success").Inc()

	timer := metrics.NewTimer()
	engine.Compress(b)
	timer.ObserveDurationVec(metrics.CompressionDuration, codecName)

The HTTP scrape endpoint is mounted with:

	http.Handle("/metrics", metrics.Handler())

# Health and readiness

Separately from the Prometheus metrics above, this package also exposes a
lightweight component health registry (RegisterComponent, GetHealth,
GetReadiness) consumed by the /health, /ready, and /live endpoints when the
device exposes a local debug HTTP server. "store", "uploader", and
"supervisor" are the components readiness depends on.
*/
package metrics
