package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "medtrack_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	ingestRequests *prometheus.CounterVec
	ingestErrors   *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec

	doseEventsTotal *prometheus.CounterVec

	inventoryShortfall prometheus.Counter

	alertsTotal *prometheus.CounterVec

	notifyDeliveries *prometheus.CounterVec

	schedulerTicks       *prometheus.CounterVec
	schedulerTickLatency *prometheus.HistogramVec
	schedulerSkipped     prometheus.Counter

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec

	outboxDispatchTotal *prometheus.CounterVec
	deadLetterTotal     prometheus.Counter
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		ingestRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "scan_requests_total",
				Help: "Total scan ingest requests by result",
			},
			[]string{"result"},
		)
		ingestErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "scan_errors_total",
				Help: "Total scan ingest errors by reason",
			},
			[]string{"reason"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "scan_latency_seconds",
				Help:    "Scan ingest latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		doseEventsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "dose_events_total",
				Help: "Total classified dose events by classification",
			},
			[]string{"classification"},
		)

		inventoryShortfall = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "inventory_shortfall_units_total",
				Help: "Total units that could not be decremented from inventory",
			},
		)

		alertsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alerts_total",
				Help: "Total raised alerts by type and severity",
			},
			[]string{"type", "severity"},
		)

		notifyDeliveries = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notify_deliveries_total",
				Help: "Total notification deliveries by channel and result",
			},
			[]string{"channel", "result"},
		)

		schedulerTicks = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "scheduler_ticks_total",
				Help: "Total reminder scheduler ticks by result",
			},
			[]string{"result"},
		)
		schedulerTickLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "scheduler_tick_latency_seconds",
				Help:    "Reminder scheduler tick latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		schedulerSkipped = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "scheduler_ticks_skipped_total",
				Help: "Ticks skipped because the previous sweep was still running",
			},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total report exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Report export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		outboxDispatchTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_dispatch_total",
				Help: "Total outbox envelopes dispatched by result",
			},
			[]string{"result"},
		)
		deadLetterTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "dead_letter_total",
				Help: "Total envelopes routed to the dead letter store",
			},
		)

		prometheus.MustRegister(
			ingestRequests,
			ingestErrors,
			ingestLatency,
			doseEventsTotal,
			inventoryShortfall,
			alertsTotal,
			notifyDeliveries,
			schedulerTicks,
			schedulerTickLatency,
			schedulerSkipped,
			exportTotal,
			exportLatency,
			outboxDispatchTotal,
			deadLetterTotal,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveIngest records scan request duration and result.
func ObserveIngest(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if ingestRequests != nil {
		ingestRequests.WithLabelValues(result).Inc()
	}
	if ingestLatency != nil {
		ingestLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncIngestError increments scan error counter.
func IncIngestError(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if ingestErrors != nil {
		ingestErrors.WithLabelValues(reason).Inc()
	}
}

// IncDoseEvent increments the classified dose event counter.
func IncDoseEvent(classification string) {
	if classification == "" {
		classification = "unknown"
	}
	if doseEventsTotal != nil {
		doseEventsTotal.WithLabelValues(classification).Inc()
	}
}

// AddInventoryShortfall adds units the ledger could not decrement.
func AddInventoryShortfall(units int) {
	if units <= 0 {
		return
	}
	if inventoryShortfall != nil {
		inventoryShortfall.Add(float64(units))
	}
}

// IncAlert increments raised alert counters.
func IncAlert(alertType, severity string) {
	if alertType == "" {
		alertType = "unknown"
	}
	if severity == "" {
		severity = "unknown"
	}
	if alertsTotal != nil {
		alertsTotal.WithLabelValues(alertType, severity).Inc()
	}
}

// IncNotifyDelivery increments notification delivery counters.
func IncNotifyDelivery(channel, result string) {
	if channel == "" {
		channel = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if notifyDeliveries != nil {
		notifyDeliveries.WithLabelValues(channel, result).Inc()
	}
}

// ObserveSchedulerTick records a reminder sweep latency and result.
func ObserveSchedulerTick(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if schedulerTicks != nil {
		schedulerTicks.WithLabelValues(result).Inc()
	}
	if schedulerTickLatency != nil {
		schedulerTickLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncSchedulerSkipped counts ticks skipped due to an in-flight sweep.
func IncSchedulerSkipped() {
	if schedulerSkipped != nil {
		schedulerSkipped.Inc()
	}
}

// ObserveExport records report export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// IncOutboxDispatch counts one dispatched outbox envelope.
func IncOutboxDispatch(result string) {
	if result == "" {
		result = resultSuccess
	}
	if outboxDispatchTotal != nil {
		outboxDispatchTotal.WithLabelValues(result).Inc()
	}
}

// IncDeadLetter counts one envelope routed to the dead letter store.
func IncDeadLetter() {
	if deadLetterTotal != nil {
		deadLetterTotal.Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
