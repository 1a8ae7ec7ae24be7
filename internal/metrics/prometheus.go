package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	collector     *Collector
	collectorOnce sync.Once
)

// Collector holds the engine's Prometheus metrics.
type Collector struct {
	LedgerMovements  *prometheus.CounterVec
	LedgerAmount     *prometheus.CounterVec
	LedgerConflicts  prometheus.Counter
	UnitsTotal       *prometheus.CounterVec
	CycleCompletions *prometheus.CounterVec
	ProfitPaid       *prometheus.CounterVec
	SweepDuration    *prometheus.HistogramVec
	SweepFailures    *prometheus.CounterVec
	ClustersByStatus *prometheus.GaugeVec
	TxDegraded       prometheus.Gauge
	WSConnections    prometheus.Gauge
	APIRequests      *prometheus.CounterVec
	APILatency       *prometheus.HistogramVec
}

// GetCollector returns the process-wide collector, registering it on first use.
func GetCollector() *Collector {
	collectorOnce.Do(func() {
		collector = newCollector()
		collector.registerAll()
	})
	return collector
}

func newCollector() *Collector {
	c := &Collector{}

	c.LedgerMovements = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "tpia", Subsystem: "ledger", Name: "movements_total", Help: "Ledger movements written"},
		[]string{"type"},
	)
	c.LedgerAmount = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "tpia", Subsystem: "ledger", Name: "amount_total", Help: "Absolute amount moved per movement type"},
		[]string{"type"},
	)
	c.LedgerConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "tpia", Subsystem: "ledger", Name: "version_conflicts_total", Help: "Wallet writes retried after a version conflict"},
	)
	c.UnitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "tpia", Subsystem: "units", Name: "transitions_total", Help: "Unit lifecycle events"},
		[]string{"event"},
	)
	c.CycleCompletions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "tpia", Subsystem: "cycles", Name: "completed_total", Help: "Cycles closed by outcome"},
		[]string{"outcome"},
	)
	c.ProfitPaid = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "tpia", Subsystem: "cycles", Name: "profit_total", Help: "Profit distributed per mode"},
		[]string{"mode"},
	)
	c.SweepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tpia",
			Subsystem: "scheduler",
			Name:      "job_duration_seconds",
			Help:      "Scheduler job duration",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"job"},
	)
	c.SweepFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "tpia", Subsystem: "scheduler", Name: "unit_failures_total", Help: "Units skipped during a job"},
		[]string{"job", "reason"},
	)
	c.ClustersByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: "tpia", Subsystem: "clusters", Name: "by_status", Help: "Clusters per status"},
		[]string{"status"},
	)
	c.TxDegraded = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "tpia", Subsystem: "store", Name: "tx_degraded", Help: "1 when writes run without transactions"},
	)
	c.WSConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "tpia", Subsystem: "ws", Name: "connections_active", Help: "Open notification sockets"},
	)
	c.APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "tpia", Subsystem: "api", Name: "requests_total", Help: "HTTP requests"},
		[]string{"method", "path", "status"},
	)
	c.APILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tpia",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
	return c
}

func (c *Collector) registerAll() {
	prometheus.MustRegister(
		c.LedgerMovements,
		c.LedgerAmount,
		c.LedgerConflicts,
		c.UnitsTotal,
		c.CycleCompletions,
		c.ProfitPaid,
		c.SweepDuration,
		c.SweepFailures,
		c.ClustersByStatus,
		c.TxDegraded,
		c.WSConnections,
		c.APIRequests,
		c.APILatency,
	)
}

func (c *Collector) RecordMovement(txType string, amount float64) {
	c.LedgerMovements.WithLabelValues(txType).Inc()
	if amount < 0 {
		amount = -amount
	}
	c.LedgerAmount.WithLabelValues(txType).Add(amount)
}

func (c *Collector) RecordConflict() {
	c.LedgerConflicts.Inc()
}

func (c *Collector) RecordUnitEvent(event string) {
	c.UnitsTotal.WithLabelValues(event).Inc()
}

func (c *Collector) RecordCycle(outcome, mode string, profit float64) {
	c.CycleCompletions.WithLabelValues(outcome).Inc()
	if profit > 0 {
		c.ProfitPaid.WithLabelValues(mode).Add(profit)
	}
}

func (c *Collector) ObserveJob(job string, started time.Time) {
	c.SweepDuration.WithLabelValues(job).Observe(time.Since(started).Seconds())
}

func (c *Collector) RecordJobFailure(job, reason string) {
	c.SweepFailures.WithLabelValues(job, reason).Inc()
}

func (c *Collector) SetClusterCount(status string, n int) {
	c.ClustersByStatus.WithLabelValues(status).Set(float64(n))
}

func (c *Collector) SetTxDegraded(degraded bool) {
	if degraded {
		c.TxDegraded.Set(1)
		return
	}
	c.TxDegraded.Set(0)
}

func (c *Collector) RecordWSConnection(delta int) {
	c.WSConnections.Add(float64(delta))
}

func (c *Collector) RecordAPIRequest(method, path, status string, latency time.Duration) {
	c.APIRequests.WithLabelValues(method, path, status).Inc()
	c.APILatency.WithLabelValues(method, path).Observe(latency.Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
