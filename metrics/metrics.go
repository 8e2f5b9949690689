// Package metrics exposes Prometheus counters for pricing and commission
// operations. Each Metrics owns its registry so tests and servers never
// collide on the default one.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Operation outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeMessages = "messages"
	OutcomeError    = "error"
)

type Metrics struct {
	registry *prometheus.Registry

	pricesComputed    *prometheus.CounterVec
	commissionRows    *prometheus.CounterVec
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	redeemed          prometheus.Counter
	jobRuns           *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pricesComputed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "premium_prices_computed_total",
			Help: "Pricing rule evaluations by scope and outcome.",
		}, []string{"scope", "outcome"}),
		commissionRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "premium_commission_rows_total",
			Help: "Commission ledger rows written by operation.",
		}, []string{"operation"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "premium_engine_operations_total",
			Help: "Commission engine operations by outcome.",
		}, []string{"operation", "outcome"}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "premium_engine_operation_duration_seconds",
			Help:    "Commission engine operation latency.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"operation"}),
		redeemed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "premium_prepayment_redeemed_amount_total",
			Help: "Prepayment amount consumed by real commissions.",
		}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "premium_scheduler_job_runs_total",
			Help: "Scheduler job runs by name and outcome.",
		}, []string{"job", "outcome"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.pricesComputed,
		m.commissionRows,
		m.operations,
		m.operationDuration,
		m.redeemed,
		m.jobRuns,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) PriceComputed(scope string, messages int) {
	outcome := OutcomeOK
	if messages > 0 {
		outcome = OutcomeMessages
	}
	m.pricesComputed.WithLabelValues(scope, outcome).Inc()
}

// Observe records one engine operation started at start.
func (m *Metrics) Observe(operation string, start time.Time, rows int, err error) {
	m.operationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		m.operations.WithLabelValues(operation, OutcomeError).Inc()
		return
	}
	m.operations.WithLabelValues(operation, OutcomeOK).Inc()
	m.commissionRows.WithLabelValues(operation).Add(float64(rows))
}

func (m *Metrics) Redeemed(amount decimal.Decimal) {
	if amount.IsPositive() {
		m.redeemed.Add(amount.InexactFloat64())
	}
}

func (m *Metrics) JobRun(job string, err error) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.jobRuns.WithLabelValues(job, outcome).Inc()
}
