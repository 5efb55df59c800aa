package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

// Metrics holds all Prometheus metrics for the billing service.
type Metrics struct {
	// Registry owns these metrics and backs the /metrics endpoint.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	debits          *prometheus.CounterVec
	debitAmount     *prometheus.CounterVec
	topUps          *prometheus.CounterVec
	sweepUsers      *prometheus.CounterVec
	sweepDuration   prometheus.Histogram
	exports         *prometheus.CounterVec
	processorErrors *prometheus.CounterVec
}

// NewMetrics registers every metric in a private registry so repeated
// construction in tests never collides.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "billing_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		debits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_debits_total",
				Help: "Wallet debits by result.",
			},
			[]string{"result"},
		),
		debitAmount: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_debit_amount_total",
				Help: "Sum of successful debit amounts by reference type.",
			},
			[]string{"reference_type"},
		),
		topUps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_topups_total",
				Help: "Wallet top-ups by result.",
			},
			[]string{"result"},
		),
		sweepUsers: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_sweep_users_total",
				Help: "Users handled by the monthly sweep by outcome.",
			},
			[]string{"outcome"},
		),
		sweepDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "billing_sweep_duration_seconds",
				Help:    "Duration of monthly sweep runs.",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
		),
		exports: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_ledger_exports_total",
				Help: "Ledger entries pushed to the external mirror by result.",
			},
			[]string{"result"},
		),
		processorErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_processor_errors_total",
				Help: "Payment processor call failures by operation.",
			},
			[]string{"operation"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrDebit counts a debit attempt. Successful debits also add to the amount counter.
func (m *Metrics) IncrDebit(result, referenceType string, amount decimal.Decimal) {
	m.debits.WithLabelValues(result).Inc()
	if result == "success" {
		m.debitAmount.WithLabelValues(referenceType).Add(amount.InexactFloat64())
	}
}

func (m *Metrics) IncrTopUp(result string) {
	m.topUps.WithLabelValues(result).Inc()
}

func (m *Metrics) IncrSweepUser(outcome string) {
	m.sweepUsers.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveSweep(d time.Duration) {
	m.sweepDuration.Observe(d.Seconds())
}

func (m *Metrics) IncrExport(result string, n int) {
	m.exports.WithLabelValues(result).Add(float64(n))
}

func (m *Metrics) IncrProcessorError(operation string) {
	m.processorErrors.WithLabelValues(operation).Inc()
}
