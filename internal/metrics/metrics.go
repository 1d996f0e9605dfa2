// Package metrics tracks run outcomes with prometheus collectors. The process
// is one-shot, so collectors are exported to a node_exporter textfile instead
// of an HTTP endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// Metrics holds the collectors for one process.
type Metrics struct {
	registry *prometheus.Registry

	runs            *prometheus.CounterVec
	quoteFailures   *prometheus.CounterVec
	storeWrites     *prometheus.CounterVec
	opportunities   prometheus.Counter
	spreadPercent   prometheus.Gauge
	potentialProfit prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spreadscope_runs_total",
				Help: "Evaluation runs by terminal status",
			},
			[]string{"status"},
		),
		quoteFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spreadscope_quote_failures_total",
				Help: "Failed venue price fetches",
			},
			[]string{"venue"},
		),
		storeWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spreadscope_store_writes_total",
				Help: "Store writes by table and result",
			},
			[]string{"table", "result"},
		),
		opportunities: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spreadscope_opportunities_total",
			Help: "Evaluations whose profit cleared the minimum",
		}),
		spreadPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spreadscope_price_difference_percent",
			Help: "Last observed |price_a - price_b| / price_a * 100",
		}),
		potentialProfit: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spreadscope_potential_profit",
			Help: "Last raw profit before the threshold check",
		}),
	}

	m.registry.MustRegister(
		m.runs,
		m.quoteFailures,
		m.storeWrites,
		m.opportunities,
		m.spreadPercent,
		m.potentialProfit,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RunFinished(status string) {
	m.runs.WithLabelValues(status).Inc()
}

func (m *Metrics) QuoteFailed(venue string) {
	m.quoteFailures.WithLabelValues(venue).Inc()
}

// StoreWrite counts one write attempt for table.
func (m *Metrics) StoreWrite(table string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.storeWrites.WithLabelValues(table, result).Inc()
}

// Observed sets the gauges from one evaluation. Gauges are float64; the
// conversion loses precision only for reporting.
func (m *Metrics) Observed(spreadPercent, profit decimal.Decimal, isArbitrage bool) {
	pct, _ := spreadPercent.Float64()
	p, _ := profit.Float64()
	m.spreadPercent.Set(pct)
	m.potentialProfit.Set(p)
	if isArbitrage {
		m.opportunities.Inc()
	}
}

// WriteTextfile writes all collectors in the text exposition format. It is a
// no-op when path is empty.
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
