package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// AggregatorMetrics holds Prometheus metrics for aggregation runs
type AggregatorMetrics struct {
	AdapterFetches   *prometheus.CounterVec
	AdapterLatency   *prometheus.HistogramVec
	Positions        *prometheus.GaugeVec
	CyclesTotal      prometheus.Counter
	CycleDuration    prometheus.Histogram
	ChainReaderCalls *prometheus.CounterVec
}

// NewAggregatorMetrics registers aggregator metrics with reg
func NewAggregatorMetrics(reg prometheus.Registerer) *AggregatorMetrics {
	factory := promauto.With(reg)
	return &AggregatorMetrics{
		AdapterFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aggregator_adapter_fetches_total",
			Help: "Adapter invocations by protocol and outcome",
		}, []string{"protocol", "outcome"}),
		AdapterLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aggregator_adapter_fetch_duration_seconds",
			Help:    "Time taken by one adapter invocation",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"protocol"}),
		Positions: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aggregator_positions",
			Help: "Positions produced by the last cycle",
		}, []string{"protocol"}),
		CyclesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "aggregator_cycles_total",
			Help: "Total number of aggregation cycles",
		}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "aggregator_cycle_duration_seconds",
			Help:    "Time taken by one aggregation cycle",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		ChainReaderCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chain_reader_calls_total",
			Help: "Contract calls by outcome",
		}, []string{"outcome"}),
	}
}
