package queue

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/opqueue/internal/op"
)

const metricsNamespace = "opqueue"

// Collector is a prometheus.Collector that collects metrics about a
// scheduler. A nil *Collector is valid and records nothing.
type Collector struct {
	admittedTotal  *prometheus.CounterVec
	finishedTotal  *prometheus.CounterVec
	obsoletedTotal *prometheus.CounterVec
	operations     *prometheus.GaugeVec
	duration       *prometheus.HistogramVec
}

// NewMetricsCollector returns a new Collector.
func NewMetricsCollector() *Collector {
	return &Collector{
		admittedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "operations_admitted_total",
				Help:      "The number of operations admitted.",
			}, []string{"category"},
		),
		finishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "operations_finished_total",
				Help:      "The number of operations that reached a terminal state.",
			}, []string{"category", "outcome"},
		),
		obsoletedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "operations_obsoleted_total",
				Help:      "The number of operations superseded by a newer one.",
			}, []string{"category"},
		),
		operations: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "operations",
				Help:      "The number of live operations by state.",
			}, []string{"state"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "operation_duration_seconds",
				Help:      "The time an operation's execute function ran.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			}, []string{"category"},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.admittedTotal.Describe(ch)
	c.finishedTotal.Describe(ch)
	c.obsoletedTotal.Describe(ch)
	c.operations.Describe(ch)
	c.duration.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.admittedTotal.Collect(ch)
	c.finishedTotal.Collect(ch)
	c.obsoletedTotal.Collect(ch)
	c.operations.Collect(ch)
	c.duration.Collect(ch)
}

func (c *Collector) admitted(cat op.Category) {
	if c == nil {
		return
	}
	c.admittedTotal.WithLabelValues(string(cat)).Inc()
}

func (c *Collector) finished(cat op.Category, kind op.OutcomeKind) {
	if c == nil {
		return
	}
	c.finishedTotal.WithLabelValues(string(cat), kind.String()).Inc()
}

func (c *Collector) obsoleted(cat op.Category) {
	if c == nil {
		return
	}
	c.obsoletedTotal.WithLabelValues(string(cat)).Inc()
}

// transition moves one operation between live-state gauges. An empty
// from is an admission.
func (c *Collector) transition(from, to op.State) {
	if c == nil {
		return
	}
	if from.IsLive() {
		c.operations.WithLabelValues(string(from)).Dec()
	}
	if to.IsLive() {
		c.operations.WithLabelValues(string(to)).Inc()
	}
}

func (c *Collector) executed(cat op.Category, d time.Duration) {
	if c == nil {
		return
	}
	c.duration.WithLabelValues(string(cat)).Observe(d.Seconds())
}
