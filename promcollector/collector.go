// Package promcollector exports step metrics to Prometheus.
package promcollector

import (
	"time"

	"github.com/hupe1980/steparena"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector implements steparena.MetricsCollector with Prometheus metrics.
type Collector struct {
	stepLatency *prometheus.HistogramVec
	stepCost    *prometheus.HistogramVec
	yields      prometheus.Counter
	completions prometheus.Counter
	ingested    *prometheus.CounterVec
	reclaimed   prometheus.Counter
	teardowns   *prometheus.CounterVec
	recoveries  *prometheus.CounterVec
}

var _ steparena.MetricsCollector = (*Collector)(nil)

// New creates a Collector and registers its metrics with reg. A nil reg
// uses prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		stepLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "steparena_step_duration_seconds",
			Help:    "Wall-clock duration of steps",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
		stepCost: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "steparena_step_cost_units",
			Help:    "Budget units consumed per committed step",
			Buckets: prometheus.ExponentialBuckets(64, 4, 10),
		}, []string{"outcome"}),
		yields: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "steparena_yields_total",
			Help: "Steps that checkpointed on low budget",
		}),
		completions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "steparena_completions_total",
			Help: "Computations that completed",
		}),
		ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "steparena_ingest_bytes_total",
			Help: "Input bytes appended",
		}, []string{"status"}),
		reclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "steparena_reclaimed_bytes_total",
			Help: "Segment bytes released by teardown",
		}),
		teardowns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "steparena_teardowns_total",
			Help: "Teardowns by status",
		}, []string{"status"}),
		recoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "steparena_recoveries_total",
			Help: "Interrupted commits rolled back",
		}, []string{"status"}),
	}
	for _, m := range []prometheus.Collector{
		c.stepLatency, c.stepCost, c.yields, c.completions,
		c.ingested, c.reclaimed, c.teardowns, c.recoveries,
	} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (c *Collector) RecordStep(cost int64, done bool, d time.Duration, err error) {
	c.stepLatency.WithLabelValues(status(err)).Observe(d.Seconds())
	if err != nil {
		return
	}
	outcome := "yield"
	if done {
		outcome = "done"
		c.completions.Inc()
	}
	c.stepCost.WithLabelValues(outcome).Observe(float64(cost))
}

func (c *Collector) RecordYield(int64) { c.yields.Inc() }

func (c *Collector) RecordIngest(bytes int, err error) {
	c.ingested.WithLabelValues(status(err)).Add(float64(bytes))
}

func (c *Collector) RecordTeardown(reclaimed int64, err error) {
	c.teardowns.WithLabelValues(status(err)).Inc()
	c.reclaimed.Add(float64(reclaimed))
}

func (c *Collector) RecordRecovery(err error) {
	c.recoveries.WithLabelValues(status(err)).Inc()
}
