// Package metrics exposes retraining run, poll and deploy counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the retrainer's Prometheus metrics on a private registry.
type Collector struct {
	registry *prometheus.Registry

	runsTotal   *prometheus.CounterVec
	runDuration prometheus.Histogram
	runsActive  prometheus.Gauge
	polls       *prometheus.CounterVec
	deploys     *prometheus.CounterVec
	metricValue *prometheus.GaugeVec
}

// NewCollector creates a Collector and registers its metrics.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "retrainer_runs_total",
			Help: "Total number of retraining runs by outcome",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "retrainer_run_duration_seconds",
			Help:    "Wall-clock duration of retraining runs in seconds",
			Buckets: prometheus.ExponentialBuckets(30, 2, 10),
		}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "retrainer_runs_in_flight",
			Help: "Current number of retraining runs in flight",
		}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "retrainer_status_polls_total",
			Help: "Total number of job status polls by observed status",
		}, []string{"status"}),
		deploys: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "retrainer_deploys_total",
			Help: "Total number of deploy decisions by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),
		metricValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "retrainer_model_metric",
			Help: "Latest value of each model quality metric",
		}, []string{"metric"}),
	}

	c.registry.MustRegister(
		c.runsTotal,
		c.runDuration,
		c.runsActive,
		c.polls,
		c.deploys,
		c.metricValue,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// RunStarted marks a run as in flight.
func (c *Collector) RunStarted() {
	c.runsActive.Inc()
}

// RunFinished records the outcome and duration of a run.
func (c *Collector) RunFinished(outcome string, seconds float64) {
	c.runsActive.Dec()
	c.runsTotal.WithLabelValues(outcome).Inc()
	c.runDuration.Observe(seconds)
}

// RecordPoll counts one status poll. status is the job status name, or "error".
func (c *Collector) RecordPoll(status string) {
	c.polls.WithLabelValues(status).Inc()
}

func (c *Collector) RecordDeploy(endpoint, outcome string) {
	c.deploys.WithLabelValues(endpoint, outcome).Inc()
}

// SetMetrics publishes the values of the newest metrics snapshot.
func (c *Collector) SetMetrics(values map[string]float64) {
	for name, v := range values {
		c.metricValue.WithLabelValues(name).Set(v)
	}
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
