// Package metrics collects matchup run and API metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector provides application metrics collection.
type Collector struct {
	registry *prometheus.Registry

	// Matchup metrics
	MatchupsWritten  *prometheus.CounterVec
	VariablesSkipped *prometheus.CounterVec
	FilesDiscovered  *prometheus.CounterVec
	VariableDuration *prometheus.HistogramVec

	// API metrics
	APIRequestsTotal *prometheus.CounterVec
}

// NewCollector creates a collector with its own registry.
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Collector{
		registry: reg,

		MatchupsWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "matchups_written_total",
				Help:      "Total number of matchup files written by domain, variable and kind",
			},
			[]string{"domain", "variable", "kind"},
		),

		VariablesSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "variables_skipped_total",
				Help:      "Total number of requested variables skipped by reason",
			},
			[]string{"variable", "reason"},
		),

		FilesDiscovered: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "model_files_discovered_total",
				Help:      "Total number of model files selected for matchups",
			},
			[]string{"variable"},
		),

		VariableDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "variable_duration_seconds",
				Help:      "Time to produce the matchups of one variable",
				Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"variable"},
		),

		APIRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of API requests by endpoint, method, and status",
			},
			[]string{"endpoint", "method", "status"},
		),
	}
}

// Registry returns the registry metrics are registered with.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collected metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Timer provides timing functionality for operations.
type Timer struct {
	start    time.Time
	observer prometheus.Observer
}

// NewTimer starts timing the production of a variable.
func (c *Collector) NewTimer(variable string) *Timer {
	return &Timer{
		start:    time.Now(),
		observer: c.VariableDuration.WithLabelValues(variable),
	}
}

// ObserveDuration records the elapsed time since timer creation.
func (t *Timer) ObserveDuration() time.Duration {
	duration := time.Since(t.start)
	if t.observer != nil {
		t.observer.Observe(duration.Seconds())
	}
	return duration
}

// RecordMatchup increments the written matchup counter.
func (c *Collector) RecordMatchup(domain, variable, kind string) {
	c.MatchupsWritten.WithLabelValues(domain, variable, kind).Inc()
}

// RecordSkip increments the skipped variable counter.
func (c *Collector) RecordSkip(variable, reason string) {
	c.VariablesSkipped.WithLabelValues(variable, reason).Inc()
}

// RecordDiscovery adds the number of files selected for a variable.
func (c *Collector) RecordDiscovery(variable string, n int) {
	c.FilesDiscovered.WithLabelValues(variable).Add(float64(n))
}

// RecordAPIRequest increments API request counter.
func (c *Collector) RecordAPIRequest(endpoint, method, status string) {
	c.APIRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
}
