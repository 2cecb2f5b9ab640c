// Package metrics exposes cycle telemetry as Prometheus collectors.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cryptocycles/internal/report"
)

// Collector implements the scheduler's cycle recorder.
type Collector struct {
	registry *prometheus.Registry

	cycles          prometheus.Counter
	cycleDuration   prometheus.Histogram
	deliveries      *prometheus.CounterVec
	deliveryRetries prometheus.Counter
	fetchFailures   prometheus.Counter
	upstream        prometheus.Counter
	lastSuccess     prometheus.Gauge
	state           *prometheus.GaugeVec

	mu        sync.Mutex
	lastState string
}

// NewCollector creates a collector with its own registry.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "cryptocycles"
	}
	c := &Collector{registry: prometheus.NewRegistry()}

	c.cycles = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cycles_total",
		Help:      "Total number of completed publish cycles",
	})
	c.cycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "cycle_duration_seconds",
		Help:      "Time taken by a publish cycle",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
	})
	c.deliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "delivery",
		Name:      "total",
		Help:      "Stream points delivered to the ingestion API",
	}, []string{"result"})
	c.deliveryRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "delivery",
		Name:      "retries_total",
		Help:      "Delivery attempts beyond the first",
	})
	c.fetchFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "fetch",
		Name:      "failures_total",
		Help:      "Symbols without a valid quote in a cycle",
	})
	c.upstream = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "fetch",
		Name:      "requests_total",
		Help:      "Market data requests made, retries included",
	})
	c.lastSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_success_timestamp_seconds",
		Help:      "Start time of the last cycle that delivered at least one point",
	})
	c.state = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "state",
		Help:      "Current scheduler state (1 for the active state)",
	}, []string{"state"})

	c.registry.MustRegister(
		c.cycles,
		c.cycleDuration,
		c.deliveries,
		c.deliveryRetries,
		c.fetchFailures,
		c.upstream,
		c.lastSuccess,
		c.state,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ObserveCycle records one finished cycle.
func (c *Collector) ObserveCycle(s report.Summary) {
	c.cycles.Inc()
	c.cycleDuration.Observe(s.Duration.Seconds())
	c.upstream.Add(float64(s.Requests))
	c.fetchFailures.Add(float64(len(s.FetchFailures)))

	delivered := 0
	for _, d := range s.Deliveries {
		if d.Attempts > 1 {
			c.deliveryRetries.Add(float64(d.Attempts - 1))
		}
		if d.Success {
			delivered++
			c.deliveries.WithLabelValues("success").Inc()
			continue
		}
		c.deliveries.WithLabelValues("failure").Inc()
	}
	if delivered > 0 {
		c.lastSuccess.Set(float64(s.StartedAt.Unix()))
	}
}

// SetState marks state as the active one.
func (c *Collector) SetState(state string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastState != "" {
		c.state.WithLabelValues(c.lastState).Set(0)
	}
	c.state.WithLabelValues(state).Set(1)
	c.lastState = state
}

// WatchBudget exports remaining() as the remaining monthly upstream budget.
func (c *Collector) WatchBudget(namespace string, remaining func() int) {
	if namespace == "" {
		namespace = "cryptocycles"
	}
	c.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "fetch",
		Name:      "budget_remaining",
		Help:      "Market data requests left this month (-1 when unbounded)",
	}, func() float64 { return float64(remaining()) }))
}
