// Package metrics holds the Prometheus instruments exported by the service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the application
type Collector struct {
	// Registry for this collector instance
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Planning metrics
	RouteRequests *prometheus.CounterVec
	RouteDuration prometheus.Histogram
	Alternatives  prometheus.Histogram

	// Maintenance metrics
	Rebuilds          *prometheus.CounterVec
	RebuildDuration   prometheus.Histogram
	SnapshotVersion   prometheus.Gauge
	GraphEdges        prometheus.Gauge
	IncidentsAssigned prometheus.Gauge
	IncidentsIgnored  *prometheus.GaugeVec
}

// NewCollector creates a collector with its own registry under the given namespace.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		RouteRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "route_requests_total",
				Help:      "Route plans by outcome",
			},
			[]string{"outcome"},
		),
		RouteDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "route_plan_duration_seconds",
				Help:      "Time spent planning one route request",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
		),
		Alternatives: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "route_alternatives",
				Help:      "Number of alternatives returned per plan",
				Buckets:   prometheus.LinearBuckets(0, 1, 6),
			},
		),
		Rebuilds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rebuilds_total",
				Help:      "Snapshot rebuilds by kind and result",
			},
			[]string{"kind", "result"},
		),
		RebuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rebuild_duration_seconds",
				Help:      "Time spent building a snapshot",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
			},
		),
		SnapshotVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_version",
			Help:      "Version of the snapshot currently served",
		}),
		GraphEdges: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "graph_edges",
			Help:      "Directed edges in the served graph",
		}),
		IncidentsAssigned: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "incidents_assigned",
			Help:      "Incidents attached to an edge in the served snapshot",
		}),
		IncidentsIgnored: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "incidents_ignored",
			Help:      "Incidents left out of the served snapshot by reason",
		}, []string{"reason"}),
	}

	registry.MustRegister(
		c.HTTPRequests, c.HTTPDuration,
		c.RouteRequests, c.RouteDuration, c.Alternatives,
		c.Rebuilds, c.RebuildDuration, c.SnapshotVersion, c.GraphEdges,
		c.IncidentsAssigned, c.IncidentsIgnored,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the registry holding this collector's metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveRoute records one planning request.
func (c *Collector) ObserveRoute(outcome string, d time.Duration, alternatives int) {
	c.RouteRequests.WithLabelValues(outcome).Inc()
	c.RouteDuration.Observe(d.Seconds())
	if outcome == "ok" {
		c.Alternatives.Observe(float64(alternatives))
	}
}

// ObserveHTTP records one HTTP request.
func (c *Collector) ObserveHTTP(method, route, status string, d time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, status).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RebuildStats describes a published snapshot.
type RebuildStats struct {
	Kind       string // "full" or "risk"
	Version    uint64
	Edges      int
	Assigned   int
	OutOfRange int
	Inactive   int
	Rejected   int
	Duration   time.Duration
}

// ObserveRebuild records a successful rebuild.
func (c *Collector) ObserveRebuild(s RebuildStats) {
	c.Rebuilds.WithLabelValues(s.Kind, "ok").Inc()
	c.RebuildDuration.Observe(s.Duration.Seconds())
	c.SnapshotVersion.Set(float64(s.Version))
	c.GraphEdges.Set(float64(s.Edges))
	c.IncidentsAssigned.Set(float64(s.Assigned))
	c.IncidentsIgnored.WithLabelValues("out_of_range").Set(float64(s.OutOfRange))
	c.IncidentsIgnored.WithLabelValues("inactive").Set(float64(s.Inactive))
	c.IncidentsIgnored.WithLabelValues("rejected").Set(float64(s.Rejected))
}

// ObserveRebuildFailure records a failed rebuild.
func (c *Collector) ObserveRebuildFailure(kind string) {
	c.Rebuilds.WithLabelValues(kind, "error").Inc()
}
