// Package metrics exposes cache and tool activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records metadata cache and external tool metrics.
// All methods are nil-safe: calls on a nil *Collector are no-ops.
type Collector struct {
	// Lookups counts cache lookups by result: hit, miss, stale, skipped.
	Lookups *prometheus.CounterVec

	// ChecksumDuration observes the time spent hashing one file.
	ChecksumDuration prometheus.Histogram

	// Runs counts finished tool runs by topic and outcome.
	Runs *prometheus.CounterVec

	// Lines counts forwarded output lines by topic.
	Lines *prometheus.CounterVec

	// RunDuration observes tool run time by topic.
	RunDuration *prometheus.HistogramVec
}

// NewRegistry returns a registry carrying the Go runtime and process
// collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// New creates a Collector registered with reg
func New(reg prometheus.Registerer) *Collector {
	return &Collector{
		Lookups: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "modshell_cache_lookups_total",
				Help: "Total number of metadata cache lookups by result",
			},
			[]string{"result"},
		),
		ChecksumDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "modshell_checksum_duration_seconds",
				Help: "Time spent computing a file checksum",
				Buckets: []float64{
					0.001, // small patch files
					0.01,
					0.1,
					0.5,
					1,
					5,
					30, // multi-gigabyte archives
				},
			},
		),
		Runs: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "modshell_process_runs_total",
				Help: "Total number of external tool runs by tool and outcome",
			},
			[]string{"tool", "outcome"},
		),
		Lines: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "modshell_process_lines_total",
				Help: "Total number of output lines forwarded by tool",
			},
			[]string{"tool"},
		),
		RunDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "modshell_process_duration_seconds",
				Help:    "Duration of external tool runs",
				Buckets: prometheus.ExponentialBuckets(0.5, 4, 8),
			},
			[]string{"tool"},
		),
	}
}

// ObserveLookup counts one cache lookup
func (c *Collector) ObserveLookup(result string) {
	if c == nil {
		return
	}
	c.Lookups.WithLabelValues(result).Inc()
}

// ObserveChecksum records one checksum computation
func (c *Collector) ObserveChecksum(d time.Duration) {
	if c == nil {
		return
	}
	c.ChecksumDuration.Observe(d.Seconds())
}

// ObserveLine counts one forwarded output line
func (c *Collector) ObserveLine(tool string) {
	if c == nil {
		return
	}
	c.Lines.WithLabelValues(tool).Inc()
}

// ObserveRun records one finished tool run
func (c *Collector) ObserveRun(tool, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.Runs.WithLabelValues(tool, outcome).Inc()
	c.RunDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// Handler serves the metrics gathered by g
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
