// Package metrics provides observability for the validation module.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the validation module metric instruments.
type Metrics struct {
	// Run outcomes by status and profile
	RunsTotal *prometheus.CounterVec

	// Full run latency by profile, load through offline check
	RunDuration *prometheus.HistogramVec

	// Blocked network fetches observed by the offline guard
	FetchAttempts prometheus.Counter

	// URLs that resolved to no local file
	ResolutionMisses prometheus.Counter

	// Packages in the active catalog index
	PackagesLoaded prometheus.Gauge
}

// New creates and registers all validation metrics.
func New() *Metrics {
	return &Metrics{
		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "veritax_validation_runs_total",
			Help: "Total validation runs by terminal status and profile",
		}, []string{"status", "profile"}),

		RunDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "veritax_validation_run_duration_seconds",
			Help:    "Duration of full validation runs by profile",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"profile"}),

		FetchAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veritax_offline_fetch_attempts_total",
			Help: "HTTP fetch attempts blocked by the offline guard",
		}),

		ResolutionMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veritax_resolution_misses_total",
			Help: "Taxonomy URLs that resolved to no local file",
		}),

		PackagesLoaded: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "veritax_catalog_packages_loaded",
			Help: "Taxonomy packages registered in the active catalog index",
		}),
	}
}

// ObserveRun records one terminal run outcome.
func (m *Metrics) ObserveRun(status, profile string, d time.Duration) {
	if m != nil {
		m.RunsTotal.WithLabelValues(status, profile).Inc()
		m.RunDuration.WithLabelValues(profile).Observe(d.Seconds())
	}
}

// AddFetchAttempts records blocked fetches from one run.
func (m *Metrics) AddFetchAttempts(n int) {
	if m != nil && n > 0 {
		m.FetchAttempts.Add(float64(n))
	}
}

// IncResolutionMiss records one unresolved URL.
func (m *Metrics) IncResolutionMiss() {
	if m != nil {
		m.ResolutionMisses.Inc()
	}
}

// SetPackagesLoaded records the active package count.
func (m *Metrics) SetPackagesLoaded(n int) {
	if m != nil {
		m.PackagesLoaded.Set(float64(n))
	}
}
