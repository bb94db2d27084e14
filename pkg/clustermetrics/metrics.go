// Package clustermetrics exposes the allocator and failover coordinator's
// counters as Prometheus metrics.
package clustermetrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// FailoversToAnyHost counts initiateStandbyAwareAllocation calls that
	// fell through to an any-host request because no standby host could
	// be selected.
	FailoversToAnyHost = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "clustercore_failovers_to_any_host_total",
			Help: "Failovers that fell back to an any-host request",
		},
	)

	// FailoversToStandby counts failovers that targeted a specific
	// standby host (whether or not a standby had to be stopped first).
	FailoversToStandby = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "clustercore_failovers_to_standby_total",
			Help: "Failovers that targeted a standby's host",
		},
	)

	// FailedStandbyAllocations counts constraint-violation rejections
	// handled by checkStandbyConstraintsAndRun.
	FailedStandbyAllocations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "clustercore_failed_standby_allocations_total",
			Help: "Placements rejected for violating placement constraints",
		},
	)

	// RequestsSatisfied counts resource requests matched to a resource by
	// the allocator.
	RequestsSatisfied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "clustercore_requests_satisfied_total",
			Help: "Resource requests matched to an allocated resource",
		},
	)

	// ResourcesReleased counts resources returned to the broker because
	// they could not be used (wrong host, unstartable, cancelled).
	ResourcesReleased = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "clustercore_resources_released_total",
			Help: "Resources released back to the broker as unusable",
		},
	)

	// ResourcesReleasedExtra counts resources released by
	// releaseExtraResources because no pending request could use them.
	ResourcesReleasedExtra = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "clustercore_resources_released_extra_total",
			Help: "Surplus allocated resources released by the allocator loop",
		},
	)

	// AllocationCycleDuration times one full allocator control-loop
	// iteration (assign, promote, release).
	AllocationCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clustercore_allocation_cycle_duration_seconds",
			Help:    "Duration of one allocator control-loop iteration",
			Buckets: prometheus.DefBuckets,
		},
	)

	// PendingProcessors reports the current size of the pending set.
	PendingProcessors = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "clustercore_pending_processors",
			Help: "Processors launched and awaiting the running callback",
		},
	)

	// RunningProcessors reports the current size of the running set.
	RunningProcessors = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "clustercore_running_processors",
			Help: "Processors confirmed running by the broker",
		},
	)

	// FailoverMetadataEntries reports the live size of the Failovers
	// table, including entries not yet evicted.
	FailoverMetadataEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "clustercore_failover_metadata_entries",
			Help: "Entries currently held in the failover metadata table",
		},
	)
)

func init() {
	prometheus.MustRegister(
		FailoversToAnyHost,
		FailoversToStandby,
		FailedStandbyAllocations,
		RequestsSatisfied,
		ResourcesReleased,
		ResourcesReleasedExtra,
		AllocationCycleDuration,
		PendingProcessors,
		RunningProcessors,
		FailoverMetadataEntries,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
