package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsCompleted   = prometheus.NewCounter(prometheus.CounterOpts{Name: "report_jobs_completed_total", Help: "Jobs that finished the pipeline"})
	JobsRetried     = prometheus.NewCounter(prometheus.CounterOpts{Name: "report_jobs_retried_total", Help: "Failed attempts resubmitted for retry"})
	JobsFailed      = prometheus.NewCounter(prometheus.CounterOpts{Name: "report_jobs_failed_total", Help: "Jobs failed permanently"})
	ReportsRejected = prometheus.NewCounter(prometheus.CounterOpts{Name: "reports_rejected_total", Help: "Reports rejected by the confidence gate"})
	GeocodeAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "geocode_attempts_total", Help: "Geocoding cascade outcomes"}, []string{"outcome"})
	GeocodeMatched  = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "geocode_matched_total", Help: "Geocoding matches by cascade level"}, []string{"level"})
	ClustersCreated = prometheus.NewCounter(prometheus.CounterOpts{Name: "report_clusters_created_total", Help: "New spatial clusters opened"})
	JobsInFlight    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "report_jobs_inflight", Help: "Jobs currently being processed"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobsCompleted,
			JobsRetried,
			JobsFailed,
			ReportsRejected,
			GeocodeAttempts,
			GeocodeMatched,
			ClustersCreated,
			JobsInFlight,
		)
	})
	return promhttp.Handler()
}
