// Package metrics exposes Prometheus instrumentation for scans.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "devops_ingest"

// Scan holds the collectors updated while scanning. A nil *Scan is valid and
// records nothing.
type Scan struct {
	RemoteRequests *prometheus.CounterVec   // labels: endpoint, code
	RemoteLatency  *prometheus.HistogramVec // labels: endpoint

	RecordsEmitted    *prometheus.CounterVec   // labels: stage
	ItemsEmitted      *prometheus.CounterVec   // labels: stage
	StageDuration     *prometheus.HistogramVec // labels: stage
	ResumableFailures *prometheus.CounterVec   // labels: stage
	SoftSkips         *prometheus.CounterVec   // labels: stage, reason

	CacheLookups *prometheus.CounterVec // labels: result
	ScanAttempts prometheus.Counter
}

// New registers the scan collectors on reg.
func New(reg prometheus.Registerer) *Scan {
	f := promauto.With(reg)
	return &Scan{
		RemoteRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_requests_total",
			Help:      "Total number of requests sent to the remote API",
		}, []string{"endpoint", "code"}),
		RemoteLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remote_request_duration_seconds",
			Help:      "Latency of remote API requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		RecordsEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_emitted_total",
			Help:      "Total number of enriched records produced",
		}, []string{"stage"}),
		ItemsEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_emitted_total",
			Help:      "Total number of child items carried by enriched records",
		}, []string{"stage"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent running one scan stage",
			Buckets:   []float64{1, 5, 30, 60, 300, 900, 1800, 3600},
		}, []string{"stage"}),
		ResumableFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resumable_failures_total",
			Help:      "Total number of stages interrupted with a resumable failure",
		}, []string{"stage"}),
		SoftSkips: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "soft_skips_total",
			Help:      "Total number of optional fetches skipped after an error",
		}, []string{"stage", "reason"}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "project_cache_lookups_total",
			Help:      "Project list cache lookups by result",
		}, []string{"result"}),
		ScanAttempts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_attempts_total",
			Help:      "Total number of scan attempts made by the orchestrator",
		}),
	}
}

func (m *Scan) ObserveRequest(endpoint string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.RemoteRequests.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
	m.RemoteLatency.WithLabelValues(endpoint).Observe(d.Seconds())
}

func (m *Scan) Emitted(stage string, items int) {
	if m == nil {
		return
	}
	m.RecordsEmitted.WithLabelValues(stage).Inc()
	m.ItemsEmitted.WithLabelValues(stage).Add(float64(items))
}

func (m *Scan) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Scan) IncResumableFailure(stage string) {
	if m == nil {
		return
	}
	m.ResumableFailures.WithLabelValues(stage).Inc()
}

func (m *Scan) IncSoftSkip(stage, reason string) {
	if m == nil {
		return
	}
	m.SoftSkips.WithLabelValues(stage, reason).Inc()
}

func (m *Scan) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Scan) IncAttempt() {
	if m == nil {
		return
	}
	m.ScanAttempts.Inc()
}
