package metrics

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every opsmgr collector. It is separate from the default
// registry so the textfile export only carries opsmgr series.
var Registry = prometheus.NewRegistry()

var (
	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsmgr_api_requests_total",
			Help: "Total number of Ops Manager API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opsmgr_api_request_duration_seconds",
			Help:    "Ops Manager API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Convergence metrics
	ConvergencePollsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "opsmgr_convergence_polls_total",
			Help: "Total number of automation status polls",
		},
	)

	ConvergenceWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "opsmgr_convergence_wait_seconds",
			Help:    "Time spent waiting for the automation goal state",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		},
	)

	// Health gate metrics
	HealthChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsmgr_health_checks_total",
			Help: "Total number of health checks by check and result",
		},
		[]string{"check", "result"},
	)

	// Workflow metrics
	WorkflowRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsmgr_workflow_runs_total",
			Help: "Total number of workflow runs by workflow and result",
		},
		[]string{"workflow", "result"},
	)

	MaintenanceWindowsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "opsmgr_maintenance_windows_active",
			Help: "Maintenance windows held by this process",
		},
	)
)

func init() {
	Registry.MustRegister(
		APIRequestsTotal,
		APIRequestDuration,
		ConvergencePollsTotal,
		ConvergenceWait,
		HealthChecksTotal,
		WorkflowRunsTotal,
		MaintenanceWindowsActive,
	)
}

// ObserveRequest records one API round trip. A zero status means the
// request failed before a response arrived.
func ObserveRequest(method string, status int, timer *Timer) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	APIRequestsTotal.WithLabelValues(method, label).Inc()
	timer.ObserveDurationVec(APIRequestDuration, method)
}

// Result returns the result label for err
func Result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// WriteTextfile writes the registry in the node exporter textfile format.
// An empty path is a no-op.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, Registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
