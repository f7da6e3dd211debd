// Package metrics holds the grading counters and histograms. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors registered by NewMetrics.
type Metrics struct {
	submissionsGraded *prometheus.CounterVec
	gradingDuration   *prometheus.HistogramVec
	executions        *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
	aiEvaluations     *prometheus.CounterVec
	hookFailures      *prometheus.CounterVec
}

// Labels returns the constant service and instance labels.
func Labels(service string) prometheus.Labels {
	if service == "" {
		service = "codearena"
	}
	instance := os.Getenv("INSTANCE_ID")
	if instance == "" {
		instance, _ = os.Hostname()
	}
	return prometheus.Labels{"service": service, "instance": instance}
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		submissionsGraded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "submissions_graded_total",
				Help: "Total number of graded submissions",
			},
			[]string{"language", "status", "mode"},
		),
		gradingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "grading_duration_seconds",
				Help:    "Time spent running and scoring one submission",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
			},
			[]string{"mode"},
		),
		executions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "execution_requests_total",
				Help: "Total number of execution backend calls",
			},
			[]string{"backend", "outcome"},
		),
		executionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "execution_duration_seconds",
				Help:    "Execution backend call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend"},
		),
		aiEvaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ai_evaluations_total",
				Help: "Total number of code-quality evaluations",
			},
			[]string{"outcome"},
		),
		hookFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "post_commit_hook_failures_total",
				Help: "Post-commit side effects that failed",
			},
			[]string{"hook"},
		),
	}
	for _, c := range []prometheus.Collector{
		m.submissionsGraded,
		m.gradingDuration,
		m.executions,
		m.executionDuration,
		m.aiEvaluations,
		m.hookFailures,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveGrading records one graded submit or run.
func (m *Metrics) ObserveGrading(mode, language, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.submissionsGraded.WithLabelValues(language, status, mode).Inc()
	m.gradingDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
}

// ObserveExecution records one backend call. outcome is ok, backend_error,
// timeout or canceled.
func (m *Metrics) ObserveExecution(backend, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.executions.WithLabelValues(backend, outcome).Inc()
	m.executionDuration.WithLabelValues(backend).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveAIEvaluation(outcome string) {
	if m == nil {
		return
	}
	m.aiEvaluations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) HookFailed(hook string) {
	if m == nil {
		return
	}
	m.hookFailures.WithLabelValues(hook).Inc()
}

// Handler serves the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
}
