package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"auditor/pkg/framework"
)

// Run outcomes as recorded in auditor_runs_total.
const (
	OutcomeCompleted = "completed"
	OutcomeHalted    = "halted"
)

// MetricsObserver turns run events into Prometheus metrics. It owns a
// private registry so several observers can coexist in tests.
type MetricsObserver struct {
	registry *prometheus.Registry

	runs          *prometheus.CounterVec
	runDuration   prometheus.Histogram
	overall       prometheus.Gauge
	stageDuration *prometheus.HistogramVec
	branches      *prometheus.CounterVec
	branchFaults  *prometheus.CounterVec
	branchTime    *prometheus.HistogramVec
	routes        *prometheus.CounterVec
}

var _ framework.Observer = (*MetricsObserver)(nil)

func NewMetricsObserver() *MetricsObserver {
	m := &MetricsObserver{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auditor_runs_total",
			Help: "Audit runs by outcome.",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "auditor_run_duration_seconds",
			Help:    "Wall time of completed or halted runs.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		overall: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "auditor_last_overall_score",
			Help: "Overall score of the most recent completed run.",
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "auditor_stage_duration_seconds",
			Help:    "Duration of sequential stages.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		branches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auditor_branches_total",
			Help: "Branches joined at a barrier.",
		}, []string{"stage", "branch"}),
		branchFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auditor_branch_faults_total",
			Help: "Branches that faulted and were replaced by a sentinel patch.",
		}, []string{"stage", "branch"}),
		branchTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "auditor_branch_duration_seconds",
			Help:    "Duration of fan-out branches.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		routes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auditor_route_decisions_total",
			Help: "Router decisions after evidence aggregation.",
		}, []string{"decision"}),
	}
	m.registry.MustRegister(m.runs, m.runDuration, m.overall, m.stageDuration,
		m.branches, m.branchFaults, m.branchTime, m.routes)
	return m
}

// Registry exposes the observer's registry, e.g. for an HTTP handler.
func (m *MetricsObserver) Registry() *prometheus.Registry { return m.registry }

func (m *MetricsObserver) OnEvent(e framework.Event) {
	switch e.Type {
	case framework.EventStageExit:
		m.stageDuration.WithLabelValues(e.Stage).Observe(e.Elapsed.Seconds())
	case framework.EventBranchDone:
		m.branches.WithLabelValues(e.Stage, e.Branch).Inc()
		m.branchTime.WithLabelValues(e.Stage).Observe(e.Elapsed.Seconds())
	case framework.EventBranchFault:
		m.branchFaults.WithLabelValues(e.Stage, e.Branch).Inc()
	case framework.EventRoute:
		if d, ok := e.Metadata["decision"].(string); ok {
			m.routes.WithLabelValues(d).Inc()
		}
	case framework.EventRunComplete:
		m.runs.WithLabelValues(OutcomeCompleted).Inc()
		m.runDuration.Observe(e.Elapsed.Seconds())
		if s, ok := e.Metadata["overall_score"].(float64); ok {
			m.overall.Set(s)
		}
	case framework.EventRunHalted:
		m.runs.WithLabelValues(OutcomeHalted).Inc()
		if e.Elapsed > 0 {
			m.runDuration.Observe(e.Elapsed.Seconds())
		}
	}
}

// WriteTextfile writes every metric in the text exposition format, for the
// node exporter's textfile collector.
func (m *MetricsObserver) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
