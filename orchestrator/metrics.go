package orchestrator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hupe1980/brigade/core"
)

// Metrics exposes orchestrator activity as Prometheus collectors. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	tasksCreated       *prometheus.CounterVec
	taskTransitions    *prometheus.CounterVec
	processingDuration *prometheus.HistogramVec
	tasksInFlight      prometheus.Gauge
	workflowsStarted   prometheus.Counter
	workflowsCompleted prometheus.Counter
	activeWorkflows    prometheus.Gauge
}

// NewMetrics registers the orchestrator collectors with reg.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		tasksCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_created_total",
				Help:      "Total number of tasks created",
			},
			[]string{"type"},
		),
		taskTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "task_transitions_total",
				Help:      "Total number of task status transitions by target status",
			},
			[]string{"status"},
		),
		processingDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "task_processing_duration_seconds",
				Help:      "Agent processing duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"role", "status"},
		),
		tasksInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "tasks_in_flight",
				Help:      "Number of tasks currently being processed",
			},
		),
		workflowsStarted: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflows_started_total",
				Help:      "Total number of workflow executions",
			},
		),
		workflowsCompleted: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflows_completed_total",
				Help:      "Total number of completed workflow executions",
			},
		),
		activeWorkflows: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_workflows",
				Help:      "Number of active workflows",
			},
		),
	}
}

func (m *Metrics) taskCreated(taskType string) {
	if m == nil {
		return
	}
	m.tasksCreated.WithLabelValues(taskType).Inc()
}

func (m *Metrics) transition(status core.TaskStatus) {
	if m == nil {
		return
	}
	m.taskTransitions.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) processed(role string, status core.TaskStatus, d time.Duration) {
	if m == nil {
		return
	}
	m.processingDuration.WithLabelValues(role, string(status)).Observe(d.Seconds())
}

func (m *Metrics) inFlight(delta float64) {
	if m == nil {
		return
	}
	m.tasksInFlight.Add(delta)
}

func (m *Metrics) workflowStarted(active int) {
	if m == nil {
		return
	}
	m.workflowsStarted.Inc()
	m.activeWorkflows.Set(float64(active))
}

func (m *Metrics) workflowCompleted(active int) {
	if m == nil {
		return
	}
	m.workflowsCompleted.Inc()
	m.activeWorkflows.Set(float64(active))
}
