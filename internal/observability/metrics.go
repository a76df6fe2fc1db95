package observability

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/corrigan-tasks/engine/internal/platform/envutil"
)

// Metrics holds every counter/histogram the engine emits, built once via
// prometheus/client_golang's default registry. A nil *Metrics is always safe to call
// methods on, so callers never need an Enabled() check at every call site.
type Metrics struct {
	tasksCreated   *prometheus.CounterVec
	runsDispatched *prometheus.CounterVec
	runOutcome     *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	frameAppended  *prometheus.CounterVec
	pickNextEmpty  prometheus.Counter
	backendErrors  *prometheus.CounterVec
}

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

// Init registers the engine's metrics with reg, or with prometheus.DefaultRegisterer
// if reg is nil. Returns nil when metrics are disabled, matching the teacher's pattern
// of a nil-receiver-safe *Metrics everywhere downstream.
func Init(reg prometheus.Registerer) *Metrics {
	if !Enabled() {
		return nil
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		tasksCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tasks_created_total",
			Help: "Total tasks created by name.",
		}, []string{"task_name"}),
		runsDispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "task_runs_dispatched_total",
			Help: "Total dispatch attempts (run_active transitions) by task name.",
		}, []string{"task_name"}),
		runOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "task_run_outcomes_total",
			Help: "Run outcomes by task name and outcome (completed, rescheduled, failed).",
		}, []string{"task_name", "outcome"}),
		runDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "task_run_duration_seconds",
			Help:    "Wall-clock duration of one dispatch call, by task name and outcome.",
			Buckets: []float64{0.001, 0.005, 0.025, 0.1, 0.5, 1, 5, 15, 60},
		}, []string{"task_name", "outcome"}),
		frameAppended: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "frames_appended_total",
			Help: "Frames appended by type.",
		}, []string{"frame_type"}),
		pickNextEmpty: factory.NewCounter(prometheus.CounterOpts{
			Name: "pick_next_empty_total",
			Help: "Total pick_next polls that found no eligible task.",
		}),
		backendErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "store_backend_errors_total",
			Help: "BackendError occurrences by store operation.",
		}, []string{"op"}),
	}
}

// Handler exposes the registered metrics for GET /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

func (m *Metrics) IncTaskCreated(name string) {
	if m == nil {
		return
	}
	m.tasksCreated.WithLabelValues(label(name)).Inc()
}

func (m *Metrics) IncRunDispatched(name string) {
	if m == nil {
		return
	}
	m.runsDispatched.WithLabelValues(label(name)).Inc()
}

func (m *Metrics) ObserveRunOutcome(name, outcome string, seconds float64) {
	if m == nil {
		return
	}
	name, outcome = label(name), label(outcome)
	m.runOutcome.WithLabelValues(name, outcome).Inc()
	m.runDuration.WithLabelValues(name, outcome).Observe(seconds)
}

func (m *Metrics) IncFrameAppended(frameType string) {
	if m == nil {
		return
	}
	m.frameAppended.WithLabelValues(label(frameType)).Inc()
}

func (m *Metrics) IncPickNextEmpty() {
	if m == nil {
		return
	}
	m.pickNextEmpty.Inc()
}

func (m *Metrics) IncBackendError(op string) {
	if m == nil {
		return
	}
	m.backendErrors.WithLabelValues(label(op)).Inc()
}

func label(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return v
}
