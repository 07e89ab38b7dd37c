package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	queueSize    *prometheus.GaugeVec
	enqueueTotal *prometheus.CounterVec
	dequeueTotal *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec

	activeSessions    prometheus.Gauge
	sessionEvictions  *prometheus.CounterVec
	trimmedMessages   prometheus.Counter
	ownershipRejects  prometheus.Counter

	turnTotal    *prometheus.CounterVec
	turnDuration *prometheus.HistogramVec

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec

	permissionDecisions *prometheus.CounterVec
	cliAttemptsTotal    *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			queueSize: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "queue_size",
					Help: "Current queue size by lane.",
				},
				[]string{"lane"},
			),
			enqueueTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "enqueue_total",
					Help: "Total enqueue operations by lane.",
				},
				[]string{"lane"},
			),
			dequeueTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "dequeue_total",
					Help: "Total dequeue/completion operations by lane and status.",
				},
				[]string{"lane", "status"},
			),
			taskDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "task_duration_seconds",
					Help:    "Task execution duration in seconds by lane.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"lane"},
			),
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "active_sessions",
					Help: "Current live session count.",
				},
			),
			sessionEvictions: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "session_evictions_total",
					Help: "Total session evictions by reason.",
				},
				[]string{"reason"},
			),
			trimmedMessages: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "session_trimmed_messages_total",
					Help: "Total messages dropped by history trimming.",
				},
			),
			ownershipRejects: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "session_ownership_rejects_total",
					Help: "Total session requests rejected for identity mismatch.",
				},
			),
			turnTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "turn_total",
					Help: "Total turns by backend and status.",
				},
				[]string{"backend", "status"},
			),
			turnDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "turn_duration_seconds",
					Help:    "Turn duration in seconds by backend.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"backend"},
			),
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_execution_total",
					Help: "Total tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "tool_execution_duration_seconds",
					Help:    "Tool execution duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			permissionDecisions: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "permission_decisions_total",
					Help: "Total permission replies by kind and decision.",
				},
				[]string{"kind", "decision"},
			),
			cliAttemptsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "cli_attempts_total",
					Help: "Total CLI backend attempts by outcome.",
				},
				[]string{"outcome"},
			),
		}

		prometheus.MustRegister(
			m.queueSize,
			m.enqueueTotal,
			m.dequeueTotal,
			m.taskDuration,
			m.activeSessions,
			m.sessionEvictions,
			m.trimmedMessages,
			m.ownershipRejects,
			m.turnTotal,
			m.turnDuration,
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.permissionDecisions,
			m.cliAttemptsTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordQueueEnqueue(lane string, queueSize int) {
	m := getMetrics()
	m.enqueueTotal.WithLabelValues(lane).Inc()
	m.queueSize.WithLabelValues(lane).Set(float64(queueSize))
}

func SetQueueSize(lane string, queueSize int) {
	m := getMetrics()
	m.queueSize.WithLabelValues(lane).Set(float64(queueSize))
}

func RecordQueueCompletion(lane string, duration time.Duration, success bool, queueSize int) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.dequeueTotal.WithLabelValues(lane, status).Inc()
	m.taskDuration.WithLabelValues(lane).Observe(duration.Seconds())
	m.queueSize.WithLabelValues(lane).Set(float64(queueSize))
}

func SetActiveSessions(count int) {
	m := getMetrics()
	m.activeSessions.Set(float64(count))
}

func RecordSessionEviction(reason string, count int) {
	m := getMetrics()
	m.sessionEvictions.WithLabelValues(reason).Add(float64(count))
}

func RecordTrimmedMessages(count int) {
	m := getMetrics()
	m.trimmedMessages.Add(float64(count))
}

func RecordOwnershipReject() {
	m := getMetrics()
	m.ownershipRejects.Inc()
}

func RecordTurn(backend string, duration time.Duration, err error) {
	m := getMetrics()
	status := "success"
	if err != nil {
		status = "error"
	}
	m.turnTotal.WithLabelValues(backend, status).Inc()
	m.turnDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

func RecordToolExecution(toolName string, duration time.Duration, err error) {
	m := getMetrics()
	status := "success"
	if err != nil {
		status = "error"
	}
	m.toolExecutionTotal.WithLabelValues(toolName, status).Inc()
	m.toolExecutionDuration.WithLabelValues(toolName).Observe(duration.Seconds())
}

func RecordPermissionDecision(kind, decision string) {
	m := getMetrics()
	m.permissionDecisions.WithLabelValues(kind, decision).Inc()
}

func RecordCLIAttempt(outcome string) {
	m := getMetrics()
	m.cliAttemptsTotal.WithLabelValues(outcome).Inc()
}
