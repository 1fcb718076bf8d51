// Package metrics exports approval engine counters to Prometheus.
package metrics

import (
	"errors"
	"sync"
	"time"

	"freightdesk/internal/workflow"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	transitionsTotal   *prometheus.CounterVec
	transitionDuration *prometheus.HistogramVec
	sweepRunsTotal     *prometheus.CounterVec
	sideEffectFailures *prometheus.CounterVec
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		transitionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "approval",
			Name:      "transitions_total",
			Help:      "Total number of approval transitions attempted, by outcome.",
		}, []string{"action", "request_type", "result"}),
		transitionDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "approval",
			Name:      "transition_duration_seconds",
			Help:      "Latency of approval transitions including the database transaction.",
			Buckets:   []float64{0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1, 2},
		}, []string{"action"}),
		sweepRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "approval",
			Name:      "sweep_runs_total",
			Help:      "Total number of SLA expiry sweeps.",
		}, []string{"result"}),
		sideEffectFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "approval",
			Name:      "side_effect_failures_total",
			Help:      "Side effects that failed after a committed transition.",
		}, []string{"effect"}),
	}
})

// Result labels a transition outcome by its error class.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, workflow.ErrNotFound):
		return "not_found"
	case errors.Is(err, workflow.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, workflow.ErrForbidden):
		return "forbidden"
	case errors.Is(err, workflow.ErrValidation):
		return "validation"
	case errors.Is(err, workflow.ErrConfiguration):
		return "configuration"
	default:
		return "error"
	}
}

// ObserveTransition records one transition attempt.
func ObserveTransition(action workflow.Action, requestType workflow.RequestType, err error, started time.Time) {
	m := metricsSingleton()
	m.transitionsTotal.WithLabelValues(string(action), string(requestType), Result(err)).Inc()
	m.transitionDuration.WithLabelValues(string(action)).Observe(time.Since(started).Seconds())
}

func ObserveSweep(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metricsSingleton().sweepRunsTotal.WithLabelValues(result).Inc()
}

func SideEffectFailed(effect string) {
	metricsSingleton().sideEffectFailures.WithLabelValues(effect).Inc()
}

// TransitionCount returns the counter for one label set; used by tests and the debug log.
func TransitionCount(action workflow.Action, requestType workflow.RequestType, result string) prometheus.Counter {
	return metricsSingleton().transitionsTotal.WithLabelValues(string(action), string(requestType), result)
}
