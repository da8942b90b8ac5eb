package workflow

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/iliyamo/mindwell/internal/apperr"
)

var (
	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_transitions_total",
			Help: "State transition attempts by machine, edge and outcome",
		},
		[]string{"machine", "from", "to", "outcome"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "workflow_operation_duration_seconds",
			Help:    "Duration of workflow engine operations",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2},
		},
		[]string{"operation"},
	)
)

// outcome labels an operation result for metrics.
func outcome(err error) string {
	switch k := apperr.Kind(err); {
	case err == nil:
		return "ok"
	case errors.Is(k, apperr.ErrPermissionDenied):
		return "denied"
	case errors.Is(k, apperr.ErrInvalidTransition):
		return "invalid"
	case errors.Is(k, apperr.ErrNotFound):
		return "not_found"
	case errors.Is(k, apperr.ErrConflict):
		return "conflict"
	case errors.Is(k, apperr.ErrValidation):
		return "validation"
	default:
		return "error"
	}
}

func observe(op string, start time.Time) {
	operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
