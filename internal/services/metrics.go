package services

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	engineInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ats_engine_invocations_total",
			Help: "Total number of scoring engine invocations by outcome",
		},
		[]string{"engine", "outcome"},
	)

	engineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ats_engine_invocation_duration_seconds",
			Help:    "Duration of scoring engine invocations in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 180, 300},
		},
		[]string{"engine"},
	)

	reportLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ats_report_lookups_total",
			Help: "Report resolution attempts by the location that served them",
		},
		[]string{"outcome"},
	)

	reportMirrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ats_report_mirrors_total",
			Help: "Best-effort copies of reports into the served directory",
		},
		[]string{"outcome"},
	)

	batchDocuments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ats_batch_documents_total",
			Help: "Documents processed by batch analyses",
		},
		[]string{"outcome"},
	)
)

// outcomeLabel maps an engine error onto a low-cardinality label.
func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrEngineNotFound):
		return "engine_not_found"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrMalformedOutput):
		return "malformed_output"
	case errors.Is(err, ErrEngineRejected):
		return "rejected"
	default:
		return "process_error"
	}
}
