package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "olympia"

// Decision results.
const (
	DecisionApplied   = "applied"
	DecisionDuplicate = "duplicate"
	DecisionRejected  = "rejected"
)

var (
	decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "decisions_total",
		Help:      "Host decisions processed, by round type and result.",
	}, []string{"round_type", "outcome", "result"})

	transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_transitions_total",
		Help:      "Session state machine transitions, by event and result.",
	}, []string{"event", "result"})

	packageResets = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "package_resets_total",
		Help:      "Package reset batches, by result.",
	}, []string{"result"})

	resetRows = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "package_reset_rows",
		Help:      "Round questions per package reset batch.",
		Buckets:   prometheus.LinearBuckets(1, 2, 8),
	})
)

func ObserveDecision(roundType, outcome, result string) {
	decisions.WithLabelValues(roundType, outcome, result).Inc()
}

func ObserveTransition(event string, err error) {
	transitions.WithLabelValues(event, resultOf(err)).Inc()
}

func ObservePackageReset(rows int, err error) {
	packageResets.WithLabelValues(resultOf(err)).Inc()
	if err == nil {
		resetRows.Observe(float64(rows))
	}
}

func resultOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
