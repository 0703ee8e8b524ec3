package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Decision outcome labels.
const (
	OutcomeAllowed  = "allowed"
	OutcomeBlocked  = "blocked"
	OutcomeAnomaly  = "anomaly"
	OutcomeRateCap  = "rate_cap"
	OutcomeFailOpen = "fail_open"
)

var (
	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "decisions_total",
			Help:      "Total number of decisions produced, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	decideDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sentinel",
			Name:      "decide_seconds",
			Help:      "Decision latency in seconds.",
			Buckets:   []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05},
		},
	)

	blockedSources = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sentinel",
			Name:      "blocked_sources",
			Help:      "Number of sources currently blocked.",
		},
	)

	internalErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "internal_errors_total",
			Help:      "Internal scorer/registry faults handled by failing open.",
		},
	)

	eventsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "events_dropped_total",
			Help:      "Block events dropped because the publisher queue was full.",
		},
	)
)

// Register attaches sentinel collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		decisionsTotal,
		decideDurationSeconds,
		blockedSources,
		internalErrorsTotal,
		eventsDroppedTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveDecision records a decision's latency and outcome label.
func ObserveDecision(duration time.Duration, outcome string) {
	decisionsTotal.WithLabelValues(outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	decideDurationSeconds.Observe(duration.Seconds())
}

// SetBlockedSources updates the blocked-source gauge.
func SetBlockedSources(n int) {
	blockedSources.Set(float64(n))
}

// IncInternalError counts a fault the engine absorbed by failing open.
func IncInternalError() {
	internalErrorsTotal.Inc()
}

// IncEventDropped counts a block event lost to backpressure.
func IncEventDropped() {
	eventsDroppedTotal.Inc()
}
