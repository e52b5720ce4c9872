package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CyclesTotal counts scoring cycles by outcome
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "screener_cycles_total",
		Help: "Total number of scoring cycles by outcome",
	}, []string{"outcome"})

	// CycleDurationSeconds is the histogram of cycle wall time
	CycleDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "screener_cycle_duration_seconds",
		Help:    "Histogram of scoring cycle duration in seconds",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	PairsFilteredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "screener_pairs_filtered_total",
		Help: "Total number of job-candidate pairs removed by the similarity filter",
	})

	PairsForceIncludedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "screener_pairs_force_included_total",
		Help: "Total number of pairs force-included by the all-filtered safeguard",
	})

	// PairAnalysesTotal counts scoring calls by result (ok, failed, quota)
	PairAnalysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "screener_pair_analyses_total",
		Help: "Total number of pair analyses by result",
	}, []string{"result"})

	EscalationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "screener_escalations_total",
		Help: "Total number of borderline escalations by materiality",
	}, []string{"material"})

	GateAdjustmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "screener_gate_adjustments_total",
		Help: "Total number of deterministic gate applications",
	}, []string{"gate"})

	BreakerTripsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "screener_breaker_trips_total",
		Help: "Total number of quota breaker trips",
	})

	RecoveredRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "screener_recovered_requests_total",
		Help: "Total number of requests re-queued by recovery sweeps",
	}, []string{"sweep"})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "screener_notifications_total",
		Help: "Total number of candidate notifications by result",
	}, []string{"result"})
)
