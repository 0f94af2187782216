package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	xpAwardedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "progression_service",
		Subsystem: "ledger",
		Name:      "xp_awarded_total",
		Help:      "XP points awarded, labeled by source (workout, wager, streak kind).",
	}, []string{"source"})

	milestoneCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "progression_service",
		Subsystem: "streak",
		Name:      "milestones_granted_total",
		Help:      "Streak milestone bonuses granted, labeled by streak kind.",
	}, []string{"kind"})

	persistFailureCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "progression_service",
		Subsystem: "ledger",
		Name:      "persist_failures_total",
		Help:      "Background write-throughs that failed and left the session degraded.",
	})

	totalPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "progression_service",
		Subsystem: "ledger",
		Name:      "last_total_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent XP total persisted to Postgres.",
	})
)

func init() {
	prometheus.MustRegister(xpAwardedCounter, milestoneCounter, persistFailureCounter, totalPersistGauge)
}

// RecordXPAwarded counts awarded points by source.
func RecordXPAwarded(source string, amount int) {
	if amount <= 0 {
		return
	}
	xpAwardedCounter.WithLabelValues(source).Add(float64(amount))
}

// RecordMilestoneGranted counts milestone bonus grants.
func RecordMilestoneGranted(kind string) {
	milestoneCounter.WithLabelValues(kind).Inc()
}

// RecordPersistFailure counts a failed background write-through.
func RecordPersistFailure() {
	persistFailureCounter.Inc()
}

// RecordTotalPersisted updates the persistence watermark gauge.
func RecordTotalPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	totalPersistGauge.Set(float64(ts.Unix()))
}
