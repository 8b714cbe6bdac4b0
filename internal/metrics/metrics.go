package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "darwin"

var (
	clusterDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cluster_decisions_total",
			Help:      "Clustering decisions, partitioned by action (attached, triage, created).",
		},
		[]string{"action"},
	)

	classificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Topic classifications, partitioned by category. Failed calls are labelled error.",
		},
		[]string{"category"},
	)

	fixAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fix_attempts_total",
			Help:      "Fix pipeline runs, partitioned by kind (initial, remediate) and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	prEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pr_events_total",
			Help:      "Pull request webhook events handled, partitioned by normalized event.",
		},
		[]string{"event"},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Items waiting in each work queue.",
		},
		[]string{"queue"},
	)

	stageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Latency of pipeline stages in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"stage"},
	)
)

// Register attaches darwin collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		clusterDecisionsTotal,
		classificationsTotal,
		fixAttemptsTotal,
		prEventsTotal,
		queueDepth,
		stageDurationSeconds,
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

func ClusterDecision(action string) {
	clusterDecisionsTotal.WithLabelValues(action).Inc()
}

func Classification(category string) {
	classificationsTotal.WithLabelValues(category).Inc()
}

func FixAttempt(kind, outcome string) {
	fixAttemptsTotal.WithLabelValues(kind, outcome).Inc()
}

func PREvent(event string) {
	prEventsTotal.WithLabelValues(event).Inc()
}

func QueueDepth(queue string, depth int64) {
	queueDepth.WithLabelValues(queue).Set(float64(depth))
}

// ObserveStage records how long a stage took since start.
func ObserveStage(stage string, start time.Time) {
	d := time.Since(start)
	if d < 0 {
		d = 0
	}
	stageDurationSeconds.WithLabelValues(stage).Observe(d.Seconds())
}
