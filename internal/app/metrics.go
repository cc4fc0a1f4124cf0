package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricAssignments = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "annotation",
		Name:      "assignments_total",
		Help:      "Items assigned to users by the assignment engine.",
	})
	metricSubmissions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "annotation",
		Name:      "submissions_total",
		Help:      "Annotation submissions accepted by the service.",
	})
	metricPhaseAdvances = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "annotation",
		Name:      "phase_advances_total",
		Help:      "Phase or page transitions across all sessions.",
	})
	metricActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "annotation",
		Name:      "active_sessions",
		Help:      "Sessions currently held by the manager.",
	})
)
