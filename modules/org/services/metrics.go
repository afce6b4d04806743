package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var orgWriteConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "agency",
	Subsystem: "org",
	Name:      "write_conflicts_total",
	Help:      "Total number of hierarchy write conflicts broken down by kind.",
}, []string{"kind"})

func recordWriteConflict(kind string) {
	if kind == "" {
		kind = "other"
	}
	orgWriteConflicts.WithLabelValues(kind).Inc()
}
