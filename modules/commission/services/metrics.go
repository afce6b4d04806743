package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var splitWriteConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "agency",
	Subsystem: "commission",
	Name:      "write_conflicts_total",
	Help:      "Total number of commission split write conflicts broken down by kind.",
}, []string{"kind"})

func recordWriteConflict(kind string) {
	if kind == "" {
		kind = "other"
	}
	splitWriteConflicts.WithLabelValues(kind).Inc()
}
