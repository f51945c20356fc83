package replicator

import (
	"github.com/prometheus/client_golang/prometheus"
)

var SuppressedCount = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lwdelta",
	Subsystem: "replicator",
	Name:      "suppressed_notifications",
}, []string{"kind"})

var ApplyFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lwdelta",
	Subsystem: "replicator",
	Name:      "apply_failures",
}, []string{"kind"})

var ApplyDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "lwdelta",
	Subsystem: "replicator",
	Name:      "apply_duration_ms",
	Buckets:   []float64{0, 0.1, 0.5, 1, 5, 10, 50, 100, 500},
}, []string{"scope"})

var PartitionCount = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "lwdelta",
	Subsystem: "replicator",
	Name:      "partitions",
})

// Collectors lists the metrics of this package for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{SuppressedCount, ApplyFailures, ApplyDuration, PartitionCount}
}
