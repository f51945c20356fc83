package repository

import (
	"github.com/prometheus/client_golang/prometheus"
)

var CommandCount = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lwdelta",
	Subsystem: "repository",
	Name:      "commands",
}, []string{"kind", "result"})

var QueryCount = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lwdelta",
	Subsystem: "repository",
	Name:      "queries",
}, []string{"kind"})

var EventsSent = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "lwdelta",
	Subsystem: "repository",
	Name:      "events_sent",
})

var SendFailures = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "lwdelta",
	Subsystem: "repository",
	Name:      "send_failures",
})

var ClientCount = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "lwdelta",
	Subsystem: "repository",
	Name:      "clients",
})

var CommandDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
	Namespace: "lwdelta",
	Subsystem: "repository",
	Name:      "command_duration_ms",
	Buckets:   []float64{0, 0.1, 0.5, 1, 5, 10, 50, 100, 500, 1000},
})

func Collectors() []prometheus.Collector {
	return []prometheus.Collector{CommandCount, QueryCount, EventsSent, SendFailures, ClientCount, CommandDuration}
}
