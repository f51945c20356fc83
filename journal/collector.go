package journal

import (
	"github.com/cockroachdb/pebble"
	"github.com/prometheus/client_golang/prometheus"
)

var AppendCount = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "lwdelta",
	Subsystem: "journal",
	Name:      "appended_events",
})

type storeMetric struct {
	desc  *prometheus.Desc
	kind  prometheus.ValueType
	value func(m *pebble.Metrics) float64
}

func newStoreMetric(name, help string, kind prometheus.ValueType, value func(m *pebble.Metrics) float64) storeMetric {
	return storeMetric{
		desc:  prometheus.NewDesc(prometheus.BuildFQName("lwdelta", "journal", name), help, nil, nil),
		kind:  kind,
		value: value,
	}
}

// StoreCollector exposes the health of the pebble store behind a journal:
// compaction backlog, memtables and the WAL.
type StoreCollector struct {
	db      *pebble.DB
	metrics []storeMetric
}

func NewStoreCollector(db *pebble.DB) *StoreCollector {
	return &StoreCollector{db: db, metrics: []storeMetric{
		newStoreMetric("compactions_total", "Compactions run by the store",
			prometheus.CounterValue, func(m *pebble.Metrics) float64 { return float64(m.Compact.Count) }),
		newStoreMetric("compaction_debt_bytes", "Bytes left to compact to settle the LSM",
			prometheus.GaugeValue, func(m *pebble.Metrics) float64 { return float64(m.Compact.EstimatedDebt) }),
		newStoreMetric("compaction_in_progress_bytes", "Bytes being compacted right now",
			prometheus.GaugeValue, func(m *pebble.Metrics) float64 { return float64(m.Compact.InProgressBytes) }),
		newStoreMetric("memtable_bytes", "Size of the live memtables",
			prometheus.GaugeValue, func(m *pebble.Metrics) float64 { return float64(m.MemTable.Size) }),
		newStoreMetric("memtables", "Number of live memtables",
			prometheus.GaugeValue, func(m *pebble.Metrics) float64 { return float64(m.MemTable.Count) }),
		newStoreMetric("wal_files", "Live WAL files",
			prometheus.GaugeValue, func(m *pebble.Metrics) float64 { return float64(m.WAL.Files) }),
		newStoreMetric("wal_bytes", "Size of live WAL data",
			prometheus.GaugeValue, func(m *pebble.Metrics) float64 { return float64(m.WAL.Size) }),
		newStoreMetric("wal_written_bytes_total", "Physical bytes written to the WAL",
			prometheus.CounterValue, func(m *pebble.Metrics) float64 { return float64(m.WAL.BytesWritten) }),
	}}
}

func (c *StoreCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.metrics {
		ch <- m.desc
	}
}

func (c *StoreCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.db.Metrics()
	for _, m := range c.metrics {
		ch <- prometheus.MustNewConstMetric(m.desc, m.kind, m.value(stats))
	}
}

// Collectors lists the metrics of j for registration.
func (j *Journal) Collectors() []prometheus.Collector {
	return []prometheus.Collector{AppendCount, NewStoreCollector(j.db)}
}
