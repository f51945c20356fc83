package tcpconn

import (
	"github.com/prometheus/client_golang/prometheus"
)

var writeBatchDesc = prometheus.NewDesc(
	prometheus.BuildFQName("lwdelta", "tcpconn", "write_batch_bytes"),
	"Moving average of the bytes a link writes at once",
	[]string{"link"}, nil,
)

type batchCollector struct {
	s *Server
}

func (c batchCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- writeBatchDesc
}

func (c batchCollector) Collect(ch chan<- prometheus.Metric) {
	for link, v := range c.s.net.WriteBatches() {
		ch <- prometheus.MustNewConstMetric(writeBatchDesc, prometheus.GaugeValue, v, link)
	}
}

// Collector reports the write batches of the links of s.
func (s *Server) Collector() prometheus.Collector {
	return batchCollector{s: s}
}
