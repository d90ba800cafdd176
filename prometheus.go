package idxstore

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/idxstore/storagepart"
)

// PrometheusMetricsCollector exports metrics to Prometheus.
type PrometheusMetricsCollector struct {
	opLatency *prometheus.HistogramVec
	parts     *prometheus.CounterVec
	bytes     *prometheus.CounterVec
	decodes   *prometheus.CounterVec
}

var _ MetricsCollector = (*PrometheusMetricsCollector)(nil)

// NewPrometheusMetricsCollector creates the collector and registers its
// metrics with reg. A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusMetricsCollector(reg prometheus.Registerer, namespace string) (*PrometheusMetricsCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &PrometheusMetricsCollector{
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_latency_seconds",
			Help:      "Latency of commit, encode and migration operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "status"}),
		parts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parts_written_total",
			Help:      "Storage parts appended to the store",
		}, []string{"op"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_written_total",
			Help:      "Encoded bytes appended to the store",
		}, []string{"op"}),
		decodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parts_decoded_total",
			Help:      "Storage parts decoded by type and format version",
		}, []string{"type", "version", "status"}),
	}
	for _, col := range []prometheus.Collector{c.opLatency, c.parts, c.bytes, c.decodes} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordCommit implements MetricsCollector.
func (c *PrometheusMetricsCollector) RecordCommit(parts int, bytes int64, d time.Duration, err error) {
	c.opLatency.WithLabelValues("commit", status(err)).Observe(d.Seconds())
	if err == nil {
		c.parts.WithLabelValues("commit").Add(float64(parts))
		c.bytes.WithLabelValues("commit").Add(float64(bytes))
	}
}

// RecordEncode implements MetricsCollector.
func (c *PrometheusMetricsCollector) RecordEncode(_ storagepart.Type, _ int, d time.Duration, err error) {
	c.opLatency.WithLabelValues("encode", status(err)).Observe(d.Seconds())
}

// RecordDecode implements MetricsCollector.
func (c *PrometheusMetricsCollector) RecordDecode(t storagepart.Type, version uint16, _ time.Duration, err error) {
	c.decodes.WithLabelValues(t.String(), strconv.Itoa(int(version)), status(err)).Inc()
}

// RecordMigration implements MetricsCollector.
func (c *PrometheusMetricsCollector) RecordMigration(parts int, bytes int64, d time.Duration, err error) {
	c.opLatency.WithLabelValues("migration", status(err)).Observe(d.Seconds())
	if err == nil {
		c.parts.WithLabelValues("migration").Add(float64(parts))
		c.bytes.WithLabelValues("migration").Add(float64(bytes))
	}
}
