package metric

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/usagestats-go/internal/storage"
)

// StatsSource is implemented by *storage.Database.
type StatsSource interface {
	Stats() storage.Stats
}

// StatsCollector reports bucket statistics at scrape time.
type StatsCollector struct {
	src StatsSource

	buckets   *prometheus.Desc
	checkedIn *prometheus.Desc
	oldest    *prometheus.Desc
	newest    *prometheus.Desc
	schema    *prometheus.Desc
}

// NewStatsCollector creates a collector over src.
func NewStatsCollector(src StatsSource) *StatsCollector {
	labels := []string{"granularity"}
	return &StatsCollector{
		src: src,
		buckets: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "buckets"),
			"Number of bucket files.", labels, nil),
		checkedIn: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "checked_in_buckets"),
			"Number of checked-in bucket files.", labels, nil),
		oldest: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "oldest_bucket_timestamp_seconds"),
			"Begin time of the oldest bucket.", labels, nil),
		newest: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "newest_bucket_timestamp_seconds"),
			"Begin time of the newest bucket.", labels, nil),
		schema: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "schema_version"),
			"On-disk schema version.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.buckets
	ch <- c.checkedIn
	ch <- c.oldest
	ch <- c.newest
	ch <- c.schema
}

// Collect implements prometheus.Collector. Empty granularities report no
// timestamps.
func (c *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.src.Stats()
	ch <- prometheus.MustNewConstMetric(c.schema, prometheus.GaugeValue, float64(st.SchemaVersion))
	for _, g := range st.Granularities {
		ch <- prometheus.MustNewConstMetric(c.buckets, prometheus.GaugeValue, float64(g.Buckets), g.Granularity)
		ch <- prometheus.MustNewConstMetric(c.checkedIn, prometheus.GaugeValue, float64(g.CheckedIn), g.Granularity)
		if g.Buckets == 0 {
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.oldest, prometheus.GaugeValue, float64(g.Oldest)/1000, g.Granularity)
		ch <- prometheus.MustNewConstMetric(c.newest, prometheus.GaugeValue, float64(g.Newest)/1000, g.Granularity)
	}
}
