package storage

import "github.com/prometheus/client_golang/prometheus"

type dbMetrics struct {
	decodeFailures prometheus.Counter
	renameFailures prometheus.Counter
	pruned         prometheus.Counter
	redacted       prometheus.Counter
	backupBytes    prometheus.Counter
}

func newDBMetrics() *dbMetrics {
	return &dbMetrics{
		decodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "usagestats",
			Name:      "bucket_read_failures_total",
			Help:      "Buckets that could not be read or decoded.",
		}),
		renameFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "usagestats",
			Name:      "bucket_rename_failures_total",
			Help:      "Bucket renames that failed during checkin or time changes.",
		}),
		pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "usagestats",
			Name:      "pruned_buckets_total",
			Help:      "Buckets deleted by retention.",
		}),
		redacted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "usagestats",
			Name:      "redacted_buckets_total",
			Help:      "Buckets whose chooser counts were cleared by retention.",
		}),
		backupBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "usagestats",
			Name:      "backup_payload_bytes_total",
			Help:      "Bytes of backup payload produced.",
		}),
	}
}

// RegisterMetrics registers the database counters with reg.
func (db *Database) RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		db.metrics.decodeFailures,
		db.metrics.renameFailures,
		db.metrics.pruned,
		db.metrics.redacted,
		db.metrics.backupBytes,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
