package storage

import (
	"path/filepath"

	"github.com/yndnr/usagestats-go/internal/core/domain"
	"github.com/yndnr/usagestats-go/internal/storage/bucket"
	"github.com/yndnr/usagestats-go/pkg/unixcal"
)

// retention is how long buckets of each granularity are kept.
var retention = [domain.NumGranularities]struct {
	unit   unixcal.Unit
	amount int
}{
	domain.Daily:   {unixcal.Day, 7},
	domain.Weekly:  {unixcal.Week, 4},
	domain.Monthly: {unixcal.Month, 6},
	domain.Yearly:  {unixcal.Year, 3},
}

// PruneResult reports what Prune changed.
type PruneResult struct {
	Deleted  int `json:"deleted"`
	Redacted int `json:"redacted"`
}

// Cutoff returns the begin time before which buckets of g are deleted.
func Cutoff(g domain.Granularity, now int64) int64 {
	r := retention[g]
	return unixcal.Subtract(now, r.unit, r.amount)
}

// Prune deletes buckets older than their granularity's retention and
// clears the chooser counts of the remaining buckets older than the
// selection log retention. The indexes are rebuilt afterwards.
//
// Begin times are read from the files. A file that cannot be read is keyed
// by the begin time in its name, so a healthy bucket read with the wrong key
// ages out like any other; only a file whose name does not parse either
// counts as beginning at 0 and is deleted.
func (db *Database) Prune(now int64) PruneResult {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.pruneLocked(now)
}

func (db *Database) pruneLocked(now int64) PruneResult {
	var res PruneResult

	for g := domain.Yearly; g >= domain.Daily; g-- {
		res.Deleted += db.pruneOlderThanLocked(g, Cutoff(g, now))
	}

	selectionCutoff := unixcal.Subtract(now, unixcal.Day, db.selectionRetentionDays)
	for _, g := range domain.Granularities {
		res.Redacted += db.redactOlderThanLocked(g, selectionCutoff)
	}

	db.metrics.pruned.Add(float64(res.Deleted))
	db.metrics.redacted.Add(float64(res.Redacted))
	db.reindexLocked()

	db.logger.Debug("pruned usage stats",
		"now", now,
		"deleted", res.Deleted,
		"redacted", res.Redacted)
	return res
}

// listKeyedLocked opens every bucket file of g with its stored begin time.
func (db *Database) listKeyedLocked(g domain.Granularity, fn func(f *bucket.File, beginTime int64)) {
	paths, err := bucket.List(db.dirs[g])
	if err != nil {
		db.logger.Error("failed to list bucket directory", "dir", db.dirs[g], "error", err)
		return
	}
	for _, path := range paths {
		f := bucket.Open(path, db.cfg.Cipher)
		beginTime, err := db.peekLocked(f)
		if err != nil {
			beginTime = nameKey(path)
			db.logger.Warn("bucket unreadable, keyed by file name",
				"path", path,
				"begin_time", beginTime,
				"error", err)
		}
		fn(f, beginTime)
	}
}

// nameKey returns the begin time encoded in a bucket file name, or 0.
func nameKey(path string) int64 {
	beginTime, _, err := bucket.ParseName(filepath.Base(path))
	if err != nil {
		return 0
	}
	return beginTime
}

func (db *Database) pruneOlderThanLocked(g domain.Granularity, expiry int64) int {
	deleted := 0
	db.listKeyedLocked(g, func(f *bucket.File, beginTime int64) {
		if beginTime >= expiry {
			return
		}
		if err := f.Delete(); err != nil {
			db.logger.Warn("failed to prune bucket", "path", f.Path(), "error", err)
			return
		}
		deleted++
		db.logger.Debug("pruned bucket",
			"path", f.Path(),
			"begin_time", beginTime,
			"expiry", expiry)
	})
	return deleted
}

func (db *Database) redactOlderThanLocked(g domain.Granularity, expiry int64) int {
	redacted := 0
	db.listKeyedLocked(g, func(f *bucket.File, beginTime int64) {
		if beginTime >= expiry {
			return
		}
		s, err := db.readLocked(f)
		if err != nil {
			db.logger.Error("failed to delete chooser counts", "path", f.Path(), "error", err)
			return
		}
		if !s.HasChooserCounts() {
			return
		}
		s.ClearChooserCounts()
		data, err := db.cfg.Codec.Encode(s)
		if err == nil {
			err = f.Write(data)
		}
		if err != nil {
			db.logger.Error("failed to delete chooser counts", "path", f.Path(), "error", err)
			return
		}
		redacted++
	})
	return redacted
}
