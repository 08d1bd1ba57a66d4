package storage

import (
	"github.com/yndnr/usagestats-go/internal/core/domain"
	"github.com/yndnr/usagestats-go/internal/storage/bucket"
)

// OnTimeChanged moves every bucket by delta milliseconds after a wall clock
// change. Buckets that would start before the epoch are deleted. Each
// surviving bucket is renamed to its new begin time, keeping the checked-in
// suffix, and its stored timestamps are shifted. The indexes are rebuilt
// from disk afterwards.
//
// A bucket that cannot be renamed keeps its old name and content and is
// picked up at its old key by the rebuild.
func (db *Database) OnTimeChanged(delta int64) {
	db.mu.Lock()
	defer db.mu.Unlock()

	deleted, moved := 0, 0
	for _, g := range domain.Granularities {
		idx := db.indexes[g]
		n := idx.Size()
		for j := 0; j < n; j++ {
			// Walk against the direction of the shift so a bucket never
			// lands on a name still held by a bucket yet to move.
			i := j
			if delta > 0 {
				i = n - 1 - j
			}
			f := idx.ValueAt(i)
			newKey := idx.KeyAt(i) + delta
			if newKey < 0 {
				if err := f.Delete(); err != nil {
					db.logger.Warn("failed to delete bucket", "path", f.Path(), "error", err)
				}
				deleted++
				continue
			}
			if db.moveLocked(f, newKey, delta) {
				moved++
			}
		}
		idx.Clear()
	}

	db.logger.Info("time changed",
		"delta_ms", delta,
		"files_deleted", deleted,
		"files_moved", moved)
	db.reindexLocked()
}

func (db *Database) moveLocked(f *bucket.File, newKey, delta int64) bool {
	_ = f.Touch()
	if err := f.Rename(bucket.FileName(newKey, f.CheckedIn())); err != nil {
		db.metrics.renameFailures.Inc()
		db.logger.Warn("failed to rename bucket", "path", f.Path(), "error", err)
		return false
	}
	if delta == 0 {
		return true
	}

	s, err := db.readLocked(f)
	if err != nil {
		db.logger.Warn("failed to shift bucket", "path", f.Path(), "error", err)
		return true
	}
	s.Shift(delta)
	data, err := db.cfg.Codec.Encode(s)
	if err == nil {
		err = f.Write(data)
	}
	if err != nil {
		db.logger.Warn("failed to shift bucket", "path", f.Path(), "error", err)
	}
	return true
}
