package storage

import (
	"github.com/yndnr/usagestats-go/internal/core/domain"
	"github.com/yndnr/usagestats-go/internal/storage/bucket"
)

// CheckinFunc receives one daily snapshot during checkin. Returning false
// aborts the checkin.
//
// The callback runs with the database lock held. It must not call back into
// the Database; the lock is not reentrant and such a call deadlocks.
type CheckinFunc func(s *domain.Snapshot) bool

// CheckinDailyFiles hands every daily bucket that is not yet checked in,
// except the newest, to fn and then marks them as checked in.
//
// If fn rejects any bucket, or one cannot be read, nothing is marked and the
// result is false. Marking is best effort: a failed rename stops further
// renames but the checkin still succeeds.
func (db *Database) CheckinDailyFiles(fn CheckinFunc) bool {
	db.mu.Lock()
	defer db.mu.Unlock()

	idx := db.indexes[domain.Daily]
	count := idx.Size()

	lastCheckin := -1
	for i := 0; i < count-1; i++ {
		if idx.ValueAt(i).CheckedIn() {
			lastCheckin = i
		}
	}
	start := lastCheckin + 1
	if start >= count-1 {
		return true
	}

	for i := start; i < count-1; i++ {
		s, err := db.readLocked(idx.ValueAt(i))
		if err != nil {
			db.logger.Error("failed to check in", "begin_time", idx.KeyAt(i), "error", err)
			return false
		}
		if !fn(s) {
			return false
		}
	}

	for i := start; i < count-1; i++ {
		f := idx.ValueAt(i)
		if err := f.Rename(f.Name() + bucket.CheckedInSuffix); err != nil {
			db.metrics.renameFailures.Inc()
			db.logger.Error("failed to mark bucket as checked in", "path", f.Path(), "error", err)
			return true
		}
		idx.SetValueAt(i, f)
	}
	return true
}
