package storage

import "github.com/yndnr/usagestats-go/internal/storage/bucket"

// migrateLocked upgrades the on-disk layout from fromVersion to
// CurrentVersion. Versions before 2 used an incompatible bucket format and
// are discarded.
func (db *Database) migrateLocked(fromVersion int) {
	if fromVersion >= 2 {
		return
	}

	db.logger.Warn("deleting all usage stats buckets", "from_version", fromVersion)
	for _, dir := range db.dirs {
		if err := bucket.RemoveAll(dir); err != nil {
			db.logger.Error("failed to clear bucket directory", "dir", dir, "error", err)
		}
	}
}
