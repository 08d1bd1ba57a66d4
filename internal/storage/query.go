package storage

import (
	"math"

	"github.com/yndnr/usagestats-go/internal/core/domain"
)

// Combiner folds one snapshot into the query results. lastInRange is true
// for the final bucket of the range.
//
// The combiner runs with the database lock held. It must not call back into
// the Database; the lock is not reentrant and such a call deadlocks.
type Combiner[T any] func(s *domain.Snapshot, lastInRange bool, results *[]T)

// QueryRange feeds every bucket of g overlapping [beginTime, endTime) to
// combine, oldest first, and returns the accumulated results.
//
// It returns nil when the range is empty or no bucket starts before
// endTime. When beginTime precedes all data the scan starts at the oldest
// bucket. Buckets that cannot be read are logged and skipped.
func QueryRange[T any](db *Database, g domain.Granularity, beginTime, endTime int64, combine Combiner[T]) ([]T, error) {
	if err := checkGranularity(g); err != nil {
		return nil, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if endTime <= beginTime {
		return nil, nil
	}

	idx := db.indexes[g]
	startIndex := idx.ClosestIndexOnOrBefore(beginTime)
	if startIndex < 0 {
		startIndex = 0
	}
	endIndex := idx.ClosestIndexOnOrBefore(endTime)
	if endIndex < 0 {
		return nil, nil
	}
	// A bucket starting exactly at endTime holds no data before it.
	if idx.KeyAt(endIndex) == endTime {
		endIndex--
		if endIndex < 0 {
			return nil, nil
		}
	}

	results := make([]T, 0, endIndex-startIndex+1)
	for i := startIndex; i <= endIndex; i++ {
		s, err := db.readLocked(idx.ValueAt(i))
		if err != nil {
			db.logger.Error("failed to read bucket", "granularity", g.String(), "begin_time", idx.KeyAt(i), "error", err)
			continue
		}
		if beginTime < s.EndTime {
			combine(s, i == endIndex, &results)
		}
	}
	return results, nil
}

// FindBestFitBucket returns the granularity whose latest bucket at or
// before beginTime is closest to it, or -1 when no granularity has one.
// Granularities are scanned from coarsest to finest and only a strictly
// smaller distance replaces the current pick, so ties go to the coarser one.
func (db *Database) FindBestFitBucket(beginTime, endTime int64) domain.Granularity {
	db.mu.Lock()
	defer db.mu.Unlock()

	best := domain.Granularity(-1)
	smallest := int64(math.MaxInt64)
	for g := domain.Yearly; g >= domain.Daily; g-- {
		idx := db.indexes[g]
		i := idx.ClosestIndexOnOrBefore(beginTime)
		if i < 0 {
			continue
		}
		diff := idx.KeyAt(i) - beginTime
		if diff < 0 {
			diff = -diff
		}
		if diff < smallest {
			smallest = diff
			best = g
		}
	}
	return best
}
