// Package index provides the ordered begin-time index over the bucket files
// of one granularity.
package index

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/yndnr/usagestats-go/internal/storage/bucket"
)

// KeyFunc returns the begin time recorded inside a bucket file.
type KeyFunc func(f *bucket.File) (int64, error)

// Index maps bucket begin times to files. Keys are strictly increasing.
//
// Index is not safe for concurrent use.
type Index struct {
	keys   []int64
	files  []*bucket.File
	logger *slog.Logger
}

// New creates an empty index.
func New(logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{logger: logger}
}

// Size returns the number of buckets.
func (x *Index) Size() int { return len(x.keys) }

// KeyAt returns the begin time at position i.
func (x *Index) KeyAt(i int) int64 { return x.keys[i] }

// ValueAt returns the file at position i.
func (x *Index) ValueAt(i int) *bucket.File { return x.files[i] }

// SetValueAt replaces the file at position i, keeping its key.
func (x *Index) SetValueAt(i int, f *bucket.File) { x.files[i] = f }

// search returns the position of the first key >= t.
func (x *Index) search(t int64) int {
	return sort.Search(len(x.keys), func(i int) bool { return x.keys[i] >= t })
}

// Get returns the file registered at exactly beginTime, or nil.
func (x *Index) Get(beginTime int64) *bucket.File {
	i := x.search(beginTime)
	if i < len(x.keys) && x.keys[i] == beginTime {
		return x.files[i]
	}
	return nil
}

// Put registers f at beginTime, replacing any file already there.
func (x *Index) Put(beginTime int64, f *bucket.File) {
	i := x.search(beginTime)
	if i < len(x.keys) && x.keys[i] == beginTime {
		x.files[i] = f
		return
	}
	x.keys = append(x.keys, 0)
	x.files = append(x.files, nil)
	copy(x.keys[i+1:], x.keys[i:])
	copy(x.files[i+1:], x.files[i:])
	x.keys[i] = beginTime
	x.files[i] = f
}

// ClosestIndexOnOrBefore returns the position of the greatest key <= t, or -1.
func (x *Index) ClosestIndexOnOrBefore(t int64) int {
	i := x.search(t)
	if i < len(x.keys) && x.keys[i] == t {
		return i
	}
	return i - 1
}

// ClosestIndexOnOrAfter returns the position of the smallest key >= t, or -1.
func (x *Index) ClosestIndexOnOrAfter(t int64) int {
	i := x.search(t)
	if i == len(x.keys) {
		return -1
	}
	return i
}

// RemoveAt removes the entry at position i.
func (x *Index) RemoveAt(i int) {
	x.RemoveRange(i, i)
}

// RemoveRange removes positions from through toInclusive.
func (x *Index) RemoveRange(from, toInclusive int) {
	if from < 0 || toInclusive >= len(x.keys) || from > toInclusive {
		panic(fmt.Sprintf("index: invalid range [%d, %d] for size %d", from, toInclusive, len(x.keys)))
	}
	n := toInclusive - from + 1
	x.keys = append(x.keys[:from], x.keys[toInclusive+1:]...)
	tail := len(x.files) - n
	copy(x.files[from:], x.files[toInclusive+1:])
	clear(x.files[tail:])
	x.files = x.files[:tail]
}

// Clear removes all entries.
func (x *Index) Clear() {
	x.keys = x.keys[:0]
	clear(x.files)
	x.files = x.files[:0]
}

// Reindex rebuilds the index from the bucket files in dir. Each key comes
// from the file contents, not its name, so a file whose rename was lost still
// lands at its real begin time. Files that cannot be keyed are skipped.
// It returns the number of skipped files.
func (x *Index) Reindex(dir string, sealer bucket.Sealer, key KeyFunc) (int, error) {
	x.Clear()

	paths, err := bucket.List(dir)
	if err != nil {
		return 0, fmt.Errorf("index: list %s: %w", dir, err)
	}

	skipped := 0
	for _, path := range paths {
		f := bucket.Open(path, sealer)
		beginTime, err := key(f)
		if err != nil {
			skipped++
			x.logger.Warn("skipping unreadable bucket",
				"path", path,
				"error", err)
			continue
		}
		x.Put(beginTime, f)
	}
	return skipped, nil
}
