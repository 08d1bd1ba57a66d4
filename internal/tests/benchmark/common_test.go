package benchmark

import (
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"testing"
	"time"

	"github.com/yndnr/usagestats-go/internal/core/domain"
	"github.com/yndnr/usagestats-go/internal/storage"
	"github.com/yndnr/usagestats-go/pkg/crypto/adaptive"
	"github.com/yndnr/usagestats-go/pkg/unixcal"
)

// BucketCounts defines the daily bucket counts for benchmarking.
var BucketCounts = []int{30, 365, 1000}

// PackageCounts defines the packages per snapshot.
var PackageCounts = []int{10, 100, 500}

// benchNow is far enough in the future that Init keeps every bucket.
var benchNow = int64(10_000) * unixcal.DayMillis

// newSnapshot builds a daily snapshot with packages entries and some
// chooser counts.
func newSnapshot(day int64, packages int) *domain.Snapshot {
	begin := day * unixcal.DayMillis
	s := domain.NewSnapshot(begin, begin+unixcal.DayMillis)
	for i := 0; i < packages; i++ {
		p := s.GetOrCreatePackage(fmt.Sprintf("com.example.app%04d", i))
		p.LaunchCount = int32(i%17 + 1)
		p.TotalTimeInForeground = int64(i) * 60_000
		p.LastTimeUsed = begin + int64(i)*1000
		if i%5 == 0 {
			p.AddChooserCount("android.intent.action.SEND", "text/plain", 1)
		}
	}
	for i := 0; i < packages/2; i++ {
		s.Events = append(s.Events, domain.Event{
			PackageName: fmt.Sprintf("com.example.app%04d", i),
			TimeStamp:   begin + int64(i)*500,
			EventType:   1,
		})
	}
	return s
}

// openDatabase opens a database in a temp dir, optionally encrypted.
func openDatabase(b *testing.B, encrypted bool) *storage.Database {
	b.Helper()
	cfg := storage.DefaultConfig(b.TempDir())
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg.Clock = func() time.Time { return time.UnixMilli(benchNow) }
	if encrypted {
		c, err := adaptive.New(make([]byte, adaptive.KeySize))
		if err != nil {
			b.Fatalf("cipher: %v", err)
		}
		cfg.Cipher = c
	}
	db, err := storage.New(cfg)
	if err != nil {
		b.Fatalf("New: %v", err)
	}
	if err := db.Init(benchNow); err != nil {
		b.Fatalf("Init: %v", err)
	}
	return db
}

// prefill stores count daily buckets.
func prefill(b *testing.B, db *storage.Database, count, packages int) {
	b.Helper()
	for i := 0; i < count; i++ {
		if err := db.Put(domain.Daily, newSnapshot(benchNow/unixcal.DayMillis-int64(count-i), packages)); err != nil {
			b.Fatalf("Put: %v", err)
		}
	}
}

// reportMemory reports memory usage.
func reportMemory(b *testing.B, prefix string) {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	b.ReportMetric(float64(m.Alloc)/(1024*1024), prefix+"_MB")
	b.ReportMetric(float64(m.NumGC), prefix+"_GC")
}

// runWithBucketCounts runs a benchmark function with various bucket counts.
func runWithBucketCounts(b *testing.B, counts []int, benchFn func(b *testing.B, count int)) {
	for _, count := range counts {
		b.Run(fmt.Sprintf("buckets_%d", count), func(b *testing.B) {
			benchFn(b, count)
		})
	}
}
