package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yndnr/usagestats-go/internal/core/domain"
	"github.com/yndnr/usagestats-go/internal/storage"
	"github.com/yndnr/usagestats-go/internal/storage/vault"
	"github.com/yndnr/usagestats-go/internal/telemetry/metric"
	"github.com/yndnr/usagestats-go/pkg/unixcal"
)

const day = unixcal.DayMillis

type fixture struct {
	db    *storage.Database
	vault *vault.Vault
	svc   *MaintenanceService
	reg   *metric.Registry
	now   int64
}

func newFixture(t *testing.T, keep int) *fixture {
	t.Helper()
	now := int64(1000) * day
	clock := func() time.Time { return time.UnixMilli(now) }

	cfg := storage.DefaultConfig(t.TempDir())
	cfg.Clock = clock
	db, err := storage.New(cfg)
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	if err := db.Init(now); err != nil {
		t.Fatalf("Init: %v", err)
	}

	v, err := vault.Open(vault.Config{InMemory: true}, nil)
	if err != nil {
		t.Fatalf("vault.Open: %v", err)
	}
	t.Cleanup(func() { v.Close() })

	reg := metric.NewRegistry()
	svc := NewMaintenanceService(db, v, MaintenanceConfig{Keep: keep, Clock: clock, Metrics: reg})
	return &fixture{db: db, vault: v, svc: svc, reg: reg, now: now}
}

func (f *fixture) put(t *testing.T, g domain.Granularity, begin int64) {
	t.Helper()
	s := domain.NewSnapshot(begin, begin+day)
	s.GetOrCreatePackage("com.example.app").LaunchCount = 1
	if err := f.db.Put(g, s); err != nil {
		t.Fatalf("Put: %v", err)
	}
}

func TestMaintenance_RunPrune(t *testing.T) {
	f := newFixture(t, 0)
	f.put(t, domain.Daily, f.now-10*day)
	f.put(t, domain.Daily, f.now-2*day)

	res, err := f.svc.RunPrune(context.Background())
	if err != nil {
		t.Fatalf("RunPrune: %v", err)
	}
	if res.Deleted != 1 {
		t.Fatalf("Deleted = %d, want 1", res.Deleted)
	}
	if got := testutil.ToFloat64(f.reg.MaintenanceRuns.WithLabelValues(TaskPrune, "ok")); got != 1 {
		t.Fatalf("prune runs = %v, want 1", got)
	}
}

func TestMaintenance_RunCheckin(t *testing.T) {
	f := newFixture(t, 0)
	f.put(t, domain.Daily, f.now-3*day)
	f.put(t, domain.Daily, f.now-2*day)
	f.put(t, domain.Daily, f.now-day)

	ok, err := f.svc.RunCheckin(context.Background())
	if err != nil || !ok {
		t.Fatalf("RunCheckin = %v, %v, want true", ok, err)
	}
	st := f.db.Stats()
	if st.Granularities[domain.Daily].CheckedIn != 2 {
		t.Fatalf("checked in = %d, want 2", st.Granularities[domain.Daily].CheckedIn)
	}

	rejecting := NewMaintenanceService(f.db, nil, MaintenanceConfig{
		Checkin: func(*domain.Snapshot) bool { return false },
		Metrics: f.reg,
	})
	f.put(t, domain.Daily, f.now)
	if ok, _ := rejecting.RunCheckin(context.Background()); ok {
		t.Fatal("RunCheckin with a rejecting callback = true")
	}
	if got := testutil.ToFloat64(f.reg.MaintenanceRuns.WithLabelValues(TaskCheckin, "error")); got != 1 {
		t.Fatalf("failed checkins = %v, want 1", got)
	}
}

func TestMaintenance_BackupAndRestore(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	f.put(t, domain.Daily, f.now-day)

	var last vault.Entry
	for i := 0; i < 3; i++ {
		e, err := f.svc.RunBackup(ctx)
		if err != nil {
			t.Fatalf("RunBackup: %v", err)
		}
		if e.Key != storage.BackupKey || e.Size == 0 {
			t.Fatalf("entry = %+v", e)
		}
		last = e
	}
	entries, err := f.vault.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 || entries[0].ID != last.ID {
		t.Fatalf("archive = %+v, want the 2 newest", entries)
	}

	// Data written after the backup is replaced by the restore.
	f.put(t, domain.Daily, f.now-2*day)
	got, err := f.svc.Restore(ctx, "")
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if got.ID != last.ID {
		t.Fatalf("restored %s, want newest %s", got.ID, last.ID)
	}
	if _, err := f.db.Get(domain.Daily, f.now-2*day); !errors.Is(err, domain.ErrBucketNotFound) {
		t.Fatalf("bucket written after the backup survived the restore: %v", err)
	}
	if _, err := f.db.Get(domain.Daily, f.now-day); err != nil {
		t.Fatalf("backed up bucket missing after restore: %v", err)
	}

	if _, err := f.svc.Restore(ctx, entries[1].ID); err != nil {
		t.Fatalf("Restore(id): %v", err)
	}
	if _, err := f.svc.Restore(ctx, "01ARZ3NDEKTSV4RRFFQ69G5FAV"); !errors.Is(err, vault.ErrNotFound) {
		t.Fatalf("Restore(unknown) err = %v, want ErrNotFound", err)
	}
}

// gcCountingArchive records GC calls of a real vault.
type gcCountingArchive struct {
	*vault.Vault
	gcs   int
	gcErr error
}

func (a *gcCountingArchive) GC() error {
	a.gcs++
	if a.gcErr != nil {
		return a.gcErr
	}
	return a.Vault.GC()
}

func TestMaintenance_BackupReclaimsPrunedSpace(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	f.put(t, domain.Daily, f.now-day)

	archive := &gcCountingArchive{Vault: f.vault}
	svc := NewMaintenanceService(f.db, archive, MaintenanceConfig{Keep: 1, Clock: f.svc.cfg.Clock})

	if _, err := svc.RunBackup(ctx); err != nil {
		t.Fatalf("RunBackup: %v", err)
	}
	if archive.gcs != 0 {
		t.Fatalf("GC ran %d times with nothing pruned, want 0", archive.gcs)
	}
	if _, err := svc.RunBackup(ctx); err != nil {
		t.Fatalf("RunBackup: %v", err)
	}
	if archive.gcs != 1 {
		t.Fatalf("GC ran %d times after a prune, want 1", archive.gcs)
	}

	archive.gcErr = errors.New("value log busy")
	if _, err := svc.RunBackup(ctx); err != nil {
		t.Fatalf("RunBackup with a failing GC: %v", err)
	}
	entries, err := f.vault.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("archive holds %d entries, want 1", len(entries))
	}
}

func TestMaintenance_BackupOnDiskVault(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	f.put(t, domain.Daily, f.now-day)

	v, err := vault.Open(vault.Config{Dir: t.TempDir()}, nil)
	if err != nil {
		t.Fatalf("vault.Open: %v", err)
	}
	t.Cleanup(func() { v.Close() })
	svc := NewMaintenanceService(f.db, v, MaintenanceConfig{Keep: 1, Clock: f.svc.cfg.Clock})

	for i := 0; i < 3; i++ {
		if _, err := svc.RunBackup(ctx); err != nil {
			t.Fatalf("RunBackup %d: %v", i, err)
		}
	}
	if _, payload, err := v.Latest(ctx); err != nil || len(payload) == 0 {
		t.Fatalf("Latest = %d bytes, %v", len(payload), err)
	}
}

func TestMaintenance_NoVault(t *testing.T) {
	f := newFixture(t, 0)
	svc := NewMaintenanceService(f.db, nil, MaintenanceConfig{})
	if _, err := svc.RunBackup(context.Background()); !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Fatalf("RunBackup err = %v, want ErrStorageUnavailable", err)
	}
	if _, err := svc.Restore(context.Background(), ""); !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Fatalf("Restore err = %v, want ErrStorageUnavailable", err)
	}
}

func TestMaintenance_CanceledContext(t *testing.T) {
	f := newFixture(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.svc.RunPrune(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("RunPrune err = %v, want Canceled", err)
	}
	if _, err := f.svc.RunBackup(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("RunBackup err = %v, want Canceled", err)
	}
}

func TestMaintenance_Run(t *testing.T) {
	f := newFixture(t, 0)
	f.put(t, domain.Daily, f.now-day)

	svc := NewMaintenanceService(f.db, f.vault, MaintenanceConfig{
		BackupInterval: 10 * time.Millisecond,
		Clock:          func() time.Time { return time.UnixMilli(f.now) },
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		entries, _ := f.vault.List(context.Background())
		if len(entries) > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no backup archived by Run")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run = %v, want Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
