// Package tests provides end-to-end tests of the usage stats store.
//
// The lifecycle test runs two encrypted stores that share a backup vault and
// verifies:
//   - Backup through the maintenance service into the vault
//   - Restore on a second device that keeps its own configuration state
//   - Prune and checkin after restore
//   - Metrics exposed by the metrics server
package tests

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/usagestats-go/internal/core/domain"
	"github.com/yndnr/usagestats-go/internal/core/service"
	"github.com/yndnr/usagestats-go/internal/server/metricsserver"
	"github.com/yndnr/usagestats-go/internal/storage"
	"github.com/yndnr/usagestats-go/internal/storage/vault"
	"github.com/yndnr/usagestats-go/internal/telemetry/metric"
	"github.com/yndnr/usagestats-go/pkg/crypto/adaptive"
	"github.com/yndnr/usagestats-go/pkg/unixcal"
)

const day = unixcal.DayMillis

var keyConfig = adaptive.KeyConfig{
	Passphrase: "integration passphrase",
	Salt:       "000102030405060708090a0b0c0d0e0f",
}

type device struct {
	db  *storage.Database
	svc *service.MaintenanceService
	reg *metric.Registry
}

func cipherFor(t *testing.T, purpose string) adaptive.Cipher {
	t.Helper()
	master, err := adaptive.MasterKey(keyConfig)
	if err != nil {
		t.Fatalf("MasterKey: %v", err)
	}
	c, err := adaptive.ForPurpose(master, purpose, adaptive.CipherChaCha20)
	if err != nil {
		t.Fatalf("ForPurpose(%s): %v", purpose, err)
	}
	return c
}

func newDevice(t *testing.T, name string, now int64, archive *vault.Vault, logger *slog.Logger) *device {
	t.Helper()
	cfg := storage.DefaultConfig(filepath.Join(t.TempDir(), name))
	cfg.Cipher = cipherFor(t, adaptive.PurposeBuckets)
	cfg.Clock = func() time.Time { return time.UnixMilli(now) }
	cfg.Logger = logger.With("device", name)

	db, err := storage.New(cfg)
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	if err := db.Init(now); err != nil {
		t.Fatalf("Init: %v", err)
	}

	reg := metric.NewRegistry()
	if err := db.RegisterMetrics(reg.Registerer()); err != nil {
		t.Fatalf("RegisterMetrics: %v", err)
	}
	reg.Registerer().MustRegister(metric.NewStatsCollector(db))

	svc := service.NewMaintenanceService(db, archive, service.MaintenanceConfig{
		Keep:    3,
		Clock:   cfg.Clock,
		Logger:  cfg.Logger,
		Metrics: reg,
	})
	return &device{db: db, svc: svc, reg: reg}
}

func TestLifecycle_BackupRestoreAcrossDevices(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := int64(20_000) * day
	ctx := context.Background()

	vcfg := vault.DefaultConfig(filepath.Join(t.TempDir(), "vault"))
	vcfg.Cipher = cipherFor(t, adaptive.PurposeVault)
	archive, err := vault.Open(vcfg, logger)
	if err != nil {
		t.Fatalf("vault.Open: %v", err)
	}
	defer archive.Close()

	// Device A records three days of usage.
	a := newDevice(t, "a", now, archive, logger)
	for d := int64(3); d >= 1; d-- {
		s := domain.NewSnapshot(now-d*day, now-(d-1)*day)
		s.ActiveConfiguration = "portrait"
		p := s.GetOrCreatePackage("com.example.mail")
		p.LaunchCount = int32(d)
		p.AddChooserCount("android.intent.action.SEND", "text/plain", 2)
		if err := a.db.Put(domain.Daily, s); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	entry, err := a.svc.RunBackup(ctx)
	if err != nil {
		t.Fatalf("RunBackup: %v", err)
	}
	if !entry.Encrypted {
		t.Fatal("archived backup is not encrypted")
	}

	// Device B has its own state for the newest day.
	b := newDevice(t, "b", now, archive, logger)
	own := domain.NewSnapshot(now-day, now)
	own.ActiveConfiguration = "landscape"
	own.Configurations["landscape"] = &domain.ConfigurationStats{Configuration: "landscape", ActivationCount: 4}
	if err := b.db.Put(domain.Daily, own); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if _, err := b.svc.Restore(ctx, ""); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	rows, err := storage.QueryRange(b.db, domain.Daily, now-3*day, now, func(s *domain.Snapshot, _ bool, out *[]*domain.Snapshot) {
		*out = append(*out, s)
	})
	if err != nil {
		t.Fatalf("QueryRange: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("restored buckets = %d, want 3", len(rows))
	}
	for i, s := range rows {
		if s.ActiveConfiguration != "landscape" {
			t.Errorf("rows[%d].ActiveConfiguration = %q, want landscape", i, s.ActiveConfiguration)
		}
		if s.Configurations["landscape"] == nil {
			t.Errorf("rows[%d] lost the device configuration", i)
		}
		if got := s.Packages["com.example.mail"].LaunchCount; got != int32(3-i) {
			t.Errorf("rows[%d] launch count = %d, want %d", i, got, 3-i)
		}
	}

	ok, err := b.svc.RunCheckin(ctx)
	if err != nil || !ok {
		t.Fatalf("RunCheckin = %v, %v", ok, err)
	}
	if st := b.db.Stats(); st.Granularities[domain.Daily].CheckedIn != 2 {
		t.Fatalf("checked in = %d, want 2", st.Granularities[domain.Daily].CheckedIn)
	}

	srv := metricsserver.New("127.0.0.1:0", metricsserver.NewRouter(metricsserver.RouterConfig{
		Registry: b.reg,
		Stats:    b.db,
		Logger:   logger,
	}), logger)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer srv.Shutdown(ctx)

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		`usagestats_buckets{granularity="daily"} 3`,
		`usagestats_checked_in_buckets{granularity="daily"} 2`,
		`usagestats_maintenance_runs_total{result="ok",task="checkin"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestLifecycle_ClockChangeThenPrune(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := int64(20_000) * day
	d := newDevice(t, "clock", now, nil, logger)

	for i := int64(1); i <= 5; i++ {
		if err := d.db.Put(domain.Daily, domain.NewSnapshot(now-i*day, now-(i-1)*day)); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	// The clock jumps back four days and every bucket moves with it.
	d.db.OnTimeChanged(-4 * day)
	if got, _ := d.db.GetLatestBeginTime(domain.Daily); got != now-5*day {
		t.Fatalf("latest begin = %d, want %d", got, now-5*day)
	}

	// Seven days of daily retention drop the two oldest shifted buckets.
	res, err := d.svc.RunPrune(context.Background())
	if err != nil {
		t.Fatalf("RunPrune: %v", err)
	}
	if res.Deleted != 2 {
		t.Fatalf("deleted = %d, want 2", res.Deleted)
	}
}
