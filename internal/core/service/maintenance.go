package service

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/usagestats-go/internal/core/domain"
	"github.com/yndnr/usagestats-go/internal/storage"
	"github.com/yndnr/usagestats-go/internal/storage/vault"
	"github.com/yndnr/usagestats-go/internal/telemetry/logger"
	"github.com/yndnr/usagestats-go/internal/telemetry/metric"
)

// Task names, used in logs and metrics.
const (
	TaskPrune   = "prune"
	TaskCheckin = "checkin"
	TaskBackup  = "backup"
)

// UsageDatabase is the part of *storage.Database the service drives.
type UsageDatabase interface {
	Prune(now int64) storage.PruneResult
	CheckinDailyFiles(fn storage.CheckinFunc) bool
	GetBackupPayload(key string) []byte
	ApplyRestoredPayload(key string, payload []byte) error
	SetSelectionLogRetentionDays(days int)
}

// BackupArchive is the part of *vault.Vault the service drives.
type BackupArchive interface {
	Put(ctx context.Context, key string, payload []byte) (vault.Entry, error)
	Get(ctx context.Context, id string) (vault.Entry, []byte, error)
	Latest(ctx context.Context) (vault.Entry, []byte, error)
	Prune(ctx context.Context, keep int) (int, error)

	// GC reclaims the space of pruned backups.
	GC() error
}

// MaintenanceConfig configures MaintenanceService. A zero interval disables
// the task in Run.
type MaintenanceConfig struct {
	PruneInterval   time.Duration
	CheckinInterval time.Duration
	BackupInterval  time.Duration

	// Keep is the number of archived backups retained after each backup.
	Keep int

	// Checkin receives daily snapshots. Defaults to logging them.
	Checkin storage.CheckinFunc

	Clock   func() time.Time
	Logger  *slog.Logger
	Metrics *metric.Registry
}

// MaintenanceService runs the periodic tasks.
type MaintenanceService struct {
	db      UsageDatabase
	archive BackupArchive
	cfg     MaintenanceConfig
	logger  *slog.Logger

	// tasks serializes task runs so a slow backup never overlaps a prune.
	tasks sync.Mutex

	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy
}

// NewMaintenanceService creates the service. archive may be nil, in which
// case backups are disabled.
func NewMaintenanceService(db UsageDatabase, archive BackupArchive, cfg MaintenanceConfig) *MaintenanceService {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Keep < 1 {
		cfg.Keep = vault.DefaultKeep
	}
	s := &MaintenanceService{
		db:      db,
		archive: archive,
		cfg:     cfg,
		logger:  cfg.Logger,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
	if s.cfg.Checkin == nil {
		s.cfg.Checkin = s.logCheckin
	}
	return s
}

func (s *MaintenanceService) logCheckin(snap *domain.Snapshot) bool {
	s.logger.Info("daily bucket checked in",
		"begin_time", snap.BeginTime,
		"end_time", snap.EndTime,
		"packages", len(snap.Packages),
		"events", len(snap.Events))
	return true
}

// runContext tags ctx with a fresh run ID and the service logger.
func (s *MaintenanceService) runContext(ctx context.Context, task string) context.Context {
	s.entropyMu.Lock()
	id, err := ulid.New(ulid.Timestamp(s.cfg.Clock()), s.entropy)
	s.entropyMu.Unlock()

	ctx = logger.WithLogger(ctx, s.logger.With("task", task))
	if err == nil {
		ctx = logger.WithRunID(ctx, id.String())
	}
	return ctx
}

func (s *MaintenanceService) observe(task string, start time.Time, err error) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ObserveMaintenance(task, start, err)
	}
}

// RunPrune applies retention as of the service clock.
func (s *MaintenanceService) RunPrune(ctx context.Context) (storage.PruneResult, error) {
	if err := ctx.Err(); err != nil {
		return storage.PruneResult{}, err
	}
	s.tasks.Lock()
	defer s.tasks.Unlock()

	ctx = s.runContext(ctx, TaskPrune)
	start := time.Now()
	res := s.db.Prune(s.cfg.Clock().UnixMilli())
	s.observe(TaskPrune, start, nil)

	logger.L(ctx).Info("retention applied", "deleted", res.Deleted, "redacted", res.Redacted)
	return res, nil
}

// RunCheckin checks in finished daily buckets. It reports whether the
// checkin completed.
func (s *MaintenanceService) RunCheckin(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.tasks.Lock()
	defer s.tasks.Unlock()

	ctx = s.runContext(ctx, TaskCheckin)
	start := time.Now()
	ok := s.db.CheckinDailyFiles(s.cfg.Checkin)
	var err error
	if !ok {
		err = errors.New("service: checkin aborted")
	}
	s.observe(TaskCheckin, start, err)

	logger.L(ctx).Info("daily checkin finished", "completed", ok)
	return ok, nil
}

// RunBackup archives a fresh backup payload and trims the archive to Keep
// entries.
func (s *MaintenanceService) RunBackup(ctx context.Context) (vault.Entry, error) {
	if s.archive == nil {
		return vault.Entry{}, domain.ErrStorageUnavailable.WithDetails("no backup vault configured")
	}
	if err := ctx.Err(); err != nil {
		return vault.Entry{}, err
	}
	s.tasks.Lock()
	defer s.tasks.Unlock()

	ctx = s.runContext(ctx, TaskBackup)
	start := time.Now()
	entry, err := s.backupLocked(ctx)
	s.observe(TaskBackup, start, err)
	if err != nil {
		logger.L(ctx).Error("backup failed", "error", err)
		return vault.Entry{}, err
	}
	return entry, nil
}

func (s *MaintenanceService) backupLocked(ctx context.Context) (vault.Entry, error) {
	payload := s.db.GetBackupPayload(storage.BackupKey)
	if len(payload) == 0 {
		return vault.Entry{}, domain.ErrEncodeFailure.WithDetails("empty backup payload")
	}
	entry, err := s.archive.Put(ctx, storage.BackupKey, payload)
	if err != nil {
		return vault.Entry{}, domain.ErrStorageUnavailable.WithCause(err)
	}
	deleted, err := s.archive.Prune(ctx, s.cfg.Keep)
	if err != nil {
		// The new backup is stored; trimming is retried next run.
		logger.L(ctx).Warn("failed to prune archived backups", "error", err)
	}
	if deleted > 0 {
		if err := s.archive.GC(); err != nil {
			logger.L(ctx).Warn("failed to reclaim archive space", "error", err)
		}
	}
	logger.L(ctx).Info("backup archived", "id", entry.ID, "size", entry.Size, "pruned", deleted)
	return entry, nil
}

// Restore applies an archived backup. An empty id selects the newest one.
func (s *MaintenanceService) Restore(ctx context.Context, id string) (vault.Entry, error) {
	if s.archive == nil {
		return vault.Entry{}, domain.ErrStorageUnavailable.WithDetails("no backup vault configured")
	}
	s.tasks.Lock()
	defer s.tasks.Unlock()

	var (
		entry   vault.Entry
		payload []byte
		err     error
	)
	if id == "" {
		entry, payload, err = s.archive.Latest(ctx)
	} else {
		entry, payload, err = s.archive.Get(ctx, id)
	}
	if err != nil {
		return vault.Entry{}, err
	}
	if err := s.db.ApplyRestoredPayload(entry.Key, payload); err != nil {
		return vault.Entry{}, err
	}
	s.logger.Info("backup restored", "id", entry.ID, "created_at", entry.CreatedAt)
	return entry, nil
}

// SetSelectionLogRetentionDays forwards a reloaded retention setting.
func (s *MaintenanceService) SetSelectionLogRetentionDays(days int) {
	s.db.SetSelectionLogRetentionDays(days)
}

// Run starts a loop per enabled task and blocks until ctx is done.
func (s *MaintenanceService) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	start := func(task string, every time.Duration, fn func(context.Context) error) {
		if every <= 0 {
			s.logger.Info("maintenance task disabled", "task", task)
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, task, every, fn)
		}()
	}

	start(TaskPrune, s.cfg.PruneInterval, func(ctx context.Context) error {
		_, err := s.RunPrune(ctx)
		return err
	})
	start(TaskCheckin, s.cfg.CheckinInterval, func(ctx context.Context) error {
		_, err := s.RunCheckin(ctx)
		return err
	})
	if s.archive != nil {
		start(TaskBackup, s.cfg.BackupInterval, func(ctx context.Context) error {
			_, err := s.RunBackup(ctx)
			return err
		})
	}

	wg.Wait()
	return ctx.Err()
}

func (s *MaintenanceService) loop(ctx context.Context, task string, every time.Duration, fn func(context.Context) error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	s.logger.Info("maintenance task scheduled", "task", task, "interval", every)
	for {
		select {
		case <-ticker.C:
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("maintenance task failed", "task", task, "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
