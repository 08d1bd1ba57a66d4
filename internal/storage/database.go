package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/yndnr/usagestats-go/internal/core/domain"
	"github.com/yndnr/usagestats-go/internal/infra/buildinfo"
	"github.com/yndnr/usagestats-go/internal/storage/bucket"
	"github.com/yndnr/usagestats-go/internal/storage/codec"
	"github.com/yndnr/usagestats-go/internal/storage/index"
	"github.com/yndnr/usagestats-go/internal/storage/version"
	"github.com/yndnr/usagestats-go/pkg/crypto/adaptive"
)

const (
	// CurrentVersion is the on-disk schema version.
	CurrentVersion = 3

	// DefaultSelectionLogRetentionDays is how long chooser counts are kept.
	DefaultSelectionLogRetentionDays = 14

	dirPerm = 0750
)

// Codec turns snapshots into bytes and back.
type Codec interface {
	Encode(s *domain.Snapshot) ([]byte, error)
	Decode(data []byte) (*domain.Snapshot, error)

	// PeekBeginTime returns the begin time without a full decode.
	PeekBeginTime(data []byte) (int64, error)
}

// Config configures the database.
type Config struct {
	// Root is the storage root directory.
	Root string

	// Codec encodes bucket payloads. Defaults to the protobuf codec.
	Codec Codec

	// Cipher is the optional at-rest encryption cipher.
	Cipher adaptive.Cipher

	// SelectionLogRetentionDays is the age after which chooser counts are
	// redacted.
	SelectionLogRetentionDays int

	// Fingerprint identifies the running build.
	Fingerprint string

	// Clock returns the current time. Used where an operation needs "now"
	// and the caller does not pass it.
	Clock func() time.Time

	// Logger is the structured logger.
	Logger *slog.Logger
}

// DefaultConfig returns the default configuration for a storage root.
func DefaultConfig(root string) Config {
	return Config{
		Root:                      root,
		Codec:                     codec.New(),
		SelectionLogRetentionDays: DefaultSelectionLogRetentionDays,
		Fingerprint:               buildinfo.Fingerprint(),
		Clock:                     time.Now,
		Logger:                    slog.Default(),
	}
}

// Database stores usage snapshots in one file per bucket under
// <root>/{daily,weekly,monthly,yearly}.
//
// A single mutex guards all state and is held for the full duration of every
// public operation.
type Database struct {
	mu sync.Mutex

	cfg      Config
	dirs     [domain.NumGranularities]string
	indexes  [domain.NumGranularities]*index.Index
	versions *version.Store
	logger   *slog.Logger
	metrics  *dbMetrics

	selectionRetentionDays int
	meta                   version.Metadata
	firstUpdate            bool
	newUpdate              bool
}

// New creates a database. Init must be called before use.
func New(cfg Config) (*Database, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("storage: root is required")
	}
	if cfg.Codec == nil {
		cfg.Codec = codec.New()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SelectionLogRetentionDays <= 0 {
		cfg.SelectionLogRetentionDays = DefaultSelectionLogRetentionDays
	}
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = buildinfo.Fingerprint()
	}

	db := &Database{
		cfg:                    cfg,
		versions:               version.NewStore(cfg.Root, cfg.Logger),
		logger:                 cfg.Logger,
		metrics:                newDBMetrics(),
		selectionRetentionDays: cfg.SelectionLogRetentionDays,
	}
	for _, g := range domain.Granularities {
		db.dirs[g] = filepath.Join(cfg.Root, g.String())
		db.indexes[g] = index.New(cfg.Logger.With("granularity", g.String()))
	}
	return db, nil
}

// Init prepares the storage root: it creates the directories, migrates the
// schema, rebuilds the indexes and deletes buckets that start at or after now.
//
// Init fails with ErrStorageUnavailable, before touching any bucket, when
// the stored buckets do not match the configured cipher.
func (db *Database) Init(now int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, dir := range db.dirs {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return domain.ErrStorageUnavailable.WithDetails("%s", dir).WithCause(err)
		}
	}
	if err := db.verifyKeyLocked(); err != nil {
		return domain.ErrStorageUnavailable.WithDetails("%s", db.cfg.Root).WithCause(err)
	}

	db.checkVersionLocked()
	db.reindexLocked()

	for _, g := range domain.Granularities {
		idx := db.indexes[g]
		start := idx.ClosestIndexOnOrAfter(now)
		if start < 0 {
			continue
		}
		for i := start; i < idx.Size(); i++ {
			f := idx.ValueAt(i)
			if err := f.Delete(); err != nil {
				db.logger.Warn("failed to delete future bucket", "path", f.Path(), "error", err)
				continue
			}
			db.logger.Debug("deleted bucket on or after current time",
				"granularity", g.String(),
				"begin_time", idx.KeyAt(i),
				"now", now)
		}
		idx.RemoveRange(start, idx.Size()-1)
	}

	db.logger.Info("usage stats database initialized",
		"root", db.cfg.Root,
		"schema_version", db.meta.SchemaVersion,
		"first_update", db.firstUpdate,
		"new_update", db.newUpdate)
	return nil
}

// checkVersionLocked loads the version file, migrates when the schema
// changed and records the running build.
func (db *Database) checkVersionLocked() {
	st := db.versions.Load(db.cfg.Fingerprint)
	db.firstUpdate = st.FirstRun
	db.newUpdate = st.NewBuild

	if st.SchemaVersion != CurrentVersion {
		db.logger.Info("upgrading schema",
			"from", st.SchemaVersion,
			"to", CurrentVersion)
		db.migrateLocked(st.SchemaVersion)
	}

	db.meta = version.Metadata{SchemaVersion: CurrentVersion, Fingerprint: db.cfg.Fingerprint}
	if st.SchemaVersion != CurrentVersion || st.NewBuild {
		if err := db.versions.Save(db.meta); err != nil {
			db.logger.Error("failed to write version file", "path", db.versions.Path(), "error", err)
		}
	}
}

// verifyKeyLocked reads buckets of every granularity until one decodes or
// one fails with a key mismatch. Damaged buckets are skipped here and left to
// the index.
func (db *Database) verifyKeyLocked() error {
	for _, g := range domain.Granularities {
		paths, err := bucket.List(db.dirs[g])
		if err != nil {
			return err
		}
		for _, path := range paths {
			_, err := bucket.Open(path, db.cfg.Cipher).Read()
			if err == nil {
				break
			}
			if errors.Is(err, domain.ErrKeyMismatch) {
				return err
			}
		}
	}
	return nil
}

// IsFirstUpdate reports whether Init found no recorded build.
func (db *Database) IsFirstUpdate() bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.firstUpdate
}

// IsNewUpdate reports whether Init found a different build than the running
// one.
func (db *Database) IsNewUpdate() bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.newUpdate
}

// SetSelectionLogRetentionDays changes the redaction age used by later
// prunes. Non-positive values are ignored.
func (db *Database) SetSelectionLogRetentionDays(days int) {
	if days <= 0 {
		return
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	db.selectionRetentionDays = days
}

// Put writes a snapshot into the bucket keyed by its begin time, creating
// the bucket if needed, and records the write time on the snapshot. A
// snapshot whose end time is not after its begin time is rejected with
// ErrInvalidArgument wrapping ErrInvalidInterval.
func (db *Database) Put(g domain.Granularity, s *domain.Snapshot) error {
	if s == nil {
		return domain.ErrNilSnapshot
	}
	if err := checkGranularity(g); err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		return domain.ErrInvalidArgument.WithDetails("%s/%d", g, s.BeginTime).WithCause(err)
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	return db.putLocked(g, s)
}

func (db *Database) putLocked(g domain.Granularity, s *domain.Snapshot) error {
	idx := db.indexes[g]
	f := idx.Get(s.BeginTime)
	created := false
	if f == nil {
		f = db.openBucket(g, bucket.FileName(s.BeginTime, false))
		idx.Put(s.BeginTime, f)
		created = true
	}

	data, err := db.cfg.Codec.Encode(s)
	if err == nil {
		err = f.Write(data)
	}
	if err != nil {
		if created {
			idx.RemoveAt(idx.ClosestIndexOnOrBefore(s.BeginTime))
		}
		return fmt.Errorf("storage: put %s/%d: %w", g, s.BeginTime, err)
	}

	if mtime, err := f.ModTime(); err == nil {
		s.LastTimeSaved = mtime
	}
	return nil
}

// Get returns the snapshot stored at exactly beginTime.
func (db *Database) Get(g domain.Granularity, beginTime int64) (*domain.Snapshot, error) {
	if err := checkGranularity(g); err != nil {
		return nil, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	f := db.indexes[g].Get(beginTime)
	if f == nil {
		return nil, domain.ErrBucketNotFound.WithDetails("%s/%d", g, beginTime)
	}
	return db.readLocked(f)
}

// GetLatest returns the newest snapshot of a granularity, or nil when there
// is none or it cannot be read.
func (db *Database) GetLatest(g domain.Granularity) (*domain.Snapshot, error) {
	if err := checkGranularity(g); err != nil {
		return nil, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	return db.latestLocked(g), nil
}

func (db *Database) latestLocked(g domain.Granularity) *domain.Snapshot {
	idx := db.indexes[g]
	if idx.Size() == 0 {
		return nil
	}
	s, err := db.readLocked(idx.ValueAt(idx.Size() - 1))
	if err != nil {
		db.logger.Error("failed to read latest bucket", "granularity", g.String(), "error", err)
		return nil
	}
	return s
}

// GetLatestBeginTime returns the newest begin time of a granularity, or -1.
func (db *Database) GetLatestBeginTime(g domain.Granularity) (int64, error) {
	if err := checkGranularity(g); err != nil {
		return -1, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	idx := db.indexes[g]
	if idx.Size() == 0 {
		return -1, nil
	}
	return idx.KeyAt(idx.Size() - 1), nil
}

// readLocked reads and decodes one bucket. LastTimeSaved is taken from the
// file modification time.
func (db *Database) readLocked(f *bucket.File) (*domain.Snapshot, error) {
	data, err := f.Read()
	if err != nil {
		db.metrics.decodeFailures.Inc()
		return nil, err
	}
	s, err := db.cfg.Codec.Decode(data)
	if err != nil {
		db.metrics.decodeFailures.Inc()
		return nil, fmt.Errorf("storage: decode %s: %w", f.Path(), err)
	}
	if mtime, err := f.ModTime(); err == nil {
		s.LastTimeSaved = mtime
	}
	return s, nil
}

// peekLocked returns the begin time stored in a bucket.
func (db *Database) peekLocked(f *bucket.File) (int64, error) {
	data, err := f.Read()
	if err != nil {
		return 0, err
	}
	return db.cfg.Codec.PeekBeginTime(data)
}

func (db *Database) reindexLocked() {
	for _, g := range domain.Granularities {
		skipped, err := db.indexes[g].Reindex(db.dirs[g], db.cfg.Cipher, db.peekLocked)
		if err != nil {
			db.logger.Error("failed to index bucket directory", "dir", db.dirs[g], "error", err)
			continue
		}
		if skipped > 0 {
			db.metrics.decodeFailures.Add(float64(skipped))
		}
	}
}

func (db *Database) openBucket(g domain.Granularity, name string) *bucket.File {
	return bucket.Open(filepath.Join(db.dirs[g], name), db.cfg.Cipher)
}

func checkGranularity(g domain.Granularity) error {
	if !g.Valid() {
		return domain.ErrInvalidArgument.WithDetails("bad granularity %d", int(g))
	}
	return nil
}

// GranularityStats describes the buckets of one granularity.
type GranularityStats struct {
	Granularity string `json:"granularity"`
	Buckets     int    `json:"buckets"`
	CheckedIn   int    `json:"checked_in"`
	Oldest      int64  `json:"oldest"`
	Newest      int64  `json:"newest"`
}

// Stats summarizes the database.
type Stats struct {
	Root          string             `json:"root"`
	SchemaVersion int                `json:"schema_version"`
	Fingerprint   string             `json:"fingerprint"`
	FirstUpdate   bool               `json:"first_update"`
	NewUpdate     bool               `json:"new_update"`
	Granularities []GranularityStats `json:"granularities"`
}

// Stats returns a summary of every granularity. Oldest and Newest are -1
// when a granularity is empty.
func (db *Database) Stats() Stats {
	db.mu.Lock()
	defer db.mu.Unlock()

	st := Stats{
		Root:          db.cfg.Root,
		SchemaVersion: db.meta.SchemaVersion,
		Fingerprint:   db.meta.Fingerprint,
		FirstUpdate:   db.firstUpdate,
		NewUpdate:     db.newUpdate,
		Granularities: make([]GranularityStats, 0, domain.NumGranularities),
	}
	for _, g := range domain.Granularities {
		idx := db.indexes[g]
		gs := GranularityStats{Granularity: g.String(), Buckets: idx.Size(), Oldest: -1, Newest: -1}
		if idx.Size() > 0 {
			gs.Oldest = idx.KeyAt(0)
			gs.Newest = idx.KeyAt(idx.Size() - 1)
		}
		for i := 0; i < idx.Size(); i++ {
			if idx.ValueAt(i).CheckedIn() {
				gs.CheckedIn++
			}
		}
		st.Granularities = append(st.Granularities, gs)
	}
	return st
}

// now returns the configured clock in Unix milliseconds.
func (db *Database) now() int64 {
	return db.cfg.Clock().UnixMilli()
}
