// Package vault archives backup payloads in an embedded Badger database.
//
// Every archived payload gets a ULID, so iteration order is creation order.
// Payloads are zstd-compressed and, when a cipher is configured, sealed with
// the entry ID as additional data. The metadata of each entry is stored next
// to it as JSON.
package vault

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/klauspost/compress/zstd"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/usagestats-go/pkg/crypto/adaptive"
)

// ErrNotFound is returned when no entry matches.
var ErrNotFound = errors.New("vault: entry not found")

const (
	dataPrefix = "data/"
	metaPrefix = "meta/"

	// DefaultKeep is the default number of archived payloads kept by Prune.
	DefaultKeep = 7

	gcDiscardRatio = 0.5
)

// Config configures the vault.
type Config struct {
	// Dir is the Badger directory. Ignored when InMemory is set.
	Dir string

	// InMemory keeps everything in memory.
	InMemory bool

	// SyncWrites fsyncs every write.
	SyncWrites bool

	// Cipher optionally encrypts archived payloads.
	Cipher adaptive.Cipher
}

// DefaultConfig returns the default vault configuration.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:        dir,
		SyncWrites: true,
	}
}

// Entry describes one archived payload.
type Entry struct {
	ID             string    `json:"id"`
	Key            string    `json:"key"`
	CreatedAt      time.Time `json:"created_at"`
	Size           int       `json:"size"`
	CompressedSize int       `json:"compressed_size"`
	Encrypted      bool      `json:"encrypted,omitempty"`
}

// Vault is an archive of backup payloads. It is safe for concurrent use.
type Vault struct {
	db     *badger.DB
	cipher adaptive.Cipher
	enc    *zstd.Encoder
	dec    *zstd.Decoder
	logger *slog.Logger

	entropyMu sync.Mutex
	entropy   io.Reader
	now       func() time.Time

	metricsEntries    prometheus.Gauge
	metricsStoredSize prometheus.Gauge
	metricsLastBackup prometheus.Gauge
}

// Open opens or creates a vault.
func Open(cfg Config, logger *slog.Logger) (*Vault, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.InMemory && cfg.Dir == "" {
		return nil, fmt.Errorf("vault: dir is required")
	}

	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = &badgerLogger{logger: logger}
	opts.SyncWrites = cfg.SyncWrites

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("vault: open db: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("vault: zstd writer: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()
		return nil, fmt.Errorf("vault: zstd reader: %w", err)
	}

	logger.Info("backup vault opened", "dir", cfg.Dir, "in_memory", cfg.InMemory)
	return &Vault{
		db:      db,
		cipher:  cfg.Cipher,
		enc:     enc,
		dec:     dec,
		logger:  logger,
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}, nil
}

func (v *Vault) newID(t time.Time) (ulid.ULID, error) {
	v.entropyMu.Lock()
	defer v.entropyMu.Unlock()
	return ulid.New(ulid.Timestamp(t), v.entropy)
}

// Put archives a payload produced for key and returns its entry.
func (v *Vault) Put(ctx context.Context, key string, payload []byte) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}

	now := v.now().UTC()
	id, err := v.newID(now)
	if err != nil {
		return Entry{}, fmt.Errorf("vault: new id: %w", err)
	}

	entry := Entry{
		ID:        id.String(),
		Key:       key,
		CreatedAt: now.Truncate(time.Millisecond),
		Size:      len(payload),
	}
	compressed := v.enc.EncodeAll(payload, nil)
	if v.cipher != nil {
		compressed, err = v.cipher.Encrypt(compressed, []byte(entry.ID))
		if err != nil {
			return Entry{}, fmt.Errorf("vault: seal: %w", err)
		}
		entry.Encrypted = true
	}
	entry.CompressedSize = len(compressed)
	meta, err := json.Marshal(entry)
	if err != nil {
		return Entry{}, fmt.Errorf("vault: marshal entry: %w", err)
	}

	err = v.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(dataPrefix+entry.ID), compressed); err != nil {
			return err
		}
		return txn.Set([]byte(metaPrefix+entry.ID), meta)
	})
	if err != nil {
		return Entry{}, fmt.Errorf("vault: put: %w", err)
	}

	v.logger.Info("backup archived",
		"id", entry.ID,
		"key", key,
		"size", entry.Size,
		"compressed_size", entry.CompressedSize)
	v.updateMetrics()
	return entry, nil
}

// Get returns an entry and its decompressed payload.
func (v *Vault) Get(ctx context.Context, id string) (Entry, []byte, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, nil, err
	}
	if _, err := ulid.ParseStrict(id); err != nil {
		return Entry{}, nil, fmt.Errorf("vault: invalid id %q: %w", id, err)
	}

	var entry Entry
	var compressed []byte
	err := v.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(metaPrefix + id))
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &entry) }); err != nil {
			return err
		}
		item, err = txn.Get([]byte(dataPrefix + id))
		if err != nil {
			return err
		}
		compressed, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Entry{}, nil, ErrNotFound
	}
	if err != nil {
		return Entry{}, nil, fmt.Errorf("vault: get %s: %w", id, err)
	}

	if entry.Encrypted {
		if v.cipher == nil {
			return Entry{}, nil, fmt.Errorf("vault: entry %s is encrypted and no key is configured", id)
		}
		compressed, err = v.cipher.Decrypt(compressed, []byte(id))
		if err != nil {
			return Entry{}, nil, fmt.Errorf("vault: open %s: %w", id, err)
		}
	}
	payload, err := v.dec.DecodeAll(compressed, nil)
	if err != nil {
		return Entry{}, nil, fmt.Errorf("vault: decompress %s: %w", id, err)
	}
	return entry, payload, nil
}

// Latest returns the newest entry and its payload.
func (v *Vault) Latest(ctx context.Context) (Entry, []byte, error) {
	entries, err := v.List(ctx)
	if err != nil {
		return Entry{}, nil, err
	}
	if len(entries) == 0 {
		return Entry{}, nil, ErrNotFound
	}
	return v.Get(ctx, entries[0].ID)
}

// List returns all entries, newest first.
func (v *Vault) List(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	err := v.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(metaPrefix)
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration must seek past the last key with the prefix.
		for it.Seek([]byte(metaPrefix + "\xff")); it.ValidForPrefix(opts.Prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var e Entry
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &e) }); err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("vault: list: %w", err)
	}
	return entries, nil
}

// Prune deletes all but the newest keep entries and returns how many were
// deleted.
func (v *Vault) Prune(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	entries, err := v.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(entries) <= keep {
		return 0, nil
	}

	stale := entries[keep:]
	err = v.db.Update(func(txn *badger.Txn) error {
		for _, e := range stale {
			if err := txn.Delete([]byte(dataPrefix + e.ID)); err != nil {
				return err
			}
			if err := txn.Delete([]byte(metaPrefix + e.ID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("vault: prune: %w", err)
	}

	v.logger.Info("pruned archived backups", "deleted", len(stale), "kept", keep)
	v.updateMetrics()
	return len(stale), nil
}

// GC reclaims value log space. It is a no-op for in-memory vaults.
func (v *Vault) GC() error {
	for {
		err := v.db.RunValueLogGC(gcDiscardRatio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("vault: gc: %w", err)
		}
	}
}

// Close closes the vault.
func (v *Vault) Close() error {
	v.enc.Close()
	v.dec.Close()
	if err := v.db.Close(); err != nil {
		return fmt.Errorf("vault: close db: %w", err)
	}
	return nil
}

// RegisterMetrics registers the vault gauges with reg.
func (v *Vault) RegisterMetrics(reg prometheus.Registerer) error {
	v.metricsEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "usagestats",
		Subsystem: "vault",
		Name:      "entries",
		Help:      "Number of archived backup payloads.",
	})
	v.metricsStoredSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "usagestats",
		Subsystem: "vault",
		Name:      "stored_bytes",
		Help:      "Compressed size of all archived backup payloads.",
	})
	v.metricsLastBackup = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "usagestats",
		Subsystem: "vault",
		Name:      "last_backup_timestamp_seconds",
		Help:      "Unix timestamp of the newest archived backup.",
	})

	for _, c := range []prometheus.Collector{v.metricsEntries, v.metricsStoredSize, v.metricsLastBackup} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	v.updateMetrics()
	return nil
}

func (v *Vault) updateMetrics() {
	if v.metricsEntries == nil {
		return
	}
	entries, err := v.List(context.Background())
	if err != nil {
		v.logger.Warn("failed to refresh vault metrics", "error", err)
		return
	}

	var stored int
	for _, e := range entries {
		stored += e.CompressedSize
	}
	v.metricsEntries.Set(float64(len(entries)))
	v.metricsStoredSize.Set(float64(stored))
	if len(entries) > 0 {
		v.metricsLastBackup.Set(float64(entries[0].CreatedAt.UnixMilli()) / 1000.0)
	}
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
