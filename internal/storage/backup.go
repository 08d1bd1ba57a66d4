package storage

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/yndnr/usagestats-go/internal/core/domain"
	"github.com/yndnr/usagestats-go/internal/storage/bucket"
)

const (
	// BackupKey is the only backup key the database handles.
	BackupKey = "usage_stats"

	// BackupVersion is the version of the backup payload format.
	BackupVersion = 1
)

var errTruncatedPayload = errors.New("storage: truncated backup payload")

// GetBackupPayload prunes the database and serializes every bucket into a
// single payload:
//
//	int32 version
//	4 x (int32 count, count x (int32 length, length bytes))
//
// Granularities appear in ordinal order. Each record is the bucket's begin
// time as int64 followed by the encoded snapshot, sanitized of device
// specific state. A bucket that cannot be read is written as an empty
// record. Any encoding failure discards the whole payload.
//
// All integers are big-endian. Keys other than BackupKey yield an empty
// payload.
func (db *Database) GetBackupPayload(key string) []byte {
	db.mu.Lock()
	defer db.mu.Unlock()

	if key != BackupKey {
		return []byte{}
	}
	db.pruneLocked(db.now())

	out := binary.BigEndian.AppendUint32(nil, BackupVersion)
	for _, g := range domain.Granularities {
		idx := db.indexes[g]
		out = binary.BigEndian.AppendUint32(out, uint32(idx.Size()))
		for i := 0; i < idx.Size(); i++ {
			record, err := db.backupRecordLocked(idx.ValueAt(i))
			if err != nil {
				db.logger.Error("failed to write backup payload", "granularity", g.String(), "error", err)
				return []byte{}
			}
			out = binary.BigEndian.AppendUint32(out, uint32(len(record)))
			out = append(out, record...)
		}
	}

	db.metrics.backupBytes.Add(float64(len(out)))
	return out
}

// backupRecordLocked returns the backup record of one bucket. An unreadable
// bucket yields an empty record and no error.
func (db *Database) backupRecordLocked(f *bucket.File) ([]byte, error) {
	s, err := db.readLocked(f)
	if err != nil {
		db.logger.Error("failed to read bucket for backup", "path", f.Path(), "error", err)
		return nil, nil
	}
	s.SanitizeForBackup()

	data, err := db.cfg.Codec.Encode(s)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", f.Path(), err)
	}
	record := binary.BigEndian.AppendUint64(make([]byte, 0, 8+len(data)), uint64(s.BeginTime))
	return append(record, data...), nil
}

// ApplyRestoredPayload replaces the contents of the database with a payload
// produced by GetBackupPayload.
//
// The newest snapshot of every granularity is captured first. Each restored
// bucket keeps its usage content but takes the active configuration and
// events of the captured snapshot, and its configurations are extended with
// the captured ones. Records that cannot be decoded are dropped.
//
// An unsupported version leaves the disk untouched. The indexes are rebuilt
// from disk whatever the outcome. Keys other than BackupKey are ignored.
func (db *Database) ApplyRestoredPayload(key string, payload []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if key != BackupKey {
		return nil
	}
	defer db.reindexLocked()

	var configSource [domain.NumGranularities]*domain.Snapshot
	for _, g := range domain.Granularities {
		configSource[g] = db.latestLocked(g)
	}

	r := payloadReader{buf: payload}
	v, err := r.int32()
	if err != nil {
		return err
	}
	if v != BackupVersion {
		return domain.ErrUnsupportedBackupVersion.WithDetails("version %d", v)
	}

	for _, dir := range db.dirs {
		if err := bucket.RemoveAll(dir); err != nil {
			db.logger.Error("failed to clear bucket directory", "dir", dir, "error", err)
		}
	}
	for _, idx := range db.indexes {
		idx.Clear()
	}

	restored := 0
	for _, g := range domain.Granularities {
		count, err := r.int32()
		if err != nil {
			return err
		}
		for i := int32(0); i < count; i++ {
			record, err := r.record()
			if err != nil {
				return err
			}
			s := domain.MergeDeviceState(db.decodeRecord(record), configSource[g])
			if s == nil {
				continue
			}
			if err := db.putLocked(g, s); err != nil {
				return fmt.Errorf("storage: restore %s: %w", g, err)
			}
			restored++
		}
	}

	db.logger.Info("restored usage stats", "buckets", restored, "payload_bytes", len(payload))
	return nil
}

// decodeRecord parses one backup record, returning nil when it is empty or
// cannot be decoded.
func (db *Database) decodeRecord(record []byte) *domain.Snapshot {
	if len(record) < 8 {
		return nil
	}
	s, err := db.cfg.Codec.Decode(record[8:])
	if err != nil {
		db.logger.Warn("dropping undecodable backup record", "error", err)
		return nil
	}
	s.BeginTime = int64(binary.BigEndian.Uint64(record[:8]))
	return s
}

type payloadReader struct {
	buf []byte
}

func (r *payloadReader) int32() (int32, error) {
	if len(r.buf) < 4 {
		return 0, errTruncatedPayload
	}
	v := int32(binary.BigEndian.Uint32(r.buf))
	r.buf = r.buf[4:]
	return v, nil
}

func (r *payloadReader) record() ([]byte, error) {
	n, err := r.int32()
	if err != nil {
		return nil, err
	}
	if n < 0 || int(n) > len(r.buf) {
		return nil, errTruncatedPayload
	}
	rec := r.buf[:n]
	r.buf = r.buf[n:]
	return rec, nil
}
