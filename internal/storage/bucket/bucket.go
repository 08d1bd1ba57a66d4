// Package bucket provides the on-disk file holding one encoded snapshot.
//
// File layout:
//
//	[magic:4 "USB1"][flags:1][PayloadLen:4][Payload:PayloadLen][checksum:4]
//
// The checksum is murmur3-32 over every byte before it. Flag bit 0 marks an
// encrypted payload. Writes go to "<name>.tmp" and are renamed over the final
// name, so a reader sees either the old or the new content, never a mix.
package bucket

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spaolacci/murmur3"

	"github.com/yndnr/usagestats-go/internal/core/domain"
)

var magicBytes = []byte("USB1")

const (
	// CheckedInSuffix marks a daily bucket that has been checked in.
	CheckedInSuffix = "-c"

	tempSuffix   = ".tmp"
	backupSuffix = ".bak"

	flagEncrypted byte = 1 << 0

	headerSize   = 4 + 1 + 4
	checksumSize = 4

	filePerm = 0640
)

// Sealer encrypts bucket payloads at rest. adaptive.Cipher satisfies it.
type Sealer interface {
	Encrypt(plaintext, additionalData []byte) ([]byte, error)
	Decrypt(ciphertext, additionalData []byte) ([]byte, error)
}

// File is one bucket file. It is not safe for concurrent use; the owning
// Database serializes access.
type File struct {
	path   string
	sealer Sealer
}

// Open returns a handle for the bucket at path. The file need not exist.
func Open(path string, sealer Sealer) *File {
	return &File{path: path, sealer: sealer}
}

// Path returns the current path of the file.
func (f *File) Path() string { return f.path }

// Name returns the base name of the file.
func (f *File) Name() string { return filepath.Base(f.path) }

// CheckedIn reports whether the file name carries the checked-in suffix.
func (f *File) CheckedIn() bool { return IsCheckedIn(f.Name()) }

// Read returns the last fully written payload.
func (f *File) Read() ([]byte, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrBucketNotFound.WithDetails("%s", f.path).WithCause(err)
		}
		return nil, fmt.Errorf("bucket: read %s: %w", f.path, err)
	}
	return f.unframe(raw)
}

// Write atomically replaces the file content with payload.
func (f *File) Write(payload []byte) error {
	framed, err := f.frame(payload)
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	tempPath := f.path + tempSuffix
	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("bucket: create temp file: %w", err)
	}
	defer os.Remove(tempPath)

	if _, err := file.Write(framed); err != nil {
		file.Close()
		return fmt.Errorf("bucket: write: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("bucket: sync: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("bucket: close: %w", err)
	}
	if err := os.Rename(tempPath, f.path); err != nil {
		return fmt.Errorf("bucket: rename: %w", err)
	}

	// The rename is durable only once the directory entry is flushed.
	_ = syncDir(dir)
	return nil
}

// Delete removes the file. A missing file is not an error.
func (f *File) Delete() error {
	_ = os.Remove(f.path + tempSuffix)
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("bucket: delete %s: %w", f.path, err)
	}
	return nil
}

// Rename moves the file to newName inside the same directory. The target
// must not exist.
func (f *File) Rename(newName string) error {
	target := filepath.Join(filepath.Dir(f.path), newName)
	if target == f.path {
		return nil
	}
	if _, err := os.Lstat(target); err == nil {
		return domain.ErrRenameFailed.WithDetails("%s already exists", target)
	}
	if err := os.Rename(f.path, target); err != nil {
		return domain.ErrRenameFailed.WithDetails("%s", f.path).WithCause(err)
	}
	f.path = target
	return nil
}

// Touch opens and closes the file, forcing an existence check.
func (f *File) Touch() error {
	file, err := os.Open(f.path)
	if err != nil {
		return err
	}
	return file.Close()
}

// ModTime returns the modification time in Unix milliseconds.
func (f *File) ModTime() (int64, error) {
	st, err := os.Stat(f.path)
	if err != nil {
		return 0, err
	}
	return st.ModTime().UnixMilli(), nil
}

func (f *File) frame(payload []byte) ([]byte, error) {
	var flags byte
	if f.sealer != nil {
		sealed, err := f.sealer.Encrypt(payload, f.additionalData())
		if err != nil {
			return nil, fmt.Errorf("bucket: encrypt: %w", err)
		}
		payload = sealed
		flags |= flagEncrypted
	}

	out := make([]byte, 0, headerSize+len(payload)+checksumSize)
	out = append(out, magicBytes...)
	out = append(out, flags)
	out = binary.BigEndian.AppendUint32(out, uint32(len(payload)))
	out = append(out, payload...)
	out = binary.BigEndian.AppendUint32(out, murmur3.Sum32(out))
	return out, nil
}

func (f *File) unframe(raw []byte) ([]byte, error) {
	if len(raw) < headerSize+checksumSize {
		return nil, domain.ErrCorruptRead.WithDetails("%s: short file", f.path)
	}
	if !bytes.Equal(raw[:4], magicBytes) {
		return nil, domain.ErrCorruptRead.WithDetails("%s: invalid magic", f.path)
	}
	flags := raw[4]
	size := binary.BigEndian.Uint32(raw[5:headerSize])
	if uint64(headerSize)+uint64(size)+checksumSize != uint64(len(raw)) {
		return nil, domain.ErrCorruptRead.WithDetails("%s: length mismatch", f.path)
	}
	body := raw[:len(raw)-checksumSize]
	want := binary.BigEndian.Uint32(raw[len(raw)-checksumSize:])
	if murmur3.Sum32(body) != want {
		return nil, domain.ErrCorruptRead.WithDetails("%s: checksum mismatch", f.path)
	}

	// Key problems wrap ErrKeyMismatch so callers can tell a healthy bucket
	// read with the wrong key from a damaged one.
	payload := body[headerSize:]
	if flags&flagEncrypted == 0 {
		if f.sealer != nil {
			return nil, domain.ErrCorruptRead.WithDetails("%s", f.path).
				WithCause(domain.ErrKeyMismatch.WithDetails("bucket is not encrypted"))
		}
		return payload, nil
	}
	if f.sealer == nil {
		return nil, domain.ErrCorruptRead.WithDetails("%s", f.path).
			WithCause(domain.ErrKeyMismatch.WithDetails("encrypted bucket requires a key"))
	}
	plain, err := f.sealer.Decrypt(payload, f.additionalData())
	if err != nil {
		return nil, domain.ErrCorruptRead.WithDetails("%s", f.path).
			WithCause(domain.ErrKeyMismatch.WithDetails("decrypt").WithCause(err))
	}
	return plain, nil
}

// additionalData binds a payload to its granularity directory so a bucket
// cannot be moved between granularities undetected.
func (f *File) additionalData() []byte {
	return []byte(filepath.Base(filepath.Dir(f.path)))
}

// FileName returns the bucket file name for a begin time.
func FileName(beginTime int64, checkedIn bool) string {
	name := strconv.FormatInt(beginTime, 10)
	if checkedIn {
		name += CheckedInSuffix
	}
	return name
}

// IsCheckedIn reports whether name carries the checked-in suffix.
func IsCheckedIn(name string) bool {
	return strings.HasSuffix(name, CheckedInSuffix)
}

// ParseName extracts the begin time encoded in a bucket file name. The
// authoritative begin time is the one stored in the file; the name is the
// fallback when the file cannot be read.
func ParseName(name string) (beginTime int64, checkedIn bool, err error) {
	checkedIn = IsCheckedIn(name)
	beginTime, err = strconv.ParseInt(strings.TrimSuffix(name, CheckedInSuffix), 10, 64)
	return beginTime, checkedIn, err
}

// List returns the paths of all bucket files in dir, skipping temp and
// backup files. A missing directory yields an empty list.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, tempSuffix) || strings.HasSuffix(name, backupSuffix) {
			continue
		}
		paths = append(paths, filepath.Join(dir, name))
	}
	return paths, nil
}

// RemoveAll deletes every entry of dir, including temp files and
// subdirectories, and keeps dir itself.
func RemoveAll(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	var firstErr error
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open dir for sync: %w", err)
	}
	defer d.Close()
	return d.Sync()
}
