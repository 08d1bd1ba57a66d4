// Package version reads and writes the store's version file.
//
// The file holds two lines: the schema version and the fingerprint of the
// build that last wrote the store.
package version

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/yndnr/usagestats-go/internal/core/domain"
)

// FileName is the name of the version file inside the storage root.
const FileName = "version"

// Metadata is the content of the version file.
type Metadata struct {
	SchemaVersion int    `json:"schema_version"`
	Fingerprint   string `json:"fingerprint"`
}

// State is the result of Load.
type State struct {
	Metadata

	// FirstRun is true when no fingerprint was recorded.
	FirstRun bool

	// NewBuild is true when the recorded fingerprint differs from the
	// current one, including on first run.
	NewBuild bool
}

// Store manages the version file under a root directory.
type Store struct {
	path   string
	logger *slog.Logger
}

// NewStore returns a store for root/version.
func NewStore(root string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{path: filepath.Join(root, FileName), logger: logger}
}

// Path returns the version file path.
func (s *Store) Path() string { return s.path }

// Load reads the version file and compares it with currentFingerprint. A
// missing or unreadable file yields schema version 0 and a first run.
func (s *Store) Load(currentFingerprint string) State {
	st := State{FirstRun: true, NewBuild: true}

	md, err := s.read()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("version file unreadable, assuming first run",
				"path", s.path,
				"error", domain.ErrVersionReadFailure.WithCause(err))
		}
		return st
	}

	st.Metadata = md
	if md.Fingerprint != "" {
		st.FirstRun = false
	}
	if md.Fingerprint == currentFingerprint {
		st.NewBuild = false
	}
	return st
}

func (s *Store) read() (Metadata, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return Metadata{}, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return Metadata{}, err
		}
		return Metadata{}, errors.New("empty version file")
	}
	v, err := strconv.Atoi(strings.TrimSpace(sc.Text()))
	if err != nil {
		return Metadata{}, fmt.Errorf("parse schema version: %w", err)
	}

	md := Metadata{SchemaVersion: v}
	if sc.Scan() {
		md.Fingerprint = sc.Text()
	}
	return md, sc.Err()
}

// Save atomically replaces the version file.
func (s *Store) Save(md Metadata) error {
	content := strconv.Itoa(md.SchemaVersion) + "\n" + md.Fingerprint + "\n"

	tempPath := s.path + ".tmp"
	f, err := os.OpenFile(tempPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0640)
	if err != nil {
		return fmt.Errorf("version: create temp file: %w", err)
	}
	defer os.Remove(tempPath)

	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return fmt.Errorf("version: write: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("version: sync: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("version: close: %w", err)
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		return fmt.Errorf("version: rename: %w", err)
	}
	return nil
}
