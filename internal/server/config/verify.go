package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/yndnr/usagestats-go/internal/telemetry/logger"
	"github.com/yndnr/usagestats-go/pkg/crypto/adaptive"
)

// Verify validates the configuration.
func Verify(cfg *Config) error {
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	if err := verifyMaintenance(&cfg.Maintenance); err != nil {
		return err
	}
	if err := verifyVault(&cfg.Vault); err != nil {
		return err
	}
	if cfg.Metrics.Addr != "" {
		if _, _, err := net.SplitHostPort(cfg.Metrics.Addr); err != nil {
			return fmt.Errorf("metrics.addr: %w", err)
		}
	}
	return verifyLog(&cfg.Log)
}

func verifyStorage(s *StorageSection) error {
	if s.Root == "" {
		return errors.New("storage.root is required")
	}
	if s.SelectionLogRetentionDays < 1 {
		return errors.New("storage.selection_log_retention_days must be at least 1")
	}
	switch adaptive.CipherType(s.Cipher) {
	case "", adaptive.CipherAESGCM, adaptive.CipherChaCha20:
	default:
		return fmt.Errorf("storage.cipher: unknown cipher %q", s.Cipher)
	}
	if err := s.KeyConfig().Validate(); err != nil {
		return fmt.Errorf("storage encryption: %w", err)
	}
	return nil
}

func verifyMaintenance(m *MaintenanceSection) error {
	if m.PruneInterval < 0 || m.CheckinInterval < 0 || m.BackupInterval < 0 {
		return errors.New("maintenance intervals must not be negative")
	}
	return nil
}

func verifyVault(v *VaultSection) error {
	if v.Dir == "" {
		return errors.New("vault.dir is required")
	}
	if v.Keep < 1 {
		return errors.New("vault.keep must be at least 1")
	}
	return nil
}

func verifyLog(l *LogSection) error {
	if !logger.ValidLevel(l.Level) {
		return fmt.Errorf("log.level: unknown level %q", l.Level)
	}
	switch strings.ToLower(l.Format) {
	case "json", "text", "console":
	default:
		return fmt.Errorf("log.format: unknown format %q", l.Format)
	}
	return nil
}
