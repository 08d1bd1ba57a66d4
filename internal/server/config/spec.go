package config

import (
	"time"

	"github.com/yndnr/usagestats-go/pkg/crypto/adaptive"
)

// Config is the root configuration.
type Config struct {
	Storage     StorageSection     `koanf:"storage" json:"storage" yaml:"storage"`
	Maintenance MaintenanceSection `koanf:"maintenance" json:"maintenance" yaml:"maintenance"`
	Vault       VaultSection       `koanf:"vault" json:"vault" yaml:"vault"`
	Metrics     MetricsSection     `koanf:"metrics" json:"metrics" yaml:"metrics"`
	Log         LogSection         `koanf:"log" json:"log" yaml:"log"`
}

// StorageSection configures the bucket database.
type StorageSection struct {
	Root string `koanf:"root" json:"root" yaml:"root"`

	// SelectionLogRetentionDays bounds how long chooser counts are kept.
	SelectionLogRetentionDays int `koanf:"selection_log_retention_days" json:"selection_log_retention_days" yaml:"selection_log_retention_days"`

	// EncryptionKey is a hex 32-byte key. It takes precedence over
	// EncryptionPassphrase.
	EncryptionKey        string `koanf:"encryption_key" json:"encryption_key,omitempty" yaml:"encryption_key,omitempty"`
	EncryptionPassphrase string `koanf:"encryption_passphrase" json:"encryption_passphrase,omitempty" yaml:"encryption_passphrase,omitempty"`
	EncryptionSalt       string `koanf:"encryption_salt" json:"encryption_salt,omitempty" yaml:"encryption_salt,omitempty"`

	// Cipher is "aes-gcm", "chacha20-poly1305" or empty for the platform
	// default.
	Cipher string `koanf:"cipher" json:"cipher,omitempty" yaml:"cipher,omitempty"`
}

// KeyConfig returns the key source of the section.
func (s StorageSection) KeyConfig() adaptive.KeyConfig {
	return adaptive.KeyConfig{
		Key:        s.EncryptionKey,
		Passphrase: s.EncryptionPassphrase,
		Salt:       s.EncryptionSalt,
	}
}

// MaintenanceSection configures the periodic tasks of serve. A zero
// interval disables the task.
type MaintenanceSection struct {
	PruneInterval   time.Duration `koanf:"prune_interval" json:"prune_interval" yaml:"prune_interval"`
	CheckinInterval time.Duration `koanf:"checkin_interval" json:"checkin_interval" yaml:"checkin_interval"`
	BackupInterval  time.Duration `koanf:"backup_interval" json:"backup_interval" yaml:"backup_interval"`
}

// VaultSection configures the backup archive.
type VaultSection struct {
	Dir  string `koanf:"dir" json:"dir" yaml:"dir"`
	Keep int    `koanf:"keep" json:"keep" yaml:"keep"`
}

// MetricsSection configures the metrics endpoint. An empty address disables
// it.
type MetricsSection struct {
	Addr string `koanf:"addr" json:"addr" yaml:"addr"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level" json:"level" yaml:"level"`
	Format string `koanf:"format" json:"format" yaml:"format"`
}
