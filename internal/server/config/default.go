package config

import (
	"time"

	"github.com/yndnr/usagestats-go/internal/storage"
	"github.com/yndnr/usagestats-go/internal/storage/vault"
)

// Default configuration values.
const (
	DefaultRoot     = "data/usagestats"
	DefaultVaultDir = "data/vault"

	DefaultPruneInterval   = 24 * time.Hour
	DefaultCheckinInterval = 24 * time.Hour
	DefaultBackupInterval  = 24 * time.Hour

	DefaultMetricsAddr = "127.0.0.1:9464"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Storage: StorageSection{
			Root:                      DefaultRoot,
			SelectionLogRetentionDays: storage.DefaultSelectionLogRetentionDays,
		},
		Maintenance: MaintenanceSection{
			PruneInterval:   DefaultPruneInterval,
			CheckinInterval: DefaultCheckinInterval,
			BackupInterval:  DefaultBackupInterval,
		},
		Vault: VaultSection{
			Dir:  DefaultVaultDir,
			Keep: vault.DefaultKeep,
		},
		Metrics: MetricsSection{
			Addr: DefaultMetricsAddr,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
