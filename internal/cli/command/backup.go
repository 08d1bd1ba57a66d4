package command

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/usagestats-go/internal/cli/output"
	"github.com/yndnr/usagestats-go/internal/core/service"
	"github.com/yndnr/usagestats-go/internal/server/config"
	"github.com/yndnr/usagestats-go/internal/storage"
	"github.com/yndnr/usagestats-go/internal/storage/vault"
	"github.com/yndnr/usagestats-go/pkg/crypto/adaptive"
)

// BackupCommand returns the backup subcommand group.
func BackupCommand() *cli.Command {
	return &cli.Command{
		Name:  "backup",
		Usage: "Create, restore and list backups",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Serialize every bucket into a backup",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "file",
						Aliases: []string{"f"},
						Usage:   "Write the payload to FILE instead of the vault",
					},
				},
				Action: backupCreate,
			},
			{
				Name:  "restore",
				Usage: "Replace the buckets with a backup",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "file",
						Aliases: []string{"f"},
						Usage:   "Read the payload from FILE",
					},
					&cli.StringFlag{
						Name:  "id",
						Usage: "Vault entry to restore (default: newest)",
					},
				},
				Action: backupRestore,
			},
			{
				Name:   "list",
				Usage:  "List archived backups",
				Action: backupList,
			},
		},
	}
}

// openVault opens the vault of cfg with its derived cipher.
func openVault(cfg *config.Config, log *slog.Logger) (*vault.Vault, error) {
	master, err := adaptive.MasterKey(cfg.Storage.KeyConfig())
	if err != nil {
		return nil, err
	}
	ciph, err := adaptive.ForPurpose(master, adaptive.PurposeVault, adaptive.CipherType(cfg.Storage.Cipher))
	if err != nil {
		return nil, err
	}
	vcfg := vault.DefaultConfig(cfg.Vault.Dir)
	vcfg.Cipher = ciph
	return vault.Open(vcfg, log)
}

// withMaintenance opens the database and the vault and passes a
// maintenance service over both to fn.
func withMaintenance(c *cli.Context, fn func(svc *service.MaintenanceService) error) error {
	cfg := GetConfig(c)
	log := newLogger(cfg, c.App.ErrWriter)
	db, err := openDatabase(c, cfg, log)
	if err != nil {
		return err
	}
	v, err := openVault(cfg, log)
	if err != nil {
		return err
	}
	defer v.Close()

	ts, err := now(c)
	if err != nil {
		return err
	}
	return fn(service.NewMaintenanceService(db, v, service.MaintenanceConfig{
		Keep:   cfg.Vault.Keep,
		Clock:  func() time.Time { return time.UnixMilli(ts) },
		Logger: log,
	}))
}

func backupCreate(c *cli.Context) error {
	path := c.String("file")
	if path == "" {
		return withMaintenance(c, func(svc *service.MaintenanceService) error {
			entry, err := svc.RunBackup(ctxOf(c))
			if err != nil {
				return err
			}
			return render(c, entry)
		})
	}

	return withDatabase(c, func(db *storage.Database) error {
		payload := db.GetBackupPayload(storage.BackupKey)
		if len(payload) == 0 {
			return fmt.Errorf("backup payload is empty")
		}
		if err := os.WriteFile(path, payload, 0600); err != nil {
			return err
		}
		if ParseGlobalFlags(c).Output == output.FormatTable {
			fmt.Fprintf(writer(c), "wrote %d bytes to %s\n", len(payload), path)
			return nil
		}
		return render(c, map[string]any{"file": path, "size": len(payload)})
	})
}

func backupRestore(c *cli.Context) error {
	path, id := c.String("file"), c.String("id")
	if path != "" && id != "" {
		return fmt.Errorf("--file and --id are mutually exclusive")
	}

	if path == "" {
		return withMaintenance(c, func(svc *service.MaintenanceService) error {
			entry, err := svc.Restore(ctxOf(c), id)
			if err != nil {
				return err
			}
			return render(c, entry)
		})
	}

	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return withDatabase(c, func(db *storage.Database) error {
		if err := db.ApplyRestoredPayload(storage.BackupKey, payload); err != nil {
			return err
		}
		return render(c, db.Stats().Granularities)
	})
}

func backupList(c *cli.Context) error {
	cfg := GetConfig(c)
	v, err := openVault(cfg, newLogger(cfg, c.App.ErrWriter))
	if err != nil {
		return err
	}
	defer v.Close()

	entries, err := v.List(ctxOf(c))
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []vault.Entry{}
	}
	return render(c, entries)
}

func ctxOf(c *cli.Context) context.Context {
	if c.Context != nil {
		return c.Context
	}
	return context.Background()
}
