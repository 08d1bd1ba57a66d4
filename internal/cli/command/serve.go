package command

import (
	"context"
	"log/slog"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/usagestats-go/internal/core/service"
	"github.com/yndnr/usagestats-go/internal/infra/buildinfo"
	"github.com/yndnr/usagestats-go/internal/infra/confloader"
	"github.com/yndnr/usagestats-go/internal/infra/shutdown"
	"github.com/yndnr/usagestats-go/internal/server/config"
	"github.com/yndnr/usagestats-go/internal/server/metricsserver"
	"github.com/yndnr/usagestats-go/internal/telemetry/logger"
	"github.com/yndnr/usagestats-go/internal/telemetry/metric"
)

const shutdownTimeout = 30 * time.Second

// ServeCommand returns the serve command.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the maintenance loops and the metrics endpoint",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-watch",
				Usage: "Do not reload the configuration file on change",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg := GetConfig(c)
	log := newLogger(cfg, c.App.ErrWriter)
	slog.SetDefault(log)

	log.Info("starting usagestats",
		"version", buildinfo.String(),
		"config", c.String("config"),
		"storage", config.Sanitize(cfg).Storage)

	db, err := openDatabase(c, cfg, log)
	if err != nil {
		return err
	}

	reg := metric.NewRegistry()
	if err := db.RegisterMetrics(reg.Registerer()); err != nil {
		return err
	}
	if err := reg.Registerer().Register(metric.NewStatsCollector(db)); err != nil {
		return err
	}

	h := shutdown.NewHandler(shutdownTimeout, log)

	var archive service.BackupArchive
	if cfg.Vault.Dir != "" {
		v, err := openVault(cfg, log)
		if err != nil {
			return err
		}
		if err := v.RegisterMetrics(reg.Registerer()); err != nil {
			v.Close()
			return err
		}
		h.OnShutdown("vault", func(context.Context) error { return v.Close() })
		archive = v
	}

	svc := service.NewMaintenanceService(db, archive, service.MaintenanceConfig{
		PruneInterval:   cfg.Maintenance.PruneInterval,
		CheckinInterval: cfg.Maintenance.CheckinInterval,
		BackupInterval:  cfg.Maintenance.BackupInterval,
		Keep:            cfg.Vault.Keep,
		Logger:          log,
		Metrics:         reg,
	})

	if cfg.Metrics.Addr != "" {
		srv := metricsserver.New(cfg.Metrics.Addr, metricsserver.NewRouter(metricsserver.RouterConfig{
			Registry: reg,
			Stats:    db,
			Logger:   log,
		}), log)
		if err := srv.Start(); err != nil {
			h.Shutdown()
			return err
		}
		h.OnShutdown("metrics server", srv.Shutdown)
	}

	if path := c.String("config"); path != "" && !c.Bool("no-watch") {
		w, err := watchConfig(path, overrides(c), svc, reg, log)
		if err != nil {
			log.Warn("config reload disabled", "error", err)
		} else {
			h.OnShutdown("config watcher", func(context.Context) error { return w.Stop() })
		}
	}

	ctx, cancel := context.WithCancel(ctxOf(c))
	defer cancel()
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		svc.Run(ctx)
	}()
	h.OnShutdown("maintenance", func(sctx context.Context) error {
		cancel()
		select {
		case <-stopped:
			return nil
		case <-sctx.Done():
			return sctx.Err()
		}
	})

	log.Info("usagestats running")
	if err := h.Wait(ctx); err != nil {
		return err
	}
	log.Info("usagestats stopped")
	return nil
}

// watchConfig reloads path on change and applies the settings that can
// change at runtime: the log level and the selection log retention.
func watchConfig(path string, extra map[string]any, svc *service.MaintenanceService, reg *metric.Registry, log *slog.Logger) (*confloader.Watcher, error) {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return nil, err
	}
	if err := w.Watch(path); err != nil {
		w.Stop()
		return nil, err
	}
	w.OnChange(func(string) {
		next, err := config.Load(path, extra)
		reg.ObserveReload(err)
		if err != nil {
			log.Warn("config reload rejected", "path", path, "error", err)
			return
		}
		logger.SetLevel(next.Log.Level)
		svc.SetSelectionLogRetentionDays(next.Storage.SelectionLogRetentionDays)
		log.Info("config reloaded",
			"path", path,
			"log_level", next.Log.Level,
			"selection_log_retention_days", next.Storage.SelectionLogRetentionDays)
	})
	w.StartAsync()
	return w, nil
}
