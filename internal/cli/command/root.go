package command

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/usagestats-go/internal/cli/output"
	"github.com/yndnr/usagestats-go/internal/infra/buildinfo"
	"github.com/yndnr/usagestats-go/internal/server/config"
	"github.com/yndnr/usagestats-go/internal/storage"
	"github.com/yndnr/usagestats-go/internal/telemetry/logger"
	"github.com/yndnr/usagestats-go/pkg/crypto/adaptive"
)

const metaConfig = "config"

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "usagestats",
		Usage:   "Time-bucketed usage statistics store",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			InfoCommand(),
			PutCommand(),
			LatestCommand(),
			QueryCommand(),
			BestFitCommand(),
			PruneCommand(),
			CheckinCommand(),
			TimeChangeCommand(),
			BackupCommand(),
			ServeCommand(),
			ConfigCommand(),
		},
		Before: func(c *cli.Context) error {
			if _, err := output.ParseFormat(c.String("output")); err != nil {
				return err
			}
			cfg, err := config.Load(c.String("config"), overrides(c))
			if err != nil {
				return err
			}
			if c.App.Metadata == nil {
				c.App.Metadata = make(map[string]any)
			}
			c.App.Metadata[metaConfig] = cfg
			return nil
		},
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to a YAML configuration file",
			EnvVars: []string{"USAGESTATS_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "root",
			Aliases: []string{"r"},
			Usage:   "Storage root directory (overrides storage.root)",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   "table",
		},
		&cli.StringFlag{
			Name:  "now",
			Usage: "Current time as RFC 3339 or Unix milliseconds (default: wall clock)",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Log at debug level",
		},
	}
}

// GlobalFlags defines flags available to all commands.
type GlobalFlags struct {
	Config  string
	Root    string
	Output  output.Format
	Now     string
	Verbose bool
}

// ParseGlobalFlags extracts global flags from context.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	format, _ := output.ParseFormat(c.String("output"))
	return &GlobalFlags{
		Config:  c.String("config"),
		Root:    c.String("root"),
		Output:  format,
		Now:     c.String("now"),
		Verbose: c.Bool("verbose"),
	}
}

func overrides(c *cli.Context) map[string]any {
	m := make(map[string]any)
	if root := c.String("root"); root != "" {
		m["storage.root"] = root
	}
	if c.Bool("verbose") {
		m["log.level"] = "debug"
	}
	return m
}

// GetConfig returns the configuration loaded by the Before hook.
func GetConfig(c *cli.Context) *config.Config {
	if cfg, ok := c.App.Metadata[metaConfig].(*config.Config); ok {
		return cfg
	}
	return config.Default()
}

// now returns the --now instant in Unix milliseconds.
func now(c *cli.Context) (int64, error) {
	if s := c.String("now"); s != "" {
		return parseTime(s)
	}
	return time.Now().UnixMilli(), nil
}

// newLogger builds the command logger. Logs go to stderr so they never mix
// with command output.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: w,
	})
}

// openDatabase opens and initializes the database described by cfg.
func openDatabase(c *cli.Context, cfg *config.Config, log *slog.Logger) (*storage.Database, error) {
	master, err := adaptive.MasterKey(cfg.Storage.KeyConfig())
	if err != nil {
		return nil, err
	}
	ciph, err := adaptive.ForPurpose(master, adaptive.PurposeBuckets, adaptive.CipherType(cfg.Storage.Cipher))
	if err != nil {
		return nil, err
	}

	ts, err := now(c)
	if err != nil {
		return nil, err
	}

	dbCfg := storage.DefaultConfig(cfg.Storage.Root)
	dbCfg.Cipher = ciph
	dbCfg.SelectionLogRetentionDays = cfg.Storage.SelectionLogRetentionDays
	dbCfg.Logger = log
	if c.String("now") != "" {
		// Operations that prune on their own use the pinned time too.
		dbCfg.Clock = func() time.Time { return time.UnixMilli(ts) }
	}
	db, err := storage.New(dbCfg)
	if err != nil {
		return nil, err
	}
	if err := db.Init(ts); err != nil {
		return nil, err
	}
	return db, nil
}

// withDatabase opens the database and passes it to fn.
func withDatabase(c *cli.Context, fn func(db *storage.Database) error) error {
	cfg := GetConfig(c)
	db, err := openDatabase(c, cfg, newLogger(cfg, c.App.ErrWriter))
	if err != nil {
		return err
	}
	return fn(db)
}

// render writes data to the app writer in the selected format.
func render(c *cli.Context, data any) error {
	return renderAs(c, ParseGlobalFlags(c).Output, data)
}

func renderAs(c *cli.Context, format output.Format, data any) error {
	return output.NewFormatter(format).Format(writer(c), data)
}

func writer(c *cli.Context) io.Writer {
	if c.App.Writer != nil {
		return c.App.Writer
	}
	return os.Stdout
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}
