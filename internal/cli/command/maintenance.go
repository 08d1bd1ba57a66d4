package command

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/usagestats-go/internal/cli/output"
	"github.com/yndnr/usagestats-go/internal/core/domain"
	"github.com/yndnr/usagestats-go/internal/storage"
)

// PruneCommand returns the prune command.
func PruneCommand() *cli.Command {
	return &cli.Command{
		Name:  "prune",
		Usage: "Delete expired buckets and redact old selection logs",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "selection-log-days",
				Usage: "Override storage.selection_log_retention_days for this run",
			},
		},
		Action: runPrune,
	}
}

func runPrune(c *cli.Context) error {
	ts, err := now(c)
	if err != nil {
		return err
	}
	return withDatabase(c, func(db *storage.Database) error {
		if days := c.Int("selection-log-days"); days > 0 {
			db.SetSelectionLogRetentionDays(days)
		}
		return render(c, db.Prune(ts))
	})
}

// CheckinCommand returns the checkin command.
func CheckinCommand() *cli.Command {
	return &cli.Command{
		Name:   "checkin",
		Usage:  "Hand finished daily buckets over and mark them checked in",
		Action: runCheckin,
	}
}

type checkinResult struct {
	CheckedIn bool        `json:"checked_in" yaml:"checked_in"`
	Buckets   []bucketRow `json:"buckets" yaml:"buckets"`
}

func runCheckin(c *cli.Context) error {
	return withDatabase(c, func(db *storage.Database) error {
		res := checkinResult{Buckets: []bucketRow{}}
		res.CheckedIn = db.CheckinDailyFiles(func(s *domain.Snapshot) bool {
			res.Buckets = append(res.Buckets, summarize(s, false))
			return true
		})
		if ParseGlobalFlags(c).Output != output.FormatTable {
			return render(c, res)
		}
		if !res.CheckedIn {
			return fmt.Errorf("checkin failed after %d buckets", len(res.Buckets))
		}
		return render(c, res.Buckets)
	})
}

// TimeChangeCommand returns the time-change command.
func TimeChangeCommand() *cli.Command {
	return &cli.Command{
		Name:  "time-change",
		Usage: "Shift every bucket after a wall clock change",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:     "delta",
				Aliases:  []string{"d"},
				Usage:    "Clock change, e.g. 2h or -30m",
				Required: true,
			},
		},
		Action: runTimeChange,
	}
}

func runTimeChange(c *cli.Context) error {
	delta := c.Duration("delta")
	if delta == 0 {
		return fmt.Errorf("--delta must not be zero")
	}
	return withDatabase(c, func(db *storage.Database) error {
		db.OnTimeChanged(delta.Milliseconds())
		st := db.Stats()
		if ParseGlobalFlags(c).Output == output.FormatTable {
			fmt.Fprintf(writer(c), "shifted buckets by %s\n\n", delta.Round(time.Millisecond))
		}
		return render(c, st.Granularities)
	})
}
