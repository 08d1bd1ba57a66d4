package command

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/usagestats-go/internal/cli/output"
	"github.com/yndnr/usagestats-go/internal/core/domain"
	"github.com/yndnr/usagestats-go/internal/storage"
	"github.com/yndnr/usagestats-go/pkg/unixcal"
)

// bucketRow is the summary of one snapshot shown by latest, query and
// checkin.
type bucketRow struct {
	BeginTime      int64 `json:"begin_time" yaml:"begin_time" table:"millis"`
	EndTime        int64 `json:"end_time" yaml:"end_time" table:"millis"`
	Packages       int   `json:"packages" yaml:"packages"`
	Configurations int   `json:"configurations" yaml:"configurations"`
	Events         int   `json:"events" yaml:"events"`
	LastInRange    bool  `json:"last_in_range,omitempty" yaml:"last_in_range,omitempty"`
}

func summarize(s *domain.Snapshot, lastInRange bool) bucketRow {
	return bucketRow{
		BeginTime:      s.BeginTime,
		EndTime:        s.EndTime,
		Packages:       len(s.Packages),
		Configurations: len(s.Configurations),
		Events:         len(s.Events),
		LastInRange:    lastInRange,
	}
}

func granularityFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "granularity",
		Aliases:  []string{"g"},
		Usage:    "Bucket granularity: daily, weekly, monthly, yearly",
		Required: true,
	}
}

func rangeFlagSet() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "begin", Aliases: []string{"b"}, Usage: "Range start (inclusive)", Required: true},
		&cli.StringFlag{Name: "end", Aliases: []string{"e"}, Usage: "Range end (exclusive)", Required: true},
	}
}

// InfoCommand returns the info command.
func InfoCommand() *cli.Command {
	return &cli.Command{
		Name:   "info",
		Usage:  "Show the buckets held by each granularity",
		Action: runInfo,
	}
}

func runInfo(c *cli.Context) error {
	return withDatabase(c, func(db *storage.Database) error {
		st := db.Stats()
		if ParseGlobalFlags(c).Output != output.FormatTable {
			return render(c, st)
		}
		fmt.Fprintf(writer(c), "root: %s  schema: %d  build: %s\n\n", st.Root, st.SchemaVersion, st.Fingerprint)
		return render(c, st.Granularities)
	})
}

// PutCommand returns the put command.
func PutCommand() *cli.Command {
	return &cli.Command{
		Name:  "put",
		Usage: "Store a snapshot in its bucket",
		Flags: []cli.Flag{
			granularityFlag(),
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "JSON snapshot file, - for stdin"},
			&cli.StringFlag{Name: "begin", Aliases: []string{"b"}, Usage: "Begin time of an empty snapshot"},
			&cli.StringFlag{Name: "end", Aliases: []string{"e"}, Usage: "End time of an empty snapshot (default: one granularity after --begin)"},
			&cli.StringSliceFlag{Name: "package", Aliases: []string{"p"}, Usage: "Record one launch of a package"},
		},
		Action: runPut,
	}
}

func runPut(c *cli.Context) error {
	g, err := domain.ParseGranularity(c.String("granularity"))
	if err != nil {
		return err
	}
	snap, err := snapshotFromFlags(c, g)
	if err != nil {
		return err
	}
	for _, name := range c.StringSlice("package") {
		p := snap.GetOrCreatePackage(name)
		p.LaunchCount++
		p.LastTimeUsed = snap.EndTime - 1
	}

	return withDatabase(c, func(db *storage.Database) error {
		if err := db.Put(g, snap); err != nil {
			return err
		}
		return render(c, summarize(snap, false))
	})
}

// granularityUnits is the calendar length of one bucket.
var granularityUnits = map[domain.Granularity]unixcal.Unit{
	domain.Daily:   unixcal.Day,
	domain.Weekly:  unixcal.Week,
	domain.Monthly: unixcal.Month,
	domain.Yearly:  unixcal.Year,
}

func snapshotFromFlags(c *cli.Context, g domain.Granularity) (*domain.Snapshot, error) {
	if path := c.String("file"); path != "" {
		var r io.Reader = os.Stdin
		if path != "-" {
			f, err := os.Open(path)
			if err != nil {
				return nil, err
			}
			defer f.Close()
			r = f
		}
		var snap domain.Snapshot
		if err := json.NewDecoder(r).Decode(&snap); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		return &snap, nil
	}

	if c.String("begin") == "" {
		return nil, fmt.Errorf("either --file or --begin is required")
	}
	begin, err := parseTime(c.String("begin"))
	if err != nil {
		return nil, err
	}
	end := unixcal.Add(begin, granularityUnits[g], 1)
	if c.String("end") != "" {
		if end, err = parseTime(c.String("end")); err != nil {
			return nil, err
		}
	}
	return domain.NewSnapshot(begin, end), nil
}

// LatestCommand returns the latest command.
func LatestCommand() *cli.Command {
	return &cli.Command{
		Name:  "latest",
		Usage: "Show the newest bucket of a granularity",
		Flags: []cli.Flag{
			granularityFlag(),
			&cli.BoolFlag{Name: "full", Usage: "Print the whole snapshot instead of a summary"},
		},
		Action: runLatest,
	}
}

func runLatest(c *cli.Context) error {
	g, err := domain.ParseGranularity(c.String("granularity"))
	if err != nil {
		return err
	}
	return withDatabase(c, func(db *storage.Database) error {
		snap, err := db.GetLatest(g)
		if err != nil {
			return err
		}
		if snap == nil {
			return fmt.Errorf("no %s buckets", g)
		}
		if c.Bool("full") {
			return render(c, snap)
		}
		return render(c, summarize(snap, false))
	})
}

// QueryCommand returns the query command.
func QueryCommand() *cli.Command {
	return &cli.Command{
		Name:   "query",
		Usage:  "List the buckets overlapping a time range",
		Flags:  append([]cli.Flag{granularityFlag()}, rangeFlagSet()...),
		Action: runQuery,
	}
}

func runQuery(c *cli.Context) error {
	g, err := domain.ParseGranularity(c.String("granularity"))
	if err != nil {
		return err
	}
	begin, end, err := rangeFlags(c.String("begin"), c.String("end"))
	if err != nil {
		return err
	}
	return withDatabase(c, func(db *storage.Database) error {
		rows, err := storage.QueryRange(db, g, begin, end, func(s *domain.Snapshot, last bool, out *[]bucketRow) {
			*out = append(*out, summarize(s, last))
		})
		if err != nil {
			return err
		}
		if rows == nil {
			rows = []bucketRow{}
		}
		return render(c, rows)
	})
}

// BestFitCommand returns the best-fit command.
func BestFitCommand() *cli.Command {
	return &cli.Command{
		Name:   "best-fit",
		Usage:  "Pick the granularity that best covers a time range",
		Flags:  rangeFlagSet(),
		Action: runBestFit,
	}
}

func runBestFit(c *cli.Context) error {
	begin, end, err := rangeFlags(c.String("begin"), c.String("end"))
	if err != nil {
		return err
	}
	return withDatabase(c, func(db *storage.Database) error {
		g := db.FindBestFitBucket(begin, end)
		result := struct {
			Granularity string `json:"granularity" yaml:"granularity"`
		}{Granularity: "-"}
		if g.Valid() {
			result.Granularity = g.String()
		}
		return render(c, result)
	})
}
