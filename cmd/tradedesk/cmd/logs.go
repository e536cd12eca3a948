package cmd

import (
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/rustyeddy/tradedesk/journal"
	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Print the persisted activity log",
	Long: `Print activity log entries from the SQLite journal, oldest first.

The journal is read from --db, or from journal.path when the config selects
the sqlite sink.

Examples:
  tradedesk logs --limit 20
  tradedesk logs --day 2024-01-15
  tradedesk logs --out activity-log.txt`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

var (
	logsDBPath string
	logsLimit  int
	logsDay    string
	logsOut    string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().StringVarP(&logsDBPath, "db", "d", "", "path to SQLite journal DB")
	logsCmd.Flags().IntVarP(&logsLimit, "limit", "n", 0, "show only the most recent n entries (0 = all)")
	logsCmd.Flags().StringVar(&logsDay, "day", "", "only entries from this local day (YYYY-MM-DD)")
	logsCmd.Flags().StringVarP(&logsOut, "out", "o", "", "write to a file instead of stdout")
}

func runLogs(cmd *cobra.Command, args []string) error {
	path := logsDBPath
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Journal.Sink != "sqlite" {
			return fmt.Errorf("no sqlite journal configured; pass --db")
		}
		path = cfg.Journal.Path
	}

	j, err := journal.NewSQLite(path)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	var entries []journal.Entry
	if logsDay != "" {
		start, end, err := dayBounds(time.Local, logsDay)
		if err != nil {
			return fmt.Errorf("date: %w", err)
		}
		entries, err = j.ListEntriesBetween(start, end)
		if err != nil {
			return fmt.Errorf("query entries: %w", err)
		}
		// ListEntriesBetween is oldest-first.
		slices.Reverse(entries)
		if logsLimit > 0 && len(entries) > logsLimit {
			entries = entries[:logsLimit]
		}
	} else {
		entries, err = j.ListEntries(logsLimit)
		if err != nil {
			return fmt.Errorf("query entries: %w", err)
		}
	}

	var w io.Writer = os.Stdout
	if logsOut != "" {
		f, err := os.Create(logsOut)
		if err != nil {
			return fmt.Errorf("create %s: %w", logsOut, err)
		}
		defer f.Close()
		w = f
	}

	if err := journal.WriteEntries(w, entries); err != nil {
		return err
	}
	if logsOut != "" {
		fmt.Printf("✓ Wrote %d entries to %s\n", len(entries), logsOut)
	}
	return nil
}

func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1), nil
}
