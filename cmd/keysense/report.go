package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"keysense/internal/store"
)

// openStore opens the database named by -db, falling back to the
// configured storage path. A missing database is reported rather than
// created.
func openStore(configPath, dbPath string) (*store.Store, string, error) {
	if dbPath == "" {
		_, cfg, err := loadConfig(configPath)
		if err != nil {
			return nil, "", err
		}
		dbPath = cfg.Storage.Path
	}

	if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
		return nil, dbPath, fmt.Errorf("no activity database at %s (run 'keysense run' first)", dbPath)
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return nil, dbPath, err
	}
	return st, dbPath, nil
}

func cmdReport(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	configPath := fs.String("config", "", "Configuration file (default: data dir config.toml)")
	dbPath := fs.String("db", "", "Activity database (default: from configuration)")
	since := fs.Duration("since", 24*time.Hour, "Report window ending now")
	asJSON := fs.Bool("json", false, "Write the report as JSON")
	detailed := fs.Bool("detailed", false, "Include every span")
	fs.Parse(args)

	if *since <= 0 {
		return fmt.Errorf("-since must be positive")
	}

	st, path, err := openStore(*configPath, *dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	now := time.Now()
	report, err := st.BuildReport(ctx, store.ReportOptions{
		From:     now.Add(-*since),
		To:       now,
		Detailed: *detailed,
		Now:      func() time.Time { return now },
	})
	if err != nil {
		return err
	}

	if *asJSON {
		return report.WriteJSON(stdout)
	}

	fmt.Fprintf(stdout, "Activity %s - %s\n", report.From.Local().Format("2006-01-02 15:04"), report.To.Local().Format("2006-01-02 15:04"))
	fmt.Fprintf(stdout, "Database: %s\n", path)
	if status, err := st.Status(); err == nil {
		fmt.Fprintf(stdout, "Schema:   v%d\n", status.CurrentVersion)
	}
	fmt.Fprintln(stdout)

	if report.Totals.Spans == 0 {
		fmt.Fprintln(stdout, "No activity recorded in this window.")
	} else {
		tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "DATE\tSPANS\tACTIVE\tKEYS\tMOUSE\tCHARS")
		for _, day := range report.Days {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%d\t%d\n",
				day.Date, day.Spans, seconds(day.ActiveSeconds),
				day.KeyEvents, day.MouseEvents, day.Chars)
		}
		t := report.Totals
		fmt.Fprintf(tw, "total\t%d\t%s\t%d\t%d\t%d\n",
			t.Spans, seconds(t.ActiveSeconds), t.KeyEvents, t.MouseEvents, t.Chars)
		tw.Flush()
	}

	if *detailed && len(report.Spans) > 0 {
		fmt.Fprintln(stdout)
		tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "START\tEND\tDURATION\tKEYS\tMOUSE\tCHARS")
		for _, sp := range report.Spans {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\n",
				sp.Start.Local().Format("01-02 15:04:05"), sp.End.Local().Format("15:04:05"),
				seconds(sp.DurationSeconds), sp.KeyEvents, sp.MouseEvents, sp.Chars)
		}
		tw.Flush()
	}

	last, err := st.GetLastSpan(ctx)
	if err != nil {
		return err
	}
	if last != nil {
		fmt.Fprintf(stdout, "\nLast activity: %s (%s ago)\n",
			last.End().Local().Format("2006-01-02 15:04:05"),
			now.Sub(last.End()).Round(time.Second))
	}
	return nil
}

func seconds(s float64) string {
	return (time.Duration(s * float64(time.Second))).Round(time.Second).String()
}

func cmdPrune(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("prune", flag.ExitOnError)
	configPath := fs.String("config", "", "Configuration file (default: data dir config.toml)")
	dbPath := fs.String("db", "", "Activity database (default: from configuration)")
	olderThan := fs.Duration("older-than", 0, "Delete spans that ended before now minus this duration")
	fs.Parse(args)

	if *olderThan <= 0 {
		return fmt.Errorf("-older-than is required and must be positive")
	}

	st, _, err := openStore(*configPath, *dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	cutoff := time.Now().Add(-*olderThan)
	n, err := st.DeleteBefore(context.Background(), cutoff)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Deleted %d span(s) that ended before %s\n", n, cutoff.Local().Format("2006-01-02 15:04:05"))
	return nil
}
