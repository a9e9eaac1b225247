package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"aquaflow.game/internal/persistence/indexdb"
)

func openIndex(dataDir, dbPath string) *indexdb.SQLiteIndex {
	path := indexPath(dataDir, dbPath)
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "index:", err)
		os.Exit(1)
	}
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	return idx
}

func runsCmd(args []string) {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	idx := openIndex(*dataDir, *dbPath)
	defer idx.Close()

	rows, err := idx.Runs(context.Background(), *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	printRuns(os.Stdout, rows, time.Now())
}

func statsCmd(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	runID := fs.String("run", "", "run id (required)")
	limit := fs.Int("limit", 50, "result limit")
	_ = fs.Parse(args)

	if strings.TrimSpace(*runID) == "" {
		fmt.Fprintln(os.Stderr, "missing -run")
		os.Exit(2)
	}
	idx := openIndex(*dataDir, *dbPath)
	defer idx.Close()

	rows, err := idx.RunStats(context.Background(), *runID, *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	printStats(os.Stdout, rows)
}

func printRuns(w io.Writer, rows []indexdb.RunRow, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tSEED\tGRID")
	for _, r := range rows {
		started := r.StartedAt
		if t, err := time.Parse(time.RFC3339Nano, r.StartedAt); err == nil {
			started = humanize.RelTime(t, now, "ago", "from now")
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%dx%d\n", r.RunID, started, r.Seed, r.GridSize, r.GridSize)
	}
	_ = tw.Flush()
}

func printStats(w io.Writer, rows []indexdb.StatsRow) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TICK\tGAME TIME\tMONEY\tWATER\tINCOME\tDROPLETS")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t$%s\t%.1f/%.0f\t$%s\t%d\n",
			humanize.Comma(int64(r.Tick)),
			(time.Duration(r.GameMs) * time.Millisecond).Round(time.Second),
			humanize.Comma(r.Money), r.Water, r.Capacity, humanize.Comma(r.Income), r.Droplets)
	}
	_ = tw.Flush()
}
