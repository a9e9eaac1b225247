// Command admin inspects a server's data directory and talks to its HTTP API.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"aquaflow.game/internal/persistence/archive"
	"aquaflow.game/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "runs":
			runsCmd(os.Args[2:])
			return
		case "stats":
			statsCmd(os.Args[2:])
			return
		case "audit":
			auditCmd(os.Args[2:])
			return
		case "archives":
			archivesCmd(os.Args[2:])
			return
		case "save":
			saveCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "cmd":
			commandCmd(os.Args[2:])
			return
		}
	}
	runsCmd(os.Args[1:])
}

func indexPath(dataDir, dbPath string) string {
	if p := strings.TrimSpace(dbPath); p != "" {
		return p
	}
	return filepath.Join(dataDir, "index", "aquaflow.sqlite")
}

func archivesCmd(args []string) {
	fs := flag.NewFlagSet("archives", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	runs, err := archive.List(filepath.Join(*dataDir, "archives"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "archives:", err)
		os.Exit(1)
	}
	printArchives(os.Stdout, runs)
}

func printArchives(w io.Writer, runs []archive.RunMeta) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSEED\tEND TICK\tMONEY\tINCOME\tARCHIVED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%d\t%s\t$%s\t$%s\t%s\n",
			r.RunID, r.Seed, humanize.Comma(int64(r.EndTick)), humanize.Comma(r.Money), humanize.Comma(r.Income), r.ArchivedAt)
	}
	_ = tw.Flush()
}

func saveCmd(args []string) {
	fs := flag.NewFlagSet("save", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	path := fs.String("path", "", "snapshot path (default: <data>/snapshots/latest.snap.zst)")
	_ = fs.Parse(args)

	p := strings.TrimSpace(*path)
	if p == "" {
		p = filepath.Join(*dataDir, "snapshots", "latest.snap.zst")
	}
	snap, err := snapshot.ReadSnapshot(p)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	fmt.Print(describeSnapshot(snap))
}

func describeSnapshot(snap snapshot.SnapshotV1) string {
	var b strings.Builder
	fmt.Fprintf(&b, "snapshot v%d run=%s tick=%s seed=%d resets=%d paused=%v\n",
		snap.Header.Version, snap.Header.RunID, humanize.Comma(int64(snap.Header.Tick)), snap.Seed, snap.Resets, snap.Paused)
	fmt.Fprintf(&b, "money=$%s water=%.1f droplets=%d boards=%dx%d/%dx%d\n",
		humanize.Comma(snap.Money), snap.Water, len(snap.Droplets),
		snap.Main.Size, snap.Main.Size, snap.Depot.Size, snap.Depot.Size)
	for i, o := range snap.Draft {
		fmt.Fprintf(&b, "slot %d: %s L%d\n", i+1, o.Kind, o.Level)
	}
	c := snap.Counters
	fmt.Fprintf(&b, "spawned=%s paid=%s income=$%s commands=%s rejected=%s\n",
		humanize.Comma(int64(c.Spawned)), humanize.Comma(int64(c.Payments)), humanize.Comma(c.Income),
		humanize.Comma(int64(c.Commands)), humanize.Comma(int64(c.Rejected)))
	return b.String()
}
