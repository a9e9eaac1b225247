package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"aquaflow.game/internal/sim/game"
)

type auditSummary struct {
	Entries  int
	Accepted int
	Spent    int64
	Refunded int64
	ByAction map[string]int
	ByCode   map[string]int
	Runs     map[string]int
}

func auditCmd(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dir := fs.String("dir", "", "audit log directory (default: <data>/logs/audit)")
	runID := fs.String("run", "", "only count this run (optional)")
	_ = fs.Parse(args)

	d := strings.TrimSpace(*dir)
	if d == "" {
		d = filepath.Join(*dataDir, "logs", "audit")
	}
	sum, err := summarizeAudit(d, strings.TrimSpace(*runID))
	if err != nil {
		fmt.Fprintln(os.Stderr, "audit:", err)
		os.Exit(1)
	}
	printAudit(os.Stdout, sum)
}

func listAuditFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "audit-") || !strings.HasSuffix(name, ".jsonl.zst") {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	sort.Strings(out)
	return out, nil
}

func summarizeAudit(dir, runID string) (auditSummary, error) {
	sum := auditSummary{ByAction: map[string]int{}, ByCode: map[string]int{}, Runs: map[string]int{}}
	files, err := listAuditFiles(dir)
	if err != nil {
		return sum, err
	}
	for _, path := range files {
		if err := scanAuditFile(path, func(e game.AuditEntry) {
			if runID != "" && e.RunID != runID {
				return
			}
			sum.Entries++
			sum.Runs[e.RunID]++
			sum.ByAction[e.Action]++
			if e.Accepted {
				sum.Accepted++
				sum.Spent += e.Cost
				sum.Refunded += e.Refund
			} else {
				sum.ByCode[e.Code]++
			}
		}); err != nil {
			return sum, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	}
	return sum, nil
}

func scanAuditFile(path string, fn func(game.AuditEntry)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		var e game.AuditEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return err
		}
		fn(e)
	}
	return sc.Err()
}

func printAudit(w io.Writer, s auditSummary) {
	fmt.Fprintf(w, "entries=%d accepted=%d rejected=%d runs=%d spent=$%d refunded=$%d\n",
		s.Entries, s.Accepted, s.Entries-s.Accepted, len(s.Runs), s.Spent, s.Refunded)
	for _, k := range sortedKeys(s.ByAction) {
		fmt.Fprintf(w, "  %-14s %d\n", k, s.ByAction[k])
	}
	for _, k := range sortedKeys(s.ByCode) {
		fmt.Fprintf(w, "  rejected %-16s %d\n", k, s.ByCode[k])
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
