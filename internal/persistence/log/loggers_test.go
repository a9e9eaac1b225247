package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"aquaflow.game/internal/sim/game"
)

func readJSONL(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd reader: %v", err)
	}
	defer dec.Close()

	var out []map[string]any
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		out = append(out, m)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return out
}

func TestJSONLZstdWriter_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "stats")
	at := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return at }

	if err := w.Write(map[string]int{"n": 1}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Write(map[string]int{"n": 2}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	at = at.Add(2 * time.Minute)
	if err := w.Write(map[string]int{"n": 3}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	first := readJSONL(t, filepath.Join(dir, "stats-2026-03-01-10.jsonl.zst"))
	second := readJSONL(t, filepath.Join(dir, "stats-2026-03-01-11.jsonl.zst"))
	if len(first) != 2 || len(second) != 1 || second[0]["n"] != float64(3) {
		t.Fatalf("first=%v second=%v", first, second)
	}
	if w.Lines() != 3 {
		t.Fatalf("lines = %d", w.Lines())
	}
}

func TestStatsAndAuditLoggers(t *testing.T) {
	dir := t.TempDir()
	stats := NewStatsLogger(dir)
	audit := NewAuditLogger(dir)
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	stats.w.now = func() time.Time { return at }
	audit.w.now = func() time.Time { return at }

	if err := stats.WriteStats(game.StatsEntry{RunID: "r1", Tick: 30, Money: 42, Water: 99.5}); err != nil {
		t.Fatalf("WriteStats: %v", err)
	}
	if err := audit.WriteAudit(game.AuditEntry{RunID: "r1", Action: "PLACE", Board: "MAIN", X: 5, Y: 1, Kind: "HOUSE", Accepted: true}); err != nil {
		t.Fatalf("WriteAudit: %v", err)
	}
	_ = stats.Close()
	_ = audit.Close()

	s := readJSONL(t, filepath.Join(dir, "stats", "stats-2026-03-01-08.jsonl.zst"))
	if len(s) != 1 || s[0]["run_id"] != "r1" || s[0]["money"] != float64(42) {
		t.Fatalf("stats = %v", s)
	}
	a := readJSONL(t, filepath.Join(dir, "audit", "audit-2026-03-01-08.jsonl.zst"))
	if len(a) != 1 || a[0]["action"] != "PLACE" || a[0]["kind"] != "HOUSE" || a[0]["accepted"] != true {
		t.Fatalf("audit = %v", a)
	}
}

type failing struct{ n int }

func (f *failing) WriteStats(game.StatsEntry) error { f.n++; return errors.New("disk full") }
func (f *failing) WriteAudit(game.AuditEntry) error { f.n++; return errors.New("disk full") }

type counting struct{ n int }

func (c *counting) WriteStats(game.StatsEntry) error { c.n++; return nil }
func (c *counting) WriteAudit(game.AuditEntry) error { c.n++; return nil }

func TestFanOut_ReachesEveryLogger(t *testing.T) {
	bad, good := &failing{}, &counting{}
	f := FanOut{Stats: []game.StatsLogger{bad, good}, Audits: []game.AuditLogger{bad, good}}
	if err := f.WriteStats(game.StatsEntry{}); err == nil {
		t.Fatalf("expected error")
	}
	if err := f.WriteAudit(game.AuditEntry{}); err == nil {
		t.Fatalf("expected error")
	}
	if bad.n != 2 || good.n != 2 {
		t.Fatalf("bad=%d good=%d", bad.n, good.n)
	}
}
