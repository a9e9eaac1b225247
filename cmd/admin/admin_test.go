package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"aquaflow.game/internal/persistence/archive"
	"aquaflow.game/internal/persistence/indexdb"
	persistlog "aquaflow.game/internal/persistence/log"
	"aquaflow.game/internal/persistence/snapshot"
	"aquaflow.game/internal/protocol"
	"aquaflow.game/internal/sim/game"
)

func TestPrintRunsAndStats(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	printRuns(&buf, []indexdb.RunRow{
		{RunID: "run-b", StartedAt: now.Add(-2 * time.Hour).Format(time.RFC3339Nano), Seed: 2, GridSize: 11},
		{RunID: "run-a", StartedAt: "yesterday-ish", Seed: 1, GridSize: 9},
	}, now)
	out := buf.String()
	for _, want := range []string{"RUN", "run-b", "2 hours ago", "11x11", "yesterday-ish", "9x9"} {
		if !strings.Contains(out, want) {
			t.Fatalf("runs output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	printStats(&buf, []indexdb.StatsRow{{Tick: 12345, GameMs: 407385, Money: 1234567, Water: 42.5, Capacity: 200, Income: 3000, Droplets: 7}})
	out = buf.String()
	for _, want := range []string{"12,345", "6m47s", "$1,234,567", "42.5/200", "$3,000"} {
		if !strings.Contains(out, want) {
			t.Fatalf("stats output missing %q:\n%s", want, out)
		}
	}
}

func TestSummarizeAudit(t *testing.T) {
	dir := t.TempDir()
	l := persistlog.NewAuditLogger(dir)
	entries := []game.AuditEntry{
		{RunID: "r1", Tick: 1, Action: "PLACE", Accepted: true, Cost: 10},
		{RunID: "r1", Tick: 2, Action: "DELETE", Accepted: true, Refund: 5},
		{RunID: "r1", Tick: 3, Action: "UNLOCK", Code: protocol.ErrNoFunds},
		{RunID: "r2", Tick: 1, Action: "PLACE", Code: protocol.ErrPaused},
	}
	for _, e := range entries {
		if err := l.WriteAudit(e); err != nil {
			t.Fatalf("WriteAudit: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	sum, err := summarizeAudit(dir+"/audit", "")
	if err != nil {
		t.Fatalf("summarizeAudit: %v", err)
	}
	if sum.Entries != 4 || sum.Accepted != 2 || sum.Spent != 10 || sum.Refunded != 5 || len(sum.Runs) != 2 {
		t.Fatalf("summary = %+v", sum)
	}
	if sum.ByAction["PLACE"] != 2 || sum.ByCode[protocol.ErrNoFunds] != 1 {
		t.Fatalf("breakdown = %v %v", sum.ByAction, sum.ByCode)
	}

	one, err := summarizeAudit(dir+"/audit", "r2")
	if err != nil || one.Entries != 1 || one.Accepted != 0 {
		t.Fatalf("filtered = %+v, %v", one, err)
	}

	var buf bytes.Buffer
	printAudit(&buf, sum)
	if !strings.Contains(buf.String(), "rejected=2") || !strings.Contains(buf.String(), protocol.ErrPaused) {
		t.Fatalf("printAudit:\n%s", buf.String())
	}
}

func TestPostCommand(t *testing.T) {
	var got protocol.CmdMsg
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/commands" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(protocol.AckMsg{Type: protocol.TypeAck, AckFor: got.Ref, Accepted: true})
	}))
	defer srv.Close()

	ack, status, err := postCommand(srv.Client(), srv.URL+"/", " pause ")
	if err != nil || status != http.StatusOK {
		t.Fatalf("postCommand: %d %v", status, err)
	}
	if got.Cmd != protocol.CmdPause || got.ProtocolVersion != protocol.Version || !ack.Accepted || ack.AckFor != "admin" {
		t.Fatalf("sent %+v got %+v", got, ack)
	}
}

func TestDescribeSnapshot(t *testing.T) {
	out := describeSnapshot(snapshot.SnapshotV1{
		Header: snapshot.Header{Version: 1, RunID: "run-x", Tick: 1500},
		Money:  25000,
		Main:   snapshot.BoardV1{Size: 11},
		Depot:  snapshot.BoardV1{Size: 5},
		Draft:  []snapshot.OfferV1{{Kind: "HOUSE", Level: 2}},
	})
	for _, want := range []string{"run=run-x", "tick=1,500", "money=$25,000", "11x11/5x5", "slot 1: HOUSE L2"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestPrintArchives(t *testing.T) {
	var buf bytes.Buffer
	printArchives(&buf, []archive.RunMeta{
		{RunID: "run-a", Seed: 4, EndTick: 12345, Money: 2500, Income: 900, ArchivedAt: "2026-03-01T12:00:00Z"},
	})
	out := buf.String()
	for _, want := range []string{"RUN", "END TICK", "run-a", "12,345", "$2,500", "$900", "2026-03-01T12:00:00Z"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}
