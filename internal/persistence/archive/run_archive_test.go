package archive

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"aquaflow.game/internal/persistence/snapshot"
)

func writeSave(t *testing.T, path, runID string, tick uint64, money int64) {
	t.Helper()
	snap := snapshot.SnapshotV1{
		Header:   snapshot.Header{Version: snapshot.Version, RunID: runID, Tick: tick},
		Seed:     7,
		Resets:   1,
		Money:    money,
		Counters: snapshot.CountersV1{Income: 12, Payments: 4},
	}
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
}

func TestArchiveIfReplaced(t *testing.T) {
	dir := t.TempDir()
	save := filepath.Join(dir, "snapshots", "latest.snap.zst")
	arch := filepath.Join(dir, "archives")

	if _, ok, err := ArchiveIfReplaced(arch, save, "run-a"); ok || err != nil {
		t.Fatalf("missing save: ok=%v err=%v", ok, err)
	}

	writeSave(t, save, "run-a", 300, 55)
	if _, ok, err := ArchiveIfReplaced(arch, save, "run-a"); ok || err != nil {
		t.Fatalf("same run: ok=%v err=%v", ok, err)
	}

	meta, ok, err := ArchiveIfReplaced(arch, save, "run-b")
	if err != nil || !ok {
		t.Fatalf("new run: ok=%v err=%v", ok, err)
	}
	if meta.RunID != "run-a" || meta.EndTick != 300 || meta.Money != 55 || meta.Income != 12 || meta.Seed != 7 {
		t.Fatalf("meta = %+v", meta)
	}

	want, _ := os.ReadFile(save)
	got, err := os.ReadFile(SnapshotPath(arch, "run-a"))
	if err != nil {
		t.Fatalf("read archived: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("archived copy differs")
	}
	if _, err := snapshot.ReadSnapshot(SnapshotPath(arch, "run-a")); err != nil {
		t.Fatalf("archived save unreadable: %v", err)
	}
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	arch := filepath.Join(dir, "archives")

	runs, err := List(arch)
	if err != nil || len(runs) != 0 {
		t.Fatalf("empty: runs=%v err=%v", runs, err)
	}

	save := filepath.Join(dir, "latest.snap.zst")
	writeSave(t, save, "run-a", 10, 1)
	if _, _, err := ArchiveIfReplaced(arch, save, "run-b"); err != nil {
		t.Fatalf("archive a: %v", err)
	}
	writeSave(t, save, "run-b", 20, 2)
	if _, _, err := ArchiveIfReplaced(arch, save, "run-c"); err != nil {
		t.Fatalf("archive b: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(arch, "stray"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	runs, err = List(arch)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %+v", runs)
	}
	seen := map[string]uint64{}
	for _, r := range runs {
		seen[r.RunID] = r.EndTick
	}
	if seen["run-a"] != 10 || seen["run-b"] != 20 {
		t.Fatalf("runs = %+v", runs)
	}
}
