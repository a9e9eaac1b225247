package snapshot

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func testSnapshot() SnapshotV1 {
	return SnapshotV1{
		Header:        Header{Version: Version, RunID: "run-1", Tick: 420},
		Seed:          7,
		Resets:        2,
		Money:         1234,
		Water:         55.5,
		LastSpawnMs:   13000,
		LastDropletID: 9,
		Main:          BoardV1{Size: 11, Tiles: "gQH5"},
		Depot:         BoardV1{Size: 5, Tiles: "gQEZ"},
		Droplets:      []DropletV1{{ID: 9, X: 5, Y: 1, Progress: 40, From: 0, To: 2}},
		Draft:         []OfferV1{{ID: "a", Kind: "HOUSE", Level: 2}},
		Counters:      CountersV1{Spawned: 3, Income: 6, Dropped: map[string]uint64{"no_exit": 1}},
	}
}

func TestWriteRead_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saves", "latest.snap.zst")
	want := testSnapshot()
	if err := WriteSnapshot(path, want); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}

	got, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip:\n got %+v\nwant %+v", got, want)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if h != want.Header {
		t.Fatalf("header = %+v", h)
	}
}

func TestWriteSnapshot_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latest.snap.zst")
	first := testSnapshot()
	if err := WriteSnapshot(path, first); err != nil {
		t.Fatalf("first write: %v", err)
	}
	second := testSnapshot()
	second.Header.Tick = 999
	second.Droplets = nil
	if err := WriteSnapshot(path, second); err != nil {
		t.Fatalf("second write: %v", err)
	}
	got, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if got.Header.Tick != 999 || len(got.Droplets) != 0 {
		t.Fatalf("got tick %d with %d droplets", got.Header.Tick, len(got.Droplets))
	}
}

func TestReadSnapshot_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := ReadSnapshot(filepath.Join(dir, "missing")); !os.IsNotExist(err) {
		t.Fatalf("missing file err = %v", err)
	}

	path := filepath.Join(dir, "future.snap.zst")
	snap := testSnapshot()
	snap.Header.Version = Version + 1
	if err := WriteSnapshot(path, snap); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	if _, err := ReadSnapshot(path); err == nil {
		t.Fatalf("future version accepted")
	}
}
