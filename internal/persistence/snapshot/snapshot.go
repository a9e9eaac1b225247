// Package snapshot saves and loads whole game runs as zstd-compressed gob files.
package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	RunID   string `json:"run_id"`
	Tick    uint64 `json:"tick"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed   int64 `json:"seed"`
	Resets int64 `json:"resets"`
	Paused bool  `json:"paused"`

	Money int64   `json:"money"`
	Water float64 `json:"water"`

	// LastSpawnMs is game time of the last spawn, or -1 before the first one.
	LastSpawnMs   int64  `json:"last_spawn_ms"`
	LastDropletID uint64 `json:"last_droplet_id"`

	Main     BoardV1     `json:"main"`
	Depot    BoardV1     `json:"depot"`
	Droplets []DropletV1 `json:"droplets"`
	Draft    []OfferV1   `json:"draft"`
	Counters CountersV1  `json:"counters"`
}

// BoardV1 stores one board as run-length encoded tile codes.
type BoardV1 struct {
	Size  int    `json:"size"`
	Tiles string `json:"tiles"`
}

type DropletV1 struct {
	ID       uint64 `json:"id"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Progress int    `json:"progress"`
	From     uint8  `json:"from"`
	To       uint8  `json:"to"`
	HasPaid  bool   `json:"has_paid"`
}

type OfferV1 struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"`
	Level int    `json:"level"`
}

type CountersV1 struct {
	Spawned  uint64            `json:"spawned"`
	Moved    uint64            `json:"moved"`
	Splits   uint64            `json:"splits"`
	Payments uint64            `json:"payments"`
	Income   int64             `json:"income"`
	Dropped  map[string]uint64 `json:"dropped,omitempty"`
	Commands uint64            `json:"commands"`
	Rejected uint64            `json:"rejected"`
}

// WriteSnapshot writes snap next to path and renames it into place, so a crash never
// leaves a half-written save behind.
func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := writeFile(tmp, snap); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeFile(path string, snap SnapshotV1) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}

	bw := bufio.NewWriterSize(enc, 64*1024)
	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Sync()
}

// ReadHeader returns only the JSON header line, without decoding the body.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)

	// The gob body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("snapshot version %d, want %d", snap.Header.Version, Version)
	}
	return snap, nil
}
