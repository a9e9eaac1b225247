// Package archive keeps the last save of every finished run.
package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"aquaflow.game/internal/persistence/snapshot"
)

type RunMeta struct {
	RunID      string `json:"run_id"`
	Seed       int64  `json:"seed"`
	Resets     int64  `json:"resets"`
	EndTick    uint64 `json:"end_tick"`
	Money      int64  `json:"money"`
	Income     int64  `json:"income"`
	Payments   uint64 `json:"payments"`
	Snapshot   string `json:"snapshot"`
	ArchivedAt string `json:"archived_at"`
}

const (
	finalName = "final.snap.zst"
	metaName  = "meta.json"
)

// ArchiveIfReplaced copies the save at savePath into <dir>/<run>/ when it belongs to a
// run other than nextRunID. Call it before a new save overwrites savePath. A missing
// save is not an error.
func ArchiveIfReplaced(dir, savePath, nextRunID string) (RunMeta, bool, error) {
	h, err := snapshot.ReadHeader(savePath)
	if err != nil {
		if os.IsNotExist(err) {
			return RunMeta{}, false, nil
		}
		return RunMeta{}, false, err
	}
	if h.RunID == "" || h.RunID == nextRunID {
		return RunMeta{}, false, nil
	}
	snap, err := snapshot.ReadSnapshot(savePath)
	if err != nil {
		return RunMeta{}, false, err
	}

	runDir := filepath.Join(dir, snap.Header.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return RunMeta{}, false, err
	}
	if err := copyFile(savePath, filepath.Join(runDir, finalName)); err != nil {
		return RunMeta{}, false, err
	}
	meta := RunMeta{
		RunID:      snap.Header.RunID,
		Seed:       snap.Seed,
		Resets:     snap.Resets,
		EndTick:    snap.Header.Tick,
		Money:      snap.Money,
		Income:     snap.Counters.Income,
		Payments:   snap.Counters.Payments,
		Snapshot:   finalName,
		ArchivedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return RunMeta{}, false, err
	}
	if err := os.WriteFile(filepath.Join(runDir, metaName), b, 0o644); err != nil {
		return RunMeta{}, false, err
	}
	return meta, true, nil
}

// List returns the archived runs under dir, most recently archived first.
func List(dir string) ([]RunMeta, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []RunMeta
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		b, err := os.ReadFile(filepath.Join(dir, e.Name(), metaName))
		if err != nil {
			continue
		}
		var m RunMeta
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ArchivedAt != out[j].ArchivedAt {
			return out[i].ArchivedAt > out[j].ArchivedAt
		}
		return out[i].RunID < out[j].RunID
	})
	return out, nil
}

// SnapshotPath is where the final save of runID lives.
func SnapshotPath(dir, runID string) string {
	return filepath.Join(dir, runID, finalName)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, dst)
}
