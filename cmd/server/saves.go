package main

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"

	"aquaflow.game/internal/persistence/archive"
	"aquaflow.game/internal/persistence/r2s3"
	"aquaflow.game/internal/persistence/snapshot"
	"aquaflow.game/internal/sim/game"
)

func latestSnapshotPath(dataDir string) string {
	return filepath.Join(dataDir, "snapshots", "latest.snap.zst")
}

func archiveDir(dataDir string) string {
	return filepath.Join(dataDir, "archives")
}

// saveTarget is where saves go: the latest file, the archive of finished runs and an
// optional offsite backup.
type saveTarget struct {
	path    string
	archive string
	backup  *r2s3.Backup
	logger  *log.Logger
}

// write archives the previous run's final save when snap starts a new run, then
// replaces the latest save with snap.
func (t saveTarget) write(snap snapshot.SnapshotV1) error {
	if meta, ok, err := archive.ArchiveIfReplaced(t.archive, t.path, snap.Header.RunID); err != nil {
		t.logger.Printf("archive: %v", err)
	} else if ok {
		t.logger.Printf("archived run %s at tick %d", meta.RunID, meta.EndTick)
	}
	if err := snapshot.WriteSnapshot(t.path, snap); err != nil {
		return err
	}
	if err := t.backup.Offer(t.path, snap.Header); err != nil {
		t.logger.Printf("backup: %v", err)
	}
	return nil
}

// resumeSession restores sess from path. A missing save is not an error.
func resumeSession(sess *game.Session, path string, logger *log.Logger) (bool, error) {
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := sess.Restore(snap); err != nil {
		return false, err
	}
	logger.Printf("resumed run %s at tick %d", snap.Header.RunID, snap.Header.Tick)
	return true, nil
}

// startSaveLoop runs saveLoop in the background. The returned channel closes once it
// has returned, after which no periodic save is in flight.
func startSaveLoop(ctx context.Context, sess *game.Session, target saveTarget, every time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		saveLoop(ctx, sess, target, every)
	}()
	return done
}

func saveLoop(ctx context.Context, sess *game.Session, target saveTarget, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	var last snapshot.Header
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
		snap, err := sess.Save(ctx2)
		cancel()
		if err != nil {
			if ctx.Err() == nil {
				target.logger.Printf("snapshot: %v", err)
			}
			continue
		}
		// Nothing moves while paused.
		if snap.Header == last {
			continue
		}
		if err := target.write(snap); err != nil {
			target.logger.Printf("snapshot: %v", err)
			continue
		}
		last = snap.Header
	}
}
