package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"aquaflow.game/internal/persistence/indexdb"
	"aquaflow.game/internal/sim/catalogs"
	"aquaflow.game/internal/sim/game"
	"aquaflow.game/internal/sim/tuning"
)

type runtimeIndex interface {
	game.StatsLogger
	game.AuditLogger
	Close() error
	UpsertCatalogs(configDir string, items catalogs.Items, tune tuning.Tuning) error
	RecordRun(runID string, seed int64, gridSize int, startedAt time.Time)
}

func openRuntimeIndex(dataDir, serverID string, disableDB bool, logger *log.Logger) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("AF_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		idx, err := indexdb.OpenSQLite(filepath.Join(dataDir, "index", "aquaflow.sqlite"))
		if err != nil {
			return nil, err
		}
		return idx, nil
	case "remote":
		endpoint := strings.TrimSpace(os.Getenv("AF_INDEX_INGEST_URL"))
		if endpoint == "" {
			return nil, fmt.Errorf("AF_INDEX_BACKEND=remote but AF_INDEX_INGEST_URL is empty")
		}
		idx, err := indexdb.OpenRemote(indexdb.RemoteConfig{
			Endpoint:      endpoint,
			Token:         strings.TrimSpace(os.Getenv("AF_INDEX_TOKEN")),
			ServerID:      serverID,
			BatchSize:     envInt("AF_INDEX_BATCH_SIZE", 128),
			FlushInterval: time.Duration(envInt("AF_INDEX_FLUSH_MS", 500)) * time.Millisecond,
			Logger:        logger,
		})
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported AF_INDEX_BACKEND: %s", backend)
	}
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
