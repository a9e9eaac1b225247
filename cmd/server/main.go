package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"aquaflow.game/internal/persistence/indexdb"
	persistlog "aquaflow.game/internal/persistence/log"
	"aquaflow.game/internal/sim/catalogs"
	"aquaflow.game/internal/sim/game"
	"aquaflow.game/internal/sim/tuning"
	"aquaflow.game/internal/transport/httpapi"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		serverID   = flag.String("server", "aquaflow_1", "server id used by the remote index")
		seed       = flag.Int64("seed", 1337, "draft seed; every reset adds one")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable indexing (stats/audit + catalogs + runs)")
		statusSecs = flag.Int("status_every", 30, "seconds between status log lines (0 to disable)")
		snapSecs   = flag.Int("snapshot_every", 60, "seconds between saves of the running game (0 to disable)")
		resume     = flag.Bool("resume", true, "resume from the latest save in <data>/snapshots")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}
	tuningDigest := indexdb.TuningDigest(tune)

	_ = os.MkdirAll(*dataDir, 0o755)

	// Optional read-model index backend (does not affect the simulation).
	idx, err := openRuntimeIndex(*dataDir, *serverID, *disableDB, logger)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(*configDir, cats.Items, tune); err != nil {
			logger.Printf("index catalogs: %v", err)
		}
	}

	sess, err := game.New(game.Config{
		Tuning: tune,
		Items:  cats.Items,
		Seed:   *seed,
		Logger: log.New(os.Stdout, "[session] ", log.LstdFlags|log.Lmicroseconds),
	})
	if err != nil {
		logger.Fatalf("new session: %v", err)
	}

	statsLog := persistlog.NewStatsLogger(filepath.Join(*dataDir, "logs"))
	defer statsLog.Close()
	auditLog := persistlog.NewAuditLogger(filepath.Join(*dataDir, "logs"))
	defer auditLog.Close()

	fan := persistlog.FanOut{Stats: []game.StatsLogger{statsLog}, Audits: []game.AuditLogger{auditLog}}
	if idx != nil {
		fan.Stats = append(fan.Stats, idx)
		fan.Audits = append(fan.Audits, idx)
	}
	sess.SetStatsLogger(fan)
	sess.SetAuditLogger(fan)

	recordRun := func(runID string) {
		logger.Printf("run %s started", runID)
		if idx != nil {
			idx.RecordRun(runID, *seed, tune.Board.Size, time.Now())
		}
	}
	snapPath := latestSnapshotPath(*dataDir)
	resumed := false
	if *resume {
		resumed, err = resumeSession(sess, snapPath, logger)
		if err != nil {
			logger.Printf("resume: %v; starting a new run", err)
		}
	}
	if !resumed {
		recordRun(sess.RunID())
	}
	sess.OnReset(recordRun)

	backup, err := openBackup(*serverID, logger)
	if err != nil {
		logger.Fatalf("save backup: %v", err)
	}

	target := saveTarget{path: snapPath, archive: archiveDir(*dataDir), backup: backup, logger: logger}

	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		if err := sess.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("session stopped: %v", err)
		}
	}()
	if *statusSecs > 0 {
		go logStatus(ctx, sess, time.Duration(*statusSecs)*time.Second, logger)
	}
	var saveDone <-chan struct{}
	if *snapSecs > 0 {
		saveDone = startSaveLoop(ctx, sess, target, time.Duration(*snapSecs)*time.Second)
	}

	var history httpapi.History
	if h, ok := idx.(httpapi.History); ok {
		history = h
	}
	handler := httpapi.SetupRoutes(httpapi.Config{
		Session:      sess,
		TuningDigest: tuningDigest,
		Logger:       logger,
		History:      history,
		ExtraMetrics: func(w io.Writer) {
			writeIndexMetrics(w, idx)
			writeBackupMetrics(w, backup)
		},
	})

	srv := &http.Server{
		Addr:              *addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (grid %dx%d, tick %dms)", *addr, tune.Board.Size, tune.Board.Size, tune.Clock.TickMs)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	<-sess.Done()
	// The final save and backup.Close must not overlap a periodic save.
	cancel()
	if saveDone != nil {
		<-saveDone
	}

	// Run has returned, so the session can be read directly.
	if *snapSecs > 0 {
		if snap, err := sess.ExportSnapshot(); err != nil {
			logger.Printf("final snapshot: %v", err)
		} else if err := target.write(snap); err != nil {
			logger.Printf("final snapshot: %v", err)
		} else {
			logger.Printf("saved run %s at tick %d", snap.Header.RunID, snap.Header.Tick)
		}
	}
	backup.Close()
}

func logStatus(ctx context.Context, sess *game.Session, every time.Duration, logger *log.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		ctx2, cancel := context.WithTimeout(ctx, time.Second)
		st, err := sess.Snapshot(ctx2)
		cancel()
		if err != nil {
			continue
		}
		logger.Printf("run %s tick %s money %s water %.1f/%.0f droplets %d income/pass %s",
			st.RunID, humanize.Comma(int64(st.Tick)), humanize.Comma(st.Money),
			st.Water, st.Capacity, len(st.Droplets), humanize.Comma(st.EstimatedIncome))
	}
}

func writeIndexMetrics(w io.Writer, idx runtimeIndex) {
	switch v := idx.(type) {
	case *indexdb.SQLiteIndex:
		s := v.Stats()
		fmt.Fprintf(w, "# HELP aquaflow_index_queue_depth Index writer backlog.\n")
		fmt.Fprintf(w, "# TYPE aquaflow_index_queue_depth gauge\n")
		fmt.Fprintf(w, "aquaflow_index_queue_depth{backend=%q} %d\n", "sqlite", s.QueueDepth)
		fmt.Fprintf(w, "# HELP aquaflow_index_dropped_total Records dropped because the index fell behind.\n")
		fmt.Fprintf(w, "# TYPE aquaflow_index_dropped_total counter\n")
		fmt.Fprintf(w, "aquaflow_index_dropped_total{backend=%q,kind=%q} %d\n", "sqlite", "stats", s.DropStatsTotal)
		fmt.Fprintf(w, "aquaflow_index_dropped_total{backend=%q,kind=%q} %d\n", "sqlite", "audit", s.DropAuditTotal)
		fmt.Fprintf(w, "aquaflow_index_dropped_total{backend=%q,kind=%q} %d\n", "sqlite", "run", s.DropRunTotal)
	case *indexdb.RemoteIndex:
		s := v.Stats()
		fmt.Fprintf(w, "# HELP aquaflow_index_queue_depth Index writer backlog.\n")
		fmt.Fprintf(w, "# TYPE aquaflow_index_queue_depth gauge\n")
		fmt.Fprintf(w, "aquaflow_index_queue_depth{backend=%q} %d\n", "remote", s.QueueDepth)
		fmt.Fprintf(w, "# HELP aquaflow_index_flush_total Remote index flush attempts.\n")
		fmt.Fprintf(w, "# TYPE aquaflow_index_flush_total counter\n")
		fmt.Fprintf(w, "aquaflow_index_flush_total{result=%q} %d\n", "ok", s.FlushOKTotal)
		fmt.Fprintf(w, "aquaflow_index_flush_total{result=%q} %d\n", "fail", s.FlushFailTotal)
		fmt.Fprintf(w, "# HELP aquaflow_index_dropped_total Records dropped because the index fell behind.\n")
		fmt.Fprintf(w, "# TYPE aquaflow_index_dropped_total counter\n")
		fmt.Fprintf(w, "aquaflow_index_dropped_total{backend=%q,kind=%q} %d\n", "remote", "any", s.QueueDroppedTotal)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
