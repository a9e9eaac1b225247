package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"aquaflow.game/internal/sim/catalogs"
	"aquaflow.game/internal/sim/game"
	"aquaflow.game/internal/sim/tuning"
)

// SQLiteIndex is a queryable secondary copy of the stats and audit streams. Writes
// are queued to a single writer goroutine and dropped when it falls behind; the JSONL
// logs remain the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	// mu orders sends on ch against Close closing it.
	mu     sync.RWMutex
	closed bool

	dropStats atomic.Uint64
	dropAudit atomic.Uint64
	dropRun   atomic.Uint64
}

type reqKind int

const (
	reqStats reqKind = iota + 1
	reqAudit
	reqRun
	reqSync
)

type req struct {
	kind reqKind

	stats game.StatsEntry
	audit game.AuditEntry
	run   RunRow
	done  chan struct{}
}

// RunRow describes one run of a session. A reset starts a new run.
type RunRow struct {
	RunID     string `json:"run_id"`
	StartedAt string `json:"started_at"`
	Seed      int64  `json:"seed"`
	GridSize  int    `json:"grid_size"`
}

// StatsRow is one persisted resource-tick sample.
type StatsRow struct {
	Tick     uint64  `json:"tick"`
	GameMs   int64   `json:"game_ms"`
	Money    int64   `json:"money"`
	Water    float64 `json:"water"`
	Capacity float64 `json:"capacity"`
	Income   int64   `json:"income"`
	Droplets int     `json:"droplets"`
}

type QueueStats struct {
	DropStatsTotal uint64 `json:"drop_stats_total"`
	DropAuditTotal uint64 `json:"drop_audit_total"`
	DropRunTotal   uint64 `json:"drop_run_total"`
	QueueDepth     int    `json:"queue_depth"`
	QueueCapacity  int    `json:"queue_capacity"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 16384),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			seed INTEGER NOT NULL,
			grid_size INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS stats (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			game_ms INTEGER NOT NULL,
			money INTEGER NOT NULL,
			water REAL NOT NULL,
			capacity REAL NOT NULL,
			income INTEGER NOT NULL,
			droplets INTEGER NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (run_id, tick)
		);`,
		`CREATE TABLE IF NOT EXISTS audits (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			action TEXT NOT NULL,
			board TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			kind TEXT,
			accepted INTEGER NOT NULL,
			code TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (run_id, tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_pos ON audits(run_id, board, x, y, tick);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() QueueStats {
	if s == nil {
		return QueueStats{}
	}
	return QueueStats{
		DropStatsTotal: s.dropStats.Load(),
		DropAuditTotal: s.dropAudit.Load(),
		DropRunTotal:   s.dropRun.Load(),
		QueueDepth:     len(s.ch),
		QueueCapacity:  cap(s.ch),
	}
}

// enqueue hands r to the writer without blocking. It reports false when the queue is
// full. Writes after Close are ignored.
func (s *SQLiteIndex) enqueue(r req) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- r:
		return true
	default:
		return false
	}
}

func (s *SQLiteIndex) WriteStats(entry game.StatsEntry) error {
	if s == nil {
		return nil
	}
	if !s.enqueue(req{kind: reqStats, stats: entry}) {
		s.dropStats.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) WriteAudit(entry game.AuditEntry) error {
	if s == nil {
		return nil
	}
	if !s.enqueue(req{kind: reqAudit, audit: entry}) {
		s.dropAudit.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordRun(runID string, seed int64, gridSize int, startedAt time.Time) {
	if s == nil || runID == "" {
		return
	}
	r := RunRow{RunID: runID, StartedAt: startedAt.UTC().Format(time.RFC3339Nano), Seed: seed, GridSize: gridSize}
	if !s.enqueue(req{kind: reqRun, run: r}) {
		s.dropRun.Add(1)
	}
}

// Sync blocks until every write queued before it has been committed.
func (s *SQLiteIndex) Sync(ctx context.Context) error {
	if s == nil {
		return nil
	}
	done := make(chan struct{})
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil
	}
	select {
	case s.ch <- req{kind: reqSync, done: done}:
		s.mu.RUnlock()
	case <-ctx.Done():
		s.mu.RUnlock()
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type catalogRow struct {
	name   string
	digest string
	json   []byte
}

func catalogRows(configDir string, items catalogs.Items, tune tuning.Tuning) []catalogRow {
	var rows []catalogRow
	if configDir != "" {
		if b, err := os.ReadFile(filepath.Join(configDir, "items.json")); err == nil && len(b) > 0 {
			rows = append(rows, catalogRow{name: "items", digest: items.Digest, json: b})
		}
	}
	// The tuning row holds the values actually applied, defaults included.
	if b, err := json.Marshal(tune); err == nil {
		rows = append(rows, catalogRow{name: "tuning", digest: TuningDigest(tune), json: b})
	}
	return rows
}

// TuningDigest is the sha256 of the canonical JSON form of t.
func TuningDigest(t tuning.Tuning) string {
	b, _ := json.Marshal(t)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func (s *SQLiteIndex) UpsertCatalogs(configDir string, items catalogs.Items, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range catalogRows(configDir, items, tune) {
		if r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Runs lists recorded runs, newest first.
func (s *SQLiteIndex) Runs(ctx context.Context, limit int) ([]RunRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, started_at, seed, grid_size FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RunRow
	for rows.Next() {
		var r RunRow
		if err := rows.Scan(&r.RunID, &r.StartedAt, &r.Seed, &r.GridSize); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RunStats returns up to limit samples of a run, oldest first.
func (s *SQLiteIndex) RunStats(ctx context.Context, runID string, limit int) ([]StatsRow, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, `SELECT tick, game_ms, money, water, capacity, income, droplets
		FROM stats WHERE run_id = ? ORDER BY tick ASC LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StatsRow
	for rows.Next() {
		var r StatsRow
		var tick int64
		if err := rows.Scan(&tick, &r.GameMs, &r.Money, &r.Water, &r.Capacity, &r.Income, &r.Droplets); err != nil {
			return nil, err
		}
		r.Tick = uint64(tick)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertRun, _ := s.db.Prepare(`INSERT OR REPLACE INTO runs(run_id,started_at,seed,grid_size) VALUES(?,?,?,?)`)
	insertStats, _ := s.db.Prepare(`INSERT OR REPLACE INTO stats(run_id,tick,game_ms,money,water,capacity,income,droplets,raw_json) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertAudit, _ := s.db.Prepare(`INSERT OR REPLACE INTO audits(run_id,tick,seq,action,board,x,y,kind,accepted,code,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertRun, insertStats, insertAudit} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		lastAuditRun  string
		lastAuditTick uint64
		auditSeq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil || tx == nil {
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return
		}
		opCount++
	}

	for r := range s.ch {
		if r.kind == reqSync {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqRun:
			exec(insertRun, r.run.RunID, r.run.StartedAt, r.run.Seed, r.run.GridSize)

		case reqStats:
			e := r.stats
			raw, _ := json.Marshal(e)
			exec(insertStats, e.RunID, int64(e.Tick), e.GameMs, e.Money, e.Water, e.Capacity, e.Income, e.Droplets, string(raw))

		case reqAudit:
			a := r.audit
			if a.RunID != lastAuditRun || a.Tick != lastAuditTick {
				lastAuditRun, lastAuditTick = a.RunID, a.Tick
				auditSeq = 0
			}
			seq := auditSeq
			auditSeq++
			raw, _ := json.Marshal(a)
			exec(insertAudit, a.RunID, int64(a.Tick), seq, a.Action, a.Board, a.X, a.Y, a.Kind, a.Accepted, a.Code, string(raw))
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
