package indexdb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"aquaflow.game/internal/sim/catalogs"
	"aquaflow.game/internal/sim/game"
	"aquaflow.game/internal/sim/tuning"
)

// RemoteConfig points a RemoteIndex at an HTTP ingest endpoint that accepts
// {"events":[...]} batches.
type RemoteConfig struct {
	Endpoint      string
	Token         string
	ServerID      string
	BatchSize     int
	FlushInterval time.Duration
	HTTPTimeout   time.Duration
	// MaxPending caps events held back after failed flushes.
	MaxPending int
	Logger     *log.Logger
}

// RemoteIndex ships stats, audits, runs and catalogs to a remote ingest service in
// batches. A batch that fails to send is kept and retried with the next flush.
type RemoteIndex struct {
	cfg        RemoteConfig
	httpClient *http.Client

	ch   chan remoteEvent
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.RWMutex
	closed bool

	queueDropped atomic.Uint64
	flushOK      atomic.Uint64
	flushFail    atomic.Uint64
	sent         atomic.Uint64
}

type remoteEvent struct {
	Kind     string `json:"kind"`
	ServerID string `json:"server_id"`
	Payload  any    `json:"payload"`
}

type remoteCatalogPayload struct {
	Name      string `json:"name"`
	Digest    string `json:"digest"`
	JSON      string `json:"json"`
	UpdatedAt string `json:"updated_at"`
}

type RemoteStats struct {
	QueueDroppedTotal uint64 `json:"queue_dropped_total"`
	FlushOKTotal      uint64 `json:"flush_ok_total"`
	FlushFailTotal    uint64 `json:"flush_fail_total"`
	EventsSentTotal   uint64 `json:"events_sent_total"`
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
}

func OpenRemote(cfg RemoteConfig) (*RemoteIndex, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.ServerID = strings.TrimSpace(cfg.ServerID)
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("empty index ingest endpoint")
	}
	if cfg.ServerID == "" {
		return nil, fmt.Errorf("empty server id")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 128
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = 8192
	}

	d := &RemoteIndex{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		ch:         make(chan remoteEvent, 8192),
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.loop()
	}()
	return d, nil
}

func (d *RemoteIndex) Close() error {
	if d == nil {
		return nil
	}
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.ch)
		d.mu.Unlock()
		d.wg.Wait()
	})
	return nil
}

func (d *RemoteIndex) Stats() RemoteStats {
	if d == nil {
		return RemoteStats{}
	}
	return RemoteStats{
		QueueDroppedTotal: d.queueDropped.Load(),
		FlushOKTotal:      d.flushOK.Load(),
		FlushFailTotal:    d.flushFail.Load(),
		EventsSentTotal:   d.sent.Load(),
		QueueDepth:        len(d.ch),
		QueueCapacity:     cap(d.ch),
	}
}

func (d *RemoteIndex) WriteStats(entry game.StatsEntry) error {
	d.enqueue("stats", entry)
	return nil
}

func (d *RemoteIndex) WriteAudit(entry game.AuditEntry) error {
	d.enqueue("audit", entry)
	return nil
}

func (d *RemoteIndex) RecordRun(runID string, seed int64, gridSize int, startedAt time.Time) {
	if runID == "" {
		return
	}
	d.enqueue("run", RunRow{RunID: runID, StartedAt: startedAt.UTC().Format(time.RFC3339Nano), Seed: seed, GridSize: gridSize})
}

func (d *RemoteIndex) UpsertCatalogs(configDir string, items catalogs.Items, tune tuning.Tuning) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, r := range catalogRows(configDir, items, tune) {
		if r.digest == "" || len(r.json) == 0 {
			continue
		}
		d.enqueue("catalog", remoteCatalogPayload{Name: r.name, Digest: r.digest, JSON: string(r.json), UpdatedAt: now})
	}
	return nil
}

func (d *RemoteIndex) enqueue(kind string, payload any) {
	if d == nil {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.ch <- remoteEvent{Kind: kind, ServerID: d.cfg.ServerID, Payload: payload}:
	default:
		d.queueDropped.Add(1)
		d.printf("index queue full; drop kind=%s", kind)
	}
}

func (d *RemoteIndex) loop() {
	ticker := time.NewTicker(d.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]remoteEvent, 0, d.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		n := min(len(batch), d.cfg.BatchSize)
		if err := d.sendBatch(batch[:n]); err != nil {
			d.flushFail.Add(1)
			d.printf("index flush failed batch=%d err=%v", n, err)
			if over := len(batch) - d.cfg.MaxPending; over > 0 {
				d.queueDropped.Add(uint64(over))
				batch = append(batch[:0], batch[over:]...)
			}
			return
		}
		d.flushOK.Add(1)
		d.sent.Add(uint64(n))
		batch = append(batch[:0], batch[n:]...)
	}

	for {
		select {
		case ev, ok := <-d.ch:
			if !ok {
				for len(batch) > 0 {
					before := len(batch)
					flush()
					if len(batch) == before {
						break
					}
				}
				return
			}
			batch = append(batch, ev)
			if len(batch) >= d.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (d *RemoteIndex) sendBatch(events []remoteEvent) error {
	body := struct {
		Events []remoteEvent `json:"events"`
	}{Events: events}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, d.cfg.Endpoint, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("content-type", "application/json")
	if d.cfg.Token != "" {
		req.Header.Set("x-aquaflow-index-token", d.cfg.Token)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}

func (d *RemoteIndex) printf(format string, args ...any) {
	if d != nil && d.cfg.Logger != nil {
		d.cfg.Logger.Printf(format, args...)
	}
}
