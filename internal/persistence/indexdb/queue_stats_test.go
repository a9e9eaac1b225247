package indexdb

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"aquaflow.game/internal/sim/game"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqStats, stats: game.StatsEntry{Tick: 1}}

	_ = s.WriteStats(game.StatsEntry{Tick: 2})
	_ = s.WriteAudit(game.AuditEntry{Tick: 2})
	s.RecordRun("r1", 1, 11, time.Now())

	st := s.Stats()
	if st.DropStatsTotal != 1 {
		t.Fatalf("DropStatsTotal=%d want=1", st.DropStatsTotal)
	}
	if st.DropAuditTotal != 1 {
		t.Fatalf("DropAuditTotal=%d want=1", st.DropAuditTotal)
	}
	if st.DropRunTotal != 1 {
		t.Fatalf("DropRunTotal=%d want=1", st.DropRunTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestRemoteIndex_RetainsBatchOnFlushFailure(t *testing.T) {
	var mu sync.Mutex
	reqCount := 0
	var kinds []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		reqCount++
		thisReq := reqCount
		mu.Unlock()

		if thisReq <= 3 {
			http.Error(w, "temporary failure", http.StatusInternalServerError)
			return
		}
		if r.Header.Get("x-aquaflow-index-token") != "secret" {
			http.Error(w, "no token", http.StatusUnauthorized)
			return
		}

		var body struct {
			Events []remoteEvent `json:"events"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		for _, ev := range body.Events {
			kinds = append(kinds, ev.Kind)
		}
		mu.Unlock()
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	idx, err := OpenRemote(RemoteConfig{
		Endpoint:      srv.URL,
		Token:         "secret",
		ServerID:      "srv_1",
		BatchSize:     1,
		FlushInterval: 20 * time.Millisecond,
		HTTPTimeout:   2 * time.Second,
	})
	if err != nil {
		t.Fatalf("OpenRemote: %v", err)
	}
	defer func() { _ = idx.Close() }()

	if err := idx.WriteStats(game.StatsEntry{RunID: "r1", Tick: 123}); err != nil {
		t.Fatalf("WriteStats: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := len(kinds) >= 1
		mu.Unlock()
		if done {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	mu.Lock()
	got := append([]string(nil), kinds...)
	finalReqCount := reqCount
	mu.Unlock()
	if len(got) != 1 || got[0] != "stats" {
		t.Fatalf("expected retained batch to be delivered once; kinds=%v reqCount=%d", got, finalReqCount)
	}

	st := idx.Stats()
	if st.FlushFailTotal < 3 {
		t.Fatalf("flush failures = %d, want >= 3", st.FlushFailTotal)
	}
	if st.QueueDroppedTotal != 0 || st.EventsSentTotal != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestOpenRemote_RequiresEndpointAndServer(t *testing.T) {
	if _, err := OpenRemote(RemoteConfig{ServerID: "x"}); err == nil {
		t.Fatalf("expected error for empty endpoint")
	}
	if _, err := OpenRemote(RemoteConfig{Endpoint: "http://127.0.0.1:1"}); err == nil {
		t.Fatalf("expected error for empty server id")
	}
}

type closeRaceIndex interface {
	WriteStats(game.StatsEntry) error
	WriteAudit(game.AuditEntry) error
	RecordRun(runID string, seed int64, gridSize int, startedAt time.Time)
	Close() error
}

func hammerUntilClosed(t *testing.T, idx closeRaceIndex) {
	t.Helper()
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; ; i++ {
				select {
				case <-stop:
					return
				default:
				}
				tick := uint64(i)
				_ = idx.WriteStats(game.StatsEntry{RunID: "race", Tick: tick})
				_ = idx.WriteAudit(game.AuditEntry{RunID: "race", Tick: tick, Action: "PLACE"})
				idx.RecordRun("race", int64(w), 11, time.Now())
			}
		}(w)
	}
	time.Sleep(20 * time.Millisecond)
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Writers keep going for a while against the closed index.
	time.Sleep(10 * time.Millisecond)
	close(stop)
	wg.Wait()

	if err := idx.WriteStats(game.StatsEntry{RunID: "race", Tick: 1}); err != nil {
		t.Fatalf("WriteStats after Close: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestSQLiteIndex_WritesRacingClose(t *testing.T) {
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "aquaflow.sqlite"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	hammerUntilClosed(t, idx)
}

func TestRemoteIndex_WritesRacingClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	idx, err := OpenRemote(RemoteConfig{
		Endpoint:      srv.URL,
		ServerID:      "srv_race",
		FlushInterval: 5 * time.Millisecond,
		HTTPTimeout:   2 * time.Second,
	})
	if err != nil {
		t.Fatalf("OpenRemote: %v", err)
	}
	hammerUntilClosed(t, idx)
}
