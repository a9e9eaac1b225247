// Package httpapi exposes a game session over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"aquaflow.game/internal/persistence/indexdb"
	"aquaflow.game/internal/protocol"
	"aquaflow.game/internal/render"
	"aquaflow.game/internal/sim/game"
	"aquaflow.game/internal/transport/ws"
)

// History serves past runs from the index database.
type History interface {
	Runs(ctx context.Context, limit int) ([]indexdb.RunRow, error)
	RunStats(ctx context.Context, runID string, limit int) ([]indexdb.StatsRow, error)
}

type Config struct {
	Session      *game.Session
	TuningDigest string
	Logger       *log.Logger
	// History is optional; without it the /v1/runs routes are not mounted.
	History History
	// ExtraMetrics appends more exposition lines to /metrics.
	ExtraMetrics func(w io.Writer)
	CmdTimeout   time.Duration
}

type handler struct {
	cfg Config
}

// SetupRoutes configures all routes and returns the router.
func SetupRoutes(cfg Config) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	if cfg.CmdTimeout <= 0 {
		cfg.CmdTimeout = 2 * time.Second
	}
	h := &handler{cfg: cfg}
	wsSrv := ws.NewServer(cfg.Session, cfg.TuningDigest, cfg.Logger)
	wsSrv.CmdTimeout = cfg.CmdTimeout

	r := chi.NewRouter()
	r.Use(h.recovery)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/metrics", h.metrics)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/state", h.state)
		r.Get("/board.png", h.boardPNG)
		r.Post("/commands", h.command)
		r.Get("/ws", wsSrv.Handler())
		if cfg.History != nil {
			r.Get("/runs", h.runs)
			r.Get("/runs/{id}/stats", h.runStats)
		}
	})
	return r
}

func (h *handler) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				h.cfg.Logger.Printf("panic serving %s %s: %v", r.Method, r.URL.Path, v)
				respondError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (h *handler) snapshot(w http.ResponseWriter, r *http.Request) (game.State, bool) {
	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.CmdTimeout)
	defer cancel()
	st, err := h.cfg.Session.Snapshot(ctx)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return st, false
	}
	return st, true
}

// state handles GET /v1/state.
func (h *handler) state(w http.ResponseWriter, r *http.Request) {
	st, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, st)
}

// boardPNG handles GET /v1/board.png?board=main|depot&cell=N.
func (h *handler) boardPNG(w http.ResponseWriter, r *http.Request) {
	board, err := game.ParseBoard(r.URL.Query().Get("board"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid board")
		return
	}
	cell := 48
	if v := r.URL.Query().Get("cell"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 8 || n > 256 {
			respondError(w, http.StatusBadRequest, "Invalid cell size")
			return
		}
		cell = n
	}
	st, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	rows := st.Main
	opts := render.Options{Cell: cell, Droplets: st.Droplets}
	if board == game.BoardDepot {
		rows = st.Depot
		opts.Droplets = nil
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := render.WritePNG(w, rows, h.cfg.Session.Config().Items.Ports, opts); err != nil {
		h.cfg.Logger.Printf("render board: %v", err)
	}
}

// command handles POST /v1/commands with a CMD body.
func (h *handler) command(w http.ResponseWriter, r *http.Request) {
	var m protocol.CmdMsg
	dec := json.NewDecoder(io.LimitReader(r.Body, 64*1024))
	if err := dec.Decode(&m); err != nil {
		respondJSON(w, http.StatusBadRequest, protocol.AckMsg{
			Type: protocol.TypeAck, ProtocolVersion: protocol.Version,
			Code: protocol.ErrProtoBadRequest, Message: err.Error(),
		})
		return
	}
	if m.ProtocolVersion == "" {
		m.ProtocolVersion = protocol.Version
	}
	if m.ProtocolVersion != protocol.Version {
		respondJSON(w, http.StatusBadRequest, protocol.AckMsg{
			Type: protocol.TypeAck, ProtocolVersion: protocol.Version, AckFor: m.Ref,
			Code: protocol.ErrProtoVersion, Message: "bad protocol_version",
		})
		return
	}
	ack := ws.Execute(r.Context(), h.cfg.Session, m, h.cfg.CmdTimeout, h.cfg.Logger)
	respondJSON(w, statusFor(ack), ack)
}

func statusFor(a protocol.AckMsg) int {
	switch {
	case a.Accepted:
		return http.StatusOK
	case a.Code == protocol.ErrBadRequest || a.Code == protocol.ErrProtoBadRequest:
		return http.StatusBadRequest
	case a.Code == protocol.ErrBusy:
		return http.StatusServiceUnavailable
	case a.Code == protocol.ErrInternal:
		return http.StatusInternalServerError
	}
	return http.StatusConflict
}

// runs handles GET /v1/runs.
func (h *handler) runs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.cfg.History.Runs(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []indexdb.RunRow{}
	}
	respondJSON(w, http.StatusOK, runs)
}

// runStats handles GET /v1/runs/{id}/stats.
func (h *handler) runStats(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "Invalid run id")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := h.cfg.History.RunStats(r.Context(), id, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(rows) == 0 {
		respondError(w, http.StatusNotFound, "run not found")
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

// metrics handles GET /metrics in the Prometheus text format.
func (h *handler) metrics(w http.ResponseWriter, r *http.Request) {
	st, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	run := st.RunID
	gauge := func(name, help string, v any) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s gauge\n", name)
		fmt.Fprintf(w, "%s{run=%q} %v\n", name, run, v)
	}
	gauge("aquaflow_tick", "Current droplet tick.", st.Tick)
	gauge("aquaflow_money", "Current money.", st.Money)
	gauge("aquaflow_water", "Stored water.", st.Water)
	gauge("aquaflow_water_capacity", "Tank capacity.", st.Capacity)
	gauge("aquaflow_droplets", "Droplets in flight.", len(st.Droplets))
	gauge("aquaflow_estimated_income", "Income per droplet pass over supplied houses.", st.EstimatedIncome)
	paused := 0
	if st.Paused {
		paused = 1
	}
	gauge("aquaflow_paused", "1 while the session is paused.", paused)

	c := st.Counters
	fmt.Fprintf(w, "# HELP aquaflow_events_total Simulation events in this run.\n")
	fmt.Fprintf(w, "# TYPE aquaflow_events_total counter\n")
	fmt.Fprintf(w, "aquaflow_events_total{run=%q,event=%q} %d\n", run, "spawned", c.Spawned)
	fmt.Fprintf(w, "aquaflow_events_total{run=%q,event=%q} %d\n", run, "moved", c.Moved)
	fmt.Fprintf(w, "aquaflow_events_total{run=%q,event=%q} %d\n", run, "splits", c.Splits)
	fmt.Fprintf(w, "aquaflow_events_total{run=%q,event=%q} %d\n", run, "payments", c.Payments)
	fmt.Fprintf(w, "aquaflow_events_total{run=%q,event=%q} %d\n", run, "commands", c.Commands)
	fmt.Fprintf(w, "aquaflow_events_total{run=%q,event=%q} %d\n", run, "rejected", c.Rejected)

	fmt.Fprintf(w, "# HELP aquaflow_dropped_total Droplets removed, by reason.\n")
	fmt.Fprintf(w, "# TYPE aquaflow_dropped_total counter\n")
	for _, reason := range []string{"no_exit", "off_grid", "rejected", "dead_end"} {
		fmt.Fprintf(w, "aquaflow_dropped_total{run=%q,reason=%q} %d\n", run, reason, c.Dropped[reason])
	}

	if h.cfg.ExtraMetrics != nil {
		h.cfg.ExtraMetrics(w)
	}
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON: %v", err)
	}
}

// respondError writes an error JSON response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
