package game

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"aquaflow.game/internal/protocol"
	"aquaflow.game/internal/sim/catalogs"
	"aquaflow.game/internal/sim/flow"
	"aquaflow.game/internal/sim/tuning"
)

type memLogger struct {
	mu     sync.Mutex
	stats  []StatsEntry
	audits []AuditEntry
}

func (m *memLogger) WriteStats(e StatsEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = append(m.stats, e)
	return nil
}

func (m *memLogger) WriteAudit(e AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, e)
	return nil
}

func newTestSession(t *testing.T, tune func(*tuning.Tuning)) *Session {
	t.Helper()
	c, err := catalogs.Load(filepath.Join("..", "..", "..", "configs"))
	if err != nil {
		t.Fatalf("catalogs.Load: %v", err)
	}
	tu := tuning.Defaults()
	if tune != nil {
		tune(&tu)
	}
	s, err := New(Config{Tuning: tu, Items: c.Items, Seed: 1, RunID: "run-test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

// slotWith returns a draft slot holding a kind accepted by want, redrawing the hand
// until one shows up.
func slotWith(t *testing.T, s *Session, want func(flow.Kind) bool) (int, int) {
	t.Helper()
	for try := 0; try < 200; try++ {
		for i, o := range s.drafter.Slots() {
			if want(o.Kind) {
				return i, o.Level
			}
		}
		s.drafter.Refresh()
	}
	t.Fatalf("draft never offered the wanted kind")
	return 0, 0
}

func is(k flow.Kind) func(flow.Kind) bool { return func(x flow.Kind) bool { return x == k } }

func mustApply(t *testing.T, s *Session, cmd Command) Result {
	t.Helper()
	r := s.Apply(cmd)
	if !r.Accepted {
		t.Fatalf("%s at %s rejected: %s %s", cmd.Type, cmd.Pos, r.Code, r.Message)
	}
	return r
}

func placeMain(t *testing.T, s *Session, p flow.Pos, k flow.Kind) Result {
	t.Helper()
	slot, _ := slotWith(t, s, is(k))
	return mustApply(t, s, Command{Type: protocol.CmdPlace, Board: BoardMain, Pos: p, Slot: slot})
}

func TestNew_InitialState(t *testing.T) {
	s := newTestSession(t, nil)
	st := s.State()
	if st.RunID != "run-test" || st.Money != 30 || st.Water != 100 || st.Capacity != 100 {
		t.Fatalf("state = %+v", st)
	}
	if len(st.Main) != 11 || len(st.Depot) != 5 || len(st.Draft) != 3 {
		t.Fatalf("sizes: main=%d depot=%d draft=%d", len(st.Main), len(st.Depot), len(st.Draft))
	}
	if src := st.Main[0][5]; src.Kind != flow.KindSource || !src.Wet {
		t.Fatalf("source = %+v", src)
	}
	if !st.Main[4][0].Locked || st.Main[3][0].Locked || !st.Depot[2][0].Locked {
		t.Fatalf("locked rows wrong")
	}
	if st.Costs["HOUSE"] != 10 || st.Costs["UNLOCK"] != 1000 {
		t.Fatalf("costs = %v", st.Costs)
	}
}

func TestSession_SourcePipeHousePaysOnce(t *testing.T) {
	s := newTestSession(t, nil)
	if r := placeMain(t, s, flow.Pos{X: 5, Y: 1}, flow.KindPipeStraight); r.Cost != 2 {
		t.Fatalf("straight cost = %d", r.Cost)
	}
	slot, level := slotWith(t, s, is(flow.KindHouse))
	r := mustApply(t, s, Command{Type: protocol.CmdPlace, Board: BoardMain, Pos: flow.Pos{X: 5, Y: 2}, Slot: slot})
	if r.Cost != 10 {
		t.Fatalf("house cost with one building = %d", r.Cost)
	}
	if s.State().EstimatedIncome != int64(level) {
		t.Fatalf("estimated income = %d", s.State().EstimatedIncome)
	}

	start := s.wallet.Balance()
	var paid int64
	for i := 0; i < 100; i++ {
		paid += s.StepDroplets().Income
	}
	if paid != int64(level) || s.wallet.Balance() != start+int64(level) {
		t.Fatalf("paid %d, balance %d -> %d", paid, start, s.wallet.Balance())
	}
	if s.counters.Spawned != 1 || s.tank.Stored != 99 {
		t.Fatalf("spawned=%d stored=%v", s.counters.Spawned, s.tank.Stored)
	}
	for i := 0; i < 25; i++ {
		s.StepDroplets()
	}
	if s.counters.Dropped["rejected"] != 1 || len(s.droplets) != 0 {
		t.Fatalf("dropped=%v droplets=%d", s.counters.Dropped, len(s.droplets))
	}
}

func TestSession_SpawnNeedsWater(t *testing.T) {
	s := newTestSession(t, func(tu *tuning.Tuning) { tu.Water.Initial = 0.5 })
	for i := 0; i < 10; i++ {
		s.StepDroplets()
	}
	if s.counters.Spawned != 0 || len(s.droplets) != 0 {
		t.Fatalf("spawned without water")
	}
}

func TestSession_Rejections(t *testing.T) {
	s := newTestSession(t, nil)
	logs := &memLogger{}
	s.SetAuditLogger(logs)

	tests := []struct {
		name string
		cmd  Command
		code string
	}{
		{"unlock without funds", Command{Type: protocol.CmdUnlock, Pos: flow.Pos{X: 0, Y: 5}}, protocol.ErrNoFunds},
		{"place on locked", Command{Type: protocol.CmdPlace, Pos: flow.Pos{X: 0, Y: 5}, Slot: 0}, protocol.ErrLocked},
		{"bad slot", Command{Type: protocol.CmdPlace, Pos: flow.Pos{X: 0, Y: 1}, Slot: 7}, protocol.ErrBadSlot},
		{"house on depot", Command{Type: protocol.CmdPlace, Board: BoardDepot, Pos: flow.Pos{X: 0, Y: 0}, Kind: flow.KindHouse}, protocol.ErrWrongBoard},
		{"delete source", Command{Type: protocol.CmdDelete, Pos: flow.Pos{X: 5, Y: 0}}, protocol.ErrImmutable},
		{"rotate empty", Command{Type: protocol.CmdRotate, Pos: flow.Pos{X: 1, Y: 1}}, protocol.ErrNotRotatable},
		{"move to self", Command{Type: protocol.CmdMove, Pos: flow.Pos{X: 1, Y: 1}, To: flow.Pos{X: 1, Y: 1}}, protocol.ErrSameTile},
		{"off board", Command{Type: protocol.CmdUpgrade, Pos: flow.Pos{X: 20, Y: 0}}, protocol.ErrOutOfBounds},
		{"pump too expensive", Command{Type: protocol.CmdPlace, Board: BoardDepot, Pos: flow.Pos{X: 0, Y: 0}, Kind: flow.KindDepotPump}, protocol.ErrNoFunds},
	}
	for _, tc := range tests {
		r := s.Apply(tc.cmd)
		if r.Accepted || r.Code != tc.code {
			t.Fatalf("%s: accepted=%v code=%s want %s", tc.name, r.Accepted, r.Code, tc.code)
		}
	}
	if s.wallet.Balance() != 30 {
		t.Fatalf("rejections changed money: %d", s.wallet.Balance())
	}
	if len(logs.audits) != len(tests) || logs.audits[0].Accepted || logs.audits[0].Code != protocol.ErrNoFunds {
		t.Fatalf("audits = %+v", logs.audits)
	}
}

func TestSession_DeleteRefundsAndUpgradeCharges(t *testing.T) {
	s := newTestSession(t, func(tu *tuning.Tuning) { tu.Econ.InitialMoney = 500 })
	p := flow.Pos{X: 2, Y: 2}
	placeMain(t, s, p, flow.KindPipeCross)

	before := s.wallet.Balance()
	r := mustApply(t, s, Command{Type: protocol.CmdUpgrade, Pos: p})
	if r.Cost != 16 || s.wallet.Balance() != before-16 {
		t.Fatalf("upgrade cost=%d balance=%d", r.Cost, s.wallet.Balance())
	}
	before = s.wallet.Balance()
	r = mustApply(t, s, Command{Type: protocol.CmdDelete, Pos: p})
	if r.Refund != 4 || s.wallet.Balance() != before+4 {
		t.Fatalf("refund=%d balance=%d", r.Refund, s.wallet.Balance())
	}
	if tl, _ := s.main.At(p); tl.Kind != flow.KindEmpty {
		t.Fatalf("tile not cleared: %+v", tl)
	}
}

func TestSession_DepotDrivesTank(t *testing.T) {
	s := newTestSession(t, func(tu *tuning.Tuning) { tu.Econ.InitialMoney = 1000 })
	mustApply(t, s, Command{Type: protocol.CmdPlace, Board: BoardDepot, Pos: flow.Pos{X: 0, Y: 0}, Kind: flow.KindDepotTank})
	mustApply(t, s, Command{Type: protocol.CmdPlace, Board: BoardDepot, Pos: flow.Pos{X: 1, Y: 0}, Kind: flow.KindDepotWell})
	mustApply(t, s, Command{Type: protocol.CmdPlace, Board: BoardDepot, Pos: flow.Pos{X: 2, Y: 0}, Kind: flow.KindDepotPump})

	st := s.State()
	if st.Capacity != 200 || st.SpawnMultiplier < 1.099 || st.SpawnMultiplier > 1.101 {
		t.Fatalf("capacity=%v multiplier=%v", st.Capacity, st.SpawnMultiplier)
	}
	water := s.tank.Stored
	s.StepResources()
	if got := s.tank.Stored - water; got < 0.099 || got > 0.101 {
		t.Fatalf("refill = %v", got)
	}
	if r := s.Apply(Command{Type: protocol.CmdRotate, Board: BoardDepot, Pos: flow.Pos{X: 0, Y: 0}}); r.Code != protocol.ErrNotRotatable {
		t.Fatalf("rotate depot piece: %+v", r)
	}
}

func TestSession_MergeOnMove(t *testing.T) {
	s := newTestSession(t, func(tu *tuning.Tuning) { tu.Econ.InitialMoney = 500 })
	for {
		slot, level := slotWith(t, s, is(flow.KindHouse))
		if level == 1 {
			mustApply(t, s, Command{Type: protocol.CmdPlace, Pos: flow.Pos{X: 1, Y: 1}, Slot: slot})
			break
		}
		s.drafter.Refresh()
	}
	for {
		slot, level := slotWith(t, s, is(flow.KindHouse))
		if level == 1 {
			mustApply(t, s, Command{Type: protocol.CmdPlace, Pos: flow.Pos{X: 2, Y: 1}, Slot: slot})
			break
		}
		s.drafter.Refresh()
	}
	r := mustApply(t, s, Command{Type: protocol.CmdMove, Pos: flow.Pos{X: 1, Y: 1}, To: flow.Pos{X: 2, Y: 1}})
	if !r.Merged || r.Cost != 0 {
		t.Fatalf("move = %+v", r)
	}
	if tl, _ := s.main.At(flow.Pos{X: 2, Y: 1}); tl.Level != 2 {
		t.Fatalf("merged level = %d", tl.Level)
	}
}

func TestSession_PauseFreezesTime(t *testing.T) {
	s := newTestSession(t, nil)
	s.StepDroplets()
	mustApply(t, s, Command{Type: protocol.CmdPause})
	tick, water := s.tick, s.tank.Stored
	for i := 0; i < 10; i++ {
		s.StepDroplets()
		s.StepResources()
	}
	if s.tick != tick || s.tank.Stored != water {
		t.Fatalf("paused session advanced: tick %d -> %d", tick, s.tick)
	}
	if r := s.Apply(Command{Type: protocol.CmdRefreshDraft}); r.Code != protocol.ErrPaused {
		t.Fatalf("refresh while paused: %+v", r)
	}
	mustApply(t, s, Command{Type: protocol.CmdResume})
	s.StepDroplets()
	if s.tick != tick+1 {
		t.Fatalf("resume did not restart ticks")
	}
}

func TestSession_ResetStartsNewRun(t *testing.T) {
	s := newTestSession(t, nil)
	var got string
	s.OnReset(func(id string) { got = id })
	placeMain(t, s, flow.Pos{X: 5, Y: 1}, flow.KindPipeStraight)
	s.StepDroplets()

	mustApply(t, s, Command{Type: protocol.CmdReset})
	st := s.State()
	if st.RunID == "run-test" || got != st.RunID {
		t.Fatalf("run id after reset = %q (callback %q)", st.RunID, got)
	}
	if st.Tick != 0 || st.Money != 30 || st.Main[1][5].Kind != flow.KindEmpty || len(st.Droplets) != 0 {
		t.Fatalf("state not reset: %+v", st)
	}
}

func TestSession_StatsEntries(t *testing.T) {
	s := newTestSession(t, nil)
	logs := &memLogger{}
	s.SetStatsLogger(logs)
	s.StepDroplets()
	s.StepResources()
	if len(logs.stats) != 1 {
		t.Fatalf("stats entries = %d", len(logs.stats))
	}
	e := logs.stats[0]
	if e.RunID != "run-test" || e.Tick != 1 || e.Spawned != 1 || e.Capacity != 100 || e.GameMs != 33 {
		t.Fatalf("entry = %+v", e)
	}
}

func TestSendLatest_KeepsBoard(t *testing.T) {
	ch := make(chan Frame, 1)
	sendLatest(ch, Frame{Tick: 1, Board: &protocol.BoardMsg{Tick: 1}})
	sendLatest(ch, Frame{Tick: 2})
	f := <-ch
	if f.Tick != 2 || f.Board == nil || f.Board.Tick != 1 {
		t.Fatalf("frame = %+v", f)
	}
}

func TestRun_CommandsAndObservers(t *testing.T) {
	s := newTestSession(t, func(tu *tuning.Tuning) {
		tu.Clock.TickMs = 2
		tu.Clock.ResourceTickMs = 20
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	id, frames, err := s.Subscribe(ctx, 4)
	if err != nil || id == "" {
		t.Fatalf("Subscribe: %q %v", id, err)
	}
	first := <-frames
	if first.Board == nil {
		t.Fatalf("first frame has no board")
	}

	st, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	slot := -1
	for i, o := range st.Draft {
		if o.Kind == flow.KindPipeStraight.String() || o.Kind == flow.KindHouse.String() {
			slot = i
		}
	}
	if slot < 0 {
		t.Skip("opening hand without a house or straight pipe")
	}
	res, err := s.Do(ctx, Command{Ref: "c1", Type: protocol.CmdPlace, Pos: flow.Pos{X: 5, Y: 1}, Slot: slot})
	if err != nil || !res.Accepted || res.Ref != "c1" {
		t.Fatalf("Do = %+v, %v", res, err)
	}

	deadline := time.After(3 * time.Second)
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				t.Fatalf("frames closed early")
			}
			if f.Board != nil && f.Board.Main[1][5].Kind != flow.KindEmpty {
				goto placed
			}
		case <-deadline:
			t.Fatalf("no board frame after placement")
		}
	}
placed:
	s.Stop()
	if err := <-errCh; err != nil {
		t.Fatalf("Run: %v", err)
	}
	for range frames {
	}
	if _, err := s.Do(context.Background(), Command{Type: protocol.CmdPause}); !errors.Is(err, ErrStopped) {
		t.Fatalf("Do after stop: %v", err)
	}
}

func TestCommandFromMsg(t *testing.T) {
	x, y, slot := 3, 4, 1
	c, err := CommandFromMsg(protocol.CmdMsg{Cmd: "move", X: 1, Y: 2, ToX: &x, ToY: &y})
	if err != nil || c.Type != protocol.CmdMove || c.To != (flow.Pos{X: 3, Y: 4}) || c.Board != BoardMain {
		t.Fatalf("move = %+v, %v", c, err)
	}
	c, err = CommandFromMsg(protocol.CmdMsg{Cmd: "PLACE", Board: "depot", Kind: "DEPOT_WELL"})
	if err != nil || c.Board != BoardDepot || c.Kind != flow.KindDepotWell {
		t.Fatalf("depot place = %+v, %v", c, err)
	}
	if _, err := CommandFromMsg(protocol.CmdMsg{Cmd: "PLACE", Slot: &slot}); err != nil {
		t.Fatalf("main place: %v", err)
	}

	bad := []protocol.CmdMsg{
		{Cmd: "MOVE", X: 1},
		{Cmd: "PLACE"},
		{Cmd: "PLACE", Board: "DEPOT"},
		{Cmd: "PLACE", Board: "ROOF", Slot: &slot},
		{Cmd: "FLY"},
		{Cmd: "PLACE", Board: "DEPOT", Kind: "TOWER"},
	}
	for _, m := range bad {
		if _, err := CommandFromMsg(m); !errors.Is(err, ErrBadCommand) || CodeFor(err) != protocol.ErrBadRequest {
			t.Fatalf("%+v: err=%v", m, err)
		}
	}
}

func TestCodeFor_MaxLevel(t *testing.T) {
	err := fmt.Errorf("(5,1): %w", flow.ErrMaxLevel)
	if got := CodeFor(err); got != protocol.ErrMaxLevel {
		t.Fatalf("code = %q", got)
	}
}
