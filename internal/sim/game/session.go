package game

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"aquaflow.game/internal/sim/catalogs"
	"aquaflow.game/internal/sim/economy"
	"aquaflow.game/internal/sim/flow"
	"aquaflow.game/internal/sim/tuning"
)

type Config struct {
	Tuning tuning.Tuning
	Items  catalogs.Items
	Seed   int64
	// RunID names the first run; empty picks a random one. Every reset starts a new run.
	RunID  string
	Logger *log.Logger
}

// Session owns one game: both boards, the droplets in flight, the tank, the wallet and
// the draft. All state is touched only by the goroutine running Run, or by the caller
// of the Step/Apply methods when Run is not in use.
type Session struct {
	cfg Config
	log *log.Logger

	cmds     chan cmdReq
	stateReq chan chan State
	snapReq  chan chan snapResp
	subs     chan subReq
	unsub    chan string
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	statsLogger StatsLogger
	auditLogger AuditLogger
	onReset     func(runID string)

	runID     string
	main      *flow.Grid
	depot     *flow.Grid
	droplets  []flow.Droplet
	ids       flow.IDSeq
	transport flow.Transport
	spawner   flow.Spawner
	pricing   economy.Pricing
	wallet    *economy.Wallet
	tank      economy.Tank
	bonus     economy.DepotBonus
	drafter   *economy.Drafter
	resets    int64

	tick       uint64
	lastSpawn  time.Time
	paused     bool
	counters   Counters
	boardDirty bool

	observers map[string]chan Frame
}

type cmdReq struct {
	cmd  Command
	resp chan Result
}

type subReq struct {
	buf  int
	resp chan subResp
}

type subResp struct {
	id string
	ch <-chan Frame
}

// epoch anchors the logical game clock. Game time only advances with ticks, so a
// paused session does not age.
var epoch = time.Unix(0, 0).UTC()

func New(cfg Config) (*Session, error) {
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, err
	}
	if cfg.Items.Ports == nil {
		return nil, fmt.Errorf("session: item catalog not loaded")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	s := &Session{
		cfg:       cfg,
		log:       logger,
		cmds:      make(chan cmdReq, 64),
		stateReq:  make(chan chan State, 16),
		snapReq:   make(chan chan snapResp, 4),
		subs:      make(chan subReq, 16),
		unsub:     make(chan string, 16),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		observers: map[string]chan Frame{},
		pricing: economy.Pricing{
			Items:         cfg.Items,
			Inflation:     cfg.Tuning.Econ.Inflation,
			ExpansionCost: cfg.Tuning.Econ.ExpansionCost,
			RefundRatio:   cfg.Tuning.Econ.RefundRatio,
			RefreshCost:   cfg.Tuning.Draft.RefreshCost,
		},
	}
	if err := s.reset(cfg.RunID); err != nil {
		return nil, err
	}
	return s, nil
}

// reset rebuilds every piece of run state from the configuration.
func (s *Session) reset(runID string) error {
	t := s.cfg.Tuning
	src := flow.Pos{X: t.Board.Source.X, Y: t.Board.Source.Y}
	main, err := flow.NewGrid(flow.GridConfig{
		Size:          t.Board.Size,
		LockedFromRow: t.Board.LockedFromRow,
		Source:        &src,
		Ports:         s.cfg.Items.Ports,
	})
	if err != nil {
		return fmt.Errorf("main board: %w", err)
	}
	depot, err := flow.NewGrid(flow.GridConfig{
		Size:          t.Depot.Size,
		LockedFromRow: t.Depot.LockedFromRow,
		Ports:         s.cfg.Items.Ports,
	})
	if err != nil {
		return fmt.Errorf("depot board: %w", err)
	}
	drafter, err := economy.NewDrafter(s.cfg.Items, t.Draft.Slots, s.cfg.Seed+s.resets)
	if err != nil {
		return err
	}
	if runID == "" {
		runID = uuid.NewString()
	}

	s.runID = runID
	s.main = flow.Propagate(main)
	s.depot = depot
	s.droplets = nil
	s.ids = flow.IDSeq{}
	s.transport = flow.Transport{Speed: t.Clock.DropletSpeed, BaseIncome: t.Econ.BaseIncome, IDs: &s.ids}
	s.spawner = flow.Spawner{Progress: t.Clock.SpawnProgress, IDs: &s.ids}
	s.wallet = economy.NewWallet(t.Econ.InitialMoney)
	s.tank = economy.Tank{Stored: t.Water.Initial, BaseCapacity: t.Water.BaseCapacity, BaseRefill: t.Water.BaseRefill}
	s.bonus = economy.DepotBonus{}
	s.drafter = drafter
	s.tick = 0
	s.lastSpawn = time.Time{}
	s.paused = false
	s.counters = Counters{Dropped: map[string]uint64{}}
	s.boardDirty = true
	return nil
}

func (s *Session) SetStatsLogger(l StatsLogger) { s.statsLogger = l }
func (s *Session) SetAuditLogger(l AuditLogger) { s.auditLogger = l }

// OnReset registers a callback invoked with the new run ID after every reset, on the
// session goroutine.
func (s *Session) OnReset(fn func(runID string)) { s.onReset = fn }

func (s *Session) RunID() string { return s.runID }

func (s *Session) Config() Config { return s.cfg }

// Run drives the session until ctx is cancelled or Stop is called.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)
	defer s.closeObservers()

	fast := time.NewTicker(s.cfg.Tuning.Clock.Tick())
	defer fast.Stop()
	slow := time.NewTicker(s.cfg.Tuning.Clock.ResourceTick())
	defer slow.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			return nil
		case req := <-s.cmds:
			req.resp <- s.Apply(req.cmd)
		case resp := <-s.stateReq:
			resp <- s.State()
		case resp := <-s.snapReq:
			snap, err := s.ExportSnapshot()
			resp <- snapResp{snap: snap, err: err}
		case req := <-s.subs:
			req.resp <- s.subscribe(req.buf)
		case id := <-s.unsub:
			if ch, ok := s.observers[id]; ok {
				delete(s.observers, id)
				close(ch)
			}
		case <-fast.C:
			s.StepDroplets()
		case <-slow.C:
			s.StepResources()
		}
	}
}

func (s *Session) Stop() { s.stopOnce.Do(func() { close(s.stop) }) }

// Done is closed once Run has returned.
func (s *Session) Done() <-chan struct{} { return s.done }

// Do queues cmd for the session goroutine and waits for its result.
func (s *Session) Do(ctx context.Context, cmd Command) (Result, error) {
	req := cmdReq{cmd: cmd, resp: make(chan Result, 1)}
	select {
	case s.cmds <- req:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-s.done:
		return Result{}, ErrStopped
	}
	select {
	case r := <-req.resp:
		return r, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-s.done:
		return Result{}, ErrStopped
	}
}

// Snapshot returns a consistent copy of the session state.
func (s *Session) Snapshot(ctx context.Context) (State, error) {
	resp := make(chan State, 1)
	select {
	case s.stateReq <- resp:
	case <-ctx.Done():
		return State{}, ctx.Err()
	case <-s.done:
		return State{}, ErrStopped
	}
	select {
	case st := <-resp:
		return st, nil
	case <-ctx.Done():
		return State{}, ctx.Err()
	case <-s.done:
		return State{}, ErrStopped
	}
}

// Subscribe registers an observer. The channel holds at most buf frames; when the
// observer falls behind the oldest frame is dropped. It is closed on Unsubscribe or
// when Run exits.
func (s *Session) Subscribe(ctx context.Context, buf int) (string, <-chan Frame, error) {
	req := subReq{buf: buf, resp: make(chan subResp, 1)}
	select {
	case s.subs <- req:
	case <-ctx.Done():
		return "", nil, ctx.Err()
	case <-s.done:
		return "", nil, ErrStopped
	}
	select {
	case r := <-req.resp:
		return r.id, r.ch, nil
	case <-ctx.Done():
		return "", nil, ctx.Err()
	case <-s.done:
		return "", nil, ErrStopped
	}
}

func (s *Session) Unsubscribe(id string) {
	select {
	case s.unsub <- id:
	case <-s.done:
	}
}

func (s *Session) subscribe(buf int) subResp {
	if buf <= 0 {
		buf = 1
	}
	id := uuid.NewString()
	ch := make(chan Frame, buf)
	s.observers[id] = ch
	// New observers always start from a full board.
	sendLatest(ch, s.frame(0, true))
	return subResp{id: id, ch: ch}
}

func (s *Session) closeObservers() {
	for id, ch := range s.observers {
		delete(s.observers, id)
		close(ch)
	}
}

// sendLatest delivers f without blocking. A full channel loses its oldest frame; a
// board carried by the lost frame moves onto f so observers never miss a structure
// change.
func sendLatest(ch chan Frame, f Frame) {
	select {
	case ch <- f:
		return
	default:
	}
	select {
	case old := <-ch:
		if f.Board == nil {
			f.Board = old.Board
		}
	default:
	}
	select {
	case ch <- f:
	default:
	}
}

func (s *Session) now() time.Time {
	return epoch.Add(time.Duration(s.tick) * s.cfg.Tuning.Clock.Tick())
}

func (s *Session) gameMs() int64 { return s.now().Sub(epoch).Milliseconds() }
