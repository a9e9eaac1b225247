package game

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"aquaflow.game/internal/protocol"
	"aquaflow.game/internal/sim/flow"
)

var (
	ErrBadCommand = errors.New("bad command")
	ErrPaused     = errors.New("session paused")
	ErrStopped    = errors.New("session stopped")
)

// Board selects which grid a command targets.
type Board uint8

const (
	BoardMain Board = iota
	BoardDepot
)

func (b Board) String() string {
	if b == BoardDepot {
		return "DEPOT"
	}
	return "MAIN"
}

func ParseBoard(s string) (Board, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "MAIN":
		return BoardMain, nil
	case "DEPOT":
		return BoardDepot, nil
	}
	return BoardMain, fmt.Errorf("board %q: %w", s, ErrBadCommand)
}

// Command is one player request. Type is one of the protocol.Cmd* names.
type Command struct {
	Ref   string
	Type  string
	Board Board
	Pos   flow.Pos
	To    flow.Pos
	// Kind is what to build on the depot; main-board builds come from Slot.
	Kind flow.Kind
	Slot int
}

// CommandFromMsg validates a wire command.
func CommandFromMsg(m protocol.CmdMsg) (Command, error) {
	c := Command{
		Ref:  m.Ref,
		Type: strings.ToUpper(strings.TrimSpace(m.Cmd)),
		Pos:  flow.Pos{X: m.X, Y: m.Y},
		Slot: -1,
	}
	b, err := ParseBoard(m.Board)
	if err != nil {
		return c, err
	}
	c.Board = b
	if m.Slot != nil {
		c.Slot = *m.Slot
	}
	if m.Kind != "" {
		k, err := flow.ParseKind(m.Kind)
		if err != nil {
			return c, fmt.Errorf("%v: %w", err, ErrBadCommand)
		}
		c.Kind = k
	}

	switch c.Type {
	case protocol.CmdMove:
		if m.ToX == nil || m.ToY == nil {
			return c, fmt.Errorf("MOVE needs to_x and to_y: %w", ErrBadCommand)
		}
		c.To = flow.Pos{X: *m.ToX, Y: *m.ToY}
	case protocol.CmdPlace:
		if c.Board == BoardMain && c.Slot < 0 {
			return c, fmt.Errorf("main-board PLACE needs a draft slot: %w", ErrBadCommand)
		}
		if c.Board == BoardDepot && c.Kind == flow.KindEmpty {
			return c, fmt.Errorf("depot PLACE needs a kind: %w", ErrBadCommand)
		}
	case protocol.CmdRotate, protocol.CmdDelete, protocol.CmdUnlock, protocol.CmdUpgrade,
		protocol.CmdRefreshDraft, protocol.CmdPause, protocol.CmdResume, protocol.CmdReset:
	default:
		return c, fmt.Errorf("unknown command %q: %w", m.Cmd, ErrBadCommand)
	}
	return c, nil
}

// Result reports how a command was applied.
type Result struct {
	Ref      string
	Accepted bool
	Code     string
	Message  string
	Cost     int64
	Refund   int64
	Merged   bool
	Tick     uint64
}

func (r Result) Ack() protocol.AckMsg {
	return protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          r.Ref,
		Accepted:        r.Accepted,
		Code:            r.Code,
		Message:         r.Message,
		Cost:            r.Cost,
		Refund:          r.Refund,
		Merged:          r.Merged,
		ServerTick:      r.Tick,
	}
}

// Counters accumulate over a run.
type Counters struct {
	Spawned  uint64            `json:"spawned"`
	Moved    uint64            `json:"moved"`
	Splits   uint64            `json:"splits"`
	Payments uint64            `json:"payments"`
	Income   int64             `json:"income"`
	Dropped  map[string]uint64 `json:"dropped"`
	Commands uint64            `json:"commands"`
	Rejected uint64            `json:"rejected"`
}

func (c Counters) clone() Counters {
	out := c
	out.Dropped = make(map[string]uint64, len(c.Dropped))
	for k, v := range c.Dropped {
		out.Dropped[k] = v
	}
	return out
}

// State is a consistent copy of the whole session.
type State struct {
	RunID  string `json:"run_id"`
	Tick   uint64 `json:"tick"`
	GameMs int64  `json:"game_ms"`
	Paused bool   `json:"paused"`

	Money           int64   `json:"money"`
	Water           float64 `json:"water"`
	Capacity        float64 `json:"capacity"`
	Refill          float64 `json:"refill"`
	SpawnMultiplier float64 `json:"spawn_multiplier"`
	ConsumptionRate float64 `json:"consumption_rate"`
	EstimatedIncome int64   `json:"estimated_income"`

	Main     [][]flow.Tile         `json:"main"`
	Depot    [][]flow.Tile         `json:"depot"`
	Droplets []flow.Droplet        `json:"droplets"`
	Draft    []protocol.DraftOffer `json:"draft"`
	Costs    map[string]int64      `json:"costs"`
	Counters Counters              `json:"counters"`
}

// Frame is what observers receive after every tick and every accepted command.
// Board is set only when the structure changed.
type Frame struct {
	Tick     uint64
	Paused   bool
	Money    int64
	Water    float64
	Capacity float64
	Income   int64
	Droplets []flow.Droplet
	Board    *protocol.BoardMsg
}

func (f Frame) Msg() protocol.FrameMsg {
	return protocol.FrameMsg{
		Type:            protocol.TypeFrame,
		ProtocolVersion: protocol.Version,
		Tick:            f.Tick,
		Paused:          f.Paused,
		Money:           f.Money,
		Water:           f.Water,
		Capacity:        f.Capacity,
		Income:          f.Income,
		Droplets:        f.Droplets,
	}
}

type StatsLogger interface {
	WriteStats(entry StatsEntry) error
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

// StatsEntry is written once per resource tick.
type StatsEntry struct {
	RunID     string    `json:"run_id"`
	Tick      uint64    `json:"tick"`
	GameMs    int64     `json:"game_ms"`
	At        time.Time `json:"at"`
	Money     int64     `json:"money"`
	Water     float64   `json:"water"`
	Capacity  float64   `json:"capacity"`
	Refill    float64   `json:"refill"`
	IncomeEst int64     `json:"income_est"`
	Droplets  int       `json:"droplets"`
	Spawned   uint64    `json:"spawned"`
	Dropped   uint64    `json:"dropped"`
	Income    int64     `json:"income"`
}

// AuditEntry records one command, accepted or not.
type AuditEntry struct {
	RunID    string `json:"run_id"`
	Tick     uint64 `json:"tick"`
	Action   string `json:"action"`
	Board    string `json:"board"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Kind     string `json:"kind,omitempty"`
	Level    int    `json:"level,omitempty"`
	Cost     int64  `json:"cost,omitempty"`
	Refund   int64  `json:"refund,omitempty"`
	Accepted bool   `json:"accepted"`
	Code     string `json:"code,omitempty"`
}
