package tuning

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	Board Board  `yaml:"board"`
	Depot Board  `yaml:"depot"`
	Clock Clock  `yaml:"clock"`
	Water Water  `yaml:"water"`
	Econ  Econ   `yaml:"economy"`
	Draft Drafts `yaml:"draft"`
}

type Board struct {
	Size          int `yaml:"size"`
	LockedFromRow int `yaml:"locked_from_row"`
	Source        *XY `yaml:"source,omitempty"`
}

type XY struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
}

type Clock struct {
	TickMs          int `yaml:"tick_ms"`
	ResourceTickMs  int `yaml:"resource_tick_ms"`
	DropletSpeed    int `yaml:"droplet_speed"`
	SpawnIntervalMs int `yaml:"spawn_interval_ms"`
	SpawnProgress   int `yaml:"spawn_progress"`
}

type Water struct {
	Initial      float64 `yaml:"initial"`
	BaseCapacity float64 `yaml:"base_capacity"`
	BaseRefill   float64 `yaml:"base_refill"`
}

type Econ struct {
	BaseIncome    int64   `yaml:"base_income"`
	InitialMoney  int64   `yaml:"initial_money"`
	ExpansionCost int64   `yaml:"expansion_cost"`
	Inflation     float64 `yaml:"inflation"`
	RefundRatio   float64 `yaml:"refund_ratio"`
}

type Drafts struct {
	Slots       int   `yaml:"slots"`
	RefreshCost int64 `yaml:"refresh_cost"`
}

// Defaults mirrors configs/tuning.yaml.
func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: "1.0",
		Board:           Board{Size: 11, LockedFromRow: 4, Source: &XY{X: 5, Y: 0}},
		Depot:           Board{Size: 5, LockedFromRow: 2},
		Clock: Clock{
			TickMs:          33,
			ResourceTickMs:  1000,
			DropletSpeed:    2,
			SpawnIntervalMs: 5000,
			SpawnProgress:   50,
		},
		Water: Water{Initial: 100, BaseCapacity: 100},
		Econ: Econ{
			BaseIncome:    1,
			InitialMoney:  30,
			ExpansionCost: 1000,
			Inflation:     0.05,
			RefundRatio:   0.5,
		},
		Draft: Drafts{Slots: 3, RefreshCost: 10},
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	var file Tuning
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.merge(file)
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// merge copies every non-zero field of f over t.
func (t *Tuning) merge(f Tuning) {
	if f.ProtocolVersion != "" {
		t.ProtocolVersion = f.ProtocolVersion
	}
	mergeBoard(&t.Board, f.Board)
	mergeBoard(&t.Depot, f.Depot)

	setInt(&t.Clock.TickMs, f.Clock.TickMs)
	setInt(&t.Clock.ResourceTickMs, f.Clock.ResourceTickMs)
	setInt(&t.Clock.DropletSpeed, f.Clock.DropletSpeed)
	setInt(&t.Clock.SpawnIntervalMs, f.Clock.SpawnIntervalMs)
	setInt(&t.Clock.SpawnProgress, f.Clock.SpawnProgress)

	setFloat(&t.Water.Initial, f.Water.Initial)
	setFloat(&t.Water.BaseCapacity, f.Water.BaseCapacity)
	setFloat(&t.Water.BaseRefill, f.Water.BaseRefill)

	setInt64(&t.Econ.BaseIncome, f.Econ.BaseIncome)
	setInt64(&t.Econ.InitialMoney, f.Econ.InitialMoney)
	setInt64(&t.Econ.ExpansionCost, f.Econ.ExpansionCost)
	setFloat(&t.Econ.Inflation, f.Econ.Inflation)
	setFloat(&t.Econ.RefundRatio, f.Econ.RefundRatio)

	setInt(&t.Draft.Slots, f.Draft.Slots)
	setInt64(&t.Draft.RefreshCost, f.Draft.RefreshCost)
}

func mergeBoard(dst *Board, src Board) {
	setInt(&dst.Size, src.Size)
	setInt(&dst.LockedFromRow, src.LockedFromRow)
	if src.Source != nil {
		s := *src.Source
		dst.Source = &s
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setInt64(dst *int64, v int64) {
	if v != 0 {
		*dst = v
	}
}

func setFloat(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}

func (t Tuning) Validate() error {
	if t.Board.Size <= 0 || t.Depot.Size <= 0 {
		return fmt.Errorf("board sizes must be positive")
	}
	if t.Board.Source == nil {
		return fmt.Errorf("board.source is required")
	}
	if s := t.Board.Source; s.X < 0 || s.Y < 0 || s.X >= t.Board.Size || s.Y >= t.Board.Size {
		return fmt.Errorf("board.source (%d,%d) outside %dx%d board", s.X, s.Y, t.Board.Size, t.Board.Size)
	}
	if t.Clock.TickMs <= 0 || t.Clock.ResourceTickMs <= 0 || t.Clock.SpawnIntervalMs <= 0 {
		return fmt.Errorf("clock periods must be positive")
	}
	if t.Clock.DropletSpeed <= 0 || t.Clock.DropletSpeed > 100 {
		return fmt.Errorf("clock.droplet_speed must be in 1..100, got %d", t.Clock.DropletSpeed)
	}
	if t.Clock.SpawnProgress < 0 || t.Clock.SpawnProgress >= 100 {
		return fmt.Errorf("clock.spawn_progress must be in 0..99, got %d", t.Clock.SpawnProgress)
	}
	if t.Draft.Slots <= 0 {
		return fmt.Errorf("draft.slots must be positive")
	}
	return nil
}

func (c Clock) Tick() time.Duration         { return time.Duration(c.TickMs) * time.Millisecond }
func (c Clock) ResourceTick() time.Duration { return time.Duration(c.ResourceTickMs) * time.Millisecond }
func (c Clock) SpawnInterval() time.Duration {
	return time.Duration(c.SpawnIntervalMs) * time.Millisecond
}
