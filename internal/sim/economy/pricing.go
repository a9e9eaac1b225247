package economy

import (
	"errors"
	"math"

	"aquaflow.game/internal/sim/catalogs"
	"aquaflow.game/internal/sim/flow"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrWrongBoard        = errors.New("item belongs to the other board")
	ErrBadSlot           = errors.New("no such draft slot")
	ErrUnknownItem       = errors.New("item not in catalog")
)

// Pricing turns catalog base costs into what the player pays.
type Pricing struct {
	Items catalogs.Items
	// Inflation is added to the cost multiplier for every building on either board.
	Inflation     float64
	ExpansionCost int64
	RefundRatio   float64
	RefreshCost   int64
}

// PlaceCost is floor(cost * (1 + inflation*buildings)).
func (p Pricing) PlaceCost(k flow.Kind, buildings int) int64 {
	return floorMul(p.Items.Cost(k), 1+p.Inflation*float64(buildings))
}

// UpgradeCost is floor(cost * (level+1)) for a piece currently at level.
func (p Pricing) UpgradeCost(k flow.Kind, level int) int64 {
	return floorMul(p.Items.Cost(k), float64(level+1))
}

// Refund is what demolishing a piece of kind k returns.
func (p Pricing) Refund(k flow.Kind) int64 {
	return floorMul(p.Items.Cost(k), p.RefundRatio)
}

func floorMul(cost int64, f float64) int64 {
	// Snap to 1e-9 so float error cannot drop an exact product below its integer.
	v := math.Round(float64(cost)*f*1e9) / 1e9
	return int64(math.Floor(v))
}

// Buildings counts every non-empty tile except the source, across the given boards.
func Buildings(boards ...*flow.Grid) int {
	n := 0
	for _, g := range boards {
		if g == nil {
			continue
		}
		n += g.Count(func(t flow.Tile) bool {
			return t.Kind != flow.KindEmpty && t.Kind != flow.KindSource
		})
	}
	return n
}

// CheckBoard reports whether k may be placed on a board of the given kind.
func (p Pricing) CheckBoard(k flow.Kind, depot bool) error {
	d, ok := p.Items.Def(k)
	if !ok {
		return ErrUnknownItem
	}
	if (d.Board == catalogs.BoardDepot) != depot {
		return ErrWrongBoard
	}
	return nil
}

// Wallet holds the player's money.
type Wallet struct {
	money int64
}

func NewWallet(initial int64) *Wallet { return &Wallet{money: initial} }

func (w *Wallet) Balance() int64 { return w.money }

// Spend debits amount, or fails without change when the balance is short.
func (w *Wallet) Spend(amount int64) error {
	if amount > w.money {
		return ErrInsufficientFunds
	}
	w.money -= amount
	return nil
}

func (w *Wallet) Earn(amount int64) {
	if amount > 0 {
		w.money += amount
	}
}
