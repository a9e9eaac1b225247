package economy

import (
	"time"

	"aquaflow.game/internal/sim/catalogs"
	"aquaflow.game/internal/sim/flow"
)

// DepotBonus sums the level-scaled effects of every depot piece.
type DepotBonus struct {
	Capacity  float64 `json:"capacity"`
	Refill    float64 `json:"refill"`
	SpawnRate float64 `json:"spawn_rate"`
}

func ComputeDepotBonus(items catalogs.Items, depot *flow.Grid) DepotBonus {
	var b DepotBonus
	if depot == nil {
		return b
	}
	for _, t := range depot.Tiles() {
		d, ok := items.Def(t.Kind)
		if !ok || t.Locked {
			continue
		}
		lvl := float64(t.Level)
		b.Capacity += d.WaterCap * lvl
		b.Refill += d.RefillRate * lvl
		b.SpawnRate += d.SpawnRateBonus * lvl
	}
	return b
}

// SpawnMultiplier is 1 plus the pump bonus.
func (b DepotBonus) SpawnMultiplier() float64 { return 1 + b.SpawnRate }

// Tank is the session's water store.
type Tank struct {
	Stored       float64
	BaseCapacity float64
	BaseRefill   float64
}

func (t *Tank) Capacity(b DepotBonus) float64 { return t.BaseCapacity + b.Capacity }

func (t *Tank) RefillRate(b DepotBonus) float64 { return t.BaseRefill + b.Refill }

// Refill adds one resource tick worth of water, clamped to capacity.
func (t *Tank) Refill(b DepotBonus) {
	t.Stored += t.RefillRate(b)
	if c := t.Capacity(b); t.Stored > c {
		t.Stored = c
	}
}

// Draw applies a spawn delta, never letting the store go negative.
func (t *Tank) Draw(delta float64) {
	t.Stored += delta
	if t.Stored < 0 {
		t.Stored = 0
	}
}

// ConsumptionRate is the droplets per second the source releases at the given spawn
// interval and multiplier.
func ConsumptionRate(multiplier float64, base time.Duration) float64 {
	if base <= 0 {
		return 0
	}
	return multiplier / base.Seconds()
}

// EstimatedIncome is baseIncome*level summed over supplied houses.
func EstimatedIncome(main *flow.Grid, baseIncome int64) int64 {
	var sum int64
	for _, t := range main.Tiles() {
		if t.Kind == flow.KindHouse && t.Supplied {
			sum += baseIncome * int64(t.Level)
		}
	}
	return sum
}
