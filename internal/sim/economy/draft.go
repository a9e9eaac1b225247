package economy

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"aquaflow.game/internal/sim/catalogs"
	"aquaflow.game/internal/sim/flow"
)

// Offer is one draft slot.
type Offer struct {
	ID    string    `json:"id"`
	Kind  flow.Kind `json:"kind"`
	Level int       `json:"level"`
}

// Drafter deals weighted random offers from the draftable catalog items.
type Drafter struct {
	rng   *rand.Rand
	pool  []catalogs.ItemDef
	total float64
	slots []Offer
}

func NewDrafter(items catalogs.Items, slots int, seed int64) (*Drafter, error) {
	d := &Drafter{rng: rand.New(rand.NewSource(seed))}
	for _, def := range items.Draftable() {
		d.pool = append(d.pool, def)
		d.total += def.Draft.Weight
	}
	if len(d.pool) == 0 || d.total <= 0 {
		return nil, fmt.Errorf("draft: catalog has no draftable items")
	}
	if slots <= 0 {
		return nil, fmt.Errorf("draft: slot count must be positive, got %d", slots)
	}
	d.slots = make([]Offer, slots)
	d.deal()
	return d, nil
}

// deal fills every slot. The opening hand always holds a house and a pipe when the
// catalog offers them and there is room.
func (d *Drafter) deal() {
	for i := range d.slots {
		d.slots[i] = d.draw()
	}
	if !d.has(func(o Offer) bool { return o.Kind == flow.KindHouse }) && d.offers(flow.KindHouse) {
		d.slots[0] = d.fixed(flow.KindHouse)
	}
	if len(d.slots) > 1 && !d.has(func(o Offer) bool { return o.Kind.IsPipe() }) && d.offers(flow.KindPipeStraight) {
		d.slots[1] = d.fixed(flow.KindPipeStraight)
	}
}

func (d *Drafter) has(fn func(Offer) bool) bool {
	for _, o := range d.slots {
		if fn(o) {
			return true
		}
	}
	return false
}

func (d *Drafter) offers(k flow.Kind) bool {
	for _, def := range d.pool {
		if def.Kind == k {
			return true
		}
	}
	return false
}

func (d *Drafter) fixed(k flow.Kind) Offer {
	return Offer{ID: d.newID(), Kind: k, Level: 1}
}

func (d *Drafter) draw() Offer {
	r := d.rng.Float64() * d.total
	pick := d.pool[len(d.pool)-1]
	for _, def := range d.pool {
		if r < def.Draft.Weight {
			pick = def
			break
		}
		r -= def.Draft.Weight
	}
	level := 1
	if pick.Draft.UpgradeChance > 0 && d.rng.Float64() < pick.Draft.UpgradeChance {
		level = 2
	}
	return Offer{ID: d.newID(), Kind: pick.Kind, Level: level}
}

func (d *Drafter) newID() string {
	id, err := uuid.NewRandomFromReader(d.rng)
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Slots returns a copy of the current offers.
func (d *Drafter) Slots() []Offer {
	out := make([]Offer, len(d.slots))
	copy(out, d.slots)
	return out
}

func (d *Drafter) Slot(i int) (Offer, error) {
	if i < 0 || i >= len(d.slots) {
		return Offer{}, fmt.Errorf("slot %d: %w", i, ErrBadSlot)
	}
	return d.slots[i], nil
}

// Take replaces slot i with a fresh offer and returns the one it held.
func (d *Drafter) Take(i int) (Offer, error) {
	o, err := d.Slot(i)
	if err != nil {
		return Offer{}, err
	}
	d.slots[i] = d.draw()
	return o, nil
}

// Refresh redraws every slot.
func (d *Drafter) Refresh() {
	for i := range d.slots {
		d.slots[i] = d.draw()
	}
}

// Restore replaces every slot with saved offers.
func (d *Drafter) Restore(offers []Offer) error {
	if len(offers) != len(d.slots) {
		return fmt.Errorf("draft: %d saved offers for %d slots", len(offers), len(d.slots))
	}
	for i, o := range offers {
		if !d.offers(o.Kind) {
			return fmt.Errorf("draft: slot %d holds %s, which is not drafted", i, o.Kind)
		}
		if o.Level < 1 {
			return fmt.Errorf("draft: slot %d level %d", i, o.Level)
		}
	}
	copy(d.slots, offers)
	return nil
}
