package catalogs

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"aquaflow.game/internal/sim/flow"
)

//go:embed items.schema.json
var itemsSchema string

const (
	BoardMain  = "MAIN"
	BoardDepot = "DEPOT"
)

type Catalog struct {
	Items Items
}

type Items struct {
	Defs map[flow.Kind]ItemDef
	// Order lists defined kinds in flow.Kinds() order.
	Order  []flow.Kind
	Ports  *flow.PortTable
	Digest string
}

type ItemDef struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Cost        int64    `json:"cost"`
	Board       string   `json:"board"`
	Connections []string `json:"connections,omitempty"`

	Income         int64   `json:"income,omitempty"`
	WaterCap       float64 `json:"water_cap,omitempty"`
	RefillRate     float64 `json:"refill_rate,omitempty"`
	SpawnRateBonus float64 `json:"spawn_rate_bonus,omitempty"`

	Draft *DraftDef `json:"draft,omitempty"`

	Kind flow.Kind `json:"-"`
}

// DraftDef makes an item eligible for the main-board draft.
type DraftDef struct {
	Weight        float64 `json:"weight"`
	UpgradeChance float64 `json:"upgrade_chance,omitempty"`
}

func Load(configDir string) (*Catalog, error) {
	var c Catalog
	if err := loadItems(filepath.Join(configDir, "items.json"), &c.Items); err != nil {
		return nil, err
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadItems(path string, out *Items) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return ParseItems(raw, out)
}

// ParseItems validates raw against the embedded schema and fills out.
func ParseItems(raw []byte, out *Items) error {
	schema, err := jsonschema.CompileString("items.schema.json", itemsSchema)
	if err != nil {
		return fmt.Errorf("items schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("items.json: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("items.json: %w", err)
	}

	var defs []ItemDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("items.json: %w", err)
	}
	out.Digest = sha256Hex(raw)
	out.Defs = map[flow.Kind]ItemDef{}
	base := map[flow.Kind]flow.DirSet{}
	for _, d := range defs {
		k, err := flow.ParseKind(d.ID)
		if err != nil {
			return fmt.Errorf("items.json: %w", err)
		}
		if k == flow.KindEmpty {
			return fmt.Errorf("items.json: EMPTY cannot be defined")
		}
		if _, dup := out.Defs[k]; dup {
			return fmt.Errorf("items.json: duplicate id %s", d.ID)
		}
		if k.IsDepot() != (d.Board == BoardDepot) {
			return fmt.Errorf("items.json: %s must be on the %s board", d.ID, boardOf(k))
		}
		var ports flow.DirSet
		for _, s := range d.Connections {
			dir, err := flow.ParseDir(s)
			if err != nil {
				return fmt.Errorf("items.json: %s: %w", d.ID, err)
			}
			ports = ports.Add(dir)
		}
		base[k] = ports
		d.Kind = k
		out.Defs[k] = d
	}
	if _, ok := out.Defs[flow.KindSource]; !ok {
		return fmt.Errorf("items.json: missing SOURCE")
	}
	pt, err := flow.NewPortTable(base)
	if err != nil {
		return fmt.Errorf("items.json: %w", err)
	}
	out.Ports = pt

	out.Order = out.Order[:0]
	for _, k := range flow.Kinds() {
		if _, ok := out.Defs[k]; ok {
			out.Order = append(out.Order, k)
		}
	}
	return nil
}

func boardOf(k flow.Kind) string {
	if k.IsDepot() {
		return BoardDepot
	}
	return BoardMain
}

// Def returns the definition of k; ok is false for kinds the catalog leaves out.
func (it Items) Def(k flow.Kind) (ItemDef, bool) {
	d, ok := it.Defs[k]
	return d, ok
}

// Cost returns the base cost of k, zero when undefined.
func (it Items) Cost(k flow.Kind) int64 {
	return it.Defs[k].Cost
}

// Draftable lists the kinds offered by the draft, in Order.
func (it Items) Draftable() []ItemDef {
	var out []ItemDef
	for _, k := range it.Order {
		if d := it.Defs[k]; d.Draft != nil {
			out = append(out, d)
		}
	}
	return out
}
