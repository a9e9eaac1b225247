package flow

import "fmt"

type Pos struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Pos) Step(d Dir) Pos {
	dx, dy := d.Delta()
	return Pos{X: p.X + dx, Y: p.Y + dy}
}

func (p Pos) String() string { return fmt.Sprintf("(%d,%d)", p.X, p.Y) }

// Tile is one cell of a board. Wet, Supplied, FlowIn and FlowOut are derived by
// Propagate and must not be edited by hand.
type Tile struct {
	Pos      Pos      `json:"pos"`
	Kind     Kind     `json:"kind"`
	Rotation Rotation `json:"rotation"`
	Level    int      `json:"level"`
	Locked   bool     `json:"locked"`

	Wet      bool   `json:"wet"`
	Supplied bool   `json:"supplied"`
	FlowIn   DirSet `json:"flow_in"`
	FlowOut  DirSet `json:"flow_out"`
}

func (t *Tile) clearFlow() {
	t.Wet = false
	t.Supplied = false
	t.FlowIn = 0
	t.FlowOut = 0
}

// GridConfig describes a fresh board.
type GridConfig struct {
	Size int
	// Rows with index >= LockedFromRow start locked. Zero or negative leaves every row
	// unlocked.
	LockedFromRow int
	// Source places the board's single source tile. Nil builds a board without one
	// (the depot).
	Source *Pos
	Ports  *PortTable
}

// Grid is a square board. Grids are treated as immutable values: mutation helpers and
// Propagate return a new grid and never touch the receiver.
type Grid struct {
	size      int
	tiles     []Tile
	source    Pos
	hasSource bool
	ports     *PortTable
}

func NewGrid(cfg GridConfig) (*Grid, error) {
	if cfg.Size <= 0 {
		return nil, fmt.Errorf("grid size must be positive, got %d", cfg.Size)
	}
	ports := cfg.Ports
	if ports == nil {
		ports = DefaultPorts()
	}
	g := &Grid{
		size:  cfg.Size,
		tiles: make([]Tile, cfg.Size*cfg.Size),
		ports: ports,
	}
	for y := 0; y < cfg.Size; y++ {
		for x := 0; x < cfg.Size; x++ {
			g.tiles[y*cfg.Size+x] = Tile{
				Pos:    Pos{X: x, Y: y},
				Kind:   KindEmpty,
				Level:  1,
				Locked: cfg.LockedFromRow > 0 && y >= cfg.LockedFromRow,
			}
		}
	}
	if cfg.Source != nil {
		if !g.In(*cfg.Source) {
			return nil, fmt.Errorf("source %s outside %dx%d grid", *cfg.Source, cfg.Size, cfg.Size)
		}
		g.source = *cfg.Source
		g.hasSource = true
		t := g.tile(g.source)
		t.Kind = KindSource
		t.Locked = false
		t.Wet = true
	}
	return g, nil
}

func (g *Grid) Size() int { return g.size }

func (g *Grid) Ports() *PortTable { return g.ports }

// Source returns the source position; ok is false on boards without one.
func (g *Grid) Source() (Pos, bool) { return g.source, g.hasSource }

func (g *Grid) In(p Pos) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < g.size && p.Y < g.size
}

// At returns a copy of the tile at p.
func (g *Grid) At(p Pos) (Tile, bool) {
	if !g.In(p) {
		return Tile{}, false
	}
	return g.tiles[p.Y*g.size+p.X], true
}

// Neighbor returns the position one step from p in direction d, if it is on the board.
func (g *Grid) Neighbor(p Pos, d Dir) (Pos, bool) {
	n := p.Step(d)
	return n, d.Valid() && g.In(n)
}

// Tiles returns a copy of every tile in row-major order.
func (g *Grid) Tiles() []Tile {
	out := make([]Tile, len(g.tiles))
	copy(out, g.tiles)
	return out
}

// Rows returns a copy of the board as rows of tiles.
func (g *Grid) Rows() [][]Tile {
	rows := make([][]Tile, g.size)
	for y := range rows {
		row := make([]Tile, g.size)
		copy(row, g.tiles[y*g.size:(y+1)*g.size])
		rows[y] = row
	}
	return rows
}

// Count returns the number of tiles for which fn reports true.
func (g *Grid) Count(fn func(Tile) bool) int {
	n := 0
	for _, t := range g.tiles {
		if fn(t) {
			n++
		}
	}
	return n
}

func (g *Grid) Clone() *Grid {
	c := *g
	c.tiles = make([]Tile, len(g.tiles))
	copy(c.tiles, g.tiles)
	return &c
}

func (g *Grid) tile(p Pos) *Tile { return &g.tiles[p.Y*g.size+p.X] }
