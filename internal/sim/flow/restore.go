package flow

import "fmt"

// PackTile squeezes the structural fields of t into one code: kind in bits 0-3,
// rotation in bits 4-5, locked in bit 6 and level in bits 7-15. Flow state is not
// packed; it is recomputed on restore.
func PackTile(t Tile) (uint16, error) {
	if !t.Kind.Valid() {
		return 0, fmt.Errorf("%s: %w", t.Pos, ErrBadKind)
	}
	if t.Level < 1 {
		return 0, fmt.Errorf("%s: level %d: %w", t.Pos, t.Level, ErrBadLevel)
	}
	if t.Level > MaxLevel {
		return 0, fmt.Errorf("%s: level %d: %w", t.Pos, t.Level, ErrMaxLevel)
	}
	c := uint16(t.Kind) | uint16(t.Rotation%4)<<4 | uint16(t.Level)<<7
	if t.Locked {
		c |= 1 << 6
	}
	return c, nil
}

// UnpackTile reverses PackTile. The position is left zero.
func UnpackTile(c uint16) Tile {
	return Tile{
		Kind:     Kind(c & 0xF),
		Rotation: Rotation(c >> 4 & 0x3),
		Locked:   c&(1<<6) != 0,
		Level:    int(c >> 7),
	}
}

// PackTiles packs every tile of g in row-major order.
func (g *Grid) PackTiles() ([]uint16, error) {
	out := make([]uint16, len(g.tiles))
	for i, t := range g.tiles {
		c, err := PackTile(t)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

// Restore rebuilds a saved board on top of a fresh grid built from cfg. codes holds
// one packed tile per cell in row-major order. The result is propagated.
func Restore(cfg GridConfig, codes []uint16) (*Grid, error) {
	g, err := NewGrid(cfg)
	if err != nil {
		return nil, err
	}
	if len(codes) != len(g.tiles) {
		return nil, fmt.Errorf("restore: %d tiles for a %dx%d grid", len(codes), g.size, g.size)
	}
	for i, c := range codes {
		saved := UnpackTile(c)
		dst := &g.tiles[i]
		if !saved.Kind.Valid() {
			return nil, fmt.Errorf("restore %s: %w", dst.Pos, ErrBadKind)
		}
		if saved.Level < 1 {
			return nil, fmt.Errorf("restore %s: %w", dst.Pos, ErrBadLevel)
		}
		isSource := g.hasSource && dst.Pos == g.source
		if isSource != (saved.Kind == KindSource) {
			return nil, fmt.Errorf("restore %s: source tile mismatch", dst.Pos)
		}
		if saved.Locked && saved.Kind != KindEmpty {
			return nil, fmt.Errorf("restore %s: locked tile holds %s", dst.Pos, saved.Kind)
		}
		dst.Kind = saved.Kind
		dst.Rotation = saved.Rotation
		dst.Level = saved.Level
		dst.Locked = saved.Locked
	}
	return Propagate(g), nil
}
