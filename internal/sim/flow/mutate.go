package flow

import (
	"errors"
	"fmt"
)

var (
	ErrOutOfBounds  = errors.New("position outside board")
	ErrLocked       = errors.New("tile locked")
	ErrOccupied     = errors.New("tile occupied")
	ErrImmutable    = errors.New("source tile cannot change")
	ErrNotRotatable = errors.New("only pipes rotate")
	ErrEmptyTile    = errors.New("tile is empty")
	ErrNotLocked    = errors.New("tile is not locked")
	ErrSameTile     = errors.New("source and target are the same tile")
	ErrBadKind      = errors.New("kind cannot be placed")
	ErrBadLevel     = errors.New("level must be positive")
	ErrMaxLevel     = errors.New("level at maximum")
)

// MaxLevel is the highest level a piece can reach; saves pack levels into 9 bits.
const MaxLevel = 1<<9 - 1

// MutationResult describes what a structural change did. Grid is already propagated.
type MutationResult struct {
	Grid *Grid
	// Merged is set when a house landed on a house of equal level and both combined.
	Merged bool
	// Prev is the tile at the target before the change.
	Prev Tile
}

func (g *Grid) check(p Pos) (*Tile, error) {
	if !g.In(p) {
		return nil, fmt.Errorf("%s: %w", p, ErrOutOfBounds)
	}
	t := g.tile(p)
	if t.Locked {
		return nil, fmt.Errorf("%s: %w", p, ErrLocked)
	}
	return t, nil
}

// Mergeable reports whether placing a kind/level on t combines with it.
func Mergeable(t Tile, k Kind, level int) bool {
	return k == KindHouse && t.Kind == KindHouse && t.Level == level
}

// Place puts a new piece at p, or merges a house into an equal-level house.
func (g *Grid) Place(p Pos, k Kind, level int) (MutationResult, error) {
	if !k.Valid() || k == KindEmpty || k == KindSource {
		return MutationResult{}, fmt.Errorf("%s: %w", k, ErrBadKind)
	}
	if level <= 0 {
		return MutationResult{}, fmt.Errorf("level %d: %w", level, ErrBadLevel)
	}
	if level > MaxLevel {
		return MutationResult{}, fmt.Errorf("level %d: %w", level, ErrMaxLevel)
	}
	if _, err := g.check(p); err != nil {
		return MutationResult{}, err
	}
	next := g.Clone()
	t := next.tile(p)
	prev := *t
	switch {
	case Mergeable(prev, k, level) && prev.Level >= MaxLevel:
		return MutationResult{}, fmt.Errorf("%s: %w", p, ErrMaxLevel)
	case Mergeable(prev, k, level):
		t.Level++
	case prev.Kind != KindEmpty:
		return MutationResult{}, fmt.Errorf("%s holds %s: %w", p, prev.Kind, ErrOccupied)
	default:
		t.Kind = k
		t.Rotation = 0
		t.Level = level
	}
	return MutationResult{Grid: Propagate(next), Merged: prev.Kind != KindEmpty, Prev: prev}, nil
}

// Move relocates the piece at from to an empty tile, or merges two equal-level houses.
// The origin is left empty.
func (g *Grid) Move(from, to Pos) (MutationResult, error) {
	if from == to {
		return MutationResult{}, fmt.Errorf("%s: %w", from, ErrSameTile)
	}
	src, err := g.check(from)
	if err != nil {
		return MutationResult{}, err
	}
	if _, err := g.check(to); err != nil {
		return MutationResult{}, err
	}
	if src.Kind == KindSource {
		return MutationResult{}, fmt.Errorf("%s: %w", from, ErrImmutable)
	}
	if src.Kind == KindEmpty {
		return MutationResult{}, fmt.Errorf("%s: %w", from, ErrEmptyTile)
	}

	next := g.Clone()
	s := next.tile(from)
	t := next.tile(to)
	prev := *t
	moving := *s
	switch {
	case Mergeable(prev, moving.Kind, moving.Level) && prev.Level >= MaxLevel:
		return MutationResult{}, fmt.Errorf("%s: %w", to, ErrMaxLevel)
	case Mergeable(prev, moving.Kind, moving.Level):
		t.Level++
	case prev.Kind != KindEmpty:
		return MutationResult{}, fmt.Errorf("%s holds %s: %w", to, prev.Kind, ErrOccupied)
	default:
		moving.Pos = to
		moving.Locked = false
		*t = moving
	}
	*s = Tile{Pos: from, Kind: KindEmpty, Level: 1}
	return MutationResult{Grid: Propagate(next), Merged: prev.Kind != KindEmpty, Prev: prev}, nil
}

// Rotate turns the pipe at p a quarter turn clockwise.
func (g *Grid) Rotate(p Pos) (MutationResult, error) {
	t, err := g.check(p)
	if err != nil {
		return MutationResult{}, err
	}
	if !t.Kind.IsPipe() {
		return MutationResult{}, fmt.Errorf("%s holds %s: %w", p, t.Kind, ErrNotRotatable)
	}
	next := g.Clone()
	nt := next.tile(p)
	prev := *nt
	nt.Rotation = nt.Rotation.Next()
	return MutationResult{Grid: Propagate(next), Prev: prev}, nil
}

// Remove empties the tile at p. Prev carries the demolished piece.
func (g *Grid) Remove(p Pos) (MutationResult, error) {
	t, err := g.check(p)
	if err != nil {
		return MutationResult{}, err
	}
	switch t.Kind {
	case KindSource:
		return MutationResult{}, fmt.Errorf("%s: %w", p, ErrImmutable)
	case KindEmpty:
		return MutationResult{}, fmt.Errorf("%s: %w", p, ErrEmptyTile)
	}
	next := g.Clone()
	nt := next.tile(p)
	prev := *nt
	*nt = Tile{Pos: p, Kind: KindEmpty, Level: 1}
	return MutationResult{Grid: Propagate(next), Prev: prev}, nil
}

// Unlock opens a locked tile for building.
func (g *Grid) Unlock(p Pos) (MutationResult, error) {
	if !g.In(p) {
		return MutationResult{}, fmt.Errorf("%s: %w", p, ErrOutOfBounds)
	}
	if !g.tile(p).Locked {
		return MutationResult{}, fmt.Errorf("%s: %w", p, ErrNotLocked)
	}
	next := g.Clone()
	nt := next.tile(p)
	prev := *nt
	nt.Locked = false
	return MutationResult{Grid: Propagate(next), Prev: prev}, nil
}

// Upgrade raises the level of the piece at p by one.
func (g *Grid) Upgrade(p Pos) (MutationResult, error) {
	t, err := g.check(p)
	if err != nil {
		return MutationResult{}, err
	}
	switch t.Kind {
	case KindSource:
		return MutationResult{}, fmt.Errorf("%s: %w", p, ErrImmutable)
	case KindEmpty:
		return MutationResult{}, fmt.Errorf("%s: %w", p, ErrEmptyTile)
	}
	if t.Level >= MaxLevel {
		return MutationResult{}, fmt.Errorf("%s: %w", p, ErrMaxLevel)
	}
	next := g.Clone()
	nt := next.tile(p)
	prev := *nt
	nt.Level++
	return MutationResult{Grid: Propagate(next), Prev: prev}, nil
}
