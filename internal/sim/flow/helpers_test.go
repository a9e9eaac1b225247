package flow

import "testing"

var testSource = Pos{X: 5, Y: 0}

func newTestGrid(t *testing.T, lockedFromRow int) *Grid {
	t.Helper()
	src := testSource
	g, err := NewGrid(GridConfig{Size: 11, LockedFromRow: lockedFromRow, Source: &src})
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	return Propagate(g)
}

// place puts k at p and applies the given number of quarter turns.
func place(t *testing.T, g *Grid, p Pos, k Kind, quarters int) *Grid {
	t.Helper()
	res, err := g.Place(p, k, 1)
	if err != nil {
		t.Fatalf("place %s at %s: %v", k, p, err)
	}
	g = res.Grid
	for i := 0; i < quarters; i++ {
		res, err = g.Rotate(p)
		if err != nil {
			t.Fatalf("rotate %s: %v", p, err)
		}
		g = res.Grid
	}
	return g
}

func tileAt(t *testing.T, g *Grid, p Pos) Tile {
	t.Helper()
	tl, ok := g.At(p)
	if !ok {
		t.Fatalf("no tile at %s", p)
	}
	return tl
}

func checkFlowInvariants(t *testing.T, g *Grid) {
	t.Helper()
	for _, tl := range g.Tiles() {
		if !tl.Kind.PassThrough() && tl.FlowIn.Len() > 1 {
			t.Fatalf("%s %s has %d inputs (%s)", tl.Kind, tl.Pos, tl.FlowIn.Len(), tl.FlowIn)
		}
		if tl.Kind.PassThrough() && !tl.FlowOut.Without(tl.FlowIn.Opposites()).Empty() {
			t.Fatalf("house %s out=%s not within opposites of in=%s", tl.Pos, tl.FlowOut, tl.FlowIn)
		}
		if tl.Locked && (tl.Wet || !tl.FlowIn.Empty() || !tl.FlowOut.Empty()) {
			t.Fatalf("locked tile %s carries flow: %+v", tl.Pos, tl)
		}
		if tl.Kind != KindSource && tl.Wet != !tl.FlowIn.Empty() {
			t.Fatalf("tile %s wet=%v but in=%s", tl.Pos, tl.Wet, tl.FlowIn)
		}
		if tl.Supplied && tl.Kind != KindHouse {
			t.Fatalf("non-house %s marked supplied", tl.Pos)
		}
	}
}
