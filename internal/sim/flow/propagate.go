package flow

// Propagate recomputes wetness, supply and flow annotations for the whole board and
// returns the result as a new grid. The input grid is not modified.
//
// The walk is breadth-first from the source in fixed N, E, S, W order, so the result is
// a pure function of the structural state (kinds, rotations, locks).
//
// Termination: a non-pass-through tile is enqueued once, on its first accepted input. A
// pass-through tile is enqueued once per distinct input direction, so at most four
// times. Every dequeue does constant work, which bounds a run by 4*size^2 dequeues even
// when houses form cycles.
func Propagate(g *Grid) *Grid {
	out := g.Clone()
	for i := range out.tiles {
		out.tiles[i].clearFlow()
	}
	if !out.hasSource {
		return out
	}
	src := out.tile(out.source)
	if src.Kind != KindSource {
		return out
	}
	src.Wet = true

	visited := make([]bool, len(out.tiles))
	visited[out.source.Y*out.size+out.source.X] = true
	queue := []Pos{out.source}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		t := out.tile(cur)

		for _, d := range outgoing(out.ports, t).Dirs() {
			np, ok := out.Neighbor(cur, d)
			if !ok {
				continue
			}
			n := out.tile(np)
			if n.Locked {
				continue
			}
			entry := d.Opposite()
			if !out.ports.Ports(n.Kind, n.Rotation).Has(entry) {
				continue
			}
			// Pipes take water from one side only.
			if !n.Kind.PassThrough() && !n.FlowIn.Empty() && !n.FlowIn.Has(entry) {
				continue
			}

			n.Wet = true
			if n.Kind == KindHouse {
				n.Supplied = true
			}
			t.FlowOut = t.FlowOut.Add(d)

			isNew := !n.FlowIn.Has(entry)
			n.FlowIn = n.FlowIn.Add(entry)

			idx := np.Y*out.size + np.X
			if !visited[idx] || (n.Kind.PassThrough() && isNew) {
				visited[idx] = true
				queue = append(queue, np)
			}
		}
	}
	return out
}

// outgoing returns the directions water leaves t through, given the inputs recorded so
// far. Pass-through tiles only forward what they received; other tiles emit through
// every port except the ones water came in by.
func outgoing(pt *PortTable, t *Tile) DirSet {
	if t.Kind.PassThrough() {
		return t.FlowIn.Opposites()
	}
	return pt.Ports(t.Kind, t.Rotation).Without(t.FlowIn)
}
