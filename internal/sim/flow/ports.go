package flow

import "fmt"

// PortTable holds the unrotated port set of every kind. Kinds with an empty set have no
// ports and never carry water.
type PortTable [numKinds]DirSet

// DefaultPorts is the built-in base port table.
func DefaultPorts() *PortTable {
	var pt PortTable
	pt[KindSource] = DirsOf(South)
	pt[KindHouse] = DirsOf(North, East, South, West)
	pt[KindPipeStraight] = DirsOf(North, South)
	pt[KindPipeElbow] = DirsOf(North, East)
	pt[KindPipeTee] = DirsOf(North, East, West)
	pt[KindPipeSplit2] = DirsOf(North, East, West)
	pt[KindPipeCross] = DirsOf(North, East, South, West)
	return &pt
}

// NewPortTable builds a table from a kind -> base ports map. The source must expose
// exactly one port.
func NewPortTable(base map[Kind]DirSet) (*PortTable, error) {
	var pt PortTable
	for k, s := range base {
		if !k.Valid() {
			return nil, fmt.Errorf("port table: invalid kind %d", k)
		}
		pt[k] = s
	}
	if n := pt[KindSource].Len(); n != 1 {
		return nil, fmt.Errorf("port table: SOURCE must have exactly one port, got %d", n)
	}
	if !pt[KindEmpty].Empty() {
		return nil, fmt.Errorf("port table: EMPTY cannot have ports")
	}
	return &pt, nil
}

// Base returns the unrotated ports of k.
func (pt *PortTable) Base(k Kind) DirSet {
	if pt == nil || !k.Valid() {
		return 0
	}
	return pt[k]
}

// Ports returns the ports of k turned by r. This is the static table the propagator
// uses; pass-through kinds report all of their base ports regardless of entry.
func (pt *PortTable) Ports(k Kind, r Rotation) DirSet {
	return pt.Base(k).Rotate(int(r))
}

// DropletOutputs returns the sides a droplet may leave k through after entering from
// entry. A source always emits through its own port; pass-through kinds exit opposite
// the entry; every other kind exits through its remaining ports, or nowhere when the
// entry side is not a port.
func (pt *PortTable) DropletOutputs(k Kind, r Rotation, entry Dir) DirSet {
	if k == KindSource {
		return pt.Ports(k, r)
	}
	if !entry.Valid() {
		return 0
	}
	if k.PassThrough() {
		return DirsOf(entry.Opposite())
	}
	ports := pt.Ports(k, r)
	if !ports.Has(entry) {
		return 0
	}
	return ports.Remove(entry)
}
