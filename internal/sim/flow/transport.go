package flow

// Progress bounds of a droplet crossing one tile.
const (
	ProgressFull   = 100
	ProgressCenter = 50
)

type DropletID uint64

// Droplet is one unit of water in flight. Droplets are values: each tick produces new
// records, and a split yields fresh identities.
type Droplet struct {
	ID       DropletID `json:"id"`
	Pos      Pos       `json:"pos"`
	Progress int       `json:"progress"`
	From     Dir       `json:"from"`
	To       Dir       `json:"to"`
	HasPaid  bool      `json:"has_paid"`
}

// IDSeq hands out droplet identities. The zero value starts at 1.
type IDSeq struct{ last uint64 }

func (s *IDSeq) Next() DropletID {
	s.last++
	return DropletID(s.last)
}

// Last returns the most recently issued identity.
func (s *IDSeq) Last() DropletID { return DropletID(s.last) }

// Resume continues a saved sequence after last.
func (s *IDSeq) Resume(last DropletID) { s.last = uint64(last) }

// DropReason explains why a droplet left the network.
type DropReason uint8

const (
	DropNoExit DropReason = iota
	DropOffGrid
	DropRejected
	DropDeadEnd

	numDropReasons
)

func (r DropReason) String() string {
	switch r {
	case DropNoExit:
		return "no_exit"
	case DropOffGrid:
		return "off_grid"
	case DropRejected:
		return "rejected"
	case DropDeadEnd:
		return "dead_end"
	}
	return "unknown"
}

// Payment is one income event: a droplet reached the middle of a house.
type Payment struct {
	Droplet DropletID `json:"droplet"`
	Pos     Pos       `json:"pos"`
	Amount  int64     `json:"amount"`
}

// TickReport summarises one Advance call.
type TickReport struct {
	Income   int64
	Payments []Payment
	Dropped  [numDropReasons]int
	Splits   int
	Moved    int
}

func (r TickReport) DroppedTotal() int {
	n := 0
	for _, c := range r.Dropped {
		n += c
	}
	return n
}

// Transport advances droplets through a propagated grid.
type Transport struct {
	// Speed is the progress gained per tick.
	Speed int
	// BaseIncome is paid per house level when a droplet crosses a house.
	BaseIncome int64

	IDs *IDSeq
}

// Advance runs one tick over the droplets and returns the next collection. The input
// slice is read only; droplets created by a split are not advanced again this tick.
func (tr *Transport) Advance(g *Grid, in []Droplet) ([]Droplet, TickReport) {
	var rep TickReport
	out := make([]Droplet, 0, len(in))
	pt := g.Ports()

	for _, d := range in {
		d.Progress += tr.Speed

		if d.Progress >= ProgressCenter && !d.HasPaid {
			if t, ok := g.At(d.Pos); ok && t.Kind == KindHouse {
				amount := tr.BaseIncome * int64(t.Level)
				rep.Income += amount
				rep.Payments = append(rep.Payments, Payment{Droplet: d.ID, Pos: d.Pos, Amount: amount})
				d.HasPaid = true
			}
		}

		if d.Progress < ProgressFull {
			out = append(out, d)
			continue
		}

		if !d.To.Valid() {
			rep.Dropped[DropNoExit]++
			continue
		}
		np, ok := g.Neighbor(d.Pos, d.To)
		if !ok {
			rep.Dropped[DropOffGrid]++
			continue
		}
		next, _ := g.At(np)
		entry := d.To.Opposite()
		if !next.FlowIn.Has(entry) {
			rep.Dropped[DropRejected]++
			continue
		}
		exits := pt.DropletOutputs(next.Kind, next.Rotation, entry)
		if exits.Empty() {
			rep.Dropped[DropDeadEnd]++
			continue
		}

		d.Pos = np
		d.Progress = 0
		d.From = entry
		d.HasPaid = false
		rep.Moved++

		dirs := exits.Dirs()
		if len(dirs) == 1 {
			d.To = dirs[0]
			out = append(out, d)
			continue
		}
		rep.Splits++
		for _, exit := range dirs {
			child := d
			child.ID = tr.IDs.Next()
			child.To = exit
			out = append(out, child)
		}
	}
	return out, rep
}
