package main

import (
	"fmt"

	"aquaflow.game/internal/protocol"
	"aquaflow.game/internal/sim/flow"
)

// planner grows the network greedily: it straightens dry pipes that sit next to an
// outlet, then builds on the first free tile water could reach.
type planner struct {
	ports *flow.PortTable
	seq   int
}

func (p *planner) outgoing(t flow.Tile) flow.DirSet {
	if t.Kind.PassThrough() {
		return t.FlowIn.Opposites()
	}
	return p.ports.Ports(t.Kind, t.Rotation).Without(t.FlowIn)
}

// next picks one command for the board, or false when there is nothing worth doing.
func (p *planner) next(b protocol.BoardMsg, money int64) (protocol.CmdMsg, bool) {
	rows := b.Main
	at := func(pos flow.Pos) (flow.Tile, bool) {
		if pos.Y < 0 || pos.Y >= len(rows) || pos.X < 0 || pos.X >= len(rows[pos.Y]) {
			return flow.Tile{}, false
		}
		return rows[pos.Y][pos.X], true
	}

	var frontier []flow.Pos
	seen := map[flow.Pos]bool{}
	for _, row := range rows {
		for _, t := range row {
			if !t.Wet || t.Locked {
				continue
			}
			for _, d := range p.outgoing(t).Dirs() {
				np := t.Pos.Step(d)
				n, ok := at(np)
				if !ok || n.Locked {
					continue
				}
				switch {
				case n.Kind.IsPipe() && !n.Wet:
					return p.cmd(protocol.CmdRotate, np, nil), true
				case n.Kind == flow.KindEmpty && !seen[np]:
					seen[np] = true
					frontier = append(frontier, np)
				}
			}
		}
	}
	if len(frontier) == 0 {
		return protocol.CmdMsg{}, false
	}
	slot, ok := pickOffer(b.Draft, money)
	if !ok {
		return protocol.CmdMsg{}, false
	}
	return p.cmd(protocol.CmdPlace, frontier[0], &slot), true
}

// pickOffer prefers an affordable house, then an affordable pipe.
func pickOffer(draft []protocol.DraftOffer, money int64) (int, bool) {
	for _, want := range []func(flow.Kind) bool{
		func(k flow.Kind) bool { return k == flow.KindHouse },
		flow.Kind.IsPipe,
	} {
		for _, o := range draft {
			k, err := flow.ParseKind(o.Kind)
			if err != nil || o.Cost > money || !want(k) {
				continue
			}
			return o.Slot, true
		}
	}
	return 0, false
}

func (p *planner) cmd(name string, pos flow.Pos, slot *int) protocol.CmdMsg {
	p.seq++
	return protocol.CmdMsg{
		Type:            protocol.TypeCmd,
		ProtocolVersion: protocol.Version,
		Ref:             fmt.Sprintf("bot-%d", p.seq),
		Cmd:             name,
		Board:           "MAIN",
		X:               pos.X,
		Y:               pos.Y,
		Slot:            slot,
	}
}
