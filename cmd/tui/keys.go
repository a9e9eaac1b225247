package main

import (
	"fmt"

	"github.com/gdamore/tcell/v2"

	"aquaflow.game/internal/protocol"
	"aquaflow.game/internal/sim/flow"
	"aquaflow.game/internal/sim/game"
)

// view is the client-side cursor state. The session owns everything else.
type view struct {
	board  game.Board
	cursor [2]flow.Pos
	sizes  [2]int
	mark   *flow.Pos
	msg    string
}

type action struct {
	cmd  game.Command
	send bool
	quit bool
}

var depotKeys = map[rune]flow.Kind{
	'p': flow.KindDepotPump,
	'w': flow.KindDepotWell,
	't': flow.KindDepotTank,
}

func newView(mainSize, depotSize int) *view {
	return &view{
		sizes:  [2]int{mainSize, depotSize},
		cursor: [2]flow.Pos{{X: mainSize / 2, Y: 1}, {X: depotSize / 2, Y: 0}},
	}
}

func (v *view) pos() flow.Pos { return v.cursor[v.board] }

func (v *view) moveCursor(dx, dy int) {
	p := v.cursor[v.board]
	n := v.sizes[v.board]
	p.X = clamp(p.X+dx, 0, n-1)
	p.Y = clamp(p.Y+dy, 0, n-1)
	v.cursor[v.board] = p
}

func (v *view) command(typ string) game.Command {
	return game.Command{Type: typ, Board: v.board, Pos: v.pos(), Slot: -1}
}

// handleKey maps one key press to a cursor change or a session command.
func (v *view) handleKey(k tcell.Key, r rune, paused bool) action {
	switch k {
	case tcell.KeyCtrlC:
		return action{quit: true}
	case tcell.KeyEscape:
		if v.mark != nil {
			v.mark = nil
			v.msg = "move cancelled"
			return action{}
		}
		return action{quit: true}
	case tcell.KeyUp:
		v.moveCursor(0, -1)
		return action{}
	case tcell.KeyDown:
		v.moveCursor(0, 1)
		return action{}
	case tcell.KeyLeft:
		v.moveCursor(-1, 0)
		return action{}
	case tcell.KeyRight:
		v.moveCursor(1, 0)
		return action{}
	case tcell.KeyTab:
		v.board = 1 - v.board
		v.mark = nil
		return action{}
	case tcell.KeyRune:
	default:
		return action{}
	}

	switch {
	case r == 'q':
		return action{quit: true}
	case r == 'h':
		v.moveCursor(-1, 0)
	case r == 'j':
		v.moveCursor(0, 1)
	case r == 'k':
		v.moveCursor(0, -1)
	case r == 'l':
		return action{cmd: v.command(protocol.CmdUnlock), send: true}
	case r >= '1' && r <= '9':
		if v.board != game.BoardMain {
			v.msg = "depot builds use p / w / t"
			return action{}
		}
		c := v.command(protocol.CmdPlace)
		c.Slot = int(r - '1')
		return action{cmd: c, send: true}
	case depotKeys[r] != flow.KindEmpty:
		if v.board != game.BoardDepot {
			v.msg = "main builds come from draft slots 1-3"
			return action{}
		}
		c := v.command(protocol.CmdPlace)
		c.Kind = depotKeys[r]
		return action{cmd: c, send: true}
	case r == 'r':
		return action{cmd: v.command(protocol.CmdRotate), send: true}
	case r == 'x':
		return action{cmd: v.command(protocol.CmdDelete), send: true}
	case r == 'u':
		return action{cmd: v.command(protocol.CmdUpgrade), send: true}
	case r == 'f':
		return action{cmd: v.command(protocol.CmdRefreshDraft), send: true}
	case r == 'R':
		return action{cmd: v.command(protocol.CmdReset), send: true}
	case r == ' ':
		if paused {
			return action{cmd: v.command(protocol.CmdResume), send: true}
		}
		return action{cmd: v.command(protocol.CmdPause), send: true}
	case r == 'm':
		if v.mark == nil {
			p := v.pos()
			v.mark = &p
			v.msg = fmt.Sprintf("moving from %s", p)
			return action{}
		}
		c := game.Command{Type: protocol.CmdMove, Board: v.board, Pos: *v.mark, To: v.pos(), Slot: -1}
		v.mark = nil
		return action{cmd: c, send: true}
	}
	return action{}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
