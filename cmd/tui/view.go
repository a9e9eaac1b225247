package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gdamore/tcell/v2"

	"aquaflow.game/internal/sim/flow"
	"aquaflow.game/internal/sim/game"
)

const (
	boardTop  = 2
	boardLeft = 1
	cellW     = 2
	boardGap  = 4
)

var (
	styleDim      = tcell.StyleDefault.Foreground(tcell.ColorDarkGray)
	styleDry      = tcell.StyleDefault.Foreground(tcell.ColorWhite)
	styleWet      = tcell.StyleDefault.Foreground(tcell.ColorDodgerBlue)
	styleSource   = tcell.StyleDefault.Foreground(tcell.ColorAqua).Bold(true)
	styleHouse    = tcell.StyleDefault.Foreground(tcell.ColorYellow)
	styleSupplied = tcell.StyleDefault.Foreground(tcell.ColorGreen).Bold(true)
	styleDepot    = tcell.StyleDefault.Foreground(tcell.ColorOrange)
	styleDroplet  = tcell.StyleDefault.Foreground(tcell.ColorBlue).Bold(true)
	styleTitle    = tcell.StyleDefault.Bold(true)
)

// pipeRunes is indexed by DirSet (bit 0 north, 1 east, 2 south, 3 west).
var pipeRunes = [16]rune{
	'·', '╵', '╶', '└', '╷', '│', '┌', '├',
	'╴', '┘', '─', '┴', '┐', '┤', '┬', '┼',
}

var depotRunes = map[flow.Kind]rune{
	flow.KindDepotPump: 'P',
	flow.KindDepotWell: 'W',
	flow.KindDepotTank: 'T',
}

// boardOrigin returns the top-left screen cell of a board.
func boardOrigin(b game.Board, mainSize int) (int, int) {
	if b == game.BoardDepot {
		return boardLeft + mainSize*cellW + boardGap, boardTop
	}
	return boardLeft, boardTop
}

// tileCell returns the screen cell of the tile glyph at p.
func tileCell(b game.Board, mainSize int, p flow.Pos) (int, int) {
	x0, y0 := boardOrigin(b, mainSize)
	return x0 + p.X*cellW, y0 + p.Y
}

func tileGlyph(t flow.Tile, ports *flow.PortTable) (rune, tcell.Style) {
	switch {
	case t.Locked:
		return '░', styleDim
	case t.Kind == flow.KindEmpty:
		return '·', styleDim
	case t.Kind == flow.KindSource:
		return '◉', styleSource
	case t.Kind == flow.KindHouse:
		r := '+'
		if t.Level < 10 {
			r = rune('0' + t.Level)
		}
		if t.Supplied {
			return r, styleSupplied
		}
		return r, styleHouse
	case t.Kind.IsDepot():
		return depotRunes[t.Kind], styleDepot
	}
	g := pipeRunes[ports.Ports(t.Kind, t.Rotation)&0xF]
	if t.Wet {
		return g, styleWet
	}
	return g, styleDry
}

// connector fills the cell between a tile and its east neighbour.
func connector(t flow.Tile, east *flow.Tile, ports *flow.PortTable) (rune, tcell.Style) {
	if t.Kind.IsDepot() && t.Level > 0 {
		return rune('0' + t.Level%10), styleDepot
	}
	if east == nil || t.Locked || east.Locked {
		return ' ', styleDim
	}
	if !ports.Ports(t.Kind, t.Rotation).Has(flow.East) || !ports.Ports(east.Kind, east.Rotation).Has(flow.West) {
		return ' ', styleDim
	}
	if t.Wet && east.Wet {
		return '─', styleWet
	}
	return '─', styleDry
}

func drawText(scr tcell.Screen, x, y int, s string, st tcell.Style) {
	for _, r := range s {
		scr.SetContent(x, y, r, nil, st)
		x++
	}
}

func drawBoard(scr tcell.Screen, b game.Board, rows [][]flow.Tile, ports *flow.PortTable, v *view, mainSize int) {
	x0, y0 := boardOrigin(b, mainSize)
	title := strings.ToLower(b.String())
	if v.board == b {
		title = "[" + strings.ToUpper(title) + "]"
	}
	drawText(scr, x0, y0-1, title, styleTitle)
	for y, row := range rows {
		for x, t := range row {
			g, st := tileGlyph(t, ports)
			p := flow.Pos{X: x, Y: y}
			if v.board == b && v.pos() == p {
				st = st.Reverse(true)
			}
			if v.board == b && v.mark != nil && *v.mark == p {
				st = st.Underline(true)
			}
			scr.SetContent(x0+x*cellW, y0+y, g, nil, st)
			var east *flow.Tile
			if x+1 < len(row) {
				east = &row[x+1]
			}
			c, cst := connector(t, east, ports)
			scr.SetContent(x0+x*cellW+1, y0+y, c, nil, cst)
		}
	}
}

// draw renders a full frame of the session state.
func draw(scr tcell.Screen, st game.State, ports *flow.PortTable, v *view) {
	scr.Clear()

	head := fmt.Sprintf("AquaFlow  run %s  tick %s", shortID(st.RunID), humanize.Comma(int64(st.Tick)))
	if st.Paused {
		head += "  PAUSED"
	}
	drawText(scr, boardLeft, 0, head, styleTitle)

	mainSize := len(st.Main)
	drawBoard(scr, game.BoardMain, st.Main, ports, v, mainSize)
	drawBoard(scr, game.BoardDepot, st.Depot, ports, v, mainSize)

	for _, d := range st.Droplets {
		x, y := tileCell(game.BoardMain, mainSize, d.Pos)
		scr.SetContent(x, y, '●', nil, styleDroplet)
	}

	y := boardTop + max(len(st.Main), len(st.Depot)) + 1
	drawText(scr, boardLeft, y, statusLine(st), tcell.StyleDefault)
	drawText(scr, boardLeft, y+1, draftLine(st), tcell.StyleDefault)
	drawText(scr, boardLeft, y+2, v.msg, styleHouse)
	drawText(scr, boardLeft, y+4,
		"arrows/hjk move  tab board  1-3 place  p/w/t depot  m move  r rotate  x delete  u upgrade  l unlock  f refresh  space pause  R reset  q quit",
		styleDim)
	scr.Show()
}

func statusLine(st game.State) string {
	return fmt.Sprintf("$%s  water %.1f/%.0f  refill %.1f/s  income %s/pass  droplets %d",
		humanize.Comma(st.Money), st.Water, st.Capacity, st.Refill,
		humanize.Comma(st.EstimatedIncome), len(st.Droplets))
}

func draftLine(st game.State) string {
	parts := make([]string, 0, len(st.Draft)+1)
	parts = append(parts, "draft")
	for _, o := range st.Draft {
		parts = append(parts, fmt.Sprintf("%d:%s L%d $%s", o.Slot+1, o.Kind, o.Level, humanize.Comma(o.Cost)))
	}
	return strings.Join(parts, "  ")
}

func ackText(cmd game.Command, res game.Result) string {
	if !res.Accepted {
		return fmt.Sprintf("%s rejected: %s", cmd.Type, res.Code)
	}
	switch {
	case res.Merged:
		return fmt.Sprintf("%s merged ($%s)", cmd.Type, humanize.Comma(res.Cost))
	case res.Refund > 0:
		return fmt.Sprintf("%s refunded $%s", cmd.Type, humanize.Comma(res.Refund))
	case res.Cost > 0:
		return fmt.Sprintf("%s ok ($%s)", cmd.Type, humanize.Comma(res.Cost))
	}
	return cmd.Type + " ok"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
