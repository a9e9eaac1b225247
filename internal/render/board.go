// Package render draws boards as PNG images.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"

	"github.com/fogleman/gg"
	"golang.org/x/image/colornames"

	"aquaflow.game/internal/sim/flow"
)

// Scheme defines how tiles and droplets are coloured.
type Scheme struct {
	Background color.Color
	Grid       color.Color
	Locked     color.Color
	DryPipe    color.Color
	WetPipe    color.Color
	Source     color.Color
	House      color.Color
	Supplied   color.Color
	Depot      map[flow.Kind]color.Color
	Droplet    color.Color
	Text       color.Color
}

// DefaultScheme returns a reasonable default Scheme.
func DefaultScheme() *Scheme {
	return &Scheme{
		Background: colornames.Whitesmoke,
		Grid:       colornames.Lightgray,
		Locked:     colornames.Dimgray,
		DryPipe:    colornames.Darkgray,
		WetPipe:    colornames.Steelblue,
		Source:     colornames.Royalblue,
		House:      colornames.Burlywood,
		Supplied:   colornames.Gold,
		Depot: map[flow.Kind]color.Color{
			flow.KindDepotPump: colornames.Slateblue,
			flow.KindDepotWell: colornames.Mediumturquoise,
			flow.KindDepotTank: colornames.Lightblue,
		},
		Droplet: colornames.Deepskyblue,
		Text:    colornames.Black,
	}
}

// Options controls the output size and what is drawn.
type Options struct {
	// Cell is the side of one tile in pixels.
	Cell     int
	Scheme   *Scheme
	Droplets []flow.Droplet
}

// Board draws rows as an image. ports supplies each kind's openings.
func Board(rows [][]flow.Tile, ports *flow.PortTable, opts Options) (image.Image, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("render: empty board")
	}
	if ports == nil {
		ports = flow.DefaultPorts()
	}
	cell := opts.Cell
	if cell <= 0 {
		cell = 48
	}
	scheme := opts.Scheme
	if scheme == nil {
		scheme = DefaultScheme()
	}

	n := len(rows)
	dc := gg.NewContext(n*cell, n*cell)
	dc.SetColor(scheme.Background)
	dc.Clear()

	c := float64(cell)
	for y, row := range rows {
		for x, t := range row {
			drawTile(dc, scheme, ports, t, float64(x)*c, float64(y)*c, c)
		}
	}

	dc.SetColor(scheme.Droplet)
	for _, d := range opts.Droplets {
		px, py := dropletPoint(d, c)
		dc.DrawCircle(px, py, c*0.1)
		dc.Fill()
	}
	return dc.Image(), nil
}

func drawTile(dc *gg.Context, s *Scheme, ports *flow.PortTable, t flow.Tile, x, y, c float64) {
	dc.SetColor(s.Grid)
	dc.SetLineWidth(1)
	dc.DrawRectangle(x, y, c, c)
	dc.Stroke()

	if t.Locked {
		dc.SetColor(s.Locked)
		dc.DrawRectangle(x+1, y+1, c-2, c-2)
		dc.Fill()
		return
	}

	cx, cy := x+c/2, y+c/2
	switch {
	case t.Kind == flow.KindEmpty:
		return
	case t.Kind.IsDepot():
		dc.SetColor(s.Depot[t.Kind])
		dc.DrawRoundedRectangle(x+c*0.15, y+c*0.15, c*0.7, c*0.7, c*0.1)
		dc.Fill()
		drawLevel(dc, s, t, cx, cy)
		return
	}

	// Connections first so houses and the source sit on top of them.
	pipe := s.DryPipe
	if t.Wet {
		pipe = s.WetPipe
	}
	dc.SetColor(pipe)
	dc.SetLineWidth(c * 0.18)
	dc.SetLineCapSquare()
	for _, d := range ports.Ports(t.Kind, t.Rotation).Dirs() {
		dx, dy := d.Delta()
		dc.DrawLine(cx, cy, cx+float64(dx)*c/2, cy+float64(dy)*c/2)
		dc.Stroke()
	}

	switch t.Kind {
	case flow.KindSource:
		dc.SetColor(s.Source)
		dc.DrawCircle(cx, cy, c*0.3)
		dc.Fill()
	case flow.KindHouse:
		fill := s.House
		if t.Supplied {
			fill = s.Supplied
		}
		dc.SetColor(fill)
		dc.DrawRectangle(x+c*0.2, y+c*0.2, c*0.6, c*0.6)
		dc.Fill()
		drawLevel(dc, s, t, cx, cy)
	default:
		if t.Level > 1 {
			drawLevel(dc, s, t, cx, cy)
		}
	}
}

func drawLevel(dc *gg.Context, s *Scheme, t flow.Tile, cx, cy float64) {
	dc.SetColor(s.Text)
	dc.DrawStringAnchored(fmt.Sprintf("%d", t.Level), cx, cy, 0.5, 0.5)
}

// dropletPoint places a droplet on the segment from its entry edge to the centre
// (first half) or from the centre to its exit edge (second half).
func dropletPoint(d flow.Droplet, c float64) (float64, float64) {
	cx := float64(d.Pos.X)*c + c/2
	cy := float64(d.Pos.Y)*c + c/2
	p := float64(d.Progress) / flow.ProgressFull
	if d.Progress < flow.ProgressCenter {
		if !d.From.Valid() {
			return cx, cy
		}
		dx, dy := d.From.Delta()
		f := (0.5 - p) * c
		return cx + float64(dx)*f, cy + float64(dy)*f
	}
	if !d.To.Valid() {
		return cx, cy
	}
	dx, dy := d.To.Delta()
	f := (p - 0.5) * c
	return cx + float64(dx)*f, cy + float64(dy)*f
}

// WritePNG renders rows and encodes the image to w.
func WritePNG(w io.Writer, rows [][]flow.Tile, ports *flow.PortTable, opts Options) error {
	img, err := Board(rows, ports, opts)
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}
