// Package plot renders diagnostic line plots of spectral traces as PNG images.
package plot

import (
	"errors"
	"image/color"
	"math"
)

// ErrNoTraces is returned when a plot has nothing to draw.
var ErrNoTraces = errors.New("plot has no traces")

// Trace is one line of a panel.
type Trace struct {
	Label string
	X     []float64
	Y     []float64
	Color color.Color // nil picks a palette color
}

// Panel is one set of axes. Panels of a plot are stacked vertically.
type Panel struct {
	Title  string
	Traces []Trace
}

// Plot describes a complete image.
type Plot struct {
	Title  string
	XLabel string
	YLabel string
	LogX   bool // X axis is logarithmic; non-positive X values are not drawn
	Panels []*Panel
}

// New creates a Plot with the given number of panels titled in order.
func New(title string, panels ...string) *Plot {
	p := &Plot{Title: title}
	for _, t := range panels {
		p.Panels = append(p.Panels, &Panel{Title: t})
	}
	return p
}

// AddTrace appends the trace to panel i.
func (p *Plot) AddTrace(i int, trace Trace) {
	if i < 0 || i >= len(p.Panels) {
		return
	}
	p.Panels[i].Traces = append(p.Panels[i].Traces, trace)
}

// Empty returns true if no panel has a trace.
func (p *Plot) Empty() bool {
	for _, panel := range p.Panels {
		if len(panel.Traces) > 0 {
			return false
		}
	}
	return true
}

// bounds is the data range of a panel.
type bounds struct {
	MinX, MaxX float64
	MinY, MaxY float64
}

func (p *Plot) panelBounds(panel *Panel) (bounds, bool) {
	b := bounds{
		MinX: math.Inf(1), MaxX: math.Inf(-1),
		MinY: math.Inf(1), MaxY: math.Inf(-1),
	}

	var found bool
	for _, tr := range panel.Traces {
		for i := range min(len(tr.X), len(tr.Y)) {
			x, y := tr.X[i], tr.Y[i]
			if !p.drawable(x, y) {
				continue
			}
			found = true
			b.MinX, b.MaxX = math.Min(b.MinX, x), math.Max(b.MaxX, x)
			b.MinY, b.MaxY = math.Min(b.MinY, y), math.Max(b.MaxY, y)
		}
	}

	if !found {
		return b, false
	}
	if b.MaxY == b.MinY {
		b.MinY--
		b.MaxY++
	}
	if b.MaxX == b.MinX {
		b.MaxX = b.MinX * 2
		if !p.LogX {
			b.MaxX = b.MinX + 1
		}
	}
	return b, true
}

func (p *Plot) drawable(x, y float64) bool {
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return false
	}
	return !p.LogX || x > 0
}
