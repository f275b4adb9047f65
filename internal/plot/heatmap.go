package plot

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
)

const (
	cellWidth   = 18
	cellHeight  = 16
	colorBarGap = 20
	colorBarW   = 16
)

// ErrEmptyHeatmap is returned when a heatmap has no cells to draw
var ErrEmptyHeatmap = errors.New("heatmap has no values")

// Heatmap is a grid of values, one row per series and one column per step,
// e.g. one row per channel and one column per day.
type Heatmap struct {
	Title   string
	Rows    []string
	Columns []string
	Theme   ColorTheme

	values [][]*float64
}

// NewHeatmap creates an empty heatmap with the given row and column labels.
func NewHeatmap(title string, rows, columns []string) *Heatmap {
	values := make([][]*float64, len(rows))
	for i := range values {
		values[i] = make([]*float64, len(columns))
	}
	return &Heatmap{Title: title, Rows: rows, Columns: columns, values: values}
}

// Set stores the value of a cell.
func (h *Heatmap) Set(row, col int, v float64) {
	h.values[row][col] = &v
}

// Value returns the value of a cell, or nil if it was never set.
func (h *Heatmap) Value(row, col int) *float64 {
	return h.values[row][col]
}

func (h *Heatmap) bounds() (ValueBounds, bool) {
	var b ValueBounds
	var found bool
	for _, row := range h.values {
		for _, v := range row {
			if v == nil {
				continue
			}
			if !found {
				b = ValueBounds{Min: *v, Max: *v}
				found = true
				continue
			}
			b.Min = min(b.Min, *v)
			b.Max = max(b.Max, *v)
		}
	}
	return b, found
}

// RenderHeatmap draws the heatmap with row labels on the left, column labels
// below and a color bar on the right.
func (r *Renderer) RenderHeatmap(h *Heatmap) (*image.RGBA, error) {
	b, ok := h.bounds()
	if !ok {
		return nil, ErrEmptyHeatmap
	}
	mapper := NewColorMapper(h.Theme, b)

	ann := newAnnotator(r.font, r.config.FontSize)
	defer ann.Close()

	labelWidth := 0
	for _, label := range h.Rows {
		labelWidth = max(labelWidth, ann.textWidth(label))
	}

	left := labelWidth + 16
	top := r.config.BorderConfig.Top
	gridW := len(h.Columns) * cellWidth
	gridH := len(h.Rows) * cellHeight
	scale := mapper.Bounds()
	scaleWidth := max(ann.textWidth(formatValue(scale.Min)), ann.textWidth(formatValue(scale.Max)))
	width := left + gridW + colorBarGap + colorBarW + 4 + scaleWidth + r.config.BorderConfig.Right
	height := top + max(gridH, 4*ann.fontHeight()) + r.config.BorderConfig.Bottom

	img := image.NewRGBA(image.Rect(0, 0, max(width, ann.textWidth(h.Title)+20), height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	ann.attach(img)

	if err := ann.drawTitle(img, h.Title); err != nil {
		return nil, fmt.Errorf("drawing title: %w", err)
	}

	for i, label := range h.Rows {
		y := top + i*cellHeight
		for j := range h.Columns {
			cell := image.Rect(left+j*cellWidth, y, left+(j+1)*cellWidth, y+cellHeight)
			draw.Draw(img, cell, image.NewUniform(mapper.Color(h.values[i][j])), image.Point{}, draw.Src)
		}
		baseline := y + (cellHeight+ann.fontHeight())/2 - 2
		if err := ann.drawString(label, left-8-ann.textWidth(label), baseline, color.Black); err != nil {
			return nil, fmt.Errorf("drawing row label: %w", err)
		}
	}
	drawRect(img, image.Rect(left, top, left+gridW, top+gridH), frameColor)

	if err := r.drawColumnLabels(img, ann, h.Columns, left, top+gridH); err != nil {
		return nil, fmt.Errorf("drawing column labels: %w", err)
	}
	if err := r.drawColorBar(img, ann, mapper, left+gridW+colorBarGap, top, gridH); err != nil {
		return nil, fmt.Errorf("drawing color bar: %w", err)
	}

	return img, nil
}

// drawColumnLabels labels as many columns as fit without overlapping
func (r *Renderer) drawColumnLabels(img *image.RGBA, ann *annotator, columns []string, left, y int) error {
	widest := 0
	for _, label := range columns {
		widest = max(widest, ann.textWidth(label))
	}
	every := max(1, (widest+10+cellWidth-1)/cellWidth)

	for j := 0; j < len(columns); j += every {
		x := left + j*cellWidth + cellWidth/2
		drawLine(img, img.Bounds(), image.Pt(x, y), image.Pt(x, y+4), frameColor)
		if err := ann.drawString(columns[j], x-ann.textWidth(columns[j])/2, y+6+ann.fontHeight(), color.Black); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) drawColorBar(img *image.RGBA, ann *annotator, mapper *ColorMapper, x, top, height int) error {
	height = max(height, 4*ann.fontHeight())
	b := mapper.Bounds()

	for y := 0; y < height; y++ {
		v := b.Max - (b.Max-b.Min)*float64(y)/float64(max(1, height-1))
		c := mapper.Color(&v)
		for dx := 0; dx < colorBarW; dx++ {
			img.Set(x+dx, top+y, c)
		}
	}
	drawRect(img, image.Rect(x, top, x+colorBarW, top+height), frameColor)

	labelX := x + colorBarW + 4
	if err := ann.drawString(formatValue(mapper.Bounds().Max), labelX, top+ann.fontHeight()/2, color.Black); err != nil {
		return err
	}
	return ann.drawString(formatValue(mapper.Bounds().Min), labelX, top+height, color.Black)
}

func formatValue(v float64) string {
	return humanize.FormatFloat("#,###.##", v)
}

// WriteHeatmapPNG renders the heatmap into a PNG file
func (r *Renderer) WriteHeatmapPNG(path string, h *Heatmap) (err error) {
	img, err := r.RenderHeatmap(h)
	if err != nil {
		return fmt.Errorf("rendering heatmap: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating heatmap directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating heatmap file: %w", err)
	}
	defer closeWithError(f, &err)

	if err = png.Encode(f, img); err != nil {
		return fmt.Errorf("encoding heatmap: %w", err)
	}
	return nil
}
