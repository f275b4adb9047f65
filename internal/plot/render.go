package plot

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	dpi            = 96.0
	fontSize       = 10.0
	tickMarkLength = 5

	defaultPanelWidth  = 800
	defaultPanelHeight = 240
	defaultPanelGap    = 40

	// Default border sizes in pixels
	defaultTopBorder    = 50
	defaultLeftBorder   = 80
	defaultBottomBorder = 50
	defaultRightBorder  = 40
)

// BorderConfig defines the sizes of white space around the panels
type BorderConfig struct {
	Top    int // Space for the plot title
	Left   int // Space for the Y scale
	Bottom int // Space for the X axis label
	Right  int // Right padding
}

// RenderConfig holds the layout of rendered plots
type RenderConfig struct {
	PanelWidth   int     // Width of the drawing area of a panel in pixels
	PanelHeight  int     // Height of the drawing area of a panel in pixels
	PanelGap     int     // Vertical space between panels, holds X scale and panel title
	FontSize     float64 // Font size in points
	BorderConfig BorderConfig
}

// Renderer draws plots into images
type Renderer struct {
	config RenderConfig
	font   *truetype.Font
}

// NewRenderer creates a new renderer with the given configuration
func NewRenderer(config RenderConfig) (*Renderer, error) {
	if config.PanelWidth == 0 {
		config.PanelWidth = defaultPanelWidth
	}
	if config.PanelHeight == 0 {
		config.PanelHeight = defaultPanelHeight
	}
	if config.PanelGap == 0 {
		config.PanelGap = defaultPanelGap
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if config.BorderConfig.Top == 0 {
		config.BorderConfig.Top = defaultTopBorder
	}
	if config.BorderConfig.Left == 0 {
		config.BorderConfig.Left = defaultLeftBorder
	}
	if config.BorderConfig.Bottom == 0 {
		config.BorderConfig.Bottom = defaultBottomBorder
	}
	if config.BorderConfig.Right == 0 {
		config.BorderConfig.Right = defaultRightBorder
	}

	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	return &Renderer{config: config, font: parsedFont}, nil
}

// Render draws the plot. Panels without drawable points are left blank.
func (r *Renderer) Render(p *Plot) (*image.RGBA, error) {
	if p.Empty() {
		return nil, ErrNoTraces
	}

	cfg := r.config
	n := len(p.Panels)
	fullWidth := cfg.BorderConfig.Left + cfg.PanelWidth + cfg.BorderConfig.Right
	fullHeight := cfg.BorderConfig.Top + n*cfg.PanelHeight + (n-1)*cfg.PanelGap + cfg.BorderConfig.Bottom

	img := image.NewRGBA(image.Rect(0, 0, fullWidth, fullHeight))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	ann := newAnnotator(r.font, cfg.FontSize)
	defer ann.Close()
	ann.attach(img)

	if err := ann.drawTitle(img, p.Title); err != nil {
		return nil, fmt.Errorf("drawing title: %w", err)
	}

	for i, panel := range p.Panels {
		top := cfg.BorderConfig.Top + i*(cfg.PanelHeight+cfg.PanelGap)
		area := image.Rect(cfg.BorderConfig.Left, top, cfg.BorderConfig.Left+cfg.PanelWidth, top+cfg.PanelHeight)

		if err := r.renderPanel(img, ann, area, p, panel); err != nil {
			return nil, fmt.Errorf("drawing panel '%s': %w", panel.Title, err)
		}
	}

	if err := ann.drawXLabel(img, p.XLabel, cfg.BorderConfig.Left+cfg.PanelWidth/2); err != nil {
		return nil, fmt.Errorf("drawing X label: %w", err)
	}

	return img, nil
}

func (r *Renderer) renderPanel(img *image.RGBA, ann *annotator, area image.Rectangle, p *Plot, panel *Panel) error {
	drawRect(img, area, frameColor)

	if err := ann.drawPanelTitle(area, panel.Title, p.YLabel); err != nil {
		return err
	}

	b, ok := p.panelBounds(panel)
	if !ok {
		return nil
	}
	ax := newAxes(area, b, p.LogX)

	if err := ann.drawXScale(img, ax); err != nil {
		return fmt.Errorf("drawing X scale: %w", err)
	}
	if err := ann.drawYScale(img, ax); err != nil {
		return fmt.Errorf("drawing Y scale: %w", err)
	}

	for i, tr := range panel.Traces {
		c := tr.Color
		if c == nil {
			c = traceColor(i)
		}
		r.renderTrace(img, ax, p, tr, c)

		if err := ann.drawLegend(img, area, i, tr.Label, c); err != nil {
			return fmt.Errorf("drawing legend: %w", err)
		}
	}

	return nil
}

// renderTrace joins consecutive drawable points with straight lines
func (r *Renderer) renderTrace(img *image.RGBA, ax *axes, p *Plot, tr Trace, c color.Color) {
	var prev image.Point
	var havePrev bool

	for i := range min(len(tr.X), len(tr.Y)) {
		if !p.drawable(tr.X[i], tr.Y[i]) {
			havePrev = false
			continue
		}

		pt := ax.point(tr.X[i], tr.Y[i])
		if havePrev {
			drawLine(img, ax.area, prev, pt, c)
		} else {
			setClipped(img, ax.area, pt.X, pt.Y, c)
		}
		prev, havePrev = pt, true
	}
}

// WritePNG renders the plot into a PNG file, creating parent directories as needed
func (r *Renderer) WritePNG(path string, p *Plot) (err error) {
	img, err := r.Render(p)
	if err != nil {
		return fmt.Errorf("rendering plot: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating plot directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating plot file: %w", err)
	}
	defer closeWithError(f, &err)

	if err = png.Encode(f, img); err != nil {
		return fmt.Errorf("encoding plot: %w", err)
	}
	return nil
}

// axes maps data coordinates into a panel area
type axes struct {
	area image.Rectangle
	b    bounds
	logX bool
}

func newAxes(area image.Rectangle, b bounds, logX bool) *axes {
	return &axes{area: area, b: b, logX: logX}
}

func (a *axes) xRatio(x float64) float64 {
	if a.logX {
		return (math.Log10(x) - math.Log10(a.b.MinX)) / (math.Log10(a.b.MaxX) - math.Log10(a.b.MinX))
	}
	return (x - a.b.MinX) / (a.b.MaxX - a.b.MinX)
}

func (a *axes) point(x, y float64) image.Point {
	xr := a.xRatio(x)
	yr := (y - a.b.MinY) / (a.b.MaxY - a.b.MinY)

	return image.Point{
		X: a.area.Min.X + int(math.Round(xr*float64(a.area.Dx()-1))),
		Y: a.area.Max.Y - 1 - int(math.Round(yr*float64(a.area.Dy()-1))),
	}
}

func drawRect(img *image.RGBA, r image.Rectangle, c color.Color) {
	for x := r.Min.X; x < r.Max.X; x++ {
		img.Set(x, r.Min.Y, c)
		img.Set(x, r.Max.Y-1, c)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		img.Set(r.Min.X, y, c)
		img.Set(r.Max.X-1, y, c)
	}
}

// drawLine draws a line with Bresenham's algorithm, clipped to the area
func drawLine(img *image.RGBA, area image.Rectangle, from, to image.Point, c color.Color) {
	dx := abs(to.X - from.X)
	dy := -abs(to.Y - from.Y)
	sx, sy := 1, 1
	if from.X > to.X {
		sx = -1
	}
	if from.Y > to.Y {
		sy = -1
	}

	e := dx + dy
	x, y := from.X, from.Y
	for {
		setClipped(img, area, x, y, c)
		if x == to.X && y == to.Y {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x += sx
		}
		if e2 <= dx {
			e += dx
			y += sy
		}
	}
}

func setClipped(img *image.RGBA, area image.Rectangle, x, y int, c color.Color) {
	if (image.Point{X: x, Y: y}).In(area) {
		img.Set(x, y, c)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}
