package plot

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
)

type annotator struct {
	context  *freetype.Context
	fontFace font.Face
}

func newAnnotator(f *truetype.Font, size float64) *annotator {
	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(f)
	ctx.SetFontSize(size)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		fontFace: truetype.NewFace(f, &truetype.Options{
			Size:    size,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) attach(img *image.RGBA) {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)
}

func (a *annotator) fontHeight() int {
	metrics := a.fontFace.Metrics()
	return (metrics.Ascent + metrics.Descent).Round()
}

func (a *annotator) textWidth(s string) int {
	return font.MeasureString(a.fontFace, s).Round()
}

func (a *annotator) drawString(s string, x, y int, c color.Color) error {
	a.context.SetSrc(image.NewUniform(c))
	_, err := a.context.DrawString(s, freetype.Pt(x, y))
	return err
}

func (a *annotator) drawTitle(img *image.RGBA, title string) error {
	x := (img.Bounds().Dx() - a.textWidth(title)) / 2
	return a.drawString(title, x, a.fontHeight()+5, color.Black)
}

func (a *annotator) drawXLabel(img *image.RGBA, label string, centerX int) error {
	if label == "" {
		return nil
	}
	y := img.Bounds().Max.Y - a.fontHeight()/2
	return a.drawString(label, centerX-a.textWidth(label)/2, y, color.Black)
}

// drawPanelTitle writes the panel title and the Y unit just above the panel
func (a *annotator) drawPanelTitle(area image.Rectangle, title, yLabel string) error {
	y := area.Min.Y - 4
	if err := a.drawString(title, area.Min.X, y, color.Black); err != nil {
		return err
	}
	if yLabel != "" {
		return a.drawString(yLabel, area.Max.X-a.textWidth(yLabel), y, color.Black)
	}
	return nil
}

func (a *annotator) drawXScale(img *image.RGBA, ax *axes) error {
	labelY := ax.area.Max.Y + tickMarkLength + a.fontHeight()

	for _, x := range xTicks(ax) {
		px := ax.point(x, ax.b.MinY).X

		for y := ax.area.Min.Y + 1; y < ax.area.Max.Y-1; y++ {
			img.Set(px, y, gridColor)
		}
		for y := ax.area.Max.Y; y < ax.area.Max.Y+tickMarkLength; y++ {
			img.Set(px, y, frameColor)
		}

		label := formatSeconds(x)
		if err := a.drawString(label, px-a.textWidth(label)/2, labelY, color.Black); err != nil {
			return fmt.Errorf("drawing label %s: %w", label, err)
		}
	}
	return nil
}

func (a *annotator) drawYScale(img *image.RGBA, ax *axes) error {
	step := niceStep((ax.b.MaxY - ax.b.MinY) / 5)
	metrics := a.fontFace.Metrics()

	for y := math.Ceil(ax.b.MinY/step) * step; y <= ax.b.MaxY; y += step {
		py := ax.point(ax.b.MinX, y).Y

		for x := ax.area.Min.X + 1; x < ax.area.Max.X-1; x++ {
			img.Set(x, py, gridColor)
		}
		for x := ax.area.Min.X - tickMarkLength; x < ax.area.Min.X; x++ {
			img.Set(x, py, frameColor)
		}

		label := humanize.FormatFloat("#,###.##", y)
		textY := py + a.fontHeight()/2 - metrics.Descent.Round()
		x := ax.area.Min.X - tickMarkLength - 3 - a.textWidth(label)
		if err := a.drawString(label, x, textY, color.Black); err != nil {
			return fmt.Errorf("drawing label %s: %w", label, err)
		}
	}
	return nil
}

// drawLegend writes the label of trace i in the top right corner of the panel
func (a *annotator) drawLegend(img *image.RGBA, area image.Rectangle, i int, label string, c color.Color) error {
	if label == "" {
		return nil
	}

	lineHeight := a.fontHeight() + 2
	y := area.Min.Y + 4 + (i+1)*lineHeight
	x := area.Max.X - 10 - a.textWidth(label)

	for dx := 0; dx < 15; dx++ {
		img.Set(x-20+dx, y-lineHeight/3, c)
	}
	return a.drawString(label, x, y, c)
}

// xTicks returns the decades of a logarithmic axis or evenly spaced values of
// a linear one
func xTicks(ax *axes) []float64 {
	var ticks []float64

	if ax.logX {
		for e := math.Ceil(math.Log10(ax.b.MinX)); e <= math.Floor(math.Log10(ax.b.MaxX)); e++ {
			ticks = append(ticks, math.Pow(10, e))
		}
		return ticks
	}

	step := niceStep((ax.b.MaxX - ax.b.MinX) / 6)
	for x := math.Ceil(ax.b.MinX/step) * step; x <= ax.b.MaxX; x += step {
		ticks = append(ticks, x)
	}
	return ticks
}

// niceStep rounds a rough step up to 1, 2 or 5 times a power of ten
func niceStep(rough float64) float64 {
	if rough <= 0 || math.IsNaN(rough) || math.IsInf(rough, 0) {
		return 1
	}

	exp := math.Pow(10, math.Floor(math.Log10(rough)))
	for _, m := range []float64{1, 2, 5, 10} {
		if m*exp >= rough {
			return m * exp
		}
	}
	return 10 * exp
}

func formatSeconds(s float64) string {
	fract, suffix := humanize.ComputeSI(s)
	return fmt.Sprintf("%g %ss", math.Round(fract*100)/100, suffix)
}
