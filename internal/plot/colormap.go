package plot

import (
	"fmt"
	"image/color"
	"math"
)

// ColorTheme is a predefined scale of colors values are mapped onto
type ColorTheme string

const (
	ClassicTheme   ColorTheme = "classic"   // Blue to red
	GrayscaleTheme ColorTheme = "grayscale" // Black to white
	ThermalTheme   ColorTheme = "thermal"   // Black to red to yellow to white
	MarineTheme    ColorTheme = "marine"    // Deep blue to cyan to white
	EnhancedTheme  ColorTheme = "enhanced"  // Black to blue to yellow to red

	colorMapSize = 256
)

// MissingColor marks cells without a value
var MissingColor = color.RGBA{R: 0xee, G: 0xee, B: 0xee, A: 0xff}

// ValueBounds is the range of values mapped onto a color scale
type ValueBounds struct {
	Min float64
	Max float64
}

// ParseColorTheme returns the theme of the given name. An empty name selects
// the enhanced theme.
func ParseColorTheme(name string) (ColorTheme, error) {
	switch t := ColorTheme(name); t {
	case "":
		return EnhancedTheme, nil
	case ClassicTheme, GrayscaleTheme, ThermalTheme, MarineTheme, EnhancedTheme:
		return t, nil
	default:
		return "", fmt.Errorf("unknown color theme '%s'", name)
	}
}

// ColorMapper maps values onto a precomputed color scale
type ColorMapper struct {
	colorMap []color.Color
	bounds   ValueBounds
}

// NewColorMapper creates a mapper of the theme over the bounds. Bounds of
// zero width are widened so that a constant value maps to the middle.
func NewColorMapper(theme ColorTheme, bounds ValueBounds) *ColorMapper {
	if bounds.Max <= bounds.Min {
		bounds = ValueBounds{Min: bounds.Min - 1, Max: bounds.Min + 1}
	}

	cm := &ColorMapper{
		colorMap: make([]color.Color, colorMapSize),
		bounds:   bounds,
	}

	themeFunc := colorTheme(theme)
	for i := range cm.colorMap {
		cm.colorMap[i] = themeFunc(float64(i) / float64(colorMapSize-1))
	}
	return cm
}

// Color returns the color of the value, clamped to the bounds.
func (cm *ColorMapper) Color(value *float64) color.Color {
	if value == nil || math.IsNaN(*value) {
		return MissingColor
	}

	v := math.Max(cm.bounds.Min, math.Min(*value, cm.bounds.Max))
	normalized := (v - cm.bounds.Min) / (cm.bounds.Max - cm.bounds.Min)
	index := int(math.Round(normalized * float64(len(cm.colorMap)-1)))

	if index < 0 {
		index = 0
	} else if index >= len(cm.colorMap) {
		index = len(cm.colorMap) - 1
	}
	return cm.colorMap[index]
}

// Bounds returns the value range of the mapper.
func (cm *ColorMapper) Bounds() ValueBounds {
	return cm.bounds
}

// enhancedColor separates low values better than a linear hue sweep
func enhancedColor(normalized float64) color.Color {
	v := math.Max(0, math.Min(1, normalized))
	enhanced := math.Pow(v, 0.7)

	switch {
	case v < 0.25:
		return HSV{H: 240, S: 1.0, V: enhanced * 4}.RGB()
	case v < 0.5:
		return HSV{H: 240 - ((v - 0.25) * 240), S: 1.0, V: math.Min(1.0, enhanced*1.5)}.RGB()
	case v < 0.75:
		p := (v - 0.5) * 4
		return HSV{H: 180 - (p * 120), S: 1.0, V: math.Min(1.0, enhanced*1.5)}.RGB()
	default:
		p := (v - 0.75) * 4
		return HSV{H: 60 - (p * 60), S: 1.0, V: 1.0}.RGB()
	}
}

func colorTheme(theme ColorTheme) func(float64) color.Color {
	switch theme {
	case ClassicTheme:
		return func(v float64) color.Color {
			return HSV{H: 240 - (v * 240), S: 0.9 + (v * 0.1), V: math.Pow(v, 0.7)}.RGB()
		}

	case GrayscaleTheme:
		return func(v float64) color.Color {
			g := uint8(math.Pow(v, 0.7) * 255)
			return color.RGBA{R: g, G: g, B: g, A: 0xff}
		}

	case ThermalTheme:
		return func(v float64) color.Color {
			if v < 0.33 {
				return color.RGBA{R: uint8(v * 3 * 255), A: 0xff}
			} else if v < 0.66 {
				return color.RGBA{R: 255, G: uint8((v - 0.33) * 3 * 255), A: 0xff}
			}
			return color.RGBA{R: 255, G: 255, B: uint8(math.Min(1, (v-0.66)*3) * 255), A: 0xff}
		}

	case MarineTheme:
		return func(v float64) color.Color {
			return HSV{H: 240 - (v * 60), S: 1.0 - (v * 0.8), V: 0.3 + (math.Pow(v, 0.6) * 0.7)}.RGB()
		}

	default:
		return enhancedColor
	}
}
