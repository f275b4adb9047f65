package plot

import (
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func testHeatmap() *Heatmap {
	h := NewHeatmap("IU_ANMO AvailabilityMetric", []string{"00-LHZ", "10-LHZ"}, []string{"2024-03-07", "2024-03-08", "2024-03-09"})
	h.Theme = GrayscaleTheme
	h.Set(0, 0, 100)
	h.Set(0, 1, 50)
	h.Set(1, 2, 0)
	return h
}

func TestRenderer_RenderHeatmap(t *testing.T) {
	r, err := NewRenderer(RenderConfig{})
	if err != nil {
		t.Fatalf("Failed to create renderer: %v", err)
	}

	h := testHeatmap()
	img, err := r.RenderHeatmap(h)
	if err != nil {
		t.Fatalf("RenderHeatmap failed: %v", err)
	}

	size := img.Bounds().Size()
	if size.X < 3*cellWidth || size.Y < defaultTopBorder+2*cellHeight {
		t.Fatalf("Image too small: %dx%d", size.X, size.Y)
	}

	// the minimum maps to black in the grayscale theme
	var black, missing int
	for y := 0; y < size.Y; y++ {
		for x := 0; x < size.X; x++ {
			c := img.RGBAAt(x, y)
			if c == MissingColor {
				missing++
			}
			if c.R == 0 && c.G == 0 && c.B == 0 && c.A == 0xff {
				black++
			}
		}
	}
	if missing < 3*(cellWidth-2)*(cellHeight-2) {
		t.Errorf("Expected three missing cells, found %d missing pixels", missing)
	}
	if black < (cellWidth-2)*(cellHeight-2) {
		t.Errorf("Expected the minimum cell drawn black, found %d black pixels", black)
	}

	if v := h.Value(0, 1); v == nil || *v != 50 {
		t.Errorf("Expected value 50, got %v", v)
	}
	if h.Value(1, 0) != nil {
		t.Error("Unset cell should be nil")
	}
}

func TestRenderer_RenderHeatmapEmpty(t *testing.T) {
	r, err := NewRenderer(RenderConfig{})
	if err != nil {
		t.Fatalf("Failed to create renderer: %v", err)
	}

	h := NewHeatmap("empty", []string{"00-LHZ"}, []string{"2024-03-07"})
	if _, err := r.RenderHeatmap(h); !errors.Is(err, ErrEmptyHeatmap) {
		t.Errorf("Expected ErrEmptyHeatmap, got %v", err)
	}
}

func TestRenderer_WriteHeatmapPNG(t *testing.T) {
	r, err := NewRenderer(RenderConfig{})
	if err != nil {
		t.Fatalf("Failed to create renderer: %v", err)
	}

	path := filepath.Join(t.TempDir(), "heatmaps", "IU_ANMO.png")
	if err := r.WriteHeatmapPNG(path, testHeatmap()); err != nil {
		t.Fatalf("WriteHeatmapPNG failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open heatmap: %v", err)
	}
	defer f.Close()

	if _, err := png.Decode(f); err != nil {
		t.Errorf("Heatmap is not a valid PNG: %v", err)
	}
}
