package timeseries

import (
	"errors"
	"math"
	"testing"
)

func sine(n int, freq, sampleRate, amplitude float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/sampleRate)
	}
	return out
}

func TestComputeCrossPower_Peak(t *testing.T) {
	const (
		n          = 4096
		sampleRate = 1.0
		freq       = 0.1
	)

	x := sine(n, freq, sampleRate, 100)
	cp, err := ComputeCrossPower(x, x, sampleRate)
	if err != nil {
		t.Fatalf("ComputeCrossPower failed: %v", err)
	}

	if cp.Len() != 1024/2+1 {
		t.Errorf("Expected %d bins, got %d", 1024/2+1, cp.Len())
	}
	if want := sampleRate / 1024; cp.DeltaF != want {
		t.Errorf("Expected df %v, got %v", want, cp.DeltaF)
	}

	peak := 0
	for k, v := range cp.Spectrum {
		if v < 0 {
			t.Fatalf("Auto spectrum bin %d is negative: %v", k, v)
		}
		if v > cp.Spectrum[peak] {
			peak = k
		}
	}
	if f := cp.Frequency(peak); math.Abs(f-freq) > 2*cp.DeltaF {
		t.Errorf("Expected peak near %v Hz, got %v Hz", freq, f)
	}
}

func TestComputeCrossPower_Symmetric(t *testing.T) {
	x := sine(2048, 0.05, 1, 10)
	y := sine(2048, 0.05, 1, 3)
	for i := range y {
		y[i] += float64(i%7) - 3
	}

	xy, err := ComputeCrossPower(x, y, 1)
	if err != nil {
		t.Fatalf("ComputeCrossPower failed: %v", err)
	}
	yx, err := ComputeCrossPower(y, x, 1)
	if err != nil {
		t.Fatalf("ComputeCrossPower failed: %v", err)
	}

	for k := range xy.Spectrum {
		if math.Abs(xy.Spectrum[k]-yx.Spectrum[k]) > 1e-9*math.Max(1, xy.Spectrum[k]) {
			t.Fatalf("Bin %d differs: %v vs %v", k, xy.Spectrum[k], yx.Spectrum[k])
		}
	}
}

func TestComputeCrossPower_Errors(t *testing.T) {
	if _, err := ComputeCrossPower(make([]float64, 32), make([]float64, 32), 1); !errors.Is(err, ErrTooFewSamples) {
		t.Errorf("Expected ErrTooFewSamples, got %v", err)
	}
	if _, err := ComputeCrossPower(make([]float64, 1024), make([]float64, 1024), 0); err == nil {
		t.Error("Expected error for zero sample rate")
	}
}

func TestCosineTaper(t *testing.T) {
	w := cosineTaper(100, 0.1)

	if w[0] != 0 || w[99] != 0 {
		t.Errorf("Taper should start and end at 0, got %v and %v", w[0], w[99])
	}
	if w[50] != 1 {
		t.Errorf("Taper should be flat in the middle, got %v", w[50])
	}
	for i := 0; i < 50; i++ {
		if w[i] != w[99-i] {
			t.Fatalf("Taper is not symmetric at %d", i)
		}
	}
}
