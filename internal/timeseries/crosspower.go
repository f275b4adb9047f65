// Package timeseries computes averaged cross-power spectra of sampled signals.
package timeseries

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	// maxSegments caps the number of overlapping segments averaged together.
	maxSegments = 13

	// minSegmentLength is the shortest segment worth transforming.
	minSegmentLength = 16

	// taperFraction is the share of each segment covered by the cosine taper.
	taperFraction = 0.10
)

// ErrTooFewSamples is returned when the input is too short for a single segment.
var ErrTooFewSamples = errors.New("too few samples for spectral estimate")

// CrossPower is a one-sided cross-power spectrum sampled every DeltaF Hz,
// starting at 0 Hz.
type CrossPower struct {
	Spectrum []float64
	DeltaF   float64
}

// Len returns the number of frequency bins.
func (c CrossPower) Len() int {
	return len(c.Spectrum)
}

// Frequency returns the frequency of bin k in Hz.
func (c CrossPower) Frequency(k int) float64 {
	return float64(k) * c.DeltaF
}

// SpectrumFunc computes the cross-power spectrum of x and y sampled at sampleRate Hz.
type SpectrumFunc func(x, y []float64, sampleRate float64) (CrossPower, error)

// ComputeCrossPower estimates the cross-power spectrum of x and y by segment
// averaging. The segment length is the largest power of two not exceeding a
// quarter of the input; segments overlap by 75% and at most 13 are averaged.
// Each segment is detrended and cosine tapered before transforming. The
// magnitude of the averaged spectrum is returned, so that auto spectra
// (x == y) are real and non-negative.
func ComputeCrossPower(x, y []float64, sampleRate float64) (CrossPower, error) {
	n := min(len(x), len(y))
	if sampleRate <= 0 {
		return CrossPower{}, fmt.Errorf("invalid sample rate %v", sampleRate)
	}

	segLen := 1
	for segLen*2 <= n/4 {
		segLen *= 2
	}
	if segLen < minSegmentLength {
		return CrossPower{}, fmt.Errorf("%w: %d", ErrTooFewSamples, n)
	}

	step := segLen / 4
	nSegs := min((n-segLen)/step+1, maxSegments)

	window := cosineTaper(segLen, taperFraction)
	var wss float64
	for _, w := range window {
		wss += w * w
	}

	fft := fourier.NewFFT(segLen)
	nf := segLen/2 + 1
	sum := make([]complex128, nf)

	xs := make([]float64, segLen)
	ys := make([]float64, segLen)
	xc := make([]complex128, nf)
	yc := make([]complex128, nf)

	for s := 0; s < nSegs; s++ {
		offset := s * step
		prepare(xs, x[offset:offset+segLen], window)
		prepare(ys, y[offset:offset+segLen], window)

		fft.Coefficients(xc, xs)
		fft.Coefficients(yc, ys)

		for k := range sum {
			sum[k] += xc[k] * cmplx.Conj(yc[k])
		}
	}

	dt := 1 / sampleRate
	scale := 2 * dt / (wss * float64(nSegs))

	spectrum := make([]float64, nf)
	for k, v := range sum {
		spectrum[k] = cmplx.Abs(v) * scale
	}

	return CrossPower{
		Spectrum: spectrum,
		DeltaF:   sampleRate / float64(segLen),
	}, nil
}

// prepare copies src into dst, removes the least-squares linear trend and
// applies the window.
func prepare(dst, src, window []float64) {
	n := float64(len(src))

	var sumX, sumY, sumXY, sumXX float64
	for i, v := range src {
		fi := float64(i)
		sumX += fi
		sumY += v
		sumXY += fi * v
		sumXX += fi * fi
	}

	var slope float64
	if den := n*sumXX - sumX*sumX; den != 0 {
		slope = (n*sumXY - sumX*sumY) / den
	}
	intercept := (sumY - slope*sumX) / n

	for i, v := range src {
		dst[i] = (v - (intercept + slope*float64(i))) * window[i]
	}
}

// cosineTaper builds a window of length n whose ends are tapered with a half
// cosine over fraction/2 of the length on each side.
func cosineTaper(n int, fraction float64) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}

	m := int(float64(n) * fraction / 2)
	for i := 0; i < m; i++ {
		v := 0.5 * (1 - math.Cos(math.Pi*float64(i)/float64(m)))
		w[i] = v
		w[n-1-i] = v
	}

	return w
}
