package metrics

import (
	"context"
	"math"
)

// DifferencePBM is the mean difference in dB between the power spectra of the
// base location and another location of the same band, over a period band.
type DifferencePBM struct {
	*powerBandMetric
}

func newDifferencePBM(values map[string]string, opts Options) (*DifferencePBM, error) {
	m, err := newPowerBandMetric("DifferencePBM", 2, values, opts, "Difference")
	if err != nil {
		return nil, err
	}
	return &DifferencePBM{powerBandMetric: m}, nil
}

func (m *DifferencePBM) Process(ctx context.Context) error {
	return m.process(ctx, m.Name(), powerDifference)
}

// powerDifference returns 10·log10(Gxx) − 10·log10(Gyy) per bin. The DC bin
// is undefined and set to 0.
func powerDifference(gxx, gyy, _ []float64) []float64 {
	diff := make([]float64, len(gxx))
	for k := range diff {
		diff[k] = 10*math.Log10(gxx[k]) - 10*math.Log10(gyy[k])
	}
	if len(diff) > 0 {
		diff[0] = 0
	}
	return diff
}
