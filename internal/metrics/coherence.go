package metrics

import "context"

// CoherencePBM is the mean magnitude squared coherence between the base
// location and another location of the same band, over a period band.
type CoherencePBM struct {
	*powerBandMetric
}

func newCoherencePBM(values map[string]string, opts Options) (*CoherencePBM, error) {
	m, err := newPowerBandMetric("CoherencePBM", 2, values, opts, "Coherence")
	if err != nil {
		return nil, err
	}
	return &CoherencePBM{powerBandMetric: m}, nil
}

func (m *CoherencePBM) Process(ctx context.Context) error {
	return m.process(ctx, m.Name(), coherence)
}

// coherence returns Gxy² / (Gxx·Gyy) per bin; the DC bin and bins without
// power are set to 0.
func coherence(gxx, gyy, gxy []float64) []float64 {
	gamma := make([]float64, len(gxx))
	for k := 1; k < len(gamma); k++ {
		if den := gxx[k] * gyy[k]; den > 0 {
			gamma[k] = gxy[k] * gxy[k] / den
		}
	}
	return gamma
}
