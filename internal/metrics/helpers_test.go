package metrics

import (
	"testing"
	"time"

	"github.com/roman-kulish/seedscan/internal/digest"
	"github.com/roman-kulish/seedscan/internal/seed"
	"github.com/roman-kulish/seedscan/internal/station"
	"github.com/roman-kulish/seedscan/internal/timeseries"
)

var (
	testStation = station.New("IU", "ANMO")
	testDay     = time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC)
)

// testChannel describes a channel of the synthetic station
type testChannel struct {
	channel string
	rate    float64
	samples int // 0 means metadata only
	quality []int
}

func defaultChannels() []testChannel {
	var channels []testChannel
	for _, loc := range []string{"00", "10"} {
		for _, code := range []string{"LHZ", "LH1", "LH2"} {
			channels = append(channels, testChannel{channel: loc + "-" + code, rate: 1, samples: 3600})
		}
	}
	return channels
}

func newTestData(t *testing.T, channels []testChannel, cache *digest.Cache) *MetricData {
	t.Helper()

	var metas []*station.ChannelMeta
	tables := seed.NewTables()

	for _, tc := range channels {
		ch, err := station.ParseChannel(tc.channel)
		if err != nil {
			t.Fatalf("Invalid test channel: %v", err)
		}
		metas = append(metas, &station.ChannelMeta{Channel: ch, SampleRate: tc.rate, Dip: -90})

		key := seed.Key(testStation, ch, tc.rate)
		if tc.samples > 0 {
			samples := make([]float64, tc.samples)
			for i := range samples {
				samples[i] = float64(i % 17)
			}
			tables.Data[key] = []*seed.SampleRun{seed.NewSampleRun(testDay, tc.rate, samples)}
		}
		if len(tc.quality) > 0 {
			tables.Quality[key] = tc.quality
		}
	}

	meta := station.NewStationMeta(testStation, testDay, metas)
	if tables.Empty() {
		return NewMetadataOnly(meta, cache)
	}
	return NewMetricData(meta, tables, cache)
}

// countingSpectrum returns a flat spectrum and counts its invocations
type countingSpectrum struct {
	calls int
	value float64
}

func (c *countingSpectrum) compute(_, _ []float64, sampleRate float64) (timeseries.CrossPower, error) {
	c.calls++
	spectrum := make([]float64, 513)
	for k := range spectrum {
		spectrum[k] = c.value
	}
	return timeseries.CrossPower{Spectrum: spectrum, DeltaF: sampleRate / 1024}, nil
}

func newTestMetric(t *testing.T, spec Spec, spectrum timeseries.SpectrumFunc) Metric {
	t.Helper()

	m, err := New(spec, WithSpectrumFunc(spectrum))
	if err != nil {
		t.Fatalf("Failed to create metric: %v", err)
	}
	return m
}

func bandSpec(metricType string, low, high string) Spec {
	return Spec{
		Type: metricType,
		Arguments: map[string]string{
			"lower-limit": low,
			"upper-limit": high,
		},
	}
}
