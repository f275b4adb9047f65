package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/roman-kulish/seedscan/internal/station"
)

// AvailabilityMetric is the percentage of the expected samples of a day which
// were recorded, per continuous channel. It is the only metric computed for
// days with metadata but without data; every channel then scores 0.
type AvailabilityMetric struct {
	base
}

func newAvailabilityMetric(values map[string]string, opts Options) (*AvailabilityMetric, error) {
	args, err := newArguments(values)
	if err != nil {
		return nil, err
	}
	b, err := newBase("AvailabilityMetric", 1, args, opts)
	if err != nil {
		return nil, err
	}
	return &AvailabilityMetric{base: b}, nil
}

// MetadataOnly returns true: a day without data is 0% available.
func (m *AvailabilityMetric) MetadataOnly() bool {
	return true
}

func (m *AvailabilityMetric) Process(ctx context.Context) error {
	logger, err := m.begin(m.Name())
	if err != nil {
		return err
	}

	for _, ch := range m.data.Metadata().ContinuousChannels() {
		if err = ctx.Err(); err != nil {
			return err
		}

		channels := station.NewChannelArray(ch)
		chLogger := logger.With(slog.String("channels", channels.String()))

		// without data the value only depends on the metadata
		if m.data.ChannelData(ch) == nil {
			sum, err := m.data.MetadataDigest(channels)
			if err != nil {
				chLogger.Warn(fmt.Sprintf("computing digest: %s", err.Error()))
				continue
			}
			if !m.data.digestChanged(ctx, m.Name(), m.version, channels, sum, m.forceUpdate) {
				chLogger.Info("digest unchanged, skipping channel")
				continue
			}
			m.result.AddResult(ResultID(ch), 0, sum)
			continue
		}

		sum, changed, err := m.data.ValueDigestChanged(ctx, m.Name(), m.version, channels, m.forceUpdate)
		if err != nil {
			chLogger.Warn(fmt.Sprintf("computing digest: %s", err.Error()))
			continue
		}
		if !changed {
			chLogger.Info("digest unchanged, skipping channel")
			continue
		}

		m.result.AddResult(ResultID(ch), m.availability(ch), sum)
	}

	return nil
}

// availability returns the share of expected samples present, in percent
func (m *AvailabilityMetric) availability(ch station.Channel) float64 {
	runs := m.data.ChannelData(ch)

	rate := runs[0].SampleRate
	if meta := m.data.Metadata().ChannelMeta(ch); meta != nil && meta.SampleRate > 0 {
		rate = meta.SampleRate
	}
	if rate <= 0 {
		return 0
	}

	var n int
	for _, run := range runs {
		n += len(run.Samples)
	}

	expected := secondsPerDay * rate
	return math.Min(100, float64(n)/expected*100)
}
