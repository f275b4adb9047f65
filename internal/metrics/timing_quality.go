package metrics

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roman-kulish/seedscan/internal/station"
)

// TimingQualityMetric is the mean of the clock quality values (0-100) the
// digitizer reported for a continuous channel during the day.
type TimingQualityMetric struct {
	base
}

func newTimingQualityMetric(values map[string]string, opts Options) (*TimingQualityMetric, error) {
	args, err := newArguments(values)
	if err != nil {
		return nil, err
	}
	b, err := newBase("TimingQualityMetric", 1, args, opts)
	if err != nil {
		return nil, err
	}
	return &TimingQualityMetric{base: b}, nil
}

func (m *TimingQualityMetric) Process(ctx context.Context) error {
	logger, err := m.begin(m.Name())
	if err != nil {
		return err
	}

	for _, ch := range m.data.Metadata().ContinuousChannels() {
		if err = ctx.Err(); err != nil {
			return err
		}

		flags := m.data.QualityFlags(ch)
		if len(flags) == 0 {
			continue
		}

		channels := station.NewChannelArray(ch)
		chLogger := logger.With(slog.String("channels", channels.String()))

		sum, changed, err := m.data.ValueDigestChanged(ctx, m.Name(), m.version, channels, m.forceUpdate)
		if err != nil {
			chLogger.Warn(fmt.Sprintf("computing digest: %s", err.Error()))
			continue
		}
		if !changed {
			chLogger.Info("digest unchanged, skipping channel")
			continue
		}

		var total int
		for _, q := range flags {
			total += q
		}
		m.result.AddResult(ResultID(ch), float64(total)/float64(len(flags)), sum)
	}

	return nil
}
