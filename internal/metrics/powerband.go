package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/roman-kulish/seedscan/internal/plot"
	"github.com/roman-kulish/seedscan/internal/station"
)

const defaultBaseChannel = "00-LH"

// PowerBand is a period range in seconds.
type PowerBand struct {
	Low  float64
	High float64
}

func (b PowerBand) String() string {
	return strconv.FormatFloat(b.Low, 'f', -1, 64) + "-" + strconv.FormatFloat(b.High, 'f', -1, 64)
}

func parsePowerBand(args *Arguments) (PowerBand, error) {
	low, err := args.Float(argLowerLimit)
	if err != nil {
		return PowerBand{}, fmt.Errorf("reading power band: %w", err)
	}
	high, err := args.Float(argUpperLimit)
	if err != nil {
		return PowerBand{}, fmt.Errorf("reading power band: %w", err)
	}
	return PowerBand{Low: low, High: high}, nil
}

// toPeriod re-expresses a spectrum sampled every df Hz in the period domain,
// in ascending period order. The last slot stands for the infinite period of
// the DC bin and is set to 0.
func toPeriod(values []float64, df float64) (per, valPer []float64) {
	nf := len(values)
	per = make([]float64, nf)
	valPer = make([]float64, nf)

	for k := 0; k < nf-1; k++ {
		per[k] = 1 / (float64(nf-1-k) * df)
		valPer[k] = values[nf-1-k]
	}
	return per, valPer
}

// bandAverage averages values over the periods inside the band. Periods are
// walked in array order and the walk stops at the first period above the
// band. The band must lie within [per[0], per[nf-2]]; the last slot stands
// for the infinite period and is never averaged. A band holding no period
// is an error, never a silent zero.
func bandAverage(per, values []float64, band PowerBand) (float64, error) {
	if band.Low > band.High {
		return 0, fmt.Errorf("%w: [%v - %v] is inverted", ErrEmptyBand, band.Low, band.High)
	}
	if len(per) < 2 {
		return 0, fmt.Errorf("%w: %d periods", ErrEmptyBand, len(per))
	}

	tmin, tmax := per[0], per[len(per)-2]
	if band.Low < tmin || band.High > tmax {
		return 0, fmt.Errorf("%w: [%v - %v] outside [%v - %v]", ErrBandOutOfRange, band.Low, band.High, tmin, tmax)
	}

	var sum float64
	var n int
	for k := range per[:len(per)-1] {
		if per[k] > band.High {
			break
		}
		if per[k] >= band.Low {
			sum += values[k]
			n++
		}
	}

	if n == 0 {
		return 0, fmt.Errorf("%w: [%v - %v]", ErrEmptyBand, band.Low, band.High)
	}
	return sum / float64(n), nil
}

// spectralTransform turns the auto spectra of x and y and their cross
// spectrum into the per-frequency quantity a power band metric averages.
type spectralTransform func(gxx, gyy, gxy []float64) []float64

// powerBandMetric is the common part of metrics comparing channel pairs of
// two locations over a period band.
type powerBandMetric struct {
	base
	band   PowerBand
	plotAs string

	incomplete int
	unchanged  int
}

func newPowerBandMetric(baseName string, version int, values map[string]string, opts Options, plotAs string) (*powerBandMetric, error) {
	args, err := newArguments(values, argLowerLimit, argUpperLimit, argBaseChannel)
	if err != nil {
		return nil, err
	}
	b, err := newBase(baseName, version, args, opts)
	if err != nil {
		return nil, err
	}
	band, err := parsePowerBand(args)
	if err != nil {
		return nil, err
	}
	return &powerBandMetric{base: b, band: band, plotAs: plotAs}, nil
}

func (m *powerBandMetric) Name() string {
	return m.baseName + ":" + m.band.String()
}

// PowerBand returns the configured band.
func (m *powerBandMetric) PowerBand() PowerBand {
	return m.band
}

// Incomplete returns how many pairs were skipped for missing or mismatched data.
func (m *powerBandMetric) Incomplete() int {
	return m.incomplete
}

// Unchanged returns how many pairs were skipped because their digest matched.
func (m *powerBandMetric) Unchanged() int {
	return m.unchanged
}

func (m *powerBandMetric) baseChannel(logger *slog.Logger) (station.Channel, error) {
	v, err := m.args.Get(argBaseChannel)
	if errors.Is(err, ErrMissingArgument) {
		logger.Info(fmt.Sprintf("no base channel, using %s", defaultBaseChannel))
		v = defaultBaseChannel
	} else if err != nil {
		return station.Channel{}, err
	}
	return station.ParseChannel(v)
}

// pairs selects the channel pairs compared against the base: every rotatable
// channel of the base band at another location, provided both locations have
// a complete set of components in that band.
func (m *powerBandMetric) pairs(baseCh station.Channel) [][2]station.Channel {
	var pairs [][2]station.Channel
	if !m.data.HasChannels(baseCh.Location, baseCh.Code) {
		return nil
	}

	for _, ch := range m.data.Metadata().RotatableChannels() {
		if !strings.HasPrefix(ch.Code, baseCh.Code) || ch.Location == baseCh.Location {
			continue
		}
		if !m.data.HasChannels(ch.Location, baseCh.Code) {
			continue
		}
		pairs = append(pairs, [2]station.Channel{station.NewChannel(baseCh.Location, ch.Code), ch})
	}
	return pairs
}

// process runs the band average over every pair, storing one value per pair.
// Failures are confined to their pair.
func (m *powerBandMetric) process(ctx context.Context, name string, transform spectralTransform) error {
	logger, err := m.begin(name)
	if err != nil {
		return err
	}
	m.incomplete, m.unchanged = 0, 0

	baseCh, err := m.baseChannel(logger)
	if err != nil {
		return fmt.Errorf("parsing base channel: %w", err)
	}

	var p *plot.Plot
	if m.makePlots {
		p = m.newPlot()
	}

	for _, pair := range m.pairs(baseCh) {
		if err = ctx.Err(); err != nil {
			return err
		}

		x, y := pair[0], pair[1]
		pairLogger := logger.With(slog.String("channels", ResultID(x, y)))

		runsX, runsY := m.data.ChannelData(x), m.data.ChannelData(y)
		if len(runsX) == 0 || len(runsY) == 0 {
			pairLogger.Warn("channel data absent, skipping pair")
			m.incomplete++
			continue
		}
		if rateX, rateY := runsX[0].SampleRate, runsY[0].SampleRate; rateX != rateY {
			pairLogger.Info(fmt.Sprintf("sample rates differ: %v != %v, skipping pair", rateX, rateY))
			m.incomplete++
			continue
		}

		sum, changed, err := m.data.ValueDigestChanged(ctx, name, m.version, station.NewChannelArray(x, y), m.forceUpdate)
		if err != nil {
			pairLogger.Warn(fmt.Sprintf("computing digest: %s", err.Error()))
			m.incomplete++
			continue
		}
		if !changed {
			pairLogger.Info("digest unchanged, skipping pair")
			m.unchanged++
			continue
		}

		value, per, valPer, err := m.computePair(x, y, transform)
		if err != nil {
			pairLogger.Error(fmt.Sprintf("computing %s: %s", name, err.Error()))
			continue
		}

		m.result.AddResult(ResultID(x, y), value, sum)
		if p != nil {
			p.AddTrace(plotPanel(y), plot.Trace{Label: ResultID(x, y), X: per, Y: valPer})
		}
	}

	if p != nil && m.incomplete == 0 && m.unchanged == 0 && !p.Empty() {
		m.writePlot(logger, p)
	}
	return nil
}

// computePair returns the band average of the transformed spectra of x and y
// along with the full period domain trace.
func (m *powerBandMetric) computePair(x, y station.Channel, transform spectralTransform) (float64, []float64, []float64, error) {
	gxx, err := m.cache.Get(x, x)
	if err != nil {
		return 0, nil, nil, err
	}
	gyy, err := m.cache.Get(y, y)
	if err != nil {
		return 0, nil, nil, err
	}
	gxy, err := m.cache.Get(x, y)
	if err != nil {
		return 0, nil, nil, err
	}

	if gxx.DeltaF != gyy.DeltaF {
		return 0, nil, nil, fmt.Errorf("%w: df %v != %v", ErrInconsistentSpectra, gxx.DeltaF, gyy.DeltaF)
	}
	if gxx.Len() != gyy.Len() || gxx.Len() != gxy.Len() {
		return 0, nil, nil, fmt.Errorf("%w: lengths %d, %d, %d", ErrInconsistentSpectra, gxx.Len(), gyy.Len(), gxy.Len())
	}
	if gxx.Len() < 2 {
		return 0, nil, nil, fmt.Errorf("%w: %d bins", ErrEmptyBand, gxx.Len())
	}

	per, valPer := toPeriod(transform(gxx.Spectrum, gyy.Spectrum, gxy.Spectrum), gxx.DeltaF)
	value, err := bandAverage(per, valPer, m.band)
	if err != nil {
		return 0, nil, nil, err
	}
	return value, per, valPer, nil
}

func (m *powerBandMetric) newPlot() *plot.Plot {
	day := m.data.Day()
	p := plot.New(
		fmt.Sprintf("%04d%03d [ %s ] %s", day.Year(), day.YearDay(), m.data.Station(), m.plotAs),
		"Z", "N / 1", "E / 2",
	)
	p.XLabel = "Period"
	p.LogX = true
	return p
}

func (m *powerBandMetric) writePlot(logger *slog.Logger, p *plot.Plot) {
	if m.opts.Renderer == nil || m.opts.PlotDir == "" {
		logger.Warn("plots requested but no plot directory configured")
		return
	}

	day := m.data.Day()
	path := filepath.Join(m.opts.PlotDir, fmt.Sprintf("%04d%03d.%s.%s.png",
		day.Year(), day.YearDay(), m.data.Station(), strings.ToLower(m.plotAs)))

	if err := m.opts.Renderer.WritePNG(path, p); err != nil {
		logger.Error(fmt.Sprintf("writing plot: %s", err.Error()), slog.String("path", path))
		return
	}
	logger.Debug("plot written", slog.String("path", path))
}

// plotPanel places a channel on the panel of its component
func plotPanel(ch station.Channel) int {
	switch ch.Orientation() {
	case 'N', '1':
		return 1
	case 'E', '2':
		return 2
	default:
		return 0
	}
}
