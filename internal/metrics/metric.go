// Package metrics computes daily quality metrics of a station from its
// decoded data and metadata.
package metrics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/roman-kulish/seedscan/internal/plot"
	"github.com/roman-kulish/seedscan/internal/timeseries"
)

// Metric is one computation over a station day. A fresh instance is created
// for every day; Process may be called once.
type Metric interface {
	// Name identifies the stored values, e.g. "DifferencePBM:90-110"
	Name() string

	// BaseName is the metric type, e.g. "DifferencePBM"
	BaseName() string

	// Version is bumped whenever the formula changes, so values stored by an
	// older version count as changed
	Version() int

	SetData(data *MetricData)
	SetNextData(data *MetricData)

	SetCrossPowerCache(cache *CrossPowerCache)
	CrossPowerCache() *CrossPowerCache

	Process(ctx context.Context) error
	Result() *MetricResult
}

// Options are shared by every metric created by New
type Options struct {
	Logger   *slog.Logger
	PlotDir  string
	Renderer *plot.Renderer
	Spectrum timeseries.SpectrumFunc
}

// WithLogger sets the logger for the metric
func WithLogger(logger *slog.Logger) func(*Options) {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithPlots sets where metrics configured with makeplots write their images
func WithPlots(dir string, renderer *plot.Renderer) func(*Options) {
	return func(o *Options) {
		o.PlotDir = dir
		o.Renderer = renderer
	}
}

// WithSpectrumFunc replaces the cross-power computation of caches the metric creates
func WithSpectrumFunc(fn timeseries.SpectrumFunc) func(*Options) {
	return func(o *Options) {
		o.Spectrum = fn
	}
}

func newOptions(options ...func(*Options)) Options {
	o := Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(&o)
	}
	return o
}

var errNoData = errors.New("metric has no data")

// base holds the state shared by all metric variants
type base struct {
	baseName string
	version  int
	args     *Arguments
	opts     Options

	data   *MetricData
	next   *MetricData
	cache  *CrossPowerCache
	result *MetricResult

	forceUpdate bool
	makePlots   bool
}

func newBase(baseName string, version int, args *Arguments, opts Options) (base, error) {
	b := base{baseName: baseName, version: version, args: args, opts: opts}

	var err error
	if b.forceUpdate, err = args.Bool(argForceUpdate); err != nil {
		return b, err
	}
	if b.makePlots, err = args.Bool(argMakePlots); err != nil {
		return b, err
	}
	return b, nil
}

func (b *base) BaseName() string {
	return b.baseName
}

func (b *base) Name() string {
	return b.baseName
}

func (b *base) Version() int {
	return b.version
}

func (b *base) SetData(data *MetricData) {
	b.data = data
}

func (b *base) SetNextData(data *MetricData) {
	b.next = data
}

func (b *base) SetCrossPowerCache(cache *CrossPowerCache) {
	b.cache = cache
}

func (b *base) CrossPowerCache() *CrossPowerCache {
	return b.cache
}

func (b *base) Result() *MetricResult {
	return b.result
}

// Arguments returns the configured arguments of the metric.
func (b *base) Arguments() *Arguments {
	return b.args
}

// begin prepares a run of the metric named name: it creates the result and
// makes sure the cross-power cache belongs to the current day.
func (b *base) begin(name string) (*slog.Logger, error) {
	if b.data == nil {
		return nil, errNoData
	}

	b.result = NewMetricResult(name, b.version, b.data.Station(), b.data.Day())
	if b.cache == nil || b.cache.Data() != b.data {
		b.cache = NewCrossPowerCache(b.data, b.opts.Spectrum)
	}

	return b.opts.Logger.With(
		slog.String("station", b.data.Station().String()),
		slog.String("day", b.data.Day().Format(time.DateOnly)),
		slog.String("metric", name),
	), nil
}
