package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/seedscan/internal/digest"
	"github.com/roman-kulish/seedscan/internal/metrics"
	"github.com/roman-kulish/seedscan/internal/progress"
	"github.com/roman-kulish/seedscan/internal/seed"
	"github.com/roman-kulish/seedscan/internal/station"
)

const (
	progressQueueSize = 64
	progressInterval  = 2 * time.Second
)

var (
	// ErrStationMetadataAbsent is returned when the inventory of a station
	// cannot be loaded at all. The station is abandoned.
	ErrStationMetadataAbsent = errors.New("station metadata absent")

	// ErrMetricPanicked wraps a panic recovered from a metric.
	ErrMetricPanicked = errors.New("metric panicked")
)

// MetadataResolver provides the metadata of a station per day. Resolve
// returns nil and no error when the station had no channels that day.
type MetadataResolver interface {
	Load(st station.Station) error
	Resolve(st station.Station, day time.Time) (*station.StationMeta, error)
}

// Injector stores metric results.
type Injector interface {
	IsConnected() bool
	Inject(ctx context.Context, result *metrics.MetricResult) error
}

// MetricFactory creates a metric from its configuration.
type MetricFactory func(spec metrics.Spec, options ...func(*metrics.Options)) (metrics.Metric, error)

// Stats counts what a scan of one station did.
type Stats struct {
	Station         station.Station
	DaysScanned     int
	DaysSkipped     int // no metadata, or it could not be resolved
	DaysWithoutData int
	Results         int // values produced
	Injected        int // values stored
	Dropped         int // values produced but not stored
	MetricFailures  int
	BytesDecoded    int64
	Duration        time.Duration
	Err             error
}

// WithLogger sets the logger for the scanner
func WithLogger(logger *slog.Logger) func(*Scanner) {
	return func(s *Scanner) {
		s.logger = logger
	}
}

// WithDigestCache sets the digest cache shared by the metrics of the station
func WithDigestCache(cache *digest.Cache) func(*Scanner) {
	return func(s *Scanner) {
		s.digests = cache
	}
}

// WithMetricOptions sets the options every metric is created with
func WithMetricOptions(options ...func(*metrics.Options)) func(*Scanner) {
	return func(s *Scanner) {
		s.metricOptions = options
	}
}

// WithMetricFactory replaces metrics.New as the metric constructor
func WithMetricFactory(factory MetricFactory) func(*Scanner) {
	return func(s *Scanner) {
		s.newMetric = factory
	}
}

// WithClock sets the source of the current time the scanned days are anchored to
func WithClock(now func() time.Time) func(*Scanner) {
	return func(s *Scanner) {
		s.now = now
	}
}

// WithProgressInterval sets how often decoding progress is logged
func WithProgressInterval(interval time.Duration) func(*Scanner) {
	return func(s *Scanner) {
		s.progressInterval = interval
	}
}

// Scanner computes the metrics of one station over the configured days.
// A Scanner is not safe for concurrent use; run one per station.
type Scanner struct {
	station  station.Station
	config   *ScanConfig
	resolver MetadataResolver
	splitter seed.Splitter
	injector Injector

	digests          *digest.Cache
	queue            *progress.FallOffQueue[seed.Progress]
	logger           *slog.Logger
	metricOptions    []func(*metrics.Options)
	newMetric        MetricFactory
	now              func() time.Time
	progressInterval time.Duration

	stats Stats
}

// dataset is the decoded data of one day. A nil data means the day has no
// usable raw files, or no metadata.
type dataset struct {
	day  time.Time
	data *metrics.MetricData
}

// NewScanner creates a Scanner for the station.
func NewScanner(st station.Station, config *ScanConfig, resolver MetadataResolver, splitter seed.Splitter, injector Injector, options ...func(*Scanner)) *Scanner {
	queue, _ := progress.NewFallOffQueue[seed.Progress](progressQueueSize)

	s := Scanner{
		station:          st,
		config:           config,
		resolver:         resolver,
		splitter:         splitter,
		injector:         injector,
		queue:            queue,
		logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
		newMetric:        metrics.New,
		now:              time.Now,
		progressInterval: progressInterval,
	}

	for _, option := range options {
		option(&s)
	}

	if s.progressInterval <= 0 {
		s.progressInterval = progressInterval
	}
	if s.digests == nil {
		s.digests = digest.NewCache(digest.WithLogger(s.logger))
	}
	s.logger = s.logger.With(slog.String("station", st.String()))

	return &s
}

// Scan runs the configured metrics for every configured day, most recent day
// first. Failures of a day or a metric are logged and do not stop the scan;
// only an unloadable station inventory or cancellation end it early.
func (s *Scanner) Scan(ctx context.Context) (Stats, error) {
	started := time.Now()
	s.stats = Stats{Station: s.station}

	defer func() {
		s.stats.Duration = time.Since(started)
	}()

	if err := s.resolver.Load(s.station); err != nil {
		s.stats.Err = fmt.Errorf("%w: %s: %w", ErrStationMetadataAbsent, s.station, err)
		s.logger.Error(fmt.Sprintf("abandoning station: %s", err.Error()))
		return s.stats, s.stats.Err
	}

	anchor := midnightUTC(s.now()).AddDate(0, 0, -s.config.StartDay)

	// carried is the current dataset of the previous iteration, i.e. the day
	// after the one being scanned
	var carried *dataset

	for i := 0; i < s.config.DaysToScan; i++ {
		if err := ctx.Err(); err != nil {
			s.stats.Err = err
			return s.stats, err
		}

		day := anchor.AddDate(0, 0, -i)
		next := carried
		carried = nil

		current, err := s.scanDay(ctx, day, next)
		if err != nil {
			if ctx.Err() != nil {
				s.stats.Err = ctx.Err()
				return s.stats, s.stats.Err
			}
			s.logger.Warn(fmt.Sprintf("skipping day: %s", err.Error()), slog.String("day", day.Format(time.DateOnly)))
			s.stats.DaysSkipped++
			continue
		}

		carried = current
	}

	return s.stats, nil
}

// scanDay processes one day. next is the dataset of the following day when the
// previous iteration produced one; ownership passes to this day. It returns
// the dataset of the day so that the following iteration can take it over.
func (s *Scanner) scanDay(ctx context.Context, day time.Time, next *dataset) (*dataset, error) {
	logger := s.logger.With(slog.String("day", day.Format(time.DateOnly)))

	meta, err := s.resolver.Resolve(s.station, day)
	if err != nil {
		return nil, fmt.Errorf("resolving metadata: %w", err)
	}
	if meta == nil {
		logger.Info("no metadata, skipping day")
		s.stats.DaysSkipped++
		return nil, nil
	}

	nextDay := day.AddDate(0, 0, 1)
	if next == nil || !next.day.Equal(nextDay) {
		if next, err = s.buildNext(ctx, nextDay); err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			logger.Warn(fmt.Sprintf("next day data unavailable: %s", err.Error()))
			next = &dataset{day: nextDay}
		}
	}

	current, err := s.buildDataset(ctx, day, meta, logger)
	if err != nil {
		return nil, fmt.Errorf("building dataset: %w", err)
	}

	s.stats.DaysScanned++

	if current.data == nil {
		logger.Info("no data, running metadata only metrics")
		s.stats.DaysWithoutData++
		s.runMetrics(ctx, metrics.NewMetadataOnly(meta, s.digests), nil, true, logger)
		return current, nil
	}

	s.runMetrics(ctx, current.data, next.data, false, logger)
	return current, nil
}

// buildNext builds the dataset of the day after the scanned one.
func (s *Scanner) buildNext(ctx context.Context, day time.Time) (*dataset, error) {
	meta, err := s.resolver.Resolve(s.station, day)
	if err != nil {
		return nil, fmt.Errorf("resolving metadata: %w", err)
	}
	if meta == nil {
		return &dataset{day: day}, nil
	}
	return s.buildDataset(ctx, day, meta, s.logger.With(slog.String("day", day.Format(time.DateOnly))))
}

// buildDataset decodes the raw files of the day. A day without raw files is
// not an error; its dataset holds no data.
func (s *Scanner) buildDataset(ctx context.Context, day time.Time, meta *station.StationMeta, logger *slog.Logger) (*dataset, error) {
	ds := dataset{day: day}

	dir := BuildPath(s.config.PathPattern, s.station, day)
	files, err := seed.ListFiles(dir)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Debug("no data directory", slog.String("path", dir))
		return &ds, nil
	}
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		logger.Debug("no data files", slog.String("path", dir))
		return &ds, nil
	}

	s.queue.Clear()
	stop := s.reportProgress(logger)
	tables, err := s.splitter.Split(ctx, files, s.queue)
	if last, ok := stop(); ok {
		s.stats.BytesDecoded += last.Bytes
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %d files: %w", len(files), err)
	}

	tables.Retain(func(st station.Station, ch station.Channel) bool {
		return st == s.station && s.config.AcceptsChannel(ch)
	})
	if tables.Empty() {
		logger.Info("no usable data in files", slog.String("path", dir))
		return &ds, nil
	}

	ds.data = metrics.NewMetricData(meta, tables, s.digests)
	return &ds, nil
}

// reportProgress logs the decoding progress until the returned function is
// called. That function returns the last progress seen.
func (s *Scanner) reportProgress(logger *slog.Logger) func() (seed.Progress, bool) {
	var (
		wg   sync.WaitGroup
		last seed.Progress
		seen bool
	)

	drain := func() {
		updates := s.queue.Drain()
		if len(updates) == 0 {
			return
		}
		last, seen = updates[len(updates)-1], true
		logger.Debug(fmt.Sprintf("decoded %s of %s", humanize.Bytes(uint64(last.Bytes)), humanize.Bytes(uint64(last.TotalBytes))),
			slog.String("file", last.File),
			slog.Int("files", last.FileIndex+1),
			slog.Int("total_files", last.FileCount),
			slog.Int("records", last.Records))
	}

	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()

		ticker := time.NewTicker(s.progressInterval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				drain()
				return
			case <-ticker.C:
				drain()
			}
		}
	}()

	return func() (seed.Progress, bool) {
		close(done)
		wg.Wait()
		return last, seen
	}
}

// runMetrics runs the configured metrics in declared order, threading one
// cross-power cache through them. With metadataOnly set, only the metrics
// defined for days without data run.
func (s *Scanner) runMetrics(ctx context.Context, data, next *metrics.MetricData, metadataOnly bool, logger *slog.Logger) {
	var cache *metrics.CrossPowerCache

	for _, spec := range s.config.Metrics {
		if ctx.Err() != nil {
			return
		}

		m, err := s.newMetric(spec, s.metricOptions...)
		if err != nil {
			logger.Error(fmt.Sprintf("creating metric: %s", err.Error()), slog.String("metric", spec.Type))
			s.stats.MetricFailures++
			continue
		}
		if metadataOnly && !metrics.SupportsMetadataOnly(m) {
			continue
		}

		mLogger := logger.With(slog.String("metric", m.Name()))

		m.SetData(data)
		m.SetNextData(next)
		m.SetCrossPowerCache(cache)

		err = process(ctx, m)
		cache = metrics.HandOffCrossPowerCache(data, cache, m.CrossPowerCache())

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			mLogger.Error(fmt.Sprintf("processing metric: %s", err.Error()))
			s.stats.MetricFailures++
			continue
		}

		s.forward(ctx, m.Result(), mLogger)
	}
}

// process runs the metric, turning a panic into an error.
func process(ctx context.Context, m metrics.Metric) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrMetricPanicked, r)
		}
	}()

	return m.Process(ctx)
}

// forward hands a non-empty result to the injector and, once stored, commits
// the digests of its values.
func (s *Scanner) forward(ctx context.Context, result *metrics.MetricResult, logger *slog.Logger) {
	if result.Empty() {
		logger.Debug("no results")
		return
	}

	n := result.Len()
	s.stats.Results += n

	if s.injector == nil || !s.injector.IsConnected() {
		logger.Warn("injector not connected, dropping results", slog.Int("values", n))
		s.stats.Dropped += n
		return
	}

	if err := s.injector.Inject(ctx, result); err != nil {
		logger.Error(fmt.Sprintf("injecting results: %s", err.Error()), slog.Int("values", n))
		s.stats.Dropped += n
		return
	}

	for _, id := range result.IDs() {
		v, _ := result.Get(id)
		s.digests.Commit(result.DigestKey(id), v.Digest)
	}
	s.stats.Injected += n

	logger.Info(fmt.Sprintf("stored %d values", n))
}

func midnightUTC(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}
