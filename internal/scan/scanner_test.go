package scan

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/roman-kulish/seedscan/internal/digest"
	"github.com/roman-kulish/seedscan/internal/metrics"
	"github.com/roman-kulish/seedscan/internal/progress"
	"github.com/roman-kulish/seedscan/internal/seed"
	"github.com/roman-kulish/seedscan/internal/station"
)

var (
	testStation = station.New("IU", "ANMO")
	testNow     = time.Date(2024, time.March, 10, 15, 30, 0, 0, time.UTC)
	lhz         = station.NewChannel("00", "LHZ")
)

func date(month time.Month, day int) time.Time {
	return time.Date(2024, month, day, 0, 0, 0, 0, time.UTC)
}

type fakeResolver struct {
	loadErr error
	days    map[time.Time]*station.StationMeta
}

func newFakeResolver(days ...time.Time) *fakeResolver {
	r := fakeResolver{days: make(map[time.Time]*station.StationMeta)}
	for _, day := range days {
		r.days[day] = station.NewStationMeta(testStation, day, []*station.ChannelMeta{{Channel: lhz, SampleRate: 1}})
	}
	return &r
}

func (r *fakeResolver) Load(station.Station) error {
	return r.loadErr
}

func (r *fakeResolver) Resolve(_ station.Station, day time.Time) (*station.StationMeta, error) {
	return r.days[day], nil
}

// fakeSplitter returns one run of 00-LHZ for every directory it is asked to decode
type fakeSplitter struct {
	mu    sync.Mutex
	calls []string
}

func (s *fakeSplitter) Split(_ context.Context, files []string, queue *progress.FallOffQueue[seed.Progress]) (*seed.Tables, error) {
	s.mu.Lock()
	s.calls = append(s.calls, filepath.Dir(files[0]))
	s.mu.Unlock()

	queue.Add(seed.Progress{File: files[0], FileCount: len(files), Bytes: 512, TotalBytes: 512, Records: 1})

	tables := seed.NewTables()
	tables.Data[seed.Key(testStation, lhz, 1)] = []*seed.SampleRun{seed.NewSampleRun(time.Now(), 1, []float64{1, 2, 3})}
	tables.Data[seed.Key(station.New("IU", "COLA"), lhz, 1)] = []*seed.SampleRun{seed.NewSampleRun(time.Now(), 1, []float64{4})}
	return tables, nil
}

type fakeInjector struct {
	connected bool
	err       error
	results   []*metrics.MetricResult
}

func (i *fakeInjector) IsConnected() bool {
	return i.connected
}

func (i *fakeInjector) Inject(_ context.Context, result *metrics.MetricResult) error {
	if i.err != nil {
		return i.err
	}
	i.results = append(i.results, result)
	return nil
}

// recordingMetric remembers what it was handed
type recordingMetric struct {
	name   string
	fail   bool
	panics bool
	own    bool

	data   *metrics.MetricData
	next   *metrics.MetricData
	given  *metrics.CrossPowerCache
	cache  *metrics.CrossPowerCache
	result *metrics.MetricResult
}

func (m *recordingMetric) Name() string { return m.name }
func (m *recordingMetric) BaseName() string { return m.name }
func (m *recordingMetric) Version() int { return 1 }
func (m *recordingMetric) SetData(data *metrics.MetricData) { m.data = data }
func (m *recordingMetric) SetNextData(data *metrics.MetricData) { m.next = data }
func (m *recordingMetric) SetCrossPowerCache(c *metrics.CrossPowerCache) { m.given, m.cache = c, c }
func (m *recordingMetric) CrossPowerCache() *metrics.CrossPowerCache { return m.cache }
func (m *recordingMetric) Result() *metrics.MetricResult { return m.result }

func (m *recordingMetric) Process(context.Context) error {
	if m.panics {
		panic("index out of range")
	}
	if m.fail {
		return errors.New("inconsistent spectra")
	}
	if m.cache == nil || m.own {
		m.cache = metrics.NewCrossPowerCache(m.data, nil)
	}
	m.result = metrics.NewMetricResult(m.name, 1, m.data.Station(), m.data.Day())
	m.result.AddResult(lhz.String(), 1, []byte(m.name))
	return nil
}

// recordingFactory creates recording metrics and keeps every instance
type recordingFactory struct {
	created []*recordingMetric
}

func (f *recordingFactory) newMetric(spec metrics.Spec, _ ...func(*metrics.Options)) (metrics.Metric, error) {
	m := &recordingMetric{
		name:   spec.Type,
		fail:   spec.Arguments["fail"] == "true",
		panics: spec.Arguments["panic"] == "true",
		own:    spec.Arguments["own"] == "true",
	}
	f.created = append(f.created, m)
	return m, nil
}

func (f *recordingFactory) byName(name string) []*recordingMetric {
	var found []*recordingMetric
	for _, m := range f.created {
		if m.name == name {
			found = append(found, m)
		}
	}
	return found
}

// newTestConfig creates day directories with a non-empty SEED file for days.
func newTestConfig(t *testing.T, days []time.Time, specs ...metrics.Spec) *ScanConfig {
	t.Helper()

	root := t.TempDir()
	config := &ScanConfig{
		PathPattern: filepath.Join(root, "${NETWORK}", "${STATION}", "${YEAR}", "${JDAY}"),
		StartDay:    1,
		DaysToScan:  3,
		Metrics:     specs,
	}

	for _, day := range days {
		dir := BuildPath(config.PathPattern, testStation, day)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("Failed to create day directory: %v", err)
		}
		if err := os.WriteFile(filepath.Join(dir, "IU.ANMO.00.LHZ.seed"), []byte("x"), 0o644); err != nil {
			t.Fatalf("Failed to create data file: %v", err)
		}
	}
	return config
}

func newTestScanner(config *ScanConfig, resolver MetadataResolver, splitter seed.Splitter, injector Injector, options ...func(*Scanner)) *Scanner {
	options = append([]func(*Scanner){
		WithClock(func() time.Time { return testNow }),
		WithProgressInterval(time.Millisecond),
	}, options...)
	return NewScanner(testStation, config, resolver, splitter, injector, options...)
}

func TestScanner_RollingWindow(t *testing.T) {
	days := []time.Time{date(time.March, 10), date(time.March, 9), date(time.March, 8), date(time.March, 7)}
	config := newTestConfig(t, days, metrics.Spec{Type: "Recorder"})
	factory := &recordingFactory{}
	splitter := &fakeSplitter{}

	s := newTestScanner(config, newFakeResolver(days...), splitter, &fakeInjector{connected: true}, WithMetricFactory(factory.newMetric))
	stats, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if len(splitter.calls) != len(days) {
		t.Fatalf("Expected every day to be decoded once, got %d decodes: %v", len(splitter.calls), splitter.calls)
	}

	runs := factory.byName("Recorder")
	if len(runs) != 3 {
		t.Fatalf("Expected 3 metric runs, got %d", len(runs))
	}

	for i, m := range runs {
		if want := days[i+1]; !m.data.Day().Equal(want) {
			t.Errorf("Run %d: expected day %v, got %v", i, want, m.data.Day())
		}
		if m.next == nil {
			t.Fatalf("Run %d: next day data missing", i)
		}
		if i > 0 && m.next != runs[i-1].data {
			t.Errorf("Run %d: next day data should be the data of the previous run", i)
		}
		if keys := m.data.Keys(); len(keys) != 1 {
			t.Errorf("Run %d: other stations should be filtered out, got %v", i, keys)
		}
	}

	if stats.DaysScanned != 3 || stats.Injected != 3 || stats.BytesDecoded == 0 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

func TestScanner_SkippedDayRebuildsNext(t *testing.T) {
	days := []time.Time{date(time.March, 10), date(time.March, 9), date(time.March, 8), date(time.March, 7)}
	config := newTestConfig(t, days, metrics.Spec{Type: "Recorder"})
	factory := &recordingFactory{}
	splitter := &fakeSplitter{}

	// no metadata for March 8
	resolver := newFakeResolver(days[0], days[1], days[3])

	s := newTestScanner(config, resolver, splitter, &fakeInjector{connected: true}, WithMetricFactory(factory.newMetric))
	stats, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	runs := factory.byName("Recorder")
	if len(runs) != 2 {
		t.Fatalf("Expected 2 metric runs, got %d", len(runs))
	}
	if last := runs[1]; !last.data.Day().Equal(days[3]) || last.next != nil {
		t.Errorf("March 7 should run without next day data, got day %v next %v", last.data.Day(), last.next)
	}
	if stats.DaysSkipped != 1 || stats.DaysScanned != 2 {
		t.Errorf("Unexpected stats %+v", stats)
	}
	if len(splitter.calls) != 3 {
		t.Errorf("Expected 3 decodes, got %v", splitter.calls)
	}
}

func TestScanner_NoDataRunsAvailabilityOnly(t *testing.T) {
	day := date(time.March, 9)
	config := newTestConfig(t, nil,
		metrics.Spec{Type: metrics.TypeAvailability},
		metrics.Spec{Type: metrics.TypeDifference, Arguments: map[string]string{"lower-limit": "90", "upper-limit": "110"}},
	)
	config.DaysToScan = 1

	injector := &fakeInjector{connected: true}
	splitter := &fakeSplitter{}
	s := newTestScanner(config, newFakeResolver(day), splitter, injector)

	stats, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if len(splitter.calls) != 0 {
		t.Errorf("Nothing should be decoded, got %v", splitter.calls)
	}
	if len(injector.results) != 1 {
		t.Fatalf("Expected a single injected result, got %d", len(injector.results))
	}

	result := injector.results[0]
	if result.Metric != metrics.TypeAvailability || !result.Day.Equal(day) {
		t.Errorf("Expected availability for %v, got %s for %v", day, result.Metric, result.Day)
	}
	if v, ok := result.Get("00-LHZ"); !ok || v.Value != 0 {
		t.Errorf("Expected 0%% availability, got %+v (%v)", v, ok)
	}
	if stats.DaysWithoutData != 1 {
		t.Errorf("Expected 1 day without data, got %d", stats.DaysWithoutData)
	}
}

func TestScanner_Injection(t *testing.T) {
	days := []time.Time{date(time.March, 10), date(time.March, 9), date(time.March, 8), date(time.March, 7)}

	tests := []struct {
		name         string
		injector     *fakeInjector
		wantStored   int
		wantDropped  int
		wantCommited int
	}{
		{"connected", &fakeInjector{connected: true}, 3, 0, 3},
		{"not connected", &fakeInjector{connected: false}, 0, 3, 0},
		{"interrupted", &fakeInjector{connected: true, err: errors.New("injection interrupted")}, 0, 3, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := newTestConfig(t, days, metrics.Spec{Type: "Recorder"})
			factory := &recordingFactory{}
			cache := digest.NewCache()

			s := newTestScanner(config, newFakeResolver(days...), &fakeSplitter{}, tt.injector,
				WithMetricFactory(factory.newMetric),
				WithDigestCache(cache))

			stats, err := s.Scan(context.Background())
			if err != nil {
				t.Fatalf("Scan failed: %v", err)
			}

			if len(tt.injector.results) != tt.wantStored || stats.Injected != tt.wantStored {
				t.Errorf("Expected %d stored, got %d (stats %d)", tt.wantStored, len(tt.injector.results), stats.Injected)
			}
			if stats.Dropped != tt.wantDropped {
				t.Errorf("Expected %d dropped, got %d", tt.wantDropped, stats.Dropped)
			}
			if cache.Len() != tt.wantCommited {
				t.Errorf("Expected %d committed digests, got %d", tt.wantCommited, cache.Len())
			}
		})
	}
}

func TestScanner_MetricIsolation(t *testing.T) {
	days := []time.Time{date(time.March, 10), date(time.March, 9), date(time.March, 8), date(time.March, 7)}
	config := newTestConfig(t, days,
		metrics.Spec{Type: "Panics", Arguments: map[string]string{"panic": "true"}},
		metrics.Spec{Type: "Fails", Arguments: map[string]string{"fail": "true"}},
		metrics.Spec{Type: "First"},
		metrics.Spec{Type: "Second"},
	)
	factory := &recordingFactory{}
	injector := &fakeInjector{connected: true}

	s := newTestScanner(config, newFakeResolver(days...), &fakeSplitter{}, injector, WithMetricFactory(factory.newMetric))
	stats, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if stats.MetricFailures != 6 {
		t.Errorf("Expected 6 metric failures, got %d", stats.MetricFailures)
	}
	if len(injector.results) != 6 {
		t.Errorf("Expected 6 injected results, got %d", len(injector.results))
	}

	// one cache per day, handed from metric to metric in declared order
	first, second := factory.byName("First"), factory.byName("Second")
	for i := range first {
		if first[i].given != nil {
			t.Errorf("Day %d: first successful metric should start without a cache", i)
		}
		if second[i].given == nil || second[i].given != first[i].cache {
			t.Errorf("Day %d: second metric should receive the cache of the first", i)
		}
		if i > 0 && first[i].cache == first[i-1].cache {
			t.Errorf("Day %d: cache should not outlive its day", i)
		}
	}
}

func TestScanner_CacheHandOff(t *testing.T) {
	days := []time.Time{date(time.March, 10), date(time.March, 9)}
	config := newTestConfig(t, days,
		metrics.Spec{Type: "First"},
		metrics.Spec{Type: "Own", Arguments: map[string]string{"own": "true"}},
		metrics.Spec{Type: "Second"},
	)
	factory := &recordingFactory{}

	s := newTestScanner(config, newFakeResolver(days...), &fakeSplitter{}, &fakeInjector{connected: true}, WithMetricFactory(factory.newMetric))
	if _, err := s.Scan(context.Background()); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	first, own, second := factory.byName("First"), factory.byName("Own"), factory.byName("Second")
	for i := range own {
		if own[i].given != first[i].cache {
			t.Errorf("Day %d: own cache metric should be given the cache of the first", i)
		}
		if own[i].cache == first[i].cache {
			t.Errorf("Day %d: own cache metric should end with a separate cache", i)
		}
		if second[i].given != own[i].cache {
			t.Errorf("Day %d: the separate cache of the same day should take over", i)
		}
	}
}

func TestScanner_ProgressInterval(t *testing.T) {
	days := []time.Time{date(time.March, 10), date(time.March, 9)}
	config := newTestConfig(t, days, metrics.Spec{Type: "Recorder"})

	tests := []struct {
		name     string
		interval time.Duration
		want     time.Duration
	}{
		{"zero", 0, progressInterval},
		{"negative", -time.Second, progressInterval},
		{"positive", time.Millisecond, time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factory := &recordingFactory{}
			s := newTestScanner(config, newFakeResolver(days...), &fakeSplitter{}, &fakeInjector{connected: true},
				WithMetricFactory(factory.newMetric), WithProgressInterval(tt.interval))
			if s.progressInterval != tt.want {
				t.Fatalf("Expected interval %v, got %v", tt.want, s.progressInterval)
			}
			if _, err := s.Scan(context.Background()); err != nil {
				t.Fatalf("Scan failed: %v", err)
			}
		})
	}
}

func TestScanner_StationMetadataAbsent(t *testing.T) {
	config := newTestConfig(t, nil, metrics.Spec{Type: "Recorder"})
	resolver := newFakeResolver()
	resolver.loadErr = os.ErrNotExist

	s := newTestScanner(config, resolver, &fakeSplitter{}, &fakeInjector{connected: true})
	stats, err := s.Scan(context.Background())
	if !errors.Is(err, ErrStationMetadataAbsent) || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Expected ErrStationMetadataAbsent, got %v", err)
	}
	if stats.DaysScanned != 0 {
		t.Errorf("No day should be scanned, got %d", stats.DaysScanned)
	}
}

func TestScanner_Cancelled(t *testing.T) {
	days := []time.Time{date(time.March, 10), date(time.March, 9)}
	config := newTestConfig(t, days, metrics.Spec{Type: "Recorder"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := newTestScanner(config, newFakeResolver(days...), &fakeSplitter{}, &fakeInjector{connected: true})
	if _, err := s.Scan(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
