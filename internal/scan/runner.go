package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/roman-kulish/seedscan/internal/station"
)

// ErrStationLocked is reported for a station another process is scanning.
var ErrStationLocked = errors.New("station is locked by another process")

// ScannerFactory creates the scanner of one station. Every station gets its
// own scanner, and with it its own resolver state, splitter and caches.
type ScannerFactory func(st station.Station, logger *slog.Logger) (*Scanner, error)

// WithWorkers sets how many stations are scanned at once
func WithWorkers(n int) func(*Runner) {
	return func(r *Runner) {
		r.workers = n
	}
}

// WithLockDir sets the directory of the per-station lock files
func WithLockDir(dir string) func(*Runner) {
	return func(r *Runner) {
		r.lockDir = dir
	}
}

// WithRunID sets the identifier of the run, a random UUID by default
func WithRunID(id string) func(*Runner) {
	return func(r *Runner) {
		r.runID = id
	}
}

// WithRunnerLogger sets the logger for the runner
func WithRunnerLogger(logger *slog.Logger) func(*Runner) {
	return func(r *Runner) {
		r.logger = logger
	}
}

// Runner scans several stations concurrently on a fixed-size worker pool.
type Runner struct {
	config     *ScanConfig
	newScanner ScannerFactory
	workers    int
	lockDir    string
	runID      string
	logger     *slog.Logger

	mu    sync.Mutex
	stats []Stats
}

// NewRunner creates a Runner.
func NewRunner(config *ScanConfig, factory ScannerFactory, options ...func(*Runner)) *Runner {
	r := Runner{
		config:     config,
		newScanner: factory,
		workers:    runtime.GOMAXPROCS(0),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&r)
	}

	if r.workers <= 0 {
		r.workers = 1
	}
	if r.runID == "" {
		r.runID = uuid.NewString()
	}
	r.logger = r.logger.With(slog.String("run", r.runID))

	return &r
}

// RunID returns the identifier of the run.
func (r *Runner) RunID() string {
	return r.runID
}

// Run scans the stations accepted by the configuration filters and blocks
// until all of them are done. A failing station does not stop the others;
// only cancellation is returned as an error.
func (r *Runner) Run(ctx context.Context, stations []station.Station) error {
	if r.lockDir != "" {
		if err := os.MkdirAll(r.lockDir, 0o755); err != nil {
			return fmt.Errorf("creating lock directory: %w", err)
		}
	}

	var accepted []station.Station
	for _, st := range stations {
		if !r.config.AcceptsStation(st) {
			r.logger.Debug("station filtered out", slog.String("station", st.String()))
			continue
		}
		if !slices.Contains(accepted, st) {
			accepted = append(accepted, st)
		}
	}

	r.logger.Info(fmt.Sprintf("scanning %d stations with %d workers", len(accepted), r.workers))

	tasks := make(chan station.Station, r.workers*2)

	var wg sync.WaitGroup
	wg.Add(r.workers)
	for i := 0; i < r.workers; i++ {
		go func() {
			defer wg.Done()
			for st := range tasks {
				r.record(r.scanStation(ctx, st))
			}
		}()
	}

	for _, st := range accepted {
		if ctx.Err() != nil {
			break
		}
		tasks <- st
	}
	close(tasks)
	wg.Wait()

	return ctx.Err()
}

func (r *Runner) scanStation(ctx context.Context, st station.Station) (stats Stats) {
	logger := r.logger.With(slog.String("station", st.String()))
	stats.Station = st

	defer func() {
		if rec := recover(); rec != nil {
			stats.Err = fmt.Errorf("scanner panicked: %v", rec)
			logger.Error(stats.Err.Error())
		}
	}()

	if ctx.Err() != nil {
		stats.Err = ctx.Err()
		return
	}

	if r.lockDir != "" {
		lock := flock.New(filepath.Join(r.lockDir, st.String()+".lock"))
		locked, err := lock.TryLock()
		if err != nil {
			stats.Err = fmt.Errorf("acquiring lock: %w", err)
			logger.Error(stats.Err.Error())
			return
		}
		if !locked {
			stats.Err = ErrStationLocked
			logger.Warn("skipping station, it is being scanned by another process")
			return
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				logger.Warn(fmt.Sprintf("releasing lock: %s", err.Error()))
			}
		}()
	}

	scanner, err := r.newScanner(st, logger)
	if err != nil {
		stats.Err = fmt.Errorf("creating scanner: %w", err)
		logger.Error(stats.Err.Error())
		return
	}

	stats, _ = scanner.Scan(ctx)
	logger.Info(fmt.Sprintf("station done in %s", stats.Duration.Round(time.Millisecond)),
		slog.Int("days", stats.DaysScanned),
		slog.Int("values", stats.Injected))

	return stats
}

func (r *Runner) record(stats Stats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = append(r.stats, stats)
}

// Stats returns the statistics of the scanned stations, sorted by station.
func (r *Runner) Stats() []Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := slices.Clone(r.stats)
	slices.SortFunc(stats, func(a, b Stats) int {
		return strings.Compare(a.Station.String(), b.Station.String())
	})
	return stats
}

// WriteSummary writes a table of the per-station statistics to w.
func (r *Runner) WriteSummary(w io.Writer) error {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle("run " + r.runID)

	tw.AppendHeader(table.Row{"Station", "Days", "Skipped", "No data", "Values", "Stored", "Dropped", "Failures", "Decoded", "Time", "Error"})

	var total Stats
	for _, s := range r.Stats() {
		errText := ""
		if s.Err != nil {
			errText = s.Err.Error()
		}
		tw.AppendRow(table.Row{
			s.Station.String(),
			s.DaysScanned,
			s.DaysSkipped,
			s.DaysWithoutData,
			s.Results,
			s.Injected,
			s.Dropped,
			s.MetricFailures,
			humanize.Bytes(uint64(s.BytesDecoded)),
			s.Duration.Round(time.Millisecond).String(),
			errText,
		})

		total.DaysScanned += s.DaysScanned
		total.DaysSkipped += s.DaysSkipped
		total.DaysWithoutData += s.DaysWithoutData
		total.Results += s.Results
		total.Injected += s.Injected
		total.Dropped += s.Dropped
		total.MetricFailures += s.MetricFailures
		total.BytesDecoded += s.BytesDecoded
	}

	tw.AppendFooter(table.Row{
		"Total",
		total.DaysScanned,
		total.DaysSkipped,
		total.DaysWithoutData,
		total.Results,
		total.Injected,
		total.Dropped,
		total.MetricFailures,
		humanize.Bytes(uint64(total.BytesDecoded)),
		"",
		strconv.Itoa(len(r.Stats())) + " stations",
	})

	configs := make([]table.ColumnConfig, 0, 8)
	for n := 2; n <= 9; n++ {
		configs = append(configs, table.ColumnConfig{Number: n, Align: text.AlignRight})
	}
	tw.SetColumnConfigs(configs)

	_, err := fmt.Fprintln(w, tw.Render())
	return err
}
