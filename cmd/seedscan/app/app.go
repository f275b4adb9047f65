package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/roman-kulish/seedscan/internal/digest"
	"github.com/roman-kulish/seedscan/internal/metadata"
	"github.com/roman-kulish/seedscan/internal/metrics"
	"github.com/roman-kulish/seedscan/internal/plot"
	"github.com/roman-kulish/seedscan/internal/scan"
	"github.com/roman-kulish/seedscan/internal/seed"
	"github.com/roman-kulish/seedscan/internal/station"
	"github.com/roman-kulish/seedscan/internal/storage"
)

// Run scans the configured stations and writes the run summary to out.
func Run(ctx context.Context, config *Config, logger *slog.Logger, out io.Writer) error {
	runID := uuid.NewString()

	store, err := openStore(ctx, config, runID, logger)
	if err != nil {
		return err
	}
	if store != nil {
		defer func() {
			if err := store.Close(); err != nil {
				logger.Warn(fmt.Sprintf("closing storage: %s", err.Error()))
			}
		}()
	}

	metricOptions := []func(*metrics.Options){metrics.WithLogger(logger)}
	if config.Plots.Directory != "" {
		renderer, err := plot.NewRenderer(plot.RenderConfig{})
		if err != nil {
			return fmt.Errorf("creating plot renderer: %w", err)
		}
		metricOptions = append(metricOptions, metrics.WithPlots(config.Plots.Directory, renderer))
	}

	factory := newScannerFactory(config, store, metricOptions)

	runner := scan.NewRunner(&config.Scan, factory,
		scan.WithWorkers(config.Settings.Workers),
		scan.WithLockDir(config.Settings.LockDirectory),
		scan.WithRunID(runID),
		scan.WithRunnerLogger(logger))

	err = runner.Run(ctx, config.Stations)
	if sErr := runner.WriteSummary(out); sErr != nil {
		logger.Warn(fmt.Sprintf("writing summary: %s", sErr.Error()))
	}
	if err != nil {
		return fmt.Errorf("scanning stations: %w", err)
	}
	return nil
}

// newScannerFactory creates scanners sharing only the store; resolver,
// splitter and caches are per station.
func newScannerFactory(config *Config, store storage.Store, metricOptions []func(*metrics.Options)) scan.ScannerFactory {
	return func(st station.Station, logger *slog.Logger) (*scan.Scanner, error) {
		inventory := metadata.NewInventory(config.Metadata.Directory, metadata.WithLogger(logger))
		splitter := seed.NewMiniSeedSplitter(seed.WithLogger(logger))

		cacheOptions := []func(*digest.Cache){digest.WithLogger(logger)}
		var injector scan.Injector
		if store != nil {
			cacheOptions = append(cacheOptions, digest.WithSource(store))
			injector = store
		}

		return scan.NewScanner(st, &config.Scan, inventory, splitter, injector,
			scan.WithLogger(logger),
			scan.WithDigestCache(digest.NewCache(cacheOptions...)),
			scan.WithMetricOptions(metricOptions...)), nil
	}
}

func openStore(ctx context.Context, config *Config, runID string, logger *slog.Logger) (storage.Store, error) {
	if config.Database.URL == "" {
		logger.Warn("no database configured, results will not be stored")
		return nil, nil
	}

	store, err := storage.Open(ctx, config.Database.URL, storage.WithRunID(runID))
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	return store, nil
}

// PrintResults writes the stored values of a station within [from, to] to out.
func PrintResults(ctx context.Context, config *Config, st station.Station, from, to time.Time, out io.Writer) (err error) {
	if config.Database.URL == "" {
		return fmt.Errorf("no database configured")
	}

	store, err := storage.Open(ctx, config.Database.URL)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer closeWithError(store, &err)

	records, err := store.Results(ctx, st, from, to)
	if err != nil {
		return fmt.Errorf("reading results: %w", err)
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle(st.String())
	tw.AppendHeader(table.Row{"Day", "Metric", "Version", "Channels", "Value", "Updated"})
	for _, r := range records {
		tw.AppendRow(table.Row{
			r.Day,
			r.Metric,
			r.Version,
			r.ResultID,
			fmt.Sprintf("%.4f", r.Value),
			r.UpdatedAt.UTC().Format(time.DateTime),
		})
	}

	_, err = fmt.Fprintln(out, tw.Render())
	return err
}

// RenderHeatmap draws the stored values of one metric of a station within
// [from, to] as a grid of channels by days and writes it into a PNG file.
func RenderHeatmap(ctx context.Context, config *Config, st station.Station, metric string, from, to time.Time, theme plot.ColorTheme, path string) (err error) {
	if config.Database.URL == "" {
		return fmt.Errorf("no database configured")
	}

	store, err := storage.Open(ctx, config.Database.URL)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer closeWithError(store, &err)

	records, err := store.Results(ctx, st, from, to)
	if err != nil {
		return fmt.Errorf("reading results: %w", err)
	}

	var days []string
	for d := from.UTC().Truncate(24 * time.Hour); !d.After(to); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(time.DateOnly))
	}

	var ids []string
	for _, r := range records {
		if r.Metric == metric && !slices.Contains(ids, r.ResultID) {
			ids = append(ids, r.ResultID)
		}
	}
	if len(ids) == 0 {
		return fmt.Errorf("no values of %s stored for %s", metric, st)
	}
	slices.Sort(ids)

	h := plot.NewHeatmap(fmt.Sprintf("%s %s", st, metric), ids, days)
	h.Theme = theme
	for _, r := range records {
		if r.Metric != metric {
			continue
		}
		row, col := slices.Index(ids, r.ResultID), slices.Index(days, r.Day)
		if col >= 0 {
			h.Set(row, col, r.Value)
		}
	}

	renderer, err := plot.NewRenderer(plot.RenderConfig{})
	if err != nil {
		return fmt.Errorf("creating plot renderer: %w", err)
	}
	return renderer.WriteHeatmapPNG(path, h)
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}
