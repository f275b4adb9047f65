package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roman-kulish/seedscan/cmd/seedscan/app"
	"github.com/roman-kulish/seedscan/internal/logging"
	"github.com/roman-kulish/seedscan/internal/plot"
	"github.com/roman-kulish/seedscan/internal/station"
)

type rootFlags struct {
	config   string
	stations []string
	days     int
	startDay int
	workers  int
}

func newRootCommand() *cobra.Command {
	var flags rootFlags

	rootCmd := &cobra.Command{
		Use:           "seedscan",
		Short:         "Compute daily data quality metrics of seismic stations",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, logger, err := loadConfig(cmd, &flags)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return app.Run(ctx, config, logger, cmd.OutOrStdout())
		},
	}

	rootCmd.PersistentFlags().StringVarP(&flags.config, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringArrayVarP(&flags.stations, "station", "s", nil, "Station to scan as NET_STA, replaces the configured stations (repeatable)")
	rootCmd.Flags().IntVar(&flags.days, "days", 0, "Number of days to scan, overrides the configuration")
	rootCmd.Flags().IntVar(&flags.startDay, "start-day", -1, "Days before today to start at, overrides the configuration")
	rootCmd.Flags().IntVar(&flags.workers, "workers", 0, "Number of stations scanned at once, overrides the configuration")
	_ = rootCmd.MarkPersistentFlagRequired("config")

	rootCmd.AddCommand(newResultsCommand(&flags), newHeatmapCommand(&flags))

	return rootCmd
}

func newResultsCommand(flags *rootFlags) *cobra.Command {
	var days dayRangeFlags

	cmd := &cobra.Command{
		Use:   "results",
		Short: "Print the stored metric values of a station",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, _, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}

			st, err := singleStation(flags)
			if err != nil {
				return err
			}

			from, to, err := days.parse()
			if err != nil {
				return err
			}

			return app.PrintResults(cmd.Context(), config, st, from, to, cmd.OutOrStdout())
		},
	}

	days.register(cmd)

	return cmd
}

func newHeatmapCommand(flags *rootFlags) *cobra.Command {
	var (
		days   dayRangeFlags
		metric string
		theme  string
		output string
	)

	cmd := &cobra.Command{
		Use:   "heatmap",
		Short: "Render the stored values of a metric as a channels by days heatmap",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, _, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}

			st, err := singleStation(flags)
			if err != nil {
				return err
			}

			from, to, err := days.parse()
			if err != nil {
				return err
			}

			colorTheme, err := plot.ParseColorTheme(theme)
			if err != nil {
				return err
			}

			if output == "" {
				output = fmt.Sprintf("%s_%s.png", st, strings.ReplaceAll(metric, ":", "_"))
			}

			if err = app.RenderHeatmap(cmd.Context(), config, st, metric, from, to, colorTheme, output); err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "heatmap written to %s\n", output)
			return err
		},
	}

	days.register(cmd)
	cmd.Flags().StringVarP(&metric, "metric", "m", "", "Metric name, e.g. AvailabilityMetric or DifferencePBM:90-110")
	cmd.Flags().StringVar(&theme, "theme", "", "Color theme: classic, grayscale, thermal, marine or enhanced")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output PNG file, <NET_STA>_<metric>.png by default")
	_ = cmd.MarkFlagRequired("metric")

	return cmd
}

func singleStation(flags *rootFlags) (station.Station, error) {
	if len(flags.stations) != 1 {
		return station.Station{}, fmt.Errorf("exactly one --station is required")
	}
	return station.Parse(flags.stations[0])
}

type dayRangeFlags struct {
	from string
	to   string
}

func (f *dayRangeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.from, "from", "", "First day (YYYY-MM-DD), a week before --to by default")
	cmd.Flags().StringVar(&f.to, "to", "", "Last day (YYYY-MM-DD), today by default")
}

func (f *dayRangeFlags) parse() (from, to time.Time, err error) {
	to = time.Now().UTC().Truncate(24 * time.Hour)
	if f.to != "" {
		if to, err = time.Parse(time.DateOnly, f.to); err != nil {
			return from, to, fmt.Errorf("invalid --to: %w", err)
		}
	}

	from = to.AddDate(0, 0, -7)
	if f.from != "" {
		if from, err = time.Parse(time.DateOnly, f.from); err != nil {
			return from, to, fmt.Errorf("invalid --from: %w", err)
		}
	}
	if from.After(to) {
		return from, to, fmt.Errorf("--from is after --to")
	}
	return from, to, nil
}

// loadConfig reads the configuration, applies the command line overrides and
// builds the logger.
func loadConfig(cmd *cobra.Command, flags *rootFlags) (*app.Config, *slog.Logger, error) {
	config, err := app.LoadConfig(flags.config)
	if err != nil {
		return nil, nil, err
	}

	if len(flags.stations) > 0 {
		config.Stations = config.Stations[:0]
		for _, s := range flags.stations {
			st, err := station.Parse(s)
			if err != nil {
				return nil, nil, err
			}
			config.Stations = append(config.Stations, st)
		}
	}
	if cmd.Flags().Changed("days") {
		config.Scan.DaysToScan = flags.days
	}
	if cmd.Flags().Changed("start-day") {
		config.Scan.StartDay = flags.startDay
	}
	if cmd.Flags().Changed("workers") {
		config.Settings.Workers = flags.workers
	}

	if err = config.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration:\n%w", err)
	}

	logger, _, err := logging.New(os.Stderr, logging.Options{
		Level:  string(config.Settings.LogLevel),
		Format: config.Settings.LogFormat,
	})
	if err != nil {
		return nil, nil, err
	}

	return config, logger, nil
}
