// Package scan drives the daily metric computation of stations: it walks the
// configured days backwards, decodes each day once, runs the configured
// metrics and hands their results to the injector.
package scan

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/seedscan/internal/metrics"
	"github.com/roman-kulish/seedscan/internal/station"
)

// MetricSpec is a configured metric.
type MetricSpec = metrics.Spec

// Filter is a set of glob patterns (see path.Match). An empty filter accepts
// everything.
type Filter struct {
	patterns []string
}

// NewFilter creates a filter from glob patterns.
func NewFilter(patterns ...string) (Filter, error) {
	var f Filter
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, err := path.Match(p, ""); err != nil {
			return Filter{}, fmt.Errorf("invalid pattern '%s': %w", p, err)
		}
		f.patterns = append(f.patterns, p)
	}
	return f, nil
}

// Accepts reports whether s matches any of the patterns.
func (f Filter) Accepts(s string) bool {
	if len(f.patterns) == 0 {
		return true
	}
	for _, p := range f.patterns {
		if ok, _ := path.Match(p, s); ok {
			return true
		}
	}
	return false
}

func (f Filter) String() string {
	return strings.Join(f.patterns, ",")
}

// UnmarshalYAML accepts a list of patterns or a single comma separated string.
func (f *Filter) UnmarshalYAML(value *yaml.Node) error {
	var patterns []string
	switch value.Kind {
	case yaml.ScalarNode:
		patterns = strings.Split(value.Value, ",")
	case yaml.SequenceNode:
		if err := value.Decode(&patterns); err != nil {
			return fmt.Errorf("scan.Filter: %w", err)
		}
	default:
		return fmt.Errorf("scan.Filter: expected a string or a list, got %s", value.Tag)
	}

	parsed, err := NewFilter(patterns...)
	if err != nil {
		return fmt.Errorf("scan.Filter: %w", err)
	}

	*f = parsed
	return nil
}

// ScanConfig describes what to scan for each station.
type ScanConfig struct {
	// PathPattern locates the raw files of a station day, see BuildPath
	PathPattern string `yaml:"path"`

	// StartDay is how many days before today the scan starts
	StartDay int `yaml:"startDay"`

	// DaysToScan is how many days are scanned, going backwards from StartDay
	DaysToScan int `yaml:"daysToScan"`

	// Metrics run in the declared order every day
	Metrics []MetricSpec `yaml:"metrics"`

	Networks  Filter `yaml:"networks"`
	Stations  Filter `yaml:"stations"`
	Locations Filter `yaml:"locations"`
	Channels  Filter `yaml:"channels"`
}

// Validate checks the configuration, including that every metric can be
// constructed with its arguments.
func (c *ScanConfig) Validate() error {
	var errs []error

	if strings.TrimSpace(c.PathPattern) == "" {
		errs = append(errs, errors.New("path: must not be empty"))
	}
	if c.StartDay < 0 {
		errs = append(errs, fmt.Errorf("startDay: must not be negative, got %d", c.StartDay))
	}
	if c.DaysToScan <= 0 {
		errs = append(errs, fmt.Errorf("daysToScan: must be positive, got %d", c.DaysToScan))
	}
	if len(c.Metrics) == 0 {
		errs = append(errs, errors.New("metrics: at least one metric must be configured"))
	}
	for i, spec := range c.Metrics {
		if _, err := metrics.New(spec); err != nil {
			errs = append(errs, fmt.Errorf("metrics[%d]: %w", i, err))
		}
	}

	return errors.Join(errs...)
}

// AcceptsStation reports whether the station passes the network and station filters.
func (c *ScanConfig) AcceptsStation(st station.Station) bool {
	return c.Networks.Accepts(st.Network) && c.Stations.Accepts(st.Name)
}

// AcceptsChannel reports whether the channel passes the location and channel filters.
func (c *ScanConfig) AcceptsChannel(ch station.Channel) bool {
	return c.Locations.Accepts(ch.Location) && c.Channels.Accepts(ch.Code)
}
