package app

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/seedscan/internal/logging"
	"github.com/roman-kulish/seedscan/internal/scan"
	"github.com/roman-kulish/seedscan/internal/station"
)

// EnvDatabaseURL overrides the database URL of the configuration file. It may
// also be set in a .env file in the working directory.
const EnvDatabaseURL = "SEEDSCAN_DATABASE_URL"

// Config represents the main application configuration
type Config struct {
	Settings Settings          `yaml:"settings"`
	Database DatabaseConfig    `yaml:"database"`
	Metadata MetadataConfig    `yaml:"metadata"`
	Plots    PlotsConfig       `yaml:"plots"`
	Stations []station.Station `yaml:"stations"`
	Scan     scan.ScanConfig   `yaml:"scan"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel      LogLevel `yaml:"logLevel"`
	LogFormat     string   `yaml:"logFormat"`
	Workers       int      `yaml:"workers"`
	LockDirectory string   `yaml:"lockDirectory"`
}

// DatabaseConfig represents result storage settings. The URL is either a
// postgres:// URL or the path of an Sqlite database file. Without a URL
// results are computed but not stored.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// MetadataConfig represents station inventory settings
type MetadataConfig struct {
	Directory string `yaml:"directory"`
}

// PlotsConfig represents diagnostic plot settings
type PlotsConfig struct {
	Directory string `yaml:"directory"`
}

// LogLevel is a log level name validated when the configuration is read.
type LogLevel string

func (l *LogLevel) UnmarshalYAML(value *yaml.Node) error {
	if _, err := logging.ParseLevel(value.Value); err != nil {
		return fmt.Errorf("app.LogLevel: %w", err)
	}

	*l = LogLevel(value.Value)
	return nil
}

// LoadConfig reads the configuration file and applies the environment.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load() // ignore missing file

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}

	var c Config
	if err = yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if url := os.Getenv(EnvDatabaseURL); url != "" {
		c.Database.URL = url
	}

	return &c, nil
}

// Validate checks the configuration after command line overrides were applied.
func (c *Config) Validate() error {
	var errs []error

	if c.Metadata.Directory == "" {
		errs = append(errs, errors.New("metadata.directory: must not be empty"))
	}
	if len(c.Stations) == 0 {
		errs = append(errs, errors.New("stations: at least one station must be configured"))
	}
	if c.Settings.Workers < 0 {
		errs = append(errs, fmt.Errorf("settings.workers: must not be negative, got %d", c.Settings.Workers))
	}
	if err := c.Scan.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("scan: %w", err))
	}

	return errors.Join(errs...)
}
