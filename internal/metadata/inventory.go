// Package metadata resolves the channel definitions of a station for a given
// day from YAML inventory files.
//
// One file per station is expected at <dir>/<NET>_<STA>.yaml:
//
//	station: IU_ANMO
//	latitude: 34.946
//	longitude: -106.457
//	elevation: 1850
//	channels:
//	  - channel: 00-LHZ
//	    sample_rate: 1
//	    dip: -90
//	    sensitivity: 2.0e9
//	    instrument: STS-2
//	    start: 2020-01-01T00:00:00Z
//
// A channel may appear several times with different epochs. An epoch without
// an end is open.
package metadata

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/seedscan/internal/station"
)

// ErrNotLoaded is returned by Resolve for a station Load was never called for.
var ErrNotLoaded = errors.New("station inventory not loaded")

type channelEpoch struct {
	Channel     string    `yaml:"channel"`
	SampleRate  float64   `yaml:"sample_rate"`
	Azimuth     float64   `yaml:"azimuth"`
	Dip         float64   `yaml:"dip"`
	Sensitivity float64   `yaml:"sensitivity"`
	Instrument  string    `yaml:"instrument"`
	Start       time.Time `yaml:"start"`
	End         time.Time `yaml:"end"`
}

// covers returns true if the epoch is in effect at any time during the day.
func (e channelEpoch) covers(day time.Time) bool {
	dayEnd := day.Add(24 * time.Hour)
	return e.Start.Before(dayEnd) && (e.End.IsZero() || e.End.After(day))
}

type stationFile struct {
	Station   station.Station `yaml:"station"`
	Latitude  float64         `yaml:"latitude"`
	Longitude float64         `yaml:"longitude"`
	Elevation float64         `yaml:"elevation"`
	Channels  []channelEpoch  `yaml:"channels"`
}

// WithLogger sets the logger for the inventory
func WithLogger(logger *slog.Logger) func(*Inventory) {
	return func(i *Inventory) {
		i.logger = logger
	}
}

// Inventory is a metadata resolver over a directory of station files.
type Inventory struct {
	dir    string
	logger *slog.Logger

	mu       sync.RWMutex
	stations map[station.Station]*stationFile
}

// NewInventory creates an Inventory reading station files from dir.
func NewInventory(dir string, options ...func(*Inventory)) *Inventory {
	i := Inventory{
		dir:      dir,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		stations: make(map[station.Station]*stationFile),
	}

	for _, option := range options {
		option(&i)
	}

	return &i
}

// Load reads and validates the inventory of the station. Loading the same
// station again replaces the earlier inventory.
func (i *Inventory) Load(st station.Station) error {
	path := filepath.Join(i.dir, st.String()+".yaml")

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading inventory: %w", err)
	}

	var sf stationFile
	if err = yaml.Unmarshal(data, &sf); err != nil {
		return fmt.Errorf("parsing inventory %s: %w", path, err)
	}
	if sf.Station != st {
		return fmt.Errorf("inventory %s describes station %s, expected %s", path, sf.Station, st)
	}
	for n, e := range sf.Channels {
		if _, err = station.ParseChannel(e.Channel); err != nil {
			return fmt.Errorf("inventory %s, channel #%d: %w", path, n+1, err)
		}
		if !e.End.IsZero() && !e.End.After(e.Start) {
			return fmt.Errorf("inventory %s, channel %s: epoch ends before it starts", path, e.Channel)
		}
	}

	i.mu.Lock()
	i.stations[st] = &sf
	i.mu.Unlock()

	i.logger.Debug(fmt.Sprintf("loaded %d channel epochs", len(sf.Channels)),
		slog.String("station", st.String()),
		slog.String("path", path))

	return nil
}

// Resolve returns the channel definitions in effect on day. It returns nil and
// no error when the station had no channels that day. Where several epochs of
// one channel cover the day, the one starting last wins.
func (i *Inventory) Resolve(st station.Station, day time.Time) (*station.StationMeta, error) {
	i.mu.RLock()
	sf, ok := i.stations[st]
	i.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotLoaded, st)
	}

	day = day.UTC().Truncate(24 * time.Hour)

	selected := make(map[station.Channel]*channelEpoch)
	for n := range sf.Channels {
		e := &sf.Channels[n]
		if !e.covers(day) {
			continue
		}

		ch, _ := station.ParseChannel(e.Channel)
		if prev, ok := selected[ch]; !ok || e.Start.After(prev.Start) {
			selected[ch] = e
		}
	}

	if len(selected) == 0 {
		return nil, nil
	}

	channels := make([]*station.ChannelMeta, 0, len(selected))
	for ch, e := range selected {
		channels = append(channels, &station.ChannelMeta{
			Channel:     ch,
			SampleRate:  e.SampleRate,
			Azimuth:     e.Azimuth,
			Dip:         e.Dip,
			Sensitivity: e.Sensitivity,
			Instrument:  e.Instrument,
			Start:       e.Start,
			End:         e.End,
		})
	}

	meta := station.NewStationMeta(st, day, channels)
	meta.Latitude = sf.Latitude
	meta.Longitude = sf.Longitude
	meta.Elevation = sf.Elevation

	return meta, nil
}
