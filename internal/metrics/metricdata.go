package metrics

import (
	"context"
	"crypto/sha256"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/roman-kulish/seedscan/internal/digest"
	"github.com/roman-kulish/seedscan/internal/seed"
	"github.com/roman-kulish/seedscan/internal/station"
)

const secondsPerDay = 24 * 60 * 60

// MetricData is everything known about one station day: the metadata and,
// unless the day has no data, the decoded tables. It is read-only once built
// and shared by every metric run for the day.
type MetricData struct {
	meta    *station.StationMeta
	tables  *seed.Tables
	keys    []string
	digests *digest.Cache
}

// NewMetricData creates a MetricData over decoded tables. The digest cache is
// optional; without it every value counts as changed.
func NewMetricData(meta *station.StationMeta, tables *seed.Tables, digests *digest.Cache) *MetricData {
	if tables == nil {
		tables = seed.NewTables()
	}
	return &MetricData{
		meta:    meta,
		tables:  tables,
		keys:    slices.Sorted(maps.Keys(tables.Data)),
		digests: digests,
	}
}

// NewMetadataOnly creates a MetricData for a day with metadata but no data.
func NewMetadataOnly(meta *station.StationMeta, digests *digest.Cache) *MetricData {
	return NewMetricData(meta, nil, digests)
}

// Metadata returns the station metadata of the day.
func (d *MetricData) Metadata() *station.StationMeta {
	return d.meta
}

// Station returns the station the data belongs to.
func (d *MetricData) Station() station.Station {
	return d.meta.Station
}

// Day returns the day the data belongs to.
func (d *MetricData) Day() time.Time {
	return d.meta.Day
}

// HasData returns false for metadata-only days.
func (d *MetricData) HasData() bool {
	return len(d.keys) > 0
}

// Keys returns the sorted table keys.
func (d *MetricData) Keys() []string {
	return slices.Clone(d.keys)
}

// channelKey finds the table key of the channel. Keys carry a station prefix
// and a sample rate suffix, so the "LL-CCC" token is matched on its own; the
// first match in key order wins.
func (d *MetricData) channelKey(ch station.Channel) (string, bool) {
	token := ch.String()
	for _, key := range d.keys {
		for _, field := range strings.Fields(key) {
			if field == token {
				return key, true
			}
		}
	}
	return "", false
}

// ChannelData returns the sample runs of the channel, nil if it has no data.
func (d *MetricData) ChannelData(ch station.Channel) []*seed.SampleRun {
	key, ok := d.channelKey(ch)
	if !ok {
		return nil
	}
	return d.tables.Data[key]
}

// QualityFlags returns the timing quality values recorded for the channel.
func (d *MetricData) QualityFlags(ch station.Channel) []int {
	key, ok := d.channelKey(ch)
	if !ok {
		return nil
	}
	return d.tables.Quality[key]
}

// Calibrations returns the calibration events recorded for the channel.
func (d *MetricData) Calibrations(ch station.Channel) []seed.CalibrationEvent {
	key, ok := d.channelKey(ch)
	if !ok {
		return nil
	}
	return d.tables.Calibrations[key]
}

// HasChannels reports whether both metadata and data exist for the vertical
// and a pair of horizontal components of the band at the location, e.g.
// location "00" and band "LH" need 00-LHZ plus 00-LH1/00-LH2 or 00-LHN/00-LHE.
func (d *MetricData) HasChannels(location, band string) bool {
	have := func(orientation string) bool {
		ch := station.NewChannel(location, band+orientation)
		return d.meta.ChannelMeta(ch) != nil && d.ChannelData(ch) != nil
	}

	if !have("Z") {
		return false
	}
	return (have("1") && have("2")) || (have("N") && have("E"))
}

// PaddedDayData lays the runs of the channel out on a full day array at the
// rate of the first run. Gaps are zero filled; runs at another rate and
// samples outside the day are ignored.
func (d *MetricData) PaddedDayData(ch station.Channel) ([]float64, float64, error) {
	runs := d.ChannelData(ch)
	if len(runs) == 0 {
		return nil, 0, fmt.Errorf("%w: %s", ErrDataAbsent, ch)
	}

	rate := runs[0].SampleRate
	if rate <= 0 {
		return nil, 0, fmt.Errorf("%w: %s has no sample rate", ErrDataAbsent, ch)
	}

	out := make([]float64, int(math.Round(secondsPerDay*rate)))
	dayStart := d.Day()
	for _, run := range runs {
		if run.SampleRate != rate {
			continue
		}

		offset := int(math.Round(run.Start.Sub(dayStart).Seconds() * rate))
		samples := run.Samples
		if offset < 0 {
			if -offset >= len(samples) {
				continue
			}
			samples = samples[-offset:]
			offset = 0
		}
		if offset >= len(out) {
			continue
		}
		copy(out[offset:], samples)
	}

	return out, rate, nil
}

// CombinedDigest hashes, per channel in order, the metadata digest and the
// digest of the first sample run.
func (d *MetricData) CombinedDigest(channels station.ChannelArray) ([]byte, error) {
	h := sha256.New()

	for _, ch := range channels {
		meta := d.meta.ChannelMeta(ch)
		if meta == nil {
			return nil, fmt.Errorf("%w: %s", ErrMetadataAbsent, ch)
		}
		h.Write(meta.Digest)

		runs := d.ChannelData(ch)
		if len(runs) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrDataAbsent, ch)
		}
		h.Write(runs[0].Digest())
	}

	return h.Sum(nil), nil
}

// MetadataDigest hashes the metadata digests of the channels in order. It
// stands in for the combined digest on days without data.
func (d *MetricData) MetadataDigest(channels station.ChannelArray) ([]byte, error) {
	h := sha256.New()

	for _, ch := range channels {
		meta := d.meta.ChannelMeta(ch)
		if meta == nil {
			return nil, fmt.Errorf("%w: %s", ErrMetadataAbsent, ch)
		}
		h.Write(meta.Digest)
	}

	return h.Sum(nil), nil
}

// ValueDigestChanged computes the combined digest of the channels and reports
// whether it differs from the digest last stored for the same value. With
// force set the value always counts as changed.
func (d *MetricData) ValueDigestChanged(ctx context.Context, metric string, version int, channels station.ChannelArray, force bool) ([]byte, bool, error) {
	sum, err := d.CombinedDigest(channels)
	if err != nil {
		return nil, false, err
	}
	return sum, d.digestChanged(ctx, metric, version, channels, sum, force), nil
}

func (d *MetricData) digestChanged(ctx context.Context, metric string, version int, channels station.ChannelArray, sum []byte, force bool) bool {
	if force || d.digests == nil {
		return true
	}

	key := digest.Key{
		Network:  d.meta.Station.Network,
		Station:  d.meta.Station.Name,
		Day:      d.meta.Day,
		Metric:   metric,
		Version:  version,
		ResultID: channels.String(),
	}
	return d.digests.Changed(ctx, key, sum)
}
