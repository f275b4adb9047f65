package station

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"slices"
	"strings"
	"time"
)

// ChannelMeta describes a single channel epoch as it was in effect on a given day.
type ChannelMeta struct {
	Channel     Channel
	SampleRate  float64   // Nominal sample rate in Hz
	Azimuth     float64   // Degrees clockwise from north
	Dip         float64   // Degrees down from horizontal
	Sensitivity float64   // Overall sensitivity in counts per m/s, 0 if unknown
	Instrument  string    // Free-form instrument description
	Start       time.Time // Epoch start
	End         time.Time // Epoch end, zero if open
	Digest      []byte    // SHA-256 over the fields above
}

// ComputeDigest hashes the channel epoch fields into Digest. Any change of the
// epoch changes the digest, which invalidates metric values computed with it.
func (m *ChannelMeta) ComputeDigest() []byte {
	h := sha256.New()

	writeString := func(s string) {
		_ = binary.Write(h, binary.BigEndian, uint32(len(s)))
		h.Write([]byte(s))
	}
	writeFloat := func(f float64) {
		_ = binary.Write(h, binary.BigEndian, math.Float64bits(f))
	}

	writeString(m.Channel.Location)
	writeString(m.Channel.Code)
	writeFloat(m.SampleRate)
	writeFloat(m.Azimuth)
	writeFloat(m.Dip)
	writeFloat(m.Sensitivity)
	writeString(m.Instrument)
	_ = binary.Write(h, binary.BigEndian, m.Start.Unix())
	_ = binary.Write(h, binary.BigEndian, m.End.Unix())

	m.Digest = h.Sum(nil)
	return m.Digest
}

// StationMeta is a per-day snapshot of the channel definitions of a station.
// It is resolved once per scanned day and never mutated afterwards.
type StationMeta struct {
	Station   Station
	Day       time.Time
	Latitude  float64
	Longitude float64
	Elevation float64

	channels map[Channel]*ChannelMeta
}

// NewStationMeta creates a StationMeta from the channel epochs in effect on day.
func NewStationMeta(st Station, day time.Time, channels []*ChannelMeta) *StationMeta {
	m := &StationMeta{
		Station:  st,
		Day:      day,
		channels: make(map[Channel]*ChannelMeta, len(channels)),
	}
	for _, c := range channels {
		if c.Digest == nil {
			c.ComputeDigest()
		}
		m.channels[c.Channel] = c
	}
	return m
}

// ChannelMeta returns the metadata of the channel, or nil if the station has
// no such channel on this day.
func (m *StationMeta) ChannelMeta(c Channel) *ChannelMeta {
	if m == nil {
		return nil
	}
	return m.channels[c]
}

// Channels returns all channels of the station, sorted by location and code.
func (m *StationMeta) Channels() []Channel {
	channels := make([]Channel, 0, len(m.channels))
	for c := range m.channels {
		channels = append(channels, c)
	}
	sortChannels(channels)
	return channels
}

// RotatableChannels returns the channels whose orientation code denotes a
// vertical or horizontal component (Z, N, E, 1 or 2).
func (m *StationMeta) RotatableChannels() []Channel {
	var channels []Channel
	for c := range m.channels {
		switch c.Orientation() {
		case 'Z', 'N', 'E', '1', '2':
			channels = append(channels, c)
		}
	}
	sortChannels(channels)
	return channels
}

// ContinuousChannels returns the channels recording continuously, i.e. those
// in long and very long period bands or with a sample rate of at least 1 Hz.
func (m *StationMeta) ContinuousChannels() []Channel {
	var channels []Channel
	for c, meta := range m.channels {
		band := c.Band()
		if strings.HasPrefix(band, "L") || strings.HasPrefix(band, "V") || meta.SampleRate >= 1 {
			channels = append(channels, c)
		}
	}
	sortChannels(channels)
	return channels
}

func sortChannels(channels []Channel) {
	slices.SortFunc(channels, func(a, b Channel) int {
		if c := strings.Compare(a.Location, b.Location); c != 0 {
			return c
		}
		return strings.Compare(a.Code, b.Code)
	})
}
