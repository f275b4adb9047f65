package metrics

import (
	"bytes"
	"maps"
	"slices"
	"time"

	"github.com/roman-kulish/seedscan/internal/digest"
	"github.com/roman-kulish/seedscan/internal/station"
)

// Value is a single metric value and the digest of the inputs it was computed from.
type Value struct {
	Value  float64
	Digest []byte
}

// MetricResult holds the values one metric produced for one station day,
// keyed by result identifier (see ResultID).
type MetricResult struct {
	Metric  string
	Version int
	Station station.Station
	Day     time.Time

	values map[string]Value
}

// NewMetricResult creates an empty MetricResult.
func NewMetricResult(metric string, version int, st station.Station, day time.Time) *MetricResult {
	return &MetricResult{
		Metric:  metric,
		Version: version,
		Station: st,
		Day:     day,
		values:  make(map[string]Value),
	}
}

// AddResult stores a value under id, replacing any earlier one.
func (r *MetricResult) AddResult(id string, value float64, digest []byte) {
	r.values[id] = Value{Value: value, Digest: bytes.Clone(digest)}
}

// Get returns the value stored under id.
func (r *MetricResult) Get(id string) (Value, bool) {
	v, ok := r.values[id]
	return v, ok
}

// IDs returns the result identifiers in sorted order.
func (r *MetricResult) IDs() []string {
	return slices.Sorted(maps.Keys(r.values))
}

// Len returns the number of values.
func (r *MetricResult) Len() int {
	return len(r.values)
}

// Empty returns true if the result holds no values.
func (r *MetricResult) Empty() bool {
	return r == nil || len(r.values) == 0
}

// DigestKey returns the key under which the digest of value id is remembered.
func (r *MetricResult) DigestKey(id string) digest.Key {
	return digest.Key{
		Network:  r.Station.Network,
		Station:  r.Station.Name,
		Day:      r.Day,
		Metric:   r.Metric,
		Version:  r.Version,
		ResultID: id,
	}
}

// ResultID builds the identifier of a value computed from the given channels,
// e.g. "00-LHZ" or "00-LHZ,10-LHZ".
func ResultID(channels ...station.Channel) string {
	return station.NewChannelArray(channels...).String()
}
