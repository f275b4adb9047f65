package metrics

import (
	"fmt"
	"strings"

	"github.com/roman-kulish/seedscan/internal/station"
	"github.com/roman-kulish/seedscan/internal/timeseries"
)

// CrossPower is a one-sided cross-power spectrum.
type CrossPower = timeseries.CrossPower

// pairKey identifies an unordered channel pair; a sorts before b.
type pairKey struct {
	a, b station.Channel
}

func newPairKey(x, y station.Channel) pairKey {
	if x.Location > y.Location || (x.Location == y.Location && strings.Compare(x.Code, y.Code) > 0) {
		x, y = y, x
	}
	return pairKey{a: x, b: y}
}

// CrossPowerCache memoises the cross-power spectra of channel pairs of one
// day. It is handed from metric to metric so every spectrum is computed at
// most once per day, and dropped at the day boundary.
type CrossPowerCache struct {
	data     *MetricData
	spectrum timeseries.SpectrumFunc
	entries  map[pairKey]CrossPower
	computed int
}

// NewCrossPowerCache creates an empty cache over the data of one day. A nil
// spectrum function selects timeseries.ComputeCrossPower.
func NewCrossPowerCache(data *MetricData, spectrum timeseries.SpectrumFunc) *CrossPowerCache {
	if spectrum == nil {
		spectrum = timeseries.ComputeCrossPower
	}
	return &CrossPowerCache{
		data:     data,
		spectrum: spectrum,
		entries:  make(map[pairKey]CrossPower),
	}
}

// Get returns the cross-power spectrum of x and y, computing it on first
// access. Get(x, y) and Get(y, x) share one entry. Spectra are divided by the
// channel sensitivities when the metadata provides them.
func (c *CrossPowerCache) Get(x, y station.Channel) (CrossPower, error) {
	key := newPairKey(x, y)
	if cp, ok := c.entries[key]; ok {
		return cp, nil
	}

	xs, rateX, err := c.data.PaddedDayData(x)
	if err != nil {
		return CrossPower{}, err
	}
	ys, rateY := xs, rateX
	if y != x {
		if ys, rateY, err = c.data.PaddedDayData(y); err != nil {
			return CrossPower{}, err
		}
	}
	if rateX != rateY {
		return CrossPower{}, fmt.Errorf("%w: %s at %v Hz, %s at %v Hz", ErrSampleRateMismatch, x, rateX, y, rateY)
	}

	cp, err := c.spectrum(xs, ys, rateX)
	if err != nil {
		return CrossPower{}, fmt.Errorf("computing cross power of %s and %s: %w", x, y, err)
	}
	c.computed++

	if scale := c.sensitivity(x) * c.sensitivity(y); scale > 0 && scale != 1 {
		scaled := make([]float64, len(cp.Spectrum))
		for k, v := range cp.Spectrum {
			scaled[k] = v / scale
		}
		cp.Spectrum = scaled
	}

	c.entries[key] = cp
	return cp, nil
}

func (c *CrossPowerCache) sensitivity(ch station.Channel) float64 {
	meta := c.data.Metadata().ChannelMeta(ch)
	if meta == nil || meta.Sensitivity <= 0 {
		return 1
	}
	return meta.Sensitivity
}

// Merge adopts the entries of other which are not present yet.
func (c *CrossPowerCache) Merge(other *CrossPowerCache) {
	if other == nil || other == c {
		return
	}
	for key, cp := range other.entries {
		if _, ok := c.entries[key]; !ok {
			c.entries[key] = cp
		}
	}
}

// HandOffCrossPowerCache returns the cache the next metric of the day
// receives. current is the cache handed out so far and returned the one a
// metric ended with. A separate cache of the same day takes over and adopts
// the entries of current, so no spectrum is computed twice. Caches of
// another day are ignored.
func HandOffCrossPowerCache(data *MetricData, current, returned *CrossPowerCache) *CrossPowerCache {
	if returned == nil || returned == current || returned.Data() != data {
		return current
	}
	if current != nil {
		returned.Merge(current)
	}
	return returned
}

// Len returns the number of cached spectra.
func (c *CrossPowerCache) Len() int {
	return len(c.entries)
}

// Computed returns how many spectra this cache computed itself.
func (c *CrossPowerCache) Computed() int {
	return c.computed
}

// Data returns the day the cache belongs to.
func (c *CrossPowerCache) Data() *MetricData {
	return c.data
}
