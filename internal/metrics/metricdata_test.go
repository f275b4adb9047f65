package metrics

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/roman-kulish/seedscan/internal/digest"
	"github.com/roman-kulish/seedscan/internal/seed"
	"github.com/roman-kulish/seedscan/internal/station"
)

func TestMetricData_ChannelData(t *testing.T) {
	data := newTestData(t, defaultChannels(), nil)

	tests := []struct {
		channel string
		found   bool
	}{
		{"00-LHZ", true},
		{"10-LH1", true},
		{"0-LHZ", false}, // substring of "00-LHZ" and "10-LHZ"
		{"00-LH", false},
		{"20-LHZ", false},
	}

	for _, tt := range tests {
		t.Run(tt.channel, func(t *testing.T) {
			ch, _ := station.ParseChannel(tt.channel)
			if got := data.ChannelData(ch) != nil; got != tt.found {
				t.Errorf("ChannelData(%s) found = %v, want %v", tt.channel, got, tt.found)
			}
		})
	}
}

func TestMetricData_PaddedDayData(t *testing.T) {
	ch := station.NewChannel("00", "LHZ")
	meta := station.NewStationMeta(testStation, testDay, []*station.ChannelMeta{{Channel: ch, SampleRate: 1}})

	tables := seed.NewTables()
	key := seed.Key(testStation, ch, 1)
	tables.Data[key] = []*seed.SampleRun{
		seed.NewSampleRun(testDay.Add(-2*time.Second), 1, []float64{7, 8, 1, 2}),
		seed.NewSampleRun(testDay.Add(10*time.Second), 1, []float64{3, 4}),
		seed.NewSampleRun(testDay.Add(20*time.Second), 2, []float64{9, 9}),
	}
	data := NewMetricData(meta, tables, nil)

	samples, rate, err := data.PaddedDayData(ch)
	if err != nil {
		t.Fatalf("PaddedDayData failed: %v", err)
	}
	if rate != 1 || len(samples) != 86400 {
		t.Fatalf("Expected 86400 samples at 1 Hz, got %d at %v", len(samples), rate)
	}

	want := map[int]float64{0: 1, 1: 2, 2: 0, 10: 3, 11: 4, 20: 0}
	for i, v := range want {
		if samples[i] != v {
			t.Errorf("Sample %d: expected %v, got %v", i, v, samples[i])
		}
	}

	if _, _, err := data.PaddedDayData(station.NewChannel("00", "BHZ")); !errors.Is(err, ErrDataAbsent) {
		t.Errorf("Expected ErrDataAbsent, got %v", err)
	}
}

func TestMetricData_CombinedDigest(t *testing.T) {
	a := newTestData(t, defaultChannels(), nil)
	b := newTestData(t, defaultChannels(), nil)

	x := station.NewChannel("00", "LHZ")
	y := station.NewChannel("10", "LHZ")

	da, err := a.CombinedDigest(station.NewChannelArray(x, y))
	if err != nil {
		t.Fatalf("CombinedDigest failed: %v", err)
	}
	db, err := b.CombinedDigest(station.NewChannelArray(x, y))
	if err != nil {
		t.Fatalf("CombinedDigest failed: %v", err)
	}
	if !bytes.Equal(da, db) {
		t.Error("Identical inputs should produce identical digests")
	}

	swapped, err := a.CombinedDigest(station.NewChannelArray(y, x))
	if err != nil {
		t.Fatalf("CombinedDigest failed: %v", err)
	}
	if bytes.Equal(da, swapped) {
		t.Error("Digest should depend on channel order")
	}

	if _, err := a.CombinedDigest(station.NewChannelArray(station.NewChannel("20", "LHZ"))); !errors.Is(err, ErrMetadataAbsent) {
		t.Errorf("Expected ErrMetadataAbsent, got %v", err)
	}

	metaOnly := newTestData(t, []testChannel{{channel: "00-LHZ", rate: 1}}, nil)
	if _, err := metaOnly.CombinedDigest(station.NewChannelArray(x)); !errors.Is(err, ErrDataAbsent) {
		t.Errorf("Expected ErrDataAbsent, got %v", err)
	}
}

func TestMetricData_ValueDigestChanged(t *testing.T) {
	ctx := context.Background()
	cache := digest.NewCache()
	data := newTestData(t, defaultChannels(), cache)
	channels := station.NewChannelArray(station.NewChannel("00", "LHZ"))

	sum, changed, err := data.ValueDigestChanged(ctx, "AvailabilityMetric", 1, channels, false)
	if err != nil || !changed {
		t.Fatalf("First lookup should be changed, got %v, %v", changed, err)
	}

	result := NewMetricResult("AvailabilityMetric", 1, testStation, testDay)
	cache.Commit(result.DigestKey(channels.String()), sum)

	if _, changed, _ = data.ValueDigestChanged(ctx, "AvailabilityMetric", 1, channels, false); changed {
		t.Error("Committed digest should be unchanged")
	}
	if _, changed, _ = data.ValueDigestChanged(ctx, "AvailabilityMetric", 2, channels, false); !changed {
		t.Error("Version bump should count as changed")
	}
	if _, changed, _ = data.ValueDigestChanged(ctx, "AvailabilityMetric", 1, channels, true); !changed {
		t.Error("Forced update should count as changed")
	}
}

func TestCrossPowerCache_UnorderedPair(t *testing.T) {
	data := newTestData(t, defaultChannels(), nil)
	spectrum := &countingSpectrum{value: 1}
	cache := NewCrossPowerCache(data, spectrum.compute)

	a := station.NewChannel("00", "LHZ")
	b := station.NewChannel("10", "LHZ")

	ab, err := cache.Get(a, b)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	ba, err := cache.Get(b, a)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if spectrum.calls != 1 || cache.Computed() != 1 || cache.Len() != 1 {
		t.Errorf("Expected a single computation, got %d calls and %d entries", spectrum.calls, cache.Len())
	}
	if &ab.Spectrum[0] != &ba.Spectrum[0] {
		t.Error("Get(A,B) and Get(B,A) should return the same entry")
	}

	other := NewCrossPowerCache(data, spectrum.compute)
	if _, err := other.Get(a, a); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	cache.Merge(other)
	if cache.Len() != 2 {
		t.Errorf("Expected 2 entries after merge, got %d", cache.Len())
	}
	if _, err := cache.Get(a, a); err != nil || spectrum.calls != 2 {
		t.Errorf("Merged entry should not be recomputed, got %d calls", spectrum.calls)
	}
}

func TestHandOffCrossPowerCache(t *testing.T) {
	data := newTestData(t, defaultChannels(), nil)
	spectrum := &countingSpectrum{value: 1}
	a := station.NewChannel("00", "LHZ")
	b := station.NewChannel("10", "LHZ")

	current := NewCrossPowerCache(data, spectrum.compute)
	if _, err := current.Get(a, b); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if got := HandOffCrossPowerCache(data, current, nil); got != current {
		t.Error("Metric without a cache should keep the current one")
	}
	if got := HandOffCrossPowerCache(data, current, current); got != current {
		t.Error("Same cache should be handed on")
	}

	otherDay := NewCrossPowerCache(newTestData(t, defaultChannels(), nil), spectrum.compute)
	if got := HandOffCrossPowerCache(data, current, otherDay); got != current {
		t.Error("Cache of another day should be ignored")
	}

	returned := NewCrossPowerCache(data, spectrum.compute)
	if _, err := returned.Get(a, a); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	got := HandOffCrossPowerCache(data, current, returned)
	if got != returned || got.Len() != 2 {
		t.Fatalf("Separate cache should take over with both entries, got %d entries", got.Len())
	}
	if _, err := got.Get(b, a); err != nil || spectrum.calls != 2 {
		t.Errorf("Adopted entry should not be recomputed, got %d calls", spectrum.calls)
	}

	if got := HandOffCrossPowerCache(data, nil, returned); got != returned {
		t.Error("First cache of the day should be adopted as is")
	}
}

func TestCrossPowerCache_Sensitivity(t *testing.T) {
	ch := station.NewChannel("00", "LHZ")
	meta := station.NewStationMeta(testStation, testDay, []*station.ChannelMeta{{Channel: ch, SampleRate: 1, Sensitivity: 2}})
	tables := seed.NewTables()
	tables.Data[seed.Key(testStation, ch, 1)] = []*seed.SampleRun{seed.NewSampleRun(testDay, 1, []float64{1, 2, 3})}

	cache := NewCrossPowerCache(NewMetricData(meta, tables, nil), (&countingSpectrum{value: 8}).compute)
	cp, err := cache.Get(ch, ch)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if cp.Spectrum[1] != 2 {
		t.Errorf("Expected spectrum scaled by sensitivity², got %v", cp.Spectrum[1])
	}
}

func TestCrossPowerCache_RateMismatch(t *testing.T) {
	channels := defaultChannels()
	channels[3].rate = 2 // 10-LHZ

	spectrum := &countingSpectrum{value: 1}
	cache := NewCrossPowerCache(newTestData(t, channels, nil), spectrum.compute)

	_, err := cache.Get(station.NewChannel("00", "LHZ"), station.NewChannel("10", "LHZ"))
	if !errors.Is(err, ErrSampleRateMismatch) {
		t.Errorf("Expected ErrSampleRateMismatch, got %v", err)
	}
	if spectrum.calls != 0 {
		t.Errorf("Spectrum should not be computed, got %d calls", spectrum.calls)
	}
}
