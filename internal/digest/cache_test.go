package digest

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeSource struct {
	digests map[Key][]byte
	err     error
	calls   int
}

func (f *fakeSource) LookupDigest(_ context.Context, key Key) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.digests[key], nil
}

func testKey(version int) Key {
	return Key{
		Network:  "IU",
		Station:  "ANMO",
		Day:      time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC),
		Metric:   "DifferencePBM:90-110",
		Version:  version,
		ResultID: "00-LHZ,10-LHZ",
	}
}

func TestCache_Changed(t *testing.T) {
	ctx := context.Background()
	digest := []byte{1, 2, 3}

	tests := []struct {
		name   string
		commit *Key
		lookup Key
		value  []byte
		want   bool
	}{
		{"never seen", nil, testKey(2), digest, true},
		{"same digest", ptr(testKey(2)), testKey(2), digest, false},
		{"different digest", ptr(testKey(2)), testKey(2), []byte{9}, true},
		{"version bump", ptr(testKey(1)), testKey(2), digest, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCache()
			if tt.commit != nil {
				c.Commit(*tt.commit, digest)
			}
			if got := c.Changed(ctx, tt.lookup, tt.value); got != tt.want {
				t.Errorf("Changed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCache_Source(t *testing.T) {
	ctx := context.Background()
	key := testKey(2)
	source := &fakeSource{digests: map[Key][]byte{key: {7}}}

	c := NewCache(WithSource(source))

	if c.Changed(ctx, key, []byte{7}) {
		t.Error("Digest stored in source should be unchanged")
	}
	if c.Changed(ctx, key, []byte{7}) {
		t.Error("Digest should still be unchanged")
	}
	if source.calls != 1 {
		t.Errorf("Expected source to be consulted once, got %d", source.calls)
	}

	source.err = errors.New("database gone")
	if !c.Changed(ctx, testKey(3), []byte{7}) {
		t.Error("Lookup failure should count as changed")
	}
}

func TestCache_DayNormalized(t *testing.T) {
	c := NewCache()

	key := testKey(1)
	c.Commit(key, []byte{1})

	local := key
	local.Day = key.Day.In(time.FixedZone("X", 3600))
	if c.Changed(context.Background(), local, []byte{1}) {
		t.Error("Same instant in another zone should match")
	}
	if c.Len() != 1 {
		t.Errorf("Expected 1 digest, got %d", c.Len())
	}
}

func ptr[T any](v T) *T {
	return &v
}
