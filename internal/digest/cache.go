// Package digest remembers the content digests metric values were computed
// from, so that values whose inputs did not change are not recomputed.
package digest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Key identifies one stored metric value. The metric version is part of the
// key, so a formula change never matches digests stored by an older version.
type Key struct {
	Network  string
	Station  string
	Day      time.Time
	Metric   string
	Version  int
	ResultID string
}

func (k Key) String() string {
	return fmt.Sprintf("%s_%s %s %s v%d %s", k.Network, k.Station, k.Day.Format(time.DateOnly), k.Metric, k.Version, k.ResultID)
}

// Source provides the digests persisted by earlier runs. LookupDigest returns
// nil and no error when no digest was ever stored for the key.
type Source interface {
	LookupDigest(ctx context.Context, key Key) ([]byte, error)
}

// WithSource sets the source consulted on a cache miss
func WithSource(source Source) func(*Cache) {
	return func(c *Cache) {
		c.source = source
	}
}

// WithLogger sets the logger for the cache
func WithLogger(logger *slog.Logger) func(*Cache) {
	return func(c *Cache) {
		c.logger = logger
	}
}

// Cache is a content-addressed cache of the last committed digest per key,
// backed by an optional persistent Source.
type Cache struct {
	source Source
	logger *slog.Logger

	mu      sync.Mutex
	digests map[Key][]byte
}

// NewCache creates an empty Cache.
func NewCache(options ...func(*Cache)) *Cache {
	c := Cache{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		digests: make(map[Key][]byte),
	}

	for _, option := range options {
		option(&c)
	}

	return &c
}

// Changed reports whether the digest differs from the last one committed for
// the key. Keys never seen count as changed. A failing source is logged and
// treated as a miss.
func (c *Cache) Changed(ctx context.Context, key Key, digest []byte) bool {
	c.mu.Lock()
	stored, ok := c.digests[normalize(key)]
	c.mu.Unlock()

	if !ok && c.source != nil {
		var err error
		if stored, err = c.source.LookupDigest(ctx, key); err != nil {
			c.logger.Warn(fmt.Sprintf("looking up digest: %s", err.Error()), slog.String("key", key.String()))
			return true
		}
		if stored != nil {
			c.mu.Lock()
			c.digests[normalize(key)] = stored
			c.mu.Unlock()
		}
	}

	return stored == nil || !bytes.Equal(stored, digest)
}

// Commit records the digest of a value that was stored successfully.
func (c *Cache) Commit(key Key, digest []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.digests[normalize(key)] = bytes.Clone(digest)
}

// Len returns the number of digests held in memory.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.digests)
}

// normalize strips the location and monotonic clock of the day so that equal
// days compare equal as map keys.
func normalize(key Key) Key {
	key.Day = key.Day.UTC().Truncate(24 * time.Hour)
	return key
}
