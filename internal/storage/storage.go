// Package storage persists metric values and the digests they were computed
// from. Two backends are provided: a local SQLite file and a PostgreSQL
// database.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roman-kulish/seedscan/internal/digest"
	"github.com/roman-kulish/seedscan/internal/metrics"
	"github.com/roman-kulish/seedscan/internal/station"
)

// ErrInjectionInterrupted is returned when a write was cut short by
// cancellation. Nothing of the interrupted result is committed.
var ErrInjectionInterrupted = errors.New("injection interrupted")

// ErrUnsupportedDatabase is returned by Open for an unknown connection URL.
var ErrUnsupportedDatabase = errors.New("unsupported database")

// Store is a metric result store.
type Store interface {
	// IsConnected reports whether the store can currently accept results.
	IsConnected() bool

	// Inject writes every value of the result in a single transaction.
	Inject(ctx context.Context, result *metrics.MetricResult) error

	// LookupDigest returns the digest stored for key, or nil if none is.
	LookupDigest(ctx context.Context, key digest.Key) ([]byte, error)

	// Results returns the stored values for a station within [from, to].
	Results(ctx context.Context, st station.Station, from, to time.Time) ([]Record, error)

	Close() error
}

// Record is one stored metric value.
type Record struct {
	Network   string
	Station   string
	Day       string
	Metric    string
	Version   int
	ResultID  string
	Value     float64
	Digest    []byte
	RunID     string
	UpdatedAt time.Time
}

// WithRunID tags every injected value with the identifier of the run
func WithRunID(runID string) func(*options) {
	return func(o *options) {
		o.runID = runID
	}
}

type options struct {
	runID string
}

// Open opens a store for the given URL: "postgres://" and "postgresql://"
// URLs select PostgreSQL, anything else is taken as an SQLite file path.
func Open(ctx context.Context, url string, opts ...func(*options)) (Store, error) {
	switch {
	case url == "":
		return nil, fmt.Errorf("%w: empty URL", ErrUnsupportedDatabase)
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return NewPostgresStore(ctx, url, opts...)
	case strings.Contains(url, "://"):
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDatabase, url)
	default:
		return NewSqliteStore(strings.TrimPrefix(url, "sqlite:"), opts...), nil
	}
}
