package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roman-kulish/seedscan/internal/digest"
	"github.com/roman-kulish/seedscan/internal/metrics"
	"github.com/roman-kulish/seedscan/internal/station"
)

const pingTimeout = 5 * time.Second

// PostgresStore stores metric results in a PostgreSQL database.
type PostgresStore struct {
	pool  *pgxpool.Pool
	runID string
}

// NewPostgresStore connects to the database and initializes the schema.
func NewPostgresStore(ctx context.Context, url string, opts ...func(*options)) (*PostgresStore, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if _, err = pool.Exec(ctx, schemaPgSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return &PostgresStore{pool: pool, runID: o.runID}, nil
}

func (s *PostgresStore) IsConnected() bool {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	return s.pool.Ping(ctx) == nil
}

func (s *PostgresStore) Inject(ctx context.Context, result *metrics.MetricResult) (err error) {
	if result.Empty() {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return interrupted(ctx, fmt.Errorf("beginning transaction: %w", err))
	}
	defer func() {
		if err != nil {
			// a cancelled context already rolled the transaction back
			_ = tx.Rollback(context.Background())
			err = interrupted(ctx, err)
		}
	}()

	var runID *string
	if s.runID != "" {
		runID = &s.runID
	}

	ids := result.IDs()
	day := result.Day.UTC().Truncate(24 * time.Hour)

	batch := &pgx.Batch{}
	for _, id := range ids {
		v, _ := result.Get(id)
		batch.Queue(upsertResultPgSQL,
			result.Station.Network,
			result.Station.Name,
			day,
			result.Metric,
			result.Version,
			id,
			v.Value,
			v.Digest,
			runID,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for _, id := range ids {
		if _, err = br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("upserting %s %s: %w", result.Metric, id, err)
		}
	}
	if err = br.Close(); err != nil {
		return fmt.Errorf("closing batch: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupDigest(ctx context.Context, key digest.Key) ([]byte, error) {
	var sum []byte
	err := s.pool.QueryRow(
		ctx,
		selectDigestPgSQL,
		key.Network,
		key.Station,
		key.Day.UTC().Truncate(24*time.Hour),
		key.Metric,
		key.Version,
		key.ResultID,
	).Scan(&sum)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up digest %s: %w", key, err)
	}
	return sum, nil
}

func (s *PostgresStore) Results(ctx context.Context, st station.Station, from, to time.Time) ([]Record, error) {
	rows, err := s.pool.Query(
		ctx,
		selectResultsPgSQL,
		st.Network,
		st.Name,
		from.UTC().Truncate(24*time.Hour),
		to.UTC().Truncate(24*time.Hour),
	)
	if err != nil {
		return nil, fmt.Errorf("querying results: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err = rows.Scan(
			&r.Network,
			&r.Station,
			&r.Day,
			&r.Metric,
			&r.Version,
			&r.ResultID,
			&r.Value,
			&r.Digest,
			&r.RunID,
			&r.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		records = append(records, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating results: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
