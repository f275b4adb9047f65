package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/seedscan/internal/digest"
	"github.com/roman-kulish/seedscan/internal/metrics"
	"github.com/roman-kulish/seedscan/internal/station"
)

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string
	runID  string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a store backed by the Sqlite database at dbPath.
// The database is opened and the schema initialized on first use.
func NewSqliteStore(dbPath string, opts ...func(*options)) *SqliteStore {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &SqliteStore{dbPath: dbPath, runID: o.runID}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if err = runSQLCommand(db, schemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	// the read-only connection cannot create the schema
	if _, err := s.getWriteDB(); err != nil {
		return nil, err
	}

	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

// IsConnected reports whether the database could be opened.
func (s *SqliteStore) IsConnected() bool {
	db, err := s.getWriteDB()
	if err != nil {
		return false
	}
	return db.Ping() == nil
}

func (s *SqliteStore) Inject(ctx context.Context, result *metrics.MetricResult) (err error) {
	if result.Empty() {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return interrupted(ctx, fmt.Errorf("beginning transaction: %w", err))
	}
	defer func() {
		if err != nil {
			rollbackWithError(tx, &err)
			err = interrupted(ctx, err)
		}
	}()

	stmt, err := tx.PrepareContext(ctx, upsertResultSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	var runID sql.NullString
	if s.runID != "" {
		runID = sql.NullString{String: s.runID, Valid: true}
	}

	day := dayString(result.Day)
	for _, id := range result.IDs() {
		v, _ := result.Get(id)
		if _, err = stmt.ExecContext(
			ctx,
			result.Station.Network,
			result.Station.Name,
			day,
			result.Metric,
			result.Version,
			id,
			v.Value,
			v.Digest,
			runID,
		); err != nil {
			return fmt.Errorf("inserting %s %s: %w", result.Metric, id, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SqliteStore) LookupDigest(ctx context.Context, key digest.Key) (sum []byte, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	err = db.QueryRowContext(
		ctx,
		selectDigestSQL,
		key.Network,
		key.Station,
		dayString(key.Day),
		key.Metric,
		key.Version,
		key.ResultID,
	).Scan(&sum)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up digest %s: %w", key, err)
	}
	return sum, nil
}

func (s *SqliteStore) Results(ctx context.Context, st station.Station, from, to time.Time) (records []Record, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	rows, err := db.QueryContext(ctx, selectResultsSQL, st.Network, st.Name, dayString(from), dayString(to))
	if err != nil {
		return nil, fmt.Errorf("querying results: %w", err)
	}
	defer closeWithError(rows, &err)

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

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		if s.writeDB != nil {
			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}
