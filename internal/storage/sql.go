package storage

import (
	_ "embed"
)

const (
	upsertResultSQL = `
INSERT INTO metric_results (
                            network,
                            station,
                            day,
                            metric,
                            version,
                            result_id,
                            value,
                            digest,
                            run_id,
                            updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT (network, station, day, metric, result_id) DO UPDATE SET
    version    = excluded.version,
    value      = excluded.value,
    digest     = excluded.digest,
    run_id     = excluded.run_id,
    updated_at = excluded.updated_at`

	selectDigestSQL = `
SELECT
    digest
FROM metric_results
WHERE
    network = ?
    AND station = ?
    AND day = ?
    AND metric = ?
    AND version = ?
    AND result_id = ?`

	selectResultsSQL = `
SELECT
    network,
    station,
    day,
    metric,
    version,
    result_id,
    value,
    digest,
    COALESCE(run_id, ''),
    updated_at
FROM metric_results
WHERE
    network = ?
    AND station = ?
    AND day >= ?
    AND day <= ?
ORDER BY day, metric, result_id`

	upsertResultPgSQL = `
INSERT INTO metric_results (network, station, day, metric, version, result_id, value, digest, run_id, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
ON CONFLICT (network, station, day, metric, result_id) DO UPDATE SET
    version    = EXCLUDED.version,
    value      = EXCLUDED.value,
    digest     = EXCLUDED.digest,
    run_id     = EXCLUDED.run_id,
    updated_at = EXCLUDED.updated_at`

	selectDigestPgSQL = `
SELECT digest
FROM metric_results
WHERE network = $1
  AND station = $2
  AND day = $3
  AND metric = $4
  AND version = $5
  AND result_id = $6`

	selectResultsPgSQL = `
SELECT network, station, to_char(day, 'YYYY-MM-DD'), metric, version, result_id, value, digest, COALESCE(run_id, ''), updated_at
FROM metric_results
WHERE network = $1
  AND station = $2
  AND day BETWEEN $3 AND $4
ORDER BY day, metric, result_id`
)

//go:embed schema.sql
var schemaSQL string

//go:embed schema_postgres.sql
var schemaPgSQL string
