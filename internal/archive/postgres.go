package archive

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// Pool is the subset of pgxpool.Pool the sink uses. pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Ping(ctx context.Context) error
	Close()
}

// PostgresSink archives rows into a Postgres table.
type PostgresSink struct {
	pool  Pool
	table string
}

// NewPostgresSink connects to Postgres, verifies the connection, and ensures
// the archive table exists.
func NewPostgresSink(ctx context.Context, databaseURL, table string) (*PostgresSink, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "archive: parse database URL")
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "archive: create connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "archive: ping database")
	}

	s := &PostgresSink{pool: pool, table: table}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresSinkWithPool wraps an existing pool. The caller owns migration.
func NewPostgresSinkWithPool(pool Pool, table string) *PostgresSink {
	return &PostgresSink{pool: pool, table: table}
}

func (s *PostgresSink) migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		eventid TEXT NOT NULL,
		eventtype TEXT NOT NULL,
		eventtimestamp TIMESTAMPTZ NOT NULL,
		leadid TEXT,
		email TEXT,
		status TEXT,
		sourcename TEXT,
		leadsource TEXT,
		topic TEXT,
		reference_number TEXT,
		payload JSONB,
		archived_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, sanitizeTable(s.table))

	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return eris.Wrapf(err, "archive: create table %s", s.table)
	}
	return nil
}

// Insert writes rows in one round trip using a pgx batch. Failures are
// reported per row so the buffer can log and drop them.
func (s *PostgresSink) Insert(ctx context.Context, rows []Row) ([]RowError, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	sql := fmt.Sprintf(`INSERT INTO %s
		(eventid, eventtype, eventtimestamp, leadid, email, status, sourcename, leadsource, topic, reference_number, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		sanitizeTable(s.table))

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(sql,
			r.EventID, r.EventType, r.EventTimestamp,
			r.LeadID, r.Email, r.Status,
			r.SourceName, r.LeadSource, r.Topic,
			r.ReferenceNumber, r.Payload,
		)
	}

	br := s.pool.SendBatch(ctx, batch)

	var failed []RowError
	for _, r := range rows {
		if _, err := br.Exec(); err != nil {
			failed = append(failed, RowError{Row: r, Err: eris.Wrap(err, "archive: insert row")})
		}
	}
	if err := br.Close(); err != nil {
		return failed, eris.Wrap(err, "archive: close batch")
	}
	return failed, nil
}

// Close releases the connection pool.
func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}

// sanitizeTable handles schema-qualified table names like "analytics.events".
func sanitizeTable(table string) string {
	if i := strings.IndexByte(table, '.'); i >= 0 {
		return pgx.Identifier{table[:i], table[i+1:]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}
