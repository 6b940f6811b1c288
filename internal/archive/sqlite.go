package archive

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteSink archives rows into a local SQLite file. Intended for
// development and tests; production uses the Postgres sink.
type SQLiteSink struct {
	db    *sql.DB
	table string
}

// NewSQLiteSink opens (or creates) the database file and ensures the
// archive table exists.
func NewSQLiteSink(dsn, table string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "archive: open sqlite database")
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "archive: set pragma %s", p)
		}
	}

	s := &SQLiteSink{db: db, table: table}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteSink) migrate() error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
		eventid TEXT NOT NULL,
		eventtype TEXT NOT NULL,
		eventtimestamp TEXT NOT NULL,
		leadid TEXT,
		email TEXT,
		status TEXT,
		sourcename TEXT,
		leadsource TEXT,
		topic TEXT,
		reference_number TEXT,
		payload TEXT,
		archived_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`, s.table)

	if _, err := s.db.Exec(ddl); err != nil {
		return eris.Wrapf(err, "archive: create table %s", s.table)
	}
	return nil
}

// Insert writes rows one statement at a time inside a transaction so a bad
// row is reported individually without losing the rest.
func (s *SQLiteSink) Insert(ctx context.Context, rows []Row) ([]RowError, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "archive: begin tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %q
		(eventid, eventtype, eventtimestamp, leadid, email, status, sourcename, leadsource, topic, reference_number, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table))
	if err != nil {
		return nil, eris.Wrap(err, "archive: prepare insert")
	}
	defer stmt.Close()

	var failed []RowError
	for _, r := range rows {
		_, err := stmt.ExecContext(ctx,
			r.EventID, r.EventType, r.EventTimestamp.UTC().Format("2006-01-02 15:04:05"),
			r.LeadID, r.Email, r.Status,
			r.SourceName, r.LeadSource, r.Topic,
			r.ReferenceNumber, string(r.Payload),
		)
		if err != nil {
			failed = append(failed, RowError{Row: r, Err: eris.Wrap(err, "archive: insert row")})
		}
	}

	if err := tx.Commit(); err != nil {
		return failed, eris.Wrap(err, "archive: commit tx")
	}
	return failed, nil
}

// Close closes the database file.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
