package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS outbox_jobs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	job_type TEXT NOT NULL,
	correlation_key TEXT,
	payload TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	attempts INTEGER NOT NULL DEFAULT 0,
	last_error TEXT,
	last_error_detail TEXT,
	next_attempt_at TIMESTAMP,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	sent_at TIMESTAMP,
	processing_at TIMESTAMP
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_outbox_jobs_dedupe
	ON outbox_jobs (job_type, correlation_key) WHERE correlation_key IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_outbox_jobs_due
	ON outbox_jobs (status, next_attempt_at, id);
`

// SQLiteRepository stores outbox jobs in the membership site's SQLite
// database. The schema is created on construction if missing.
type SQLiteRepository struct {
	sqlRepository
}

func NewSQLiteRepository(db *sql.DB) (*SQLiteRepository, error) {
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("create outbox schema: %w", err)
	}
	return &SQLiteRepository{sqlRepository{
		db:          db,
		system:      "sqlite",
		rebind:      func(q string) string { return q },
		isDuplicate: sqliteIsDuplicate,
	}}, nil
}

func sqliteIsDuplicate(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
