package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS outbox_jobs (
	id BIGSERIAL PRIMARY KEY,
	job_type TEXT NOT NULL,
	correlation_key TEXT,
	payload TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	attempts INTEGER NOT NULL DEFAULT 0,
	last_error TEXT,
	last_error_detail TEXT,
	next_attempt_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	sent_at TIMESTAMPTZ,
	processing_at TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_outbox_jobs_dedupe
	ON outbox_jobs (job_type, correlation_key) WHERE correlation_key IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_outbox_jobs_due
	ON outbox_jobs (status, next_attempt_at, id);
`

// PostgresRepository stores outbox jobs in PostgreSQL for larger
// installs of the site.
type PostgresRepository struct {
	sqlRepository
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{sqlRepository{
		db:          db,
		system:      "postgresql",
		rebind:      rebindPositional,
		isDuplicate: postgresIsDuplicate,
	}}
}

// EnsureSchema creates the outbox table and indexes if missing.
func (p *PostgresRepository) EnsureSchema() error {
	if _, err := p.db.Exec(postgresSchema); err != nil {
		return fmt.Errorf("create outbox schema: %w", err)
	}
	return nil
}

func postgresIsDuplicate(err error) bool {
	var pe *pq.Error
	return errors.As(err, &pe) && pe.Code == "23505"
}

// rebindPositional rewrites '?' placeholders to postgres-style $1..$n.
func rebindPositional(query string) string {
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}
