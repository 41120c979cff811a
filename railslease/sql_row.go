package railslease

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/railscron/railscron/railserr"
)

// SQLRow is a row-based lease backend suitable for any database/sql
// driver with a unique constraint on (key). Acquisition is an insert
// into a rails_cron_locks table with explicit acquired_at/expires_at
// columns; a unique-violation on insert means someone else holds it.
type SQLRow struct {
	db      *sql.DB
	dialect rowDialect
}

// rowDialect isolates the handful of SQL constructs (placeholders,
// column quoting, unique-violation detection, table DDL) that differ between Postgres
// and MySQL so SQLRow's algorithm stays driver-agnostic.
type rowDialect struct {
	name            string
	placeholder     func(n int) string
	keyColumn       string
	uniqueViolation func(error) bool
	createTableStmt string
}

// PostgresDialect targets lib/pq / any Postgres driver.
var PostgresDialect = rowDialect{
	name:        "postgres",
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	keyColumn:   "key",
	uniqueViolation: func(err error) bool {
		// lib/pq surfaces unique-violation as *pq.Error with Code
		// "23505"; kept as a string match here so this package does
		// not import driver-specific error types.
		return err != nil && (strings.Contains(err.Error(), "23505") || strings.Contains(err.Error(), "duplicate key value"))
	},
	createTableStmt: `
CREATE TABLE IF NOT EXISTS rails_cron_locks (
	id BIGSERIAL PRIMARY KEY,
	key TEXT UNIQUE NOT NULL,
	acquired_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS rails_cron_locks_expires_at_idx ON rails_cron_locks (expires_at);
`,
}

// MySQLDialect targets github.com/go-sql-driver/mysql.
var MySQLDialect = rowDialect{
	name:        "mysql",
	placeholder: func(int) string { return "?" },
	keyColumn:   "`key`",
	uniqueViolation: func(err error) bool {
		return err != nil && (strings.Contains(err.Error(), "1062") || strings.Contains(err.Error(), "Duplicate entry"))
	},
	createTableStmt: `
CREATE TABLE IF NOT EXISTS rails_cron_locks (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	` + "`key`" + ` VARCHAR(512) UNIQUE NOT NULL,
	acquired_at DATETIME(6) NOT NULL,
	expires_at DATETIME(6) NOT NULL,
	created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
	updated_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
	INDEX rails_cron_locks_expires_at_idx (expires_at)
);
`,
}

// NewSQLRow builds a row-based lease backend for db, using dialect for
// the handful of driver-specific SQL constructs.
func NewSQLRow(db *sql.DB, dialect rowDialect) *SQLRow {
	return &SQLRow{db: db, dialect: dialect}
}

// EnsureSchema issues the CREATE TABLE IF NOT EXISTS bootstrap for
// rails_cron_locks. It is a minimal bootstrap, not a migration
// framework — migration tooling is explicitly out of this system's
// scope.
func (s *SQLRow) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, s.dialect.createTableStmt)
	if err != nil {
		return &railserr.BackendError{Op: "sql row EnsureSchema", Cause: err}
	}
	return nil
}

// Acquire inserts a row for key. On a unique-constraint failure it
// prunes rows whose expires_at has passed and retries the insert exactly
// once, per spec.md §4.4 variant 5.
func (s *SQLRow) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	now := time.Now()
	granted, err := s.tryInsert(ctx, key, now, now.Add(ttl))
	if err != nil {
		return false, err
	}
	if granted {
		return true, nil
	}

	if _, pruneErr := s.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM rails_cron_locks WHERE expires_at < %s", s.dialect.placeholder(1)),
		now,
	); pruneErr != nil {
		return false, &railserr.BackendError{Op: "sql row prune", Cause: pruneErr}
	}

	return s.tryInsert(ctx, key, now, now.Add(ttl))
}

func (s *SQLRow) tryInsert(ctx context.Context, key string, acquiredAt, expiresAt time.Time) (bool, error) {
	stmt := fmt.Sprintf(
		"INSERT INTO rails_cron_locks (%s, acquired_at, expires_at) VALUES (%s, %s, %s)",
		s.dialect.keyColumn, s.dialect.placeholder(1), s.dialect.placeholder(2), s.dialect.placeholder(3),
	)
	_, err := s.db.ExecContext(ctx, stmt, key, acquiredAt, expiresAt)
	if err == nil {
		return true, nil
	}
	if s.dialect.uniqueViolation(err) {
		return false, nil
	}
	return false, &railserr.BackendError{Op: "sql row acquire", Cause: err}
}

// Release deletes the row for key. Rows carry no holder identity, so
// this removes the lease whichever process acquired it.
func (s *SQLRow) Release(ctx context.Context, key string) (bool, error) {
	stmt := fmt.Sprintf("DELETE FROM rails_cron_locks WHERE %s = %s", s.dialect.keyColumn, s.dialect.placeholder(1))
	res, err := s.db.ExecContext(ctx, stmt, key)
	if err != nil {
		return false, &railserr.BackendError{Op: "sql row release", Cause: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &railserr.BackendError{Op: "sql row release (rows affected)", Cause: err}
	}
	return n > 0, nil
}

var _ Backend = (*SQLRow)(nil)
