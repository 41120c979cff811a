package railsaudit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/railscron/railscron/railserr"
)

// SQL is a table-backed audit registry over rails_cron_dispatches, with
// a unique index on (key, fire_time).
type SQL struct {
	db          *sql.DB
	placeholder func(n int) string
	keyColumn   string
	createStmt  string
}

// NewSQLPostgres builds a SQL audit registry for a Postgres *sql.DB.
func NewSQLPostgres(db *sql.DB) *SQL {
	return &SQL{
		db:          db,
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
		keyColumn:   "key",
		createStmt: `
CREATE TABLE IF NOT EXISTS rails_cron_dispatches (
	id BIGSERIAL PRIMARY KEY,
	key TEXT NOT NULL,
	fire_time TIMESTAMPTZ NOT NULL,
	dispatched_at TIMESTAMPTZ NOT NULL,
	node_id TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (key, fire_time)
);
CREATE INDEX IF NOT EXISTS rails_cron_dispatches_dispatched_at_idx ON rails_cron_dispatches (dispatched_at);
CREATE INDEX IF NOT EXISTS rails_cron_dispatches_status_idx ON rails_cron_dispatches (status);
`,
	}
}

// NewSQLMySQL builds a SQL audit registry for a MySQL *sql.DB.
func NewSQLMySQL(db *sql.DB) *SQL {
	return &SQL{
		db:          db,
		placeholder: func(int) string { return "?" },
		keyColumn:   "`key`",
		createStmt: `
CREATE TABLE IF NOT EXISTS rails_cron_dispatches (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	` + "`key`" + ` VARCHAR(512) NOT NULL,
	fire_time DATETIME(6) NOT NULL,
	dispatched_at DATETIME(6) NOT NULL,
	node_id VARCHAR(255) NOT NULL,
	status VARCHAR(32) NOT NULL,
	created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
	updated_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
	UNIQUE KEY rails_cron_dispatches_key_fire_time_idx (` + "`key`" + `, fire_time),
	INDEX rails_cron_dispatches_dispatched_at_idx (dispatched_at),
	INDEX rails_cron_dispatches_status_idx (status)
);
`,
	}
}

// EnsureSchema issues the CREATE TABLE IF NOT EXISTS bootstrap.
func (s *SQL) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.createStmt); err != nil {
		return &railserr.BackendError{Op: "sql audit EnsureSchema", Cause: err}
	}
	return nil
}

// Log upserts a dispatch record for (key, fire_time). A second dispatch
// attempt for the same firing overwrites status/dispatched_at/node_id
// rather than erroring, so recovery replays remain idempotent.
func (s *SQL) Log(ctx context.Context, jobKey string, firing time.Time, nodeID string, status Status) error {
	// Portable across Postgres/MySQL without relying on either engine's
	// UPSERT syntax: delete-then-insert inside a driver-managed
	// auto-commit statement pair is sufficient here because the unique
	// index still rejects a concurrent duplicate insert, which surfaces
	// as a BackendError that the caller logs and otherwise ignores
	// (logging is best-effort per spec.md §4.5).
	deleteStmt := fmt.Sprintf(
		"DELETE FROM rails_cron_dispatches WHERE %s = %s AND fire_time = %s",
		s.keyColumn, s.placeholder(1), s.placeholder(2),
	)
	if _, err := s.db.ExecContext(ctx, deleteStmt, jobKey, firing); err != nil {
		return &railserr.BackendError{Op: "sql audit log (delete)", Cause: err}
	}

	insertStmt := fmt.Sprintf(
		"INSERT INTO rails_cron_dispatches (%s, fire_time, dispatched_at, node_id, status) VALUES (%s, %s, %s, %s, %s)",
		s.keyColumn, s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4), s.placeholder(5),
	)
	if _, err := s.db.ExecContext(ctx, insertStmt, jobKey, firing, time.Now(), nodeID, string(status)); err != nil {
		return &railserr.BackendError{Op: "sql audit log (insert)", Cause: err}
	}
	return nil
}

func (s *SQL) scanOne(ctx context.Context, query string, args ...any) (Record, bool, error) {
	row := s.db.QueryRowContext(ctx, query, args...)
	var rec Record
	var status string
	if err := row.Scan(&rec.JobKey, &rec.FiringAt, &rec.DispatchedAt, &rec.NodeID, &status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, &railserr.BackendError{Op: "sql audit scan", Cause: err}
	}
	rec.Status = Status(status)
	return rec, true, nil
}

func (s *SQL) Find(ctx context.Context, jobKey string, firing time.Time) (Record, bool, error) {
	query := fmt.Sprintf(
		"SELECT %s, fire_time, dispatched_at, node_id, status FROM rails_cron_dispatches WHERE %s = %s AND fire_time = %s",
		s.keyColumn, s.keyColumn, s.placeholder(1), s.placeholder(2),
	)
	return s.scanOne(ctx, query, jobKey, firing)
}

func (s *SQL) Dispatched(ctx context.Context, jobKey string, firing time.Time) (bool, error) {
	_, ok, err := s.Find(ctx, jobKey, firing)
	return ok, err
}

// FindByKey returns every record for jobKey, most recent first.
func (s *SQL) FindByKey(ctx context.Context, jobKey string) ([]Record, error) {
	query := fmt.Sprintf(
		"SELECT %s, fire_time, dispatched_at, node_id, status FROM rails_cron_dispatches WHERE %s = %s ORDER BY fire_time DESC",
		s.keyColumn, s.keyColumn, s.placeholder(1),
	)
	return s.query(ctx, query, jobKey)
}

// FindByNode returns every record dispatched by nodeID.
func (s *SQL) FindByNode(ctx context.Context, nodeID string) ([]Record, error) {
	query := fmt.Sprintf(
		"SELECT %s, fire_time, dispatched_at, node_id, status FROM rails_cron_dispatches WHERE node_id = %s ORDER BY fire_time DESC",
		s.keyColumn, s.placeholder(1),
	)
	return s.query(ctx, query, nodeID)
}

// FindByStatus returns every record with the given status.
func (s *SQL) FindByStatus(ctx context.Context, status Status) ([]Record, error) {
	query := fmt.Sprintf(
		"SELECT %s, fire_time, dispatched_at, node_id, status FROM rails_cron_dispatches WHERE status = %s ORDER BY fire_time DESC",
		s.keyColumn, s.placeholder(1),
	)
	return s.query(ctx, query, string(status))
}

func (s *SQL) query(ctx context.Context, query string, arg any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, &railserr.BackendError{Op: "sql audit query", Cause: err}
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var status string
		if err := rows.Scan(&rec.JobKey, &rec.FiringAt, &rec.DispatchedAt, &rec.NodeID, &status); err != nil {
			return nil, &railserr.BackendError{Op: "sql audit scan row", Cause: err}
		}
		rec.Status = Status(status)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &railserr.BackendError{Op: "sql audit rows", Cause: err}
	}
	return records, nil
}

// Cleanup deletes rows with fire_time older than now-olderThan, per
// spec.md's "records older than recovery_window are eligible for
// deletion".
func (s *SQL) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	stmt := fmt.Sprintf("DELETE FROM rails_cron_dispatches WHERE fire_time < %s", s.placeholder(1))
	res, err := s.db.ExecContext(ctx, stmt, cutoff)
	if err != nil {
		return 0, &railserr.BackendError{Op: "sql audit cleanup", Cause: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &railserr.BackendError{Op: "sql audit cleanup (rows affected)", Cause: err}
	}
	return n, nil
}

var (
	_ Registry = (*SQL)(nil)
	_ Cleaner  = (*SQL)(nil)
)
