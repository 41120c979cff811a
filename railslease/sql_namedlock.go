package railslease

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"sync"
	"time"

	"github.com/railscron/railscron/railserr"
)

// mysqlLockNameLimit is the maximum length MySQL accepts for a
// GET_LOCK/RELEASE_LOCK name.
const mysqlLockNameLimit = 64

// SQLNamedLock is a MySQL named-lock lease backend using
// GET_LOCK(name, timeout)/RELEASE_LOCK(name). Like SQLAdvisory, it is
// connection-scoped and ignores ttl.
type SQLNamedLock struct {
	db *sql.DB

	mu    sync.Mutex
	conns map[string]*sql.Conn
}

// NewSQLNamedLock wraps an existing MySQL *sql.DB.
func NewSQLNamedLock(db *sql.DB) *SQLNamedLock {
	return &SQLNamedLock{db: db, conns: make(map[string]*sql.Conn)}
}

// normalizeLockName shortens key deterministically to
// "prefix:first_16_hex_of_sha256(key)" when it exceeds MySQL's 64-byte
// limit, per spec.md §4.4 variant 4, so distinct long keys never collide
// on truncation.
func normalizeLockName(key string) string {
	if len(key) <= mysqlLockNameLimit {
		return key
	}
	sum := sha256.Sum256([]byte(key))
	prefix := key[:mysqlLockNameLimit-1-16-len("railscron:")]
	return "railscron:" + prefix + ":" + hex.EncodeToString(sum[:])[:16]
}

// Acquire reserves a dedicated connection and calls GET_LOCK(name, 0),
// a non-blocking attempt.
func (s *SQLNamedLock) Acquire(ctx context.Context, key string, _ time.Duration) (bool, error) {
	name := normalizeLockName(key)

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return false, &railserr.BackendError{Op: "sql named-lock acquire (reserve conn)", Cause: err}
	}

	var granted int
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, 0)", name).Scan(&granted); err != nil {
		conn.Close()
		return false, &railserr.BackendError{Op: "sql named-lock acquire", Cause: err}
	}
	if granted != 1 {
		conn.Close()
		return false, nil
	}

	s.mu.Lock()
	s.conns[key] = conn
	s.mu.Unlock()
	return true, nil
}

// Release calls RELEASE_LOCK on the pinned connection and returns it.
func (s *SQLNamedLock) Release(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	conn, held := s.conns[key]
	if held {
		delete(s.conns, key)
	}
	s.mu.Unlock()
	if !held {
		return false, nil
	}
	defer conn.Close()

	name := normalizeLockName(key)
	var released int
	if err := conn.QueryRowContext(ctx, "SELECT RELEASE_LOCK(?)", name).Scan(&released); err != nil {
		return false, &railserr.BackendError{Op: "sql named-lock release", Cause: err}
	}
	return released == 1, nil
}

var _ Backend = (*SQLNamedLock)(nil)
