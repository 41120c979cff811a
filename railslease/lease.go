// Package railslease provides pluggable distributed mutual exclusion,
// keyed on (job, firing_instant), for the coordination kernel.
//
// Every backend's Acquire succeeds iff no holder currently owns the key,
// and WithLease is a convenience wrapper. Redis, SQLAdvisory and
// SQLNamedLock release only a lease this process holds; Memory and
// SQLRow keep no holder identity and release the key whoever holds it. Backend-specific
// failures surface wrapped in *railserr.BackendError so the coordinator
// can uniformly treat them as "did not acquire".
package railslease

import (
	"context"
	"time"
)

// Backend is the distributed lease contract every variant implements.
type Backend interface {
	// Acquire atomically succeeds iff no holder currently owns key. On
	// success the holder is recorded with an expiry of now+ttl (backends
	// that ignore ttl document so explicitly).
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release releases the lease on key (only when the calling holder
	// owns it, for backends that track holders). Safe to call when not
	// held; returns false in that case.
	Release(ctx context.Context, key string) (bool, error)
}

// WithLease acquires key, runs body if granted, and releases afterwards.
// body is skipped and nil returned if the lease is not granted; an
// Acquire error is returned as is, also without running body. A body
// error propagates after release is attempted.
func WithLease(ctx context.Context, backend Backend, key string, ttl time.Duration, body func(context.Context) error) error {
	granted, err := backend.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	if !granted {
		return nil
	}
	defer backend.Release(ctx, key)
	return body(ctx)
}
