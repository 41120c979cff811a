// Package railsaudit provides the optional dispatch audit registry: a
// record of which (job_key, firing_instant) pairs have already been
// dispatched, used for deduplication during recovery and for
// operational visibility.
package railsaudit

import (
	"context"
	"time"
)

// Status is the outcome recorded for a dispatch attempt.
type Status string

const (
	StatusDispatched Status = "dispatched"
	StatusFailed     Status = "failed"
)

// Record is one persisted dispatch entry.
type Record struct {
	JobKey       string
	FiringAt     time.Time
	DispatchedAt time.Time
	NodeID       string
	Status       Status
}

// Registry is the audit backend contract. Logging is best-effort: a
// logging failure must never prevent or roll back the user callback
// invocation; callers are expected to swallow Log errors after logging
// them via the configured logger.
type Registry interface {
	Log(ctx context.Context, jobKey string, firing time.Time, nodeID string, status Status) error
	Find(ctx context.Context, jobKey string, firing time.Time) (Record, bool, error)
	Dispatched(ctx context.Context, jobKey string, firing time.Time) (bool, error)
}

// Cleaner is implemented by backends that can prune stale records.
// Recovery invokes Cleanup(recovery_window) after replay completes.
type Cleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}
