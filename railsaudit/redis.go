package railsaudit

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/railscron/railscron/railserr"
)

const defaultRedisTTL = 7 * 24 * time.Hour

// redisRecord is the JSON wire shape stored per key, matching the
// teacher's own encoding/json usage in internal/http/job_server.go.
type redisRecord struct {
	JobKey       string    `json:"job_key"`
	FiringAt     time.Time `json:"firing_at"`
	DispatchedAt time.Time `json:"dispatched_at"`
	NodeID       string    `json:"node_id"`
	Status       Status    `json:"status"`
}

// Redis is an audit registry storing one key per record at
// "{namespace}:cron_dispatch:{job_key}:{unix_seconds}", relying on Redis
// key expiration for cleanup.
type Redis struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

// NewRedis builds a Redis-backed audit registry under namespace. ttl of
// zero uses the default 7-day retention.
func NewRedis(client *redis.Client, namespace string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	return &Redis{client: client, namespace: namespace, ttl: ttl}
}

func (r *Redis) recordKey(jobKey string, firing time.Time) string {
	return r.namespace + ":cron_dispatch:" + jobKey + ":" + strconv.FormatInt(firing.Unix(), 10)
}

func (r *Redis) Log(ctx context.Context, jobKey string, firing time.Time, nodeID string, status Status) error {
	rec := redisRecord{
		JobKey:       jobKey,
		FiringAt:     firing,
		DispatchedAt: time.Now(),
		NodeID:       nodeID,
		Status:       status,
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return &railserr.BackendError{Op: "redis audit marshal", Cause: err}
	}
	if err := r.client.Set(ctx, r.recordKey(jobKey, firing), payload, r.ttl).Err(); err != nil {
		return &railserr.BackendError{Op: "redis audit log", Cause: err}
	}
	return nil
}

func (r *Redis) Find(ctx context.Context, jobKey string, firing time.Time) (Record, bool, error) {
	raw, err := r.client.Get(ctx, r.recordKey(jobKey, firing)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, &railserr.BackendError{Op: "redis audit find", Cause: err}
	}
	var rec redisRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, false, &railserr.BackendError{Op: "redis audit unmarshal", Cause: err}
	}
	return Record{
		JobKey:       rec.JobKey,
		FiringAt:     rec.FiringAt,
		DispatchedAt: rec.DispatchedAt,
		NodeID:       rec.NodeID,
		Status:       rec.Status,
	}, true, nil
}

func (r *Redis) Dispatched(ctx context.Context, jobKey string, firing time.Time) (bool, error) {
	_, ok, err := r.Find(ctx, jobKey, firing)
	return ok, err
}

var _ Registry = (*Redis)(nil)
