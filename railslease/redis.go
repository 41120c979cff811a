package railslease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/railscron/railscron/railserr"
)

// releaseScript performs a compare-and-delete: it only deletes the key if
// the value still matches the caller's own random token, so one process
// can never release a lease it does not hold. Modeled on the compare-
// and-swap style already used for cache invalidation in the retrieved
// pack's cache backends, generalized here from a plain SET/DEL pair to a
// single atomic script.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Redis is a distributed lease backend over github.com/redis/go-redis/v9.
// TTL is enforced natively by Redis via SET ... PX.
type Redis struct {
	client *redis.Client
	tokens tokenStore
}

// tokenStore remembers which random token this process used to acquire
// each key, so Release can present it to the compare-and-delete script
// without the caller having to track it.
type tokenStore struct {
	mu     chan struct{}
	tokens map[string]string
}

func newTokenStore() tokenStore {
	ts := tokenStore{mu: make(chan struct{}, 1), tokens: make(map[string]string)}
	ts.mu <- struct{}{}
	return ts
}

func (ts tokenStore) set(key, token string) {
	<-ts.mu
	ts.tokens[key] = token
	ts.mu <- struct{}{}
}

func (ts tokenStore) popIfPresent(key string) (string, bool) {
	<-ts.mu
	token, ok := ts.tokens[key]
	if ok {
		delete(ts.tokens, key)
	}
	ts.mu <- struct{}{}
	return token, ok
}

// NewRedis wraps an existing *redis.Client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, tokens: newTokenStore()}
}

// Acquire issues SET key token NX PX ttl. The random token prevents a
// process from releasing a foreign holder's lease after its own lease
// expired and was re-acquired by someone else.
func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return false, &railserr.BackendError{Op: "redis lease acquire", Cause: err}
	}
	if ok {
		r.tokens.set(key, token)
	}
	return ok, nil
}

// Release runs the compare-and-delete script using this process's
// remembered token for key. Returns false without contacting Redis if
// this process never acquired key.
func (r *Redis) Release(ctx context.Context, key string) (bool, error) {
	token, ok := r.tokens.popIfPresent(key)
	if !ok {
		return false, nil
	}
	res, err := releaseScript.Run(ctx, r.client, []string{key}, token).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, &railserr.BackendError{Op: "redis lease release", Cause: err}
	}
	return res == 1, nil
}

var _ Backend = (*Redis)(nil)

func (r *Redis) String() string {
	return fmt.Sprintf("railslease.Redis(%s)", r.client.Options().Addr)
}
