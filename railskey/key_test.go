package railskey_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/railscron/railscron/railskey"
)

func TestLockKeyAndIdempotencyKey(t *testing.T) {
	firing := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, "railscron:dispatch:m:1735689600", railskey.LockKey("railscron", "m", firing))
	require.Equal(t, "railscron-m-1735689600", railskey.IdempotencyKey("railscron", "m", firing))
}

func TestIdempotencyKeyDeterminism(t *testing.T) {
	a := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	b := a.In(time.FixedZone("test", 3600))

	require.Equal(t, railskey.IdempotencyKey("ns", "job", a), railskey.IdempotencyKey("ns", "job", b))
	require.NotEqual(t, railskey.IdempotencyKey("ns", "job", a), railskey.IdempotencyKey("ns", "other", a))
}

func TestJobKeyContainingColon(t *testing.T) {
	firing := time.Unix(1735689600, 0).UTC()
	key := railskey.LockKey("ns", "team:sync", firing)
	require.Equal(t, "ns:dispatch:team:sync:1735689600", key)

	parsed, err := railskey.ParseLockKey(key)
	require.NoError(t, err)
	require.Equal(t, "ns", parsed.Namespace)
	require.Equal(t, "team:sync", parsed.JobKey)
	require.Equal(t, int64(1735689600), parsed.UnixSeconds)
	require.False(t, parsed.LegacyDashed)
}

func TestParseLegacyDashedForm(t *testing.T) {
	parsed, err := railskey.ParseLockKey("ns-dispatch-job-1735689600")
	require.NoError(t, err)
	require.Equal(t, "ns", parsed.Namespace)
	require.Equal(t, "job", parsed.JobKey)
	require.Equal(t, int64(1735689600), parsed.UnixSeconds)
	require.True(t, parsed.LegacyDashed)
}

func TestParseLockKeyMalformed(t *testing.T) {
	_, err := railskey.ParseLockKey("garbage")
	require.Error(t, err)
}
