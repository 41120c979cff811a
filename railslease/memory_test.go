package railslease_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/railscron/railscron/railslease"
)

func TestMemoryAcquireExclusive(t *testing.T) {
	backend := railslease.NewMemory()
	ctx := context.Background()

	granted, err := backend.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, granted)

	granted, err = backend.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.False(t, granted)
}

func TestMemoryLeaseExpiresAtTTL(t *testing.T) {
	backend := railslease.NewMemory()
	ctx := context.Background()

	granted, err := backend.Acquire(ctx, "k", time.Millisecond)
	require.NoError(t, err)
	require.True(t, granted)

	time.Sleep(5 * time.Millisecond)

	granted, err = backend.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, granted, "expired lease must be treated as free")
}

func TestMemoryReleaseThenReacquire(t *testing.T) {
	backend := railslease.NewMemory()
	ctx := context.Background()

	_, err := backend.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	released, err := backend.Release(ctx, "k")
	require.NoError(t, err)
	require.True(t, released)

	granted, err := backend.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, granted)
}

func TestMemoryReleaseWhenNotHeld(t *testing.T) {
	backend := railslease.NewMemory()
	released, err := backend.Release(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, released)
}

func TestWithLeaseSkipsBodyWhenNotGranted(t *testing.T) {
	backend := railslease.NewMemory()
	ctx := context.Background()

	_, err := backend.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	called := false
	err = railslease.WithLease(ctx, backend, "k", time.Minute, func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	require.False(t, called)
}

func TestWithLeaseRunsBodyAndReleases(t *testing.T) {
	backend := railslease.NewMemory()
	ctx := context.Background()

	called := false
	err := railslease.WithLease(ctx, backend, "k", time.Minute, func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, called)
	require.Equal(t, 0, backend.Len())
}
