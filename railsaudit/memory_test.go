package railsaudit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/railscron/railscron/railsaudit"
)

func TestMemoryLogAndDispatched(t *testing.T) {
	reg := railsaudit.NewMemory()
	ctx := context.Background()
	firing := time.Unix(1735689600, 0).UTC()

	dispatched, err := reg.Dispatched(ctx, "job", firing)
	require.NoError(t, err)
	require.False(t, dispatched)

	require.NoError(t, reg.Log(ctx, "job", firing, "node-1", railsaudit.StatusDispatched))

	dispatched, err = reg.Dispatched(ctx, "job", firing)
	require.NoError(t, err)
	require.True(t, dispatched)

	rec, ok, err := reg.Find(ctx, "job", firing)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "node-1", rec.NodeID)
	require.Equal(t, railsaudit.StatusDispatched, rec.Status)
}

func TestMemoryCleanupRemovesOldRecords(t *testing.T) {
	reg := railsaudit.NewMemory()
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	recent := time.Now().Add(-time.Minute)

	require.NoError(t, reg.Log(ctx, "job", old, "node-1", railsaudit.StatusDispatched))
	require.NoError(t, reg.Log(ctx, "job", recent, "node-1", railsaudit.StatusDispatched))

	removed, err := reg.Cleanup(ctx, 24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	dispatched, err := reg.Dispatched(ctx, "job", old)
	require.NoError(t, err)
	require.False(t, dispatched)

	dispatched, err = reg.Dispatched(ctx, "job", recent)
	require.NoError(t, err)
	require.True(t, dispatched)
}
