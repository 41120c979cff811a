package railsclock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/railscron/railscron/railsclock"
)

func TestMutableClock(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 30, 0, time.UTC)
	clock := railsclock.NewMutable(start)
	require.Equal(t, start, clock.Now())

	next := clock.Advance(30 * time.Second)
	require.Equal(t, start.Add(30*time.Second), next)
	require.Equal(t, next, clock.Now())

	clock.Set(start)
	require.Equal(t, start, clock.Now())
}

func TestSystemClockUsesLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	clock := railsclock.NewSystem(loc)
	require.Equal(t, loc, clock.Now().Location())
}
