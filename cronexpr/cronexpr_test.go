package cronexpr_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/railscron/railscron/cronexpr"
)

func TestEnumerateEveryMinuteWithinWindow(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 30, 0, time.UTC)
	start := now.Add(-120 * time.Second)
	firings, err := cronexpr.Enumerate("* * * * *", start, now, time.UTC)
	require.NoError(t, err)
	require.Equal(t, []time.Time{
		time.Date(2024, 12, 31, 23, 59, 0, 0, time.UTC),
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}, firings)
}

func TestEnumerateAscendingNoDuplicates(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	firings, err := cronexpr.Enumerate("*/15 * * * *", start, end, time.UTC)
	require.NoError(t, err)
	require.Len(t, firings, 9)
	for i := 1; i < len(firings); i++ {
		require.True(t, firings[i].After(firings[i-1]))
	}
}

func TestEnumerateNeverFiringExpressionYieldsNothing(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(3, 0, 0)
	firings, err := cronexpr.Enumerate("0 0 31 2 *", start, end, time.UTC)
	require.NoError(t, err)
	require.Empty(t, firings)
}

func TestEnumerateInvalidExpression(t *testing.T) {
	_, err := cronexpr.Enumerate("*/61 * * * *", time.Now(), time.Now(), time.UTC)
	require.Error(t, err)
}

func TestEnumerateAliases(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 2)
	firings, err := cronexpr.Enumerate("@daily", start, end, time.UTC)
	require.NoError(t, err)
	require.Len(t, firings, 3)
}

func TestEnumerateDSTSpringForwardSkipsNonexistentInstant(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 2025-03-09: America/New_York clocks jump 02:00 -> 03:00; local
	// 02:30 never exists that day, so a window covering only that
	// calendar date yields zero firings.
	onlyDSTDay, err := cronexpr.Enumerate(
		"30 2 * * *",
		time.Date(2025, 3, 9, 0, 0, 0, 0, loc),
		time.Date(2025, 3, 9, 23, 59, 59, 0, loc),
		loc,
	)
	require.NoError(t, err)
	require.Empty(t, onlyDSTDay)

	// A wider window spanning the day before and after still fires
	// normally on both of those days, skipping only the DST date.
	spanning, err := cronexpr.Enumerate(
		"30 2 * * *",
		time.Date(2025, 3, 8, 0, 0, 0, 0, loc),
		time.Date(2025, 3, 10, 23, 59, 59, 0, loc),
		loc,
	)
	require.NoError(t, err)
	require.Len(t, spanning, 2)
	require.Equal(t, 8, spanning[0].Day())
	require.Equal(t, 10, spanning[1].Day())
	for _, f := range spanning {
		require.Equal(t, 2, f.Hour())
		require.Equal(t, 30, f.Minute())
	}
}

func TestEnumerateEmptyWindow(t *testing.T) {
	now := time.Now()
	firings, err := cronexpr.Enumerate("* * * * *", now, now.Add(-time.Second), time.UTC)
	require.NoError(t, err)
	require.Empty(t, firings)
}
