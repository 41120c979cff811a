// Package cronexpr parses cron expressions and enumerates every firing
// instant inside a time interval. It wraps github.com/robfig/cron/v3
// behind an enumeration API geared towards windowed coordination instead
// of single-step "what's next".
package cronexpr

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/railscron/railscron/railserr"
)

// maxEnumerationSpan bounds how far forward Enumerate will step looking
// for the next firing before concluding the expression is firing-free in
// the requested window. Guards against pathological expressions such as
// "0 0 31 2 *" that never fire.
const maxEnumerationSpan = 4 * 365 * 24 * time.Hour

var parser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// Parse validates expr and returns *railserr.InvalidExpression on failure.
func Parse(expr string) (cronlib.Schedule, error) {
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, &railserr.InvalidExpression{Expression: expr, Cause: err}
	}
	// robfig/cron accepts a step wider than its field (e.g. "*/61" in the
	// minute field, which would fire only at minute 0); reject it here.
	fields := strings.Fields(expr)
	if len(fields) > 0 && strings.Contains(fields[0], "TZ=") {
		fields = fields[1:]
	}
	spans := []int{60, 24, 31, 12, 7}
	for i, field := range fields {
		for _, part := range strings.Split(field, ",") {
			if slash := strings.Index(part, "/"); slash >= 0 && i < len(spans) {
				if step, convErr := strconv.Atoi(part[slash+1:]); convErr == nil && step > spans[i] {
					return nil, &railserr.InvalidExpression{Expression: expr, Cause: fmt.Errorf("step %d exceeds the range of field %d", step, i+1)}
				}
			}
		}
	}
	return schedule, nil
}

// Enumerate returns the ordered, ascending, finite sequence of firing
// instants f such that start <= f <= end, for expr evaluated in loc.
//
// It computes the next firing strictly after a cursor, starting one
// second before start so that a firing exactly at start is included, and
// advances the cursor by at least one second each step so that a
// schedule which does not strictly advance can never spin forever.
func Enumerate(expr string, start, end time.Time, loc *time.Location) ([]time.Time, error) {
	if end.Before(start) {
		return nil, nil
	}
	if loc == nil {
		loc = time.Local
	}

	schedule, err := Parse(expr)
	if err != nil {
		return nil, err
	}

	start = start.In(loc)
	end = end.In(loc)

	deadline := start.Add(maxEnumerationSpan)
	if end.Before(deadline) {
		deadline = end
	}

	var firings []time.Time
	cursor := start.Add(-time.Second)
	for {
		next := schedule.Next(cursor)
		if next.IsZero() || next.After(end) {
			break
		}
		if !next.After(cursor) {
			// Defensive: a well-formed robfig/cron schedule always
			// advances, but never trust that unconditionally.
			cursor = cursor.Add(time.Second)
			if cursor.After(deadline) {
				break
			}
			continue
		}
		if !next.Before(start) {
			firings = append(firings, next)
		}
		cursor = next
		if cursor.After(deadline) {
			break
		}
	}
	return firings, nil
}

// MustEnumerate is Enumerate but panics on error; useful in tests that
// already validated the expression.
func MustEnumerate(expr string, start, end time.Time, loc *time.Location) []time.Time {
	firings, err := Enumerate(expr, start, end, loc)
	if err != nil {
		panic(fmt.Sprintf("cronexpr: %v", err))
	}
	return firings
}
