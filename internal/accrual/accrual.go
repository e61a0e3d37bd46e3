// Package accrual converts running wall-clock time into points at one point
// per second, splitting the interval at every daily cutoff it crosses.
package accrual

import (
	"time"

	"github.com/uptime-rewards/internal/cutoff"
)

// DailyState is the daily counter as it stood before the interval.
type DailyState struct {
	Points      int64
	LastResetAt time.Time
}

// Result is the outcome of advancing over one interval.
type Result struct {
	// TotalDelta is the number of whole seconds accrued.
	TotalDelta int64
	// DailyPoints is the daily counter after the interval.
	DailyPoints int64
	// LastResetAt is the most recent cutoff crossed, or the previous value.
	LastResetAt time.Time
	// Reset reports whether at least one cutoff was crossed.
	Reset bool
	// Cursor is the instant accounted up to. Sub-second remainders are left
	// after it so the next interval picks them up.
	Cursor time.Time
}

// Advance accrues the interval [from, to] for a running session. A stopped
// session or an empty interval is a no-op that returns from as the cursor.
func Advance(cal cutoff.Calculator, from, to time.Time, running bool, daily DailyState) Result {
	res := Result{
		DailyPoints: daily.Points,
		LastResetAt: daily.LastResetAt,
		Cursor:      from,
	}
	if !running || !to.After(from) {
		return res
	}

	cursor := from
	var sinceReset int64
	for {
		remaining := int64(to.Sub(cursor) / time.Second)
		if remaining <= 0 {
			break
		}

		next := cal.NextCutoffAfter(cursor)
		toCutoff := int64(next.Sub(cursor) / time.Second)
		if toCutoff == 0 {
			// less than a second before the cutoff: land on it
			cursor = next
			res.Reset = true
			res.LastResetAt = next
			sinceReset = 0
			continue
		}

		chunk := remaining
		if toCutoff < chunk {
			chunk = toCutoff
		}
		res.TotalDelta += chunk
		cursor = cursor.Add(time.Duration(chunk) * time.Second)

		if !cursor.Before(next) {
			res.Reset = true
			res.LastResetAt = next
			sinceReset = 0
		} else {
			sinceReset += chunk
		}
	}

	if res.Reset {
		res.DailyPoints = sinceReset
	} else {
		res.DailyPoints = daily.Points + sinceReset
	}
	res.Cursor = cursor
	return res
}
