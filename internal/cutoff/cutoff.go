// Package cutoff computes the daily reset boundary, a fixed wall-clock hour
// in a fixed UTC offset, independent of the host's local zone.
package cutoff

import (
	"time"

	"github.com/uptime-rewards/internal/config"
)

// Day is the exact spacing between two consecutive cutoffs.
const Day = 24 * time.Hour

// Calculator holds the offset and hour that define the cutoff.
type Calculator struct {
	// OffsetHours is the UTC offset of the reference zone, e.g. -4.
	OffsetHours int
	// Hour is the wall-clock hour in that zone at which the day ends.
	Hour int
}

// New returns a calculator for the given offset and hour.
func New(offsetHours, hour int) Calculator {
	return Calculator{OffsetHours: offsetHours, Hour: hour}
}

// FromConfig builds the calculator from the rewards settings.
func FromConfig(cfg config.RewardsConfig) Calculator {
	return New(cfg.CutoffOffsetHours, cfg.CutoffHour)
}

// TodayCutoff returns the cutoff instant on the calendar date that now falls
// on in the reference zone.
func (c Calculator) TodayCutoff(now time.Time) time.Time {
	shifted := now.UTC().Add(time.Duration(c.OffsetHours) * time.Hour)
	y, m, d := shifted.Date()
	// time.Date normalizes an hour of 24 or more into the next day
	return time.Date(y, m, d, c.Hour-c.OffsetHours, 0, 0, 0, time.UTC)
}

// NextCutoffAfter returns the first cutoff strictly after from.
func (c Calculator) NextCutoffAfter(from time.Time) time.Time {
	base := c.TodayCutoff(from)
	if from.Before(base) {
		return base
	}
	return base.Add(Day)
}

// PreviousCutoff returns the most recent cutoff at or before now.
func (c Calculator) PreviousCutoff(now time.Time) time.Time {
	return c.NextCutoffAfter(now).Add(-Day)
}

// ShouldRollover reports whether a cutoff has passed since lastReset. It
// returns the most recent cutoff at or before now, which becomes the new
// reset instant however many days were missed.
func (c Calculator) ShouldRollover(now, lastReset time.Time) (time.Time, bool) {
	prev := c.PreviousCutoff(now)
	return prev, lastReset.Before(prev)
}
