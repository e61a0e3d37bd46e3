package accrual

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/uptime-rewards/internal/cutoff"
)

var cal = cutoff.New(-4, 20)

// firstCut is 20:00 at -4 on 2024-03-10.
var firstCut = time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)

func TestAdvance_NotRunning(t *testing.T) {
	from := firstCut.Add(-time.Hour)
	daily := DailyState{Points: 42, LastResetAt: firstCut.Add(-cutoff.Day)}

	res := Advance(cal, from, from.Add(time.Hour), false, daily)

	assert.Equal(t, int64(0), res.TotalDelta)
	assert.Equal(t, int64(42), res.DailyPoints)
	assert.True(t, res.Cursor.Equal(from))
	assert.False(t, res.Reset)
}

func TestAdvance_EmptyOrBackwardsInterval(t *testing.T) {
	from := firstCut.Add(-time.Hour)
	daily := DailyState{Points: 7}

	res := Advance(cal, from, from, true, daily)
	assert.True(t, res.Cursor.Equal(from))
	assert.Equal(t, int64(7), res.DailyPoints)

	res = Advance(cal, from, from.Add(-time.Minute), true, daily)
	assert.True(t, res.Cursor.Equal(from))
	assert.Equal(t, int64(0), res.TotalDelta)
}

func TestAdvance_SubSecondKeepsRemainder(t *testing.T) {
	from := firstCut.Add(-time.Hour)
	res := Advance(cal, from, from.Add(900*time.Millisecond), true, DailyState{})

	assert.Equal(t, int64(0), res.TotalDelta)
	assert.True(t, res.Cursor.Equal(from))

	res = Advance(cal, from, from.Add(2500*time.Millisecond), true, DailyState{Points: 1})
	assert.Equal(t, int64(2), res.TotalDelta)
	assert.Equal(t, int64(3), res.DailyPoints)
	assert.True(t, res.Cursor.Equal(from.Add(2*time.Second)))
}

func TestAdvance_NoCutoffIsAdditive(t *testing.T) {
	from := firstCut.Add(-3 * time.Hour)
	daily := DailyState{Points: 100, LastResetAt: firstCut.Add(-cutoff.Day)}

	res := Advance(cal, from, from.Add(90*time.Minute), true, daily)

	assert.Equal(t, int64(5400), res.TotalDelta)
	assert.Equal(t, int64(5500), res.DailyPoints)
	assert.True(t, res.LastResetAt.Equal(daily.LastResetAt))
	assert.False(t, res.Reset)
}

func TestAdvance_SingleCutoff(t *testing.T) {
	from := firstCut.Add(-10 * time.Minute)
	daily := DailyState{Points: 5000, LastResetAt: firstCut.Add(-cutoff.Day)}

	res := Advance(cal, from, firstCut.Add(15*time.Minute), true, daily)

	assert.Equal(t, int64(25*60), res.TotalDelta)
	assert.Equal(t, int64(15*60), res.DailyPoints)
	assert.True(t, res.LastResetAt.Equal(firstCut))
	assert.True(t, res.Reset)
}

func TestAdvance_EndingExactlyOnCutoff(t *testing.T) {
	from := firstCut.Add(-time.Minute)
	res := Advance(cal, from, firstCut, true, DailyState{Points: 10})

	assert.Equal(t, int64(60), res.TotalDelta)
	assert.Equal(t, int64(0), res.DailyPoints)
	assert.True(t, res.LastResetAt.Equal(firstCut))
}

func TestAdvance_MultiDaySplit(t *testing.T) {
	from := firstCut.Add(-10 * time.Hour)
	to := firstCut.Add(cutoff.Day + 5*time.Hour)
	daily := DailyState{Points: 1234, LastResetAt: firstCut.Add(-cutoff.Day)}

	res := Advance(cal, from, to, true, daily)

	assert.Equal(t, int64((10+24+5)*3600), res.TotalDelta)
	assert.Equal(t, int64(5*3600), res.DailyPoints)
	assert.True(t, res.LastResetAt.Equal(firstCut.Add(cutoff.Day)))
	assert.True(t, res.Cursor.Equal(to))
}

func TestAdvance_FiftyHourGap(t *testing.T) {
	from := firstCut.Add(-3 * time.Hour)
	to := from.Add(50 * time.Hour)

	res := Advance(cal, from, to, true, DailyState{})

	assert.Equal(t, int64(50*3600), res.TotalDelta)
	// crosses firstCut and firstCut+24h, ends 23h after the second
	assert.Equal(t, int64(23*3600), res.DailyPoints)
	assert.True(t, res.LastResetAt.Equal(firstCut.Add(cutoff.Day)))
}

func TestAdvance_LandsOnCutoffFromSubSecondGap(t *testing.T) {
	from := firstCut.Add(-400 * time.Millisecond)
	res := Advance(cal, from, firstCut.Add(10*time.Second), true, DailyState{Points: 99})

	assert.Equal(t, int64(10), res.TotalDelta)
	assert.Equal(t, int64(10), res.DailyPoints)
	assert.True(t, res.Reset)
	assert.True(t, res.Cursor.Equal(firstCut.Add(10*time.Second)))
}

func TestAdvanceProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	base := firstCut.Add(-20 * time.Hour)

	properties.Property("without a cutoff the total is the whole seconds elapsed", prop.ForAll(
		func(startMs, lenMs int64) bool {
			from := base.Add(time.Duration(startMs) * time.Millisecond)
			to := from.Add(time.Duration(lenMs) * time.Millisecond)
			if !to.Before(firstCut) {
				return true
			}
			res := Advance(cal, from, to, true, DailyState{Points: 3})
			want := lenMs / 1000
			return res.TotalDelta == want && res.DailyPoints == 3+want && !res.Reset
		},
		gen.Int64Range(0, 10*3600*1000),
		gen.Int64Range(0, 9*3600*1000),
	))

	properties.Property("aligned intervals conserve every second across cutoffs", prop.ForAll(
		func(startSec, lenSec int64) bool {
			from := base.Add(time.Duration(startSec) * time.Second)
			to := from.Add(time.Duration(lenSec) * time.Second)
			res := Advance(cal, from, to, true, DailyState{})
			return res.TotalDelta == lenSec && res.Cursor.Equal(to)
		},
		gen.Int64Range(0, 48*3600),
		gen.Int64Range(0, 7*24*3600),
	))

	properties.Property("daily never exceeds seconds since the last reset", prop.ForAll(
		func(startSec, lenSec int64) bool {
			from := base.Add(time.Duration(startSec) * time.Second)
			to := from.Add(time.Duration(lenSec) * time.Second)
			res := Advance(cal, from, to, true, DailyState{})
			if !res.Reset {
				return res.DailyPoints == res.TotalDelta
			}
			return res.DailyPoints == int64(res.Cursor.Sub(res.LastResetAt)/time.Second)
		},
		gen.Int64Range(0, 48*3600),
		gen.Int64Range(0, 7*24*3600),
	))

	properties.TestingRun(t)
}
