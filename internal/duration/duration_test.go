package duration

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{0, "0 days, 0 hrs, 0 mins"},
		{59_999, "0 days, 0 hrs, 0 mins"},
		{60_000, "0 days, 0 hrs, 1 mins"},
		{86_400_000, "1 day, 0 hrs, 0 mins"},
		{2*86_400_000 + 3*3_600_000 + 4*60_000 + 5_000, "2 days, 3 hrs, 4 mins"},
		{-5_000, "0 days, 0 hrs, 0 mins"},
	}

	for _, tt := range tests {
		if got := Format(tt.ms); got != tt.want {
			t.Errorf("Format(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}

func TestParseHours(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
		want  float64
	}{
		{"nil", nil, 0},
		{"number passes through", 12.5, 12.5},
		{"int", 7, 7},
		{"negative number", -3.0, 0},
		{"nan", math.NaN(), 0},
		{"clock hh:mm", "1:30", 1.5},
		{"clock hh:mm:ss", "1:30:00", 1.5},
		{"clock with seconds", "0:00:36", 0.01},
		{"days and hours", "2d3h", 51},
		{"minutes only", "45m", 0.75},
		{"seconds only", "90s", 0.025},
		{"decimal tokens", "1.5h 30m", 2},
		{"uppercase", "1D 2H", 26},
		{"formatted string", "4 days, 4 hrs, 0 mins", 100},
		{"bare number in text", "about 12 units", 12},
		{"empty", "", 0},
		{"garbage", "lorem ipsum", 0},
		{"all zero", "0 days, 0 hrs, 0 mins", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseHours(tt.input)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ParseHours(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseHours_StringPointer(t *testing.T) {
	s := "2h"
	if got := ParseHours(&s); got != 2 {
		t.Errorf("ParseHours(&%q) = %v, want 2", s, got)
	}
	var nilStr *string
	if got := ParseHours(nilStr); got != 0 {
		t.Errorf("ParseHours(nil *string) = %v, want 0", got)
	}
}

func TestRoundHours(t *testing.T) {
	if got := RoundHours(99.96); got != 100 {
		t.Errorf("RoundHours(99.96) = %v, want 100", got)
	}
	if got := RoundHours(1.24); got != 1.2 {
		t.Errorf("RoundHours(1.24) = %v, want 1.2", got)
	}
}

func TestDurationProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("formatted duration parses back within one minute", prop.ForAll(
		func(ms int64) bool {
			want := float64(ms) / 3_600_000
			got := ParseHoursString(Format(ms))
			return got <= want+1e-9 && want-got < 1.0/60+1e-9
		},
		gen.Int64Range(0, 10_000*86_400_000),
	))

	properties.Property("parser is total and non-negative", prop.ForAll(
		func(s string) bool {
			h := ParseHoursString(s)
			return !math.IsNaN(h) && !math.IsInf(h, 0) && h >= 0
		},
		gen.AnyString(),
	))

	properties.Property("parser handles token soup", prop.ForAll(
		func(parts []string) bool {
			s := ""
			for _, p := range parts {
				s += p
			}
			h := ParseHoursString(s)
			return !math.IsNaN(h) && !math.IsInf(h, 0) && h >= 0
		},
		gen.SliceOf(gen.OneConstOf("1", "2.5", "d", "h", "m", "s", ":", " ", "x", "00", "999")),
	))

	properties.TestingRun(t)
}
