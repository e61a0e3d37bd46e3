// Package duration converts session time between milliseconds, the stored
// human-readable form and fractional hours.
package duration

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	secondsPerDay  = 86400
	secondsPerHour = 3600
)

// Format renders ms as "D day(s), H hrs, M mins". Seconds are truncated and
// negative input formats as zero.
func Format(ms int64) string {
	s := ms / 1000
	if s < 0 {
		s = 0
	}
	days := s / secondsPerDay
	hrs := (s % secondsPerDay) / secondsPerHour
	mins := (s % secondsPerHour) / 60

	unit := "days"
	if days == 1 {
		unit = "day"
	}
	return fmt.Sprintf("%d %s, %d hrs, %d mins", days, unit, hrs, mins)
}

var (
	clockPattern  = regexp.MustCompile(`^\d{1,3}:\d{1,2}(:\d{1,2})?$`)
	dayPattern    = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*d`)
	hourPattern   = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*h`)
	minutePattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*m`)
	secondPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*s`)
	numberPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)`)
)

// ParseHours converts a stored elapsed value into fractional hours. It accepts
// numbers (already hours), "H:MM[:SS]" clocks, strings carrying any of the
// Nd/Nh/Nm/Ns tokens, or a bare number inside a string. Anything else,
// including nil, yields 0. The result is always finite and non-negative.
func ParseHours(input interface{}) float64 {
	switch v := input.(type) {
	case nil:
		return 0
	case float64:
		return clamp(v)
	case float32:
		return clamp(float64(v))
	case int:
		return clamp(float64(v))
	case int64:
		return clamp(float64(v))
	case int32:
		return clamp(float64(v))
	case string:
		return ParseHoursString(v)
	case *string:
		if v == nil {
			return 0
		}
		return ParseHoursString(*v)
	case fmt.Stringer:
		return ParseHoursString(v.String())
	default:
		return 0
	}
}

// ParseHoursString is ParseHours for string input.
func ParseHoursString(input string) float64 {
	raw := strings.ToLower(strings.TrimSpace(input))
	if raw == "" {
		return 0
	}

	if clockPattern.MatchString(raw) {
		parts := strings.Split(raw, ":")
		hours := atof(parts[0])
		if len(parts) > 1 {
			hours += atof(parts[1]) / 60
		}
		if len(parts) > 2 {
			hours += atof(parts[2]) / 3600
		}
		return clamp(hours)
	}

	var hours float64
	if v, ok := firstMatch(dayPattern, raw); ok {
		hours += v * 24
	}
	if v, ok := firstMatch(hourPattern, raw); ok {
		hours += v
	}
	if v, ok := firstMatch(minutePattern, raw); ok {
		hours += v / 60
	}
	if v, ok := firstMatch(secondPattern, raw); ok {
		hours += v / 3600
	}
	if hours > 0 {
		return clamp(hours)
	}

	if v, ok := firstMatch(numberPattern, raw); ok {
		return clamp(v)
	}
	return 0
}

func firstMatch(re *regexp.Regexp, s string) (float64, bool) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func atof(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// clamp maps NaN, infinities and negatives to 0.
func clamp(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// RoundHours rounds to one decimal place, as shown in referral listings.
func RoundHours(h float64) float64 {
	return math.Round(h*10) / 10
}
