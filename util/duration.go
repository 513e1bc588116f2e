package util

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

const (
	Day  = 24 * time.Hour
	Week = 7 * Day
)

var durationUnits = map[string]time.Duration{
	"s":       time.Second,
	"sec":     time.Second,
	"secs":    time.Second,
	"second":  time.Second,
	"seconds": time.Second,
	"m":       time.Minute,
	"min":     time.Minute,
	"mins":    time.Minute,
	"minute":  time.Minute,
	"minutes": time.Minute,
	"h":       time.Hour,
	"hr":      time.Hour,
	"hrs":     time.Hour,
	"hour":    time.Hour,
	"hours":   time.Hour,
	"d":       Day,
	"day":     Day,
	"days":    Day,
	"w":       Week,
	"week":    Week,
	"weeks":   Week,
}

// Parses a human-entered duration like "30m", "1h30m", "2 days", or "1w 2d".
//
// Every number must be followed by a unit. Returns an error for empty, zero, or unparseable input.
func ParseDuration(raw string) (time.Duration, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	var total time.Duration
	i := 0
	for i < len(s) {
		if s[i] == ' ' || s[i] == ',' {
			i++
			continue
		}
		start := i
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if start == i {
			return 0, fmt.Errorf("invalid duration %q: expected a number at position %d", raw, start)
		}
		n, err := strconv.Atoi(s[start:i])
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
		}
		for i < len(s) && s[i] == ' ' {
			i++
		}
		ustart := i
		for i < len(s) && unicode.IsLetter(rune(s[i])) {
			i++
		}
		unit, ok := durationUnits[s[ustart:i]]
		if !ok {
			return 0, fmt.Errorf("invalid duration %q: unknown unit %q", raw, s[ustart:i])
		}
		total += time.Duration(n) * unit
	}
	if total <= 0 {
		return 0, fmt.Errorf("duration must be positive: %q", raw)
	}
	return total, nil
}

// Formats a duration as "1 day, 2 hours, and 5 minutes", at second granularity.
func FormatDuration(d time.Duration) string {
	secs := int64(d / time.Second)
	if secs <= 0 {
		return "0 seconds"
	}
	units := []struct {
		name string
		secs int64
	}{
		{"week", int64(Week / time.Second)},
		{"day", int64(Day / time.Second)},
		{"hour", 3600},
		{"minute", 60},
		{"second", 1},
	}
	var parts []string
	for _, u := range units {
		if secs < u.secs {
			continue
		}
		n := secs / u.secs
		secs %= u.secs
		if n == 1 {
			parts = append(parts, fmt.Sprintf("1 %s", u.name))
		} else {
			parts = append(parts, fmt.Sprintf("%d %ss", n, u.name))
		}
	}
	switch len(parts) {
	case 1:
		return parts[0]
	case 2:
		return parts[0] + " and " + parts[1]
	default:
		return strings.Join(parts[:len(parts)-1], ", ") + ", and " + parts[len(parts)-1]
	}
}
