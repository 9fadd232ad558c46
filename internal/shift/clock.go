package shift

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidFormat reports a time or duration that is not strict "HH:MM" or
// "HH:MM:SS" with 0 <= HH < 24 and 0 <= MM, SS < 60.
var ErrInvalidFormat = errors.New("invalid time format, use HH:MM")

var reClock = regexp.MustCompile(`^(\d{2}):(\d{2})(?::(\d{2}))?$`)

// Clock is a time of day or a span, stored as seconds. Parsed values stay
// below 24h; computed end times may run past it and are never wrapped.
type Clock int64

// Parse reads a strict "HH:MM" or "HH:MM:SS" value.
func Parse(v string) (Clock, error) {
	m := reClock.FindStringSubmatch(strings.TrimSpace(v))
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, v)
	}
	h, _ := strconv.Atoi(m[1])
	mi, _ := strconv.Atoi(m[2])
	s := 0
	if m[3] != "" {
		s, _ = strconv.Atoi(m[3])
	}
	if h >= 24 || mi >= 60 || s >= 60 {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidFormat, v)
	}
	return Clock(h*3600 + mi*60 + s), nil
}

// ParseOptional is Parse that maps an empty string to zero.
func ParseOptional(v string) (Clock, error) {
	if strings.TrimSpace(v) == "" {
		return 0, nil
	}
	return Parse(v)
}

// Valid reports whether v is a strict HH:MM or HH:MM:SS value.
func Valid(v string) bool {
	_, err := Parse(v)
	return err == nil
}

// ClockOf returns the wall-clock reading of t in its own location.
func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*3600 + t.Minute()*60 + t.Second())
}

func (c Clock) Hours() int64   { return int64(c) / 3600 }
func (c Clock) Minutes() int64 { return (int64(c) % 3600) / 60 }
func (c Clock) Seconds() int64 { return int64(c) }

func (c Clock) Duration() time.Duration { return time.Duration(c) * time.Second }

// TruncateMinute drops the seconds part.
func (c Clock) TruncateMinute() Clock { return c - c%60 }

// String renders "HH:MM". Hours are not wrapped, so 27h42m prints "27:42".
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hours(), c.Minutes())
}

// On returns the instant at which c falls on day's calendar date, in day's
// location. Values past 24h land on the following days.
func (c Clock) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, day.Location()).Add(c.Duration())
}

// FormatRemaining renders a span as "HHh:MMm"; zero or negative spans are "00:00".
func FormatRemaining(c Clock) string {
	if c <= 0 {
		return "00:00"
	}
	return fmt.Sprintf("%02dh:%02dm", c.Hours(), c.Minutes())
}

// ParseClock parses a time of day.
func ParseClock(v string) (Clock, error) { return Parse(v) }

// ParseDuration parses an "HH:MM" span. The same limits as a time of day apply.
func ParseDuration(v string) (Clock, error) { return Parse(v) }

// FormatClock is c.String().
func FormatClock(c Clock) string { return c.String() }
