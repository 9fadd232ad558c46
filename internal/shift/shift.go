package shift

import (
	"fmt"
	"time"
)

const (
	DefaultWork          = "07:12"
	DefaultLunch         = "00:30"
	DefaultOvertimeAfter = 30 * time.Minute
)

// Input is one day's shift as entered by the user. Leisure may be empty.
type Input struct {
	Start   string
	Work    string
	Lunch   string
	Leisure string
}

// Result is the computed end of a shift and what is left of it at a given moment.
type Result struct {
	End       Clock
	Remaining string
}

type parsed struct {
	start, work, lunch, leisure Clock
}

func (in Input) parse() (parsed, error) {
	var p parsed
	var err error
	if p.start, err = Parse(in.Start); err != nil {
		return p, fmt.Errorf("start: %w", err)
	}
	if p.work, err = Parse(in.Work); err != nil {
		return p, fmt.Errorf("work: %w", err)
	}
	if p.lunch, err = Parse(in.Lunch); err != nil {
		return p, fmt.Errorf("lunch: %w", err)
	}
	if p.leisure, err = ParseOptional(in.Leisure); err != nil {
		return p, fmt.Errorf("leisure: %w", err)
	}
	return p, nil
}

// End returns start + work + lunch - leisure. The sum is not wrapped at 24h
// and a result below midnight is clamped to 00:00.
func (in Input) End() (Clock, error) {
	p, err := in.parse()
	if err != nil {
		return 0, err
	}
	return max(p.start+p.work+p.lunch-p.leisure, 0), nil
}

// Remaining compares the end time with now truncated to the minute and
// renders the difference as "HHh:MMm", or "00:00" once the end is reached.
func (in Input) Remaining(now time.Time) (string, error) {
	end, err := in.End()
	if err != nil {
		return "", err
	}
	return FormatRemaining(end - ClockOf(now).TruncateMinute()), nil
}

func (in Input) Compute(now time.Time) (Result, error) {
	end, err := in.End()
	if err != nil {
		return Result{}, err
	}
	return Result{End: end, Remaining: FormatRemaining(end - ClockOf(now).TruncateMinute())}, nil
}

// SecondsToEnd returns the seconds from now until the end of the shift.
// It is negative once the shift is over.
func (in Input) SecondsToEnd(now time.Time) (int64, error) {
	end, err := in.End()
	if err != nil {
		return 0, err
	}
	return int64(end - ClockOf(now)), nil
}

// SecondsToOvertime returns the seconds from now until after has passed
// since the end of the shift. after <= 0 uses DefaultOvertimeAfter.
func (in Input) SecondsToOvertime(now time.Time, after time.Duration) (int64, error) {
	if after <= 0 {
		after = DefaultOvertimeAfter
	}
	toEnd, err := in.SecondsToEnd(now)
	if err != nil {
		return 0, err
	}
	return toEnd + int64(after/time.Second), nil
}

// EndTime is Input{...}.End rendered as "HH:MM".
func EndTime(start, work, lunch, leisure string) (string, error) {
	end, err := Input{Start: start, Work: work, Lunch: lunch, Leisure: leisure}.End()
	if err != nil {
		return "", err
	}
	return end.String(), nil
}

// Remaining is Input{...}.Remaining.
func Remaining(start, work, lunch, leisure string, now time.Time) (string, error) {
	return Input{Start: start, Work: work, Lunch: lunch, Leisure: leisure}.Remaining(now)
}
