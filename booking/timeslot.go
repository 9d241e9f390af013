package booking

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	minutesPerDay  = 24 * 60
	minutesPerWeek = 7 * minutesPerDay
)

var ErrInvalidSlot = errors.New("booking: invalid time slot")

// Day is a weekday index, Mon = 0 through Sun = 6.
type Day int

const (
	Mon Day = iota
	Tue
	Wed
	Thu
	Fri
	Sat
	Sun
)

var dayNames = [...]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

func (d Day) String() string {
	if d < Mon || d > Sun {
		return fmt.Sprintf("Day(%d)", int(d))
	}
	return dayNames[d]
}

// ParseDay accepts the three-letter English abbreviation, case-sensitive like the
// clients send it.
func ParseDay(s string) (Day, error) {
	s = strings.TrimSpace(s)
	for i, name := range dayNames {
		if name == s {
			return Day(i), nil
		}
	}
	return 0, fmt.Errorf("%w: invalid day %q, use three-letter abbreviations (Mon, Tue, ...)", ErrInvalidSlot, s)
}

// ParseDays parses a comma separated day list such as "Mon,Wed". Repeated days
// are kept once, in first-seen order.
func ParseDays(s string) ([]Day, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("%w: days cannot be empty", ErrInvalidSlot)
	}
	var (
		days []Day
		seen [7]bool
	)
	for _, part := range strings.Split(s, ",") {
		d, err := ParseDay(part)
		if err != nil {
			return nil, err
		}
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	return days, nil
}

// Point is a moment within the week.
type Point struct {
	Day    Day
	Hour   int
	Minute int
}

// Minutes returns the offset of p from Monday 00:00.
func (p Point) Minutes() int {
	return int(p.Day)*minutesPerDay + p.Hour*60 + p.Minute
}

// ClockMinutes returns the offset of p from midnight of its own day.
func (p Point) ClockMinutes() int {
	return p.Hour*60 + p.Minute
}

// pointAt maps a minute offset back onto the week, wrapping in both directions.
func pointAt(m int) Point {
	m %= minutesPerWeek
	if m < 0 {
		m += minutesPerWeek
	}
	return Point{
		Day:    Day(m / minutesPerDay),
		Hour:   m % minutesPerDay / 60,
		Minute: m % 60,
	}
}

func (p Point) String() string {
	return fmt.Sprintf("%s,%d,%d", p.Day, p.Hour, p.Minute)
}

func parsePoint(s string) (Point, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 3 {
		return Point{}, fmt.Errorf("%w: expected 'Day,Hour,Minute', got %q", ErrInvalidSlot, s)
	}
	day, err := ParseDay(parts[0])
	if err != nil {
		return Point{}, err
	}
	hour, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return Point{}, fmt.Errorf("%w: hour must be an integer in %q", ErrInvalidSlot, s)
	}
	minute, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil {
		return Point{}, fmt.Errorf("%w: minute must be an integer in %q", ErrInvalidSlot, s)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return Point{}, fmt.Errorf("%w: hours must be 0-23 and minutes 0-59, got %d:%d", ErrInvalidSlot, hour, minute)
	}
	return Point{Day: day, Hour: hour, Minute: minute}, nil
}

// TimeSlot is a booked or requested period, written "Mon,9,0 - Mon,10,30".
type TimeSlot struct {
	Start Point
	End   Point
}

// ParseTimeSlot parses the "Day,Hour,Minute - Day,Hour,Minute" form.
func ParseTimeSlot(s string) (TimeSlot, error) {
	start, end, ok := strings.Cut(s, "-")
	if !ok || strings.Contains(end, "-") {
		return TimeSlot{}, fmt.Errorf("%w: expected 'Day,Hour,Minute - Day,Hour,Minute', got %q", ErrInvalidSlot, s)
	}
	sp, err := parsePoint(start)
	if err != nil {
		return TimeSlot{}, err
	}
	ep, err := parsePoint(end)
	if err != nil {
		return TimeSlot{}, err
	}
	return TimeSlot{Start: sp, End: ep}, nil
}

// MustParseTimeSlot is ParseTimeSlot for literals known to be valid.
func MustParseTimeSlot(s string) TimeSlot {
	ts, err := ParseTimeSlot(s)
	if err != nil {
		panic(err)
	}
	return ts
}

func (ts TimeSlot) String() string {
	return ts.Start.String() + " - " + ts.End.String()
}

// Duration is the slot length in minutes. An end before the start wraps into the
// following week.
func (ts TimeSlot) Duration() int {
	d := ts.End.Minutes() - ts.Start.Minutes()
	if d < 0 {
		d += minutesPerWeek
	}
	return d
}

// Shift moves both ends by offset minutes; negative offsets move earlier.
func (ts TimeSlot) Shift(offset int) TimeSlot {
	return TimeSlot{
		Start: pointAt(ts.Start.Minutes() + offset),
		End:   pointAt(ts.End.Minutes() + offset),
	}
}

// Extend moves only the end by minutes.
func (ts TimeSlot) Extend(minutes int) TimeSlot {
	return TimeSlot{Start: ts.Start, End: pointAt(ts.End.Minutes() + minutes)}
}

// Overlaps reports whether the two slots share at least one minute. Slots that
// merely touch (one ends when the other starts) do not overlap.
func (ts TimeSlot) Overlaps(o TimeSlot) bool {
	aStart, bStart := ts.Start.Minutes(), o.Start.Minutes()
	aEnd, bEnd := aStart+ts.Duration(), bStart+o.Duration()
	if aStart == bStart {
		return true
	}
	return aEnd > bStart && aStart < bEnd
}

// SameDay reports whether the slot starts and ends on the same weekday.
func (ts TimeSlot) SameDay() bool {
	return ts.Start.Day == ts.End.Day
}
