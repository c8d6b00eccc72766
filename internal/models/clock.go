package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// MinutesPerDay bounds ClockTime values; 24:00 is accepted as an end of day.
const MinutesPerDay = 24 * 60

// ClockTime is a wall-clock time of day with minute precision.
type ClockTime int

// ParseClock parses "HH:MM" (seconds, when present, are ignored).
func ParseClock(raw string) (ClockTime, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) > 5 && raw[5] == ':' {
		raw = raw[:5]
	}
	if raw == "24:00" {
		return MinutesPerDay, nil
	}
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", raw)
	}
	return ClockTime(t.Hour()*60 + t.Minute()), nil
}

// MustClock parses raw and panics on failure. Intended for fixtures and defaults.
func MustClock(raw string) ClockTime {
	c, err := ParseClock(raw)
	if err != nil {
		panic(err)
	}
	return c
}

// String formats the time as HH:MM.
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Valid reports whether c lies within a day.
func (c ClockTime) Valid() bool {
	return c >= 0 && c <= MinutesPerDay
}

// MarshalJSON renders the time as "HH:MM".
func (c ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON accepts "HH:MM".
func (c *ClockTime) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("time must be a string: %w", err)
	}
	parsed, err := ParseClock(raw)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Value stores the time as minutes since midnight.
func (c ClockTime) Value() (driver.Value, error) {
	return int64(c), nil
}

// Scan reads minutes since midnight.
func (c *ClockTime) Scan(src interface{}) error {
	switch v := src.(type) {
	case int64:
		*c = ClockTime(v)
	case int32:
		*c = ClockTime(v)
	case []byte:
		parsed, err := ParseClock(string(v))
		if err != nil {
			return err
		}
		*c = parsed
	case string:
		parsed, err := ParseClock(v)
		if err != nil {
			return err
		}
		*c = parsed
	default:
		return fmt.Errorf("cannot scan %T into ClockTime", src)
	}
	return nil
}

// TimeWindow is a half-open interval [Start, End) within a day.
type TimeWindow struct {
	Start ClockTime `json:"start"`
	End   ClockTime `json:"end"`
}

// ParseWindow parses a pair of HH:MM strings without validating ordering.
func ParseWindow(start, end string) (TimeWindow, error) {
	s, err := ParseClock(start)
	if err != nil {
		return TimeWindow{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return TimeWindow{}, err
	}
	return TimeWindow{Start: s, End: e}, nil
}

// Valid reports whether the window is non-empty and within a day.
func (w TimeWindow) Valid() bool {
	return w.Start.Valid() && w.End.Valid() && w.Start < w.End
}

// Minutes returns the window length.
func (w TimeWindow) Minutes() int {
	return int(w.End - w.Start)
}

// Overlaps reports whether both windows share an open instant. Touching windows do not overlap.
func (w TimeWindow) Overlaps(other TimeWindow) bool {
	return w.Start < other.End && other.Start < w.End
}

func (w TimeWindow) String() string {
	return w.Start.String() + "-" + w.End.String()
}

// Weekday is a day of the week in canonical title case.
type Weekday string

const (
	Monday    Weekday = "Monday"
	Tuesday   Weekday = "Tuesday"
	Wednesday Weekday = "Wednesday"
	Thursday  Weekday = "Thursday"
	Friday    Weekday = "Friday"
	Saturday  Weekday = "Saturday"
	Sunday    Weekday = "Sunday"
)

// Weekdays lists the days Monday first, the order used by timetables.
var Weekdays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// ParseWeekday accepts full or three-letter names in any case.
func ParseWeekday(raw string) (Weekday, error) {
	needle := strings.ToLower(strings.TrimSpace(raw))
	for _, day := range Weekdays {
		name := strings.ToLower(string(day))
		if needle == name || (len(needle) == 3 && strings.HasPrefix(name, needle)) {
			return day, nil
		}
	}
	return "", fmt.Errorf("invalid weekday %q", raw)
}

// WeekdayOf converts a time.Weekday.
func WeekdayOf(d time.Weekday) Weekday {
	if d == time.Sunday {
		return Sunday
	}
	return Weekdays[int(d)-1]
}

// Valid reports whether w is one of the seven canonical names.
func (w Weekday) Valid() bool {
	return w.Index() >= 0
}

// Index returns the Monday-based position of the day, or -1.
func (w Weekday) Index() int {
	for i, day := range Weekdays {
		if day == w {
			return i
		}
	}
	return -1
}

// TimeWeekday converts to time.Weekday. w must be valid.
func (w Weekday) TimeWeekday() time.Weekday {
	return time.Weekday((w.Index() + 1) % 7)
}

const dateLayout = "2006-01-02"

// Date is a calendar date without a time zone.
type Date struct {
	t time.Time
}

// NewDate builds a date from its components.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(raw string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(raw))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", raw)
	}
	return Date{t: t}, nil
}

// DateOf truncates t to its calendar date in t's location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool { return d.t.IsZero() }

// Time returns midnight UTC of the date.
func (d Date) Time() time.Time { return d.t }

// Weekday returns the day of the week the date falls on.
func (d Date) Weekday() Weekday { return WeekdayOf(d.t.Weekday()) }

// AddDays shifts the date.
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool { return d.t.Before(other.t) }

// After reports whether d is strictly later than other.
func (d Date) After(other Date) bool { return d.t.After(other.t) }

// DaysUntil returns the number of days from d to other.
func (d Date) DaysUntil(other Date) int {
	return int(other.t.Sub(d.t).Hours() / 24)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(dateLayout)
}

// MarshalJSON renders YYYY-MM-DD.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts YYYY-MM-DD or an empty string.
func (d *Date) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	if raw == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value stores the date as a time at midnight UTC, or NULL when unset.
func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.t, nil
}

// Scan reads DATE columns.
func (d *Date) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*d = Date{}
	case time.Time:
		*d = DateOf(v)
	case []byte:
		parsed, err := ParseDate(string(v)[:min(len(v), len(dateLayout))])
		if err != nil {
			return err
		}
		*d = parsed
	case string:
		parsed, err := ParseDate(v[:min(len(v), len(dateLayout))])
		if err != nil {
			return err
		}
		*d = parsed
	default:
		return fmt.Errorf("cannot scan %T into Date", src)
	}
	return nil
}
