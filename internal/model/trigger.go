package model

import (
	"fmt"
	"time"
)

// TriggerKind discriminates the trigger shapes a backend can hold.
type TriggerKind string

const (
	TriggerCalendar     TriggerKind = "calendar"
	TriggerTimeInterval TriggerKind = "time_interval"
)

// MinRepeatingInterval is the shortest interval a repeating time-interval trigger accepts.
const MinRepeatingInterval = time.Minute

// calendar search horizon; covers a Feb 29 match
const maxSearchDays = 366*8 + 1

// Trigger describes when a pending notification fires.
type Trigger interface {
	Kind() TriggerKind
	Repeats() bool
	// NextFireDate returns the first fire instant strictly after `after`.
	NextFireDate(after time.Time) (time.Time, bool)
}

// CalendarField names a component of a calendar date.
type CalendarField int

const (
	FieldYear CalendarField = iota
	FieldMonth
	FieldDay
	FieldWeekday
	FieldHour
	FieldMinute
)

// ScheduleFields are the fields captured when building a trigger from a date.
var ScheduleFields = []CalendarField{FieldYear, FieldMonth, FieldDay, FieldHour, FieldMinute}

// DateComponents holds the calendar fields a trigger matches. Nil means "any".
type DateComponents struct {
	Year    *int `json:"year,omitempty"`
	Month   *int `json:"month,omitempty"`
	Day     *int `json:"day,omitempty"`
	Weekday *int `json:"weekday,omitempty"`
	Hour    *int `json:"hour,omitempty"`
	Minute  *int `json:"minute,omitempty"`
}

// DateComponentsFrom extracts the requested fields of t in loc. Seconds are dropped.
func DateComponentsFrom(t time.Time, loc *time.Location, fields ...CalendarField) DateComponents {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	var c DateComponents
	for _, f := range fields {
		switch f {
		case FieldYear:
			c.Year = intPtr(t.Year())
		case FieldMonth:
			c.Month = intPtr(int(t.Month()))
		case FieldDay:
			c.Day = intPtr(t.Day())
		case FieldWeekday:
			c.Weekday = intPtr(int(t.Weekday()))
		case FieldHour:
			c.Hour = intPtr(t.Hour())
		case FieldMinute:
			c.Minute = intPtr(t.Minute())
		}
	}
	return c
}

func (c DateComponents) complete() bool {
	return c.Year != nil && c.Month != nil && c.Day != nil && c.Hour != nil && c.Minute != nil
}

func (c DateComponents) matchesDay(d time.Time) bool {
	if c.Year != nil && d.Year() != *c.Year {
		return false
	}
	if c.Month != nil && int(d.Month()) != *c.Month {
		return false
	}
	if c.Day != nil && d.Day() != *c.Day {
		return false
	}
	if c.Weekday != nil && int(d.Weekday()) != *c.Weekday {
		return false
	}
	return true
}

// CalendarTrigger fires at second zero of every minute whose set components match.
type CalendarTrigger struct {
	Components DateComponents `json:"components"`
	Repeat     bool           `json:"repeats"`
	// TimeZone is an IANA name; empty means the process local zone.
	TimeZone string `json:"time_zone,omitempty"`
}

func NewCalendarTrigger(components DateComponents, repeats bool, loc *time.Location) *CalendarTrigger {
	t := &CalendarTrigger{Components: components, Repeat: repeats}
	if loc != nil && loc != time.Local {
		t.TimeZone = loc.String()
	}
	return t
}

func (t *CalendarTrigger) Kind() TriggerKind { return TriggerCalendar }

func (t *CalendarTrigger) Repeats() bool { return t.Repeat }

func (t *CalendarTrigger) Location() *time.Location {
	if t.TimeZone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(t.TimeZone)
	if err != nil {
		return time.Local
	}
	return loc
}

func (t *CalendarTrigger) NextFireDate(after time.Time) (time.Time, bool) {
	loc := t.Location()
	c := t.Components

	if c.complete() {
		d := time.Date(*c.Year, time.Month(*c.Month), *c.Day, *c.Hour, *c.Minute, 0, 0, loc)
		if !d.After(after) || !c.matchesDay(d) {
			return time.Time{}, false
		}
		return d, true
	}

	start := after.In(loc).Truncate(time.Minute).Add(time.Minute)
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	for i := 0; i < maxSearchDays; i++ {
		d := day.AddDate(0, 0, i)
		if c.Year != nil && d.Year() > *c.Year {
			break
		}
		if !c.matchesDay(d) {
			continue
		}
		for h := 0; h < 24; h++ {
			if c.Hour != nil && *c.Hour != h {
				continue
			}
			for m := 0; m < 60; m++ {
				if c.Minute != nil && *c.Minute != m {
					continue
				}
				candidate := time.Date(d.Year(), d.Month(), d.Day(), h, m, 0, 0, loc)
				if candidate.Before(start) {
					continue
				}
				return candidate, true
			}
		}
	}
	return time.Time{}, false
}

// TimeIntervalTrigger fires Interval after Anchor, and every Interval after that when repeating.
type TimeIntervalTrigger struct {
	Interval time.Duration `json:"interval"`
	Repeat   bool          `json:"repeats"`
	// Anchor is when the trigger was registered; backends set it on add.
	Anchor time.Time `json:"anchor"`
}

func NewTimeIntervalTrigger(interval time.Duration, repeats bool) (*TimeIntervalTrigger, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("time interval must be greater than 0")
	}
	if repeats && interval < MinRepeatingInterval {
		return nil, fmt.Errorf("time interval must be at least %v if repeating", MinRepeatingInterval)
	}
	return &TimeIntervalTrigger{Interval: interval, Repeat: repeats}, nil
}

func (t *TimeIntervalTrigger) Kind() TriggerKind { return TriggerTimeInterval }

func (t *TimeIntervalTrigger) Repeats() bool { return t.Repeat }

func (t *TimeIntervalTrigger) NextFireDate(after time.Time) (time.Time, bool) {
	if t.Interval <= 0 || t.Anchor.IsZero() {
		return time.Time{}, false
	}
	first := t.Anchor.Add(t.Interval)
	if first.After(after) {
		return first, true
	}
	if !t.Repeat {
		return time.Time{}, false
	}
	n := after.Sub(t.Anchor) / t.Interval
	return t.Anchor.Add((n + 1) * t.Interval), true
}

// UnrecognizedTrigger stands in for a stored trigger whose kind this build cannot decode.
type UnrecognizedTrigger struct {
	RawKind string
}

func (t *UnrecognizedTrigger) Kind() TriggerKind { return TriggerKind(t.RawKind) }

func (t *UnrecognizedTrigger) Repeats() bool { return false }

func (t *UnrecognizedTrigger) NextFireDate(time.Time) (time.Time, bool) {
	return time.Time{}, false
}

func intPtr(v int) *int {
	return &v
}
