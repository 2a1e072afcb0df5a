// Package clock converts points in time to day keys and display strings.
package clock

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DayKeyLayout is the canonical YYYY-MM-DD day key.
	DayKeyLayout = "2006-01-02"
	// TimeLayout is the HH:MM clock time stored on tasks.
	TimeLayout = "15:04"
	// EndOfDay is used for due computation when a task has no time.
	EndOfDay = "23:59"
)

// Clock reports the current time. Services take a Clock so tests can pin "now".
type Clock interface {
	Now() time.Time
}

// System is the wall clock in a fixed location.
type System struct {
	Location *time.Location
}

func (s System) Now() time.Time {
	if s.Location == nil {
		return time.Now()
	}
	return time.Now().In(s.Location)
}

// Fixed always returns the same instant.
type Fixed time.Time

func (f Fixed) Now() time.Time { return time.Time(f) }

// DayKey returns the canonical day key of t in t's location.
func DayKey(t time.Time) string {
	return t.Format(DayKeyLayout)
}

// StartOfDay truncates t to local midnight.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// FormatTime renders HH:MM.
func FormatTime(t time.Time) string {
	return t.Format(TimeLayout)
}

var weekdays = [...]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// FormatDisplay renders a day as "2006.01.02(Mon)".
func FormatDisplay(t time.Time) string {
	return fmt.Sprintf("%s(%s)", t.Format("2006.01.02"), weekdays[t.Weekday()])
}

// ParseDue combines a day key and an optional HH:MM into an instant in loc.
// An empty time means end of day. ok is false when date is empty or unparseable.
func ParseDue(date, clockTime string, loc *time.Location) (time.Time, bool) {
	date = strings.TrimSpace(date)
	if date == "" {
		return time.Time{}, false
	}
	clockTime = strings.TrimSpace(clockTime)
	if clockTime == "" {
		clockTime = EndOfDay
	}
	if loc == nil {
		loc = time.Local
	}
	due, err := time.ParseInLocation(DayKeyLayout+" "+TimeLayout, date+" "+clockTime, loc)
	if err != nil {
		return time.Time{}, false
	}
	return due, true
}

// ParseDay parses a day key in loc at midnight.
func ParseDay(date string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}
	d, err := time.ParseInLocation(DayKeyLayout, strings.TrimSpace(date), loc)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// ValidDay reports whether s is a well-formed day key.
func ValidDay(s string) bool {
	_, err := time.Parse(DayKeyLayout, s)
	return err == nil
}

// ValidTime reports whether s is a well-formed HH:MM.
func ValidTime(s string) bool {
	_, err := time.Parse(TimeLayout, s)
	return err == nil
}
