package generic

import (
	"strings"
	"time"
)

// =============================================================================
// TIME POINT - Calendar date at midnight UTC
// =============================================================================

// TimePoint is a calendar date. Time-of-day is never significant: every
// constructor truncates to midnight UTC.
type TimePoint struct {
	Time time.Time
}

// Constructors
func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf discards the time-of-day of t after converting it to UTC.
func DateOf(t time.Time) TimePoint {
	u := t.UTC()
	return NewTimePoint(u.Year(), u.Month(), u.Day())
}

func Today() TimePoint {
	return DateOf(time.Now())
}

// ParseDate accepts "2006-01-02" or an RFC 3339 timestamp and returns the
// UTC calendar date it falls on.
func ParseDate(s string) (TimePoint, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return DateOf(t), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return TimePoint{}, err
	}
	return DateOf(t), nil
}

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return tp.normalize().Before(other.normalize()) }
func (tp TimePoint) Equal(other TimePoint) bool         { return tp.normalize().Equal(other.normalize()) }
func (tp TimePoint) After(other TimePoint) bool         { return tp.normalize().After(other.normalize()) }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return tp.Before(other) || tp.Equal(other) }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool  { return tp.After(other) || tp.Equal(other) }

func (tp TimePoint) normalize() time.Time {
	u := tp.Time.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint { return TimePoint{Time: tp.normalize().AddDate(0, 0, n)} }

// Properties
func (tp TimePoint) Year() int             { return tp.Time.Year() }
func (tp TimePoint) Month() time.Month     { return tp.Time.Month() }
func (tp TimePoint) Day() int              { return tp.Time.Day() }
func (tp TimePoint) Weekday() time.Weekday { return tp.normalize().Weekday() }
func (tp TimePoint) IsWeekend() bool       { wd := tp.Weekday(); return wd == time.Saturday || wd == time.Sunday }
func (tp TimePoint) IsZero() bool          { return tp.Time.IsZero() }

func (tp TimePoint) String() string {
	return tp.normalize().Format("2006-01-02")
}

// =============================================================================
// HOLIDAY CALENDAR
// =============================================================================

// Holiday is a date excluded from business-day counting.
type Holiday struct {
	ID        string
	Date      TimePoint
	Name      string
	Recurring bool // true = same month/day every year
}

// HolidayCalendar answers whether a date is a holiday.
type HolidayCalendar interface {
	IsHoliday(date TimePoint) bool
}

// NoHolidays is the empty calendar.
type NoHolidays struct{}

func (NoHolidays) IsHoliday(TimePoint) bool { return false }

// HolidaySet is an in-memory calendar built from a list of holidays.
type HolidaySet struct {
	fixed     map[string]bool
	recurring map[[2]int]bool
}

// NewHolidaySet indexes holidays by date, and recurring ones by month/day.
func NewHolidaySet(holidays []Holiday) *HolidaySet {
	hs := &HolidaySet{
		fixed:     make(map[string]bool, len(holidays)),
		recurring: make(map[[2]int]bool),
	}
	for _, h := range holidays {
		if h.Recurring {
			hs.recurring[[2]int{int(h.Date.Month()), h.Date.Day()}] = true
			continue
		}
		hs.fixed[h.Date.String()] = true
	}
	return hs
}

func (hs *HolidaySet) IsHoliday(date TimePoint) bool {
	if hs == nil {
		return false
	}
	if hs.fixed[date.String()] {
		return true
	}
	return hs.recurring[[2]int{int(date.Month()), date.Day()}]
}

// IsBusinessDay reports whether date is Monday to Friday and not a holiday.
func (tp TimePoint) IsBusinessDay(calendar HolidayCalendar) bool {
	if tp.IsWeekend() {
		return false
	}
	if calendar != nil && calendar.IsHoliday(tp) {
		return false
	}
	return true
}

// =============================================================================
// TIME UTILITIES
// =============================================================================

// BusinessDaysBetween counts business days in the closed interval
// [from, to]. Returns 0 when to is before from.
func BusinessDaysBetween(from, to TimePoint, calendar HolidayCalendar) int {
	count := 0
	for d := from; d.BeforeOrEqual(to); d = d.AddDays(1) {
		if d.IsBusinessDay(calendar) {
			count++
		}
	}
	return count
}

func StartOfYear(year int) TimePoint { return NewTimePoint(year, time.January, 1) }
func EndOfYear(year int) TimePoint   { return NewTimePoint(year, time.December, 31) }
