package generic

// =============================================================================
// PERIOD - Closed calendar date range
// =============================================================================

// Period is the closed interval [Start, End] of calendar dates.
//
// Examples:
//   - One day off: 2024-03-01 .. 2024-03-01
//   - A week: 2024-03-04 .. 2024-03-08
type Period struct {
	Start TimePoint
	End   TimePoint
}

// Validate returns ErrInvalidDateRange when End is before Start.
func (p Period) Validate() error {
	if p.End.Before(p.Start) {
		return ErrInvalidDateRange
	}
	return nil
}

// Contains returns true if the time point is within the period [Start, End]
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

// Overlaps is the double-booking test: p.Start <= other.End AND p.End >= other.Start.
func (p Period) Overlaps(other Period) bool {
	return p.Start.BeforeOrEqual(other.End) && p.End.AfterOrEqual(other.Start)
}

// SingleDay reports whether the period covers exactly one date.
func (p Period) SingleDay() bool {
	return p.Start.Equal(p.End)
}

// Days returns all days in the period as a slice of TimePoints.
func (p Period) Days() []TimePoint {
	var days []TimePoint
	current := p.Start
	for current.BeforeOrEqual(p.End) {
		days = append(days, current)
		current = current.AddDays(1)
	}
	return days
}

// BusinessDays counts the days of p that are business days under calendar.
func (p Period) BusinessDays(calendar HolidayCalendar) int {
	return BusinessDaysBetween(p.Start, p.End, calendar)
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}
