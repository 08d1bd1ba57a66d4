// Package unixcal provides fixed-length calendar arithmetic on Unix
// millisecond timestamps.
//
// Units have fixed lengths (a month is 30 days, a year is 365 days), so the
// result never depends on time zones or leap rules. Retention cutoffs are
// computed with it.
package unixcal

import "fmt"

// Unit is a calendar unit.
type Unit int

const (
	Day Unit = iota
	Week
	Month
	Year
)

// Unit lengths in milliseconds.
const (
	DayMillis   int64 = 24 * 60 * 60 * 1000
	WeekMillis        = 7 * DayMillis
	MonthMillis       = 30 * DayMillis
	YearMillis        = 365 * DayMillis
)

// Millis returns the length of one unit in milliseconds.
func (u Unit) Millis() int64 {
	switch u {
	case Day:
		return DayMillis
	case Week:
		return WeekMillis
	case Month:
		return MonthMillis
	case Year:
		return YearMillis
	default:
		panic(fmt.Sprintf("unixcal: unknown unit %d", int(u)))
	}
}

func (u Unit) String() string {
	switch u {
	case Day:
		return "day"
	case Week:
		return "week"
	case Month:
		return "month"
	case Year:
		return "year"
	default:
		return fmt.Sprintf("unit(%d)", int(u))
	}
}

// Subtract returns now minus amount units.
func Subtract(now int64, unit Unit, amount int) int64 {
	return now - int64(amount)*unit.Millis()
}

// Add returns now plus amount units.
func Add(now int64, unit Unit, amount int) int64 {
	return now + int64(amount)*unit.Millis()
}
