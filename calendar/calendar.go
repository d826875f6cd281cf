// Package calendar derives the date features used by the energy predictors:
// day of week, month and the holiday flag. Public holidays come from the
// rickar/cal holiday definitions for Poland; Sundays count as holidays
// because the installation sells no energy to commercial consumers on them.
package calendar

import (
	"time"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/pl"
)

// Calendar answers date-feature questions for a fixed holiday region.
type Calendar struct {
	cal *cal.Calendar
}

// New creates a calendar with the Polish public holidays registered.
func New() *Calendar {
	c := &cal.Calendar{}
	c.AddHoliday(pl.Holidays...)
	return &Calendar{cal: c}
}

// IsHoliday reports whether the date is a public holiday or a Sunday.
func (c *Calendar) IsHoliday(date time.Time) bool {
	if date.Weekday() == time.Sunday {
		return true
	}
	actual, _, _ := c.cal.IsHoliday(date)
	return actual
}

// HolidayFlag returns 1 for holidays/Sundays and 0 otherwise.
func (c *Calendar) HolidayFlag(date time.Time) int {
	if c.IsHoliday(date) {
		return 1
	}
	return 0
}

// DayOfWeek returns the weekday index with Monday=0 .. Sunday=6.
func DayOfWeek(date time.Time) int {
	// time.Weekday has Sunday=0; shift so the week starts on Monday.
	return (int(date.Weekday()) + 6) % 7
}

// Month returns the calendar month as 1-12.
func Month(date time.Time) int {
	return int(date.Month())
}
