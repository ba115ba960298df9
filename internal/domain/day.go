package domain

import (
	"fmt"
	"time"
)

var weekdayNames = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// DayLabel is the column header of one weekday in a week view
type DayLabel struct {
	Name    string    `json:"name"`
	Date    time.Time `json:"date"`
	IsToday bool      `json:"is_today"`
}

// NewDayLabel builds the label for the weekday at offset (0 = Monday)
func NewDayLabel(offset int, date, today time.Time) DayLabel {
	return DayLabel{
		Name:    weekdayNames[offset%7],
		Date:    date,
		IsToday: SameDay(date, today),
	}
}

// DateString returns the date in M/D format
func (d DayLabel) DateString() string {
	return fmt.Sprintf("%d/%d", int(d.Date.Month()), d.Date.Day())
}

// DisplayString returns the header text, marking today
func (d DayLabel) DisplayString() string {
	if d.IsToday {
		return d.Name + " " + d.DateString() + " •"
	}
	return d.Name + " " + d.DateString()
}

// SameDay compares calendar dates ignoring the clock
func SameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

// WeekdayName returns the short name of a 1-based weekday (1 = Monday)
func WeekdayName(day int) string {
	if day < 1 || day > 7 {
		return "?"
	}
	return weekdayNames[day-1]
}
