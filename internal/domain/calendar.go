package domain

import "time"

// DateLayout is the date format used by the backend and the calendar file
const DateLayout = "2006-01-02"

// SemesterCalendar maps a semester id such as "2025-2026-1" to the Monday of
// its first teaching week
type SemesterCalendar map[string]time.Time

// Start returns the first Monday of semester
func (c SemesterCalendar) Start(semester string) (time.Time, bool) {
	start, ok := c[semester]
	return start, ok
}

// Semesters returns the known semester ids, newest first
func (c SemesterCalendar) Semesters() []string {
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	SortSemesters(ids)
	return ids
}
