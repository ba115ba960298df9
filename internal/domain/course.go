package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// RawCourse is one course-period record as returned by the timetable endpoint.
// It is never mutated; derived views work on copies.
type RawCourse struct {
	Name      string    `json:"name"`
	Teacher   string    `json:"teacher"`
	Room      string    `json:"room"`
	Day       int       `json:"day"`
	Start     int       `json:"start"`
	Step      int       `json:"step"`
	WeeksList WeeksList `json:"weeks_list"`
	WeeksDesc string    `json:"weeks_desc"`
}

// End returns the last period covered by the record
func (c RawCourse) End() int {
	return c.Start + c.Step - 1
}

// WeeksList is the set of teaching weeks of a course, kept sorted and unique.
// It decodes from a JSON array or from a delimited string such as "1,2,3".
type WeeksList []int

// ParseWeeks splits a delimited week string into unique integers.
// Non-numeric tokens are dropped.
func ParseWeeks(s string) WeeksList {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '，' || r == ';' || r == ' ' || r == '\t'
	})

	weeks := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			continue
		}
		weeks = append(weeks, n)
	}
	return normalizeWeeks(weeks)
}

// Contains reports whether week is a teaching week
func (w WeeksList) Contains(week int) bool {
	for _, n := range w {
		if n == week {
			return true
		}
	}
	return false
}

// UnmarshalJSON accepts an array of numbers / numeric strings, a delimited string or null
func (w *WeeksList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*w = WeeksList{}
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*w = ParseWeeks(s)
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("weeks_list: %w", err)
	}

	weeks := make([]int, 0, len(items))
	for _, item := range items {
		var n int
		if err := json.Unmarshal(item, &n); err == nil {
			weeks = append(weeks, n)
			continue
		}
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
				weeks = append(weeks, n)
			}
		}
	}
	*w = normalizeWeeks(weeks)
	return nil
}

func normalizeWeeks(weeks []int) WeeksList {
	sort.Ints(weeks)
	out := make(WeeksList, 0, len(weeks))
	for i, n := range weeks {
		if i > 0 && weeks[i-1] == n {
			continue
		}
		out = append(out, n)
	}
	return out
}

// CourseBlock is a RawCourse copy with a display color and a possibly
// extended Step covering merged contiguous periods
type CourseBlock struct {
	RawCourse
	Color string `json:"color"`
}

// Detail returns the human-readable description shown when a block is opened
func (b CourseBlock) Detail() string {
	return fmt.Sprintf("Room: %s\nTeacher: %s\nWeeks: %s\nPeriods: day %d, %d-%d",
		b.Room, b.Teacher, b.WeeksDesc, b.Day, b.Start, b.End())
}

// TimetableSnapshot is the verbatim timetable payload persisted by the loader
type TimetableSnapshot struct {
	Courses     []RawCourse `json:"data"`
	CurrentWeek int         `json:"current_week,omitempty"`
	StartDate   string      `json:"start_date,omitempty"`
	Semester    string      `json:"semester,omitempty"`
}

// WeekContext locates the displayed week inside a semester.
// SemesterStart is the Monday of week 1; CurrentWeekIndex is zero-based.
type WeekContext struct {
	SemesterID       string
	SemesterStart    time.Time
	CurrentWeekIndex int
}

// CurrentWeek returns the one-based week number
func (w WeekContext) CurrentWeek() int {
	return w.CurrentWeekIndex + 1
}

// WeekView is the derived, displayable timetable of one week
type WeekView struct {
	Semester string        `json:"semester"`
	Week     int           `json:"week"`
	Month    int           `json:"month"`
	Blocks   []CourseBlock `json:"blocks"`
	Days     []DayLabel    `json:"days"`
}
