package domain

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Score is an upstream field that arrives either as a number or as text
// (scores may be grade words, credits may be quoted)
type Score string

// UnmarshalJSON accepts a string, a number or null
func (s *Score) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = Score(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*s = Score(n.String())
	return nil
}

// RawGrade is one grade record as returned by the grades endpoint
type RawGrade struct {
	Semester string `json:"semester"`
	Course   string `json:"course_name"`
	Credit   Score  `json:"credit"`
	Score    Score  `json:"score"`
	Type     string `json:"type,omitempty"`
	IsRetake bool   `json:"is_retake,omitempty"`
}

// GradeRecord is a RawGrade with the derived fail flag
type GradeRecord struct {
	RawGrade
	IsFail bool `json:"is_fail"`
}

// SemesterGroup is the grade report section of one semester
type SemesterGroup struct {
	SemesterName string        `json:"semester_name"`
	Courses      []GradeRecord `json:"courses"`
}

// SortSemesters orders semester ids newest first. Ids are compared as
// strings, which holds for the fixed-width "YYYY-YYYY-N" format.
func SortSemesters(ids []string) {
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
}
