package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWeeks(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected WeeksList
	}{
		{
			name:     "comma separated",
			input:    "1,2,3",
			expected: WeeksList{1, 2, 3},
		},
		{
			name:     "duplicates and disorder",
			input:    "5,1,5,3,1",
			expected: WeeksList{1, 3, 5},
		},
		{
			name:     "non-numeric tokens dropped",
			input:    "1,x,2,,3周",
			expected: WeeksList{1, 2},
		},
		{
			name:     "full width comma and spaces",
			input:    "7， 8 ,9",
			expected: WeeksList{7, 8, 9},
		},
		{
			name:     "empty",
			input:    "",
			expected: WeeksList{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseWeeks(tt.input))
		})
	}
}

func TestWeeksList_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected WeeksList
	}{
		{
			name:     "array of numbers",
			input:    `[3,1,2]`,
			expected: WeeksList{1, 2, 3},
		},
		{
			name:     "array with numeric strings",
			input:    `[1,"2","x"]`,
			expected: WeeksList{1, 2},
		},
		{
			name:     "delimited string",
			input:    `"1,2,16"`,
			expected: WeeksList{1, 2, 16},
		},
		{
			name:     "null",
			input:    `null`,
			expected: WeeksList{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w WeeksList
			require.NoError(t, json.Unmarshal([]byte(tt.input), &w))
			assert.Equal(t, tt.expected, w)
		})
	}
}

func TestWeeksList_UnmarshalJSON_RejectsObject(t *testing.T) {
	var w WeeksList
	assert.Error(t, json.Unmarshal([]byte(`{"a":1}`), &w))
}

func TestRawCourse_Decode(t *testing.T) {
	payload := `{"name":"Math","teacher":"Li","room":"A101","day":1,"start":3,"step":2,"weeks_list":"1,2","weeks_desc":"1-2"}`

	var c RawCourse
	require.NoError(t, json.Unmarshal([]byte(payload), &c))
	assert.Equal(t, "Math", c.Name)
	assert.Equal(t, 4, c.End())
	assert.True(t, c.WeeksList.Contains(2))
	assert.False(t, c.WeeksList.Contains(3))
}

func TestCourseBlock_Detail(t *testing.T) {
	b := CourseBlock{RawCourse: RawCourse{Room: "A101", Teacher: "Li", WeeksDesc: "1-16", Day: 2, Start: 3, Step: 2}}
	assert.Equal(t, "Room: A101\nTeacher: Li\nWeeks: 1-16\nPeriods: day 2, 3-4", b.Detail())
}

func TestScore_UnmarshalJSON(t *testing.T) {
	var g RawGrade
	require.NoError(t, json.Unmarshal([]byte(`{"semester":"2024-2025-1","course_name":"Math","credit":3.5,"score":59}`), &g))
	assert.Equal(t, Score("59"), g.Score)
	assert.Equal(t, Score("3.5"), g.Credit)

	require.NoError(t, json.Unmarshal([]byte(`{"score":"不及格","credit":"2"}`), &g))
	assert.Equal(t, Score("不及格"), g.Score)
	assert.Equal(t, Score("2"), g.Credit)

	require.NoError(t, json.Unmarshal([]byte(`{"score":null}`), &g))
	assert.Equal(t, Score(""), g.Score)
}
