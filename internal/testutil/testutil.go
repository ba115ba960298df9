package testutil

import (
	"fmt"
	"sync"

	"campusync/internal/domain"

	"go.uber.org/zap"
)

// NewTestLogger creates a no-op logger for tests
func NewTestLogger() *zap.Logger {
	return zap.NewNop()
}

// MemoryStore is an in-memory repository.Store. FailKeys makes Set fail
// for the listed keys.
type MemoryStore struct {
	mu       sync.Mutex
	values   map[string][]byte
	FailKeys map[string]bool
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]byte)}
}

func (s *MemoryStore) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (s *MemoryStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailKeys[key] {
		return fmt.Errorf("write %s failed", key)
	}
	s.values[key] = append([]byte(nil), value...)
	return nil
}

func (s *MemoryStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// Has reports whether key is present
func (s *MemoryStore) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.values[key]
	return ok
}

// NewTestCourse creates a course taught in the given weeks
func NewTestCourse(name string, day, start, step int, weeks ...int) domain.RawCourse {
	return domain.RawCourse{
		Name:      name,
		Teacher:   "Teacher " + name,
		Room:      "Room " + name,
		Day:       day,
		Start:     start,
		Step:      step,
		WeeksList: weeks,
	}
}

// WeekRange returns the weeks from..to inclusive
func WeekRange(from, to int) []int {
	weeks := make([]int, 0, to-from+1)
	for w := from; w <= to; w++ {
		weeks = append(weeks, w)
	}
	return weeks
}

// NewTestGrade creates a grade record
func NewTestGrade(semester, course, score string) domain.RawGrade {
	return domain.RawGrade{
		Semester: semester,
		Course:   course,
		Score:    domain.Score(score),
	}
}
