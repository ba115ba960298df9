package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"campusync/internal/domain"
	"campusync/internal/repository"

	"go.uber.org/zap"
)

// PassingScore is the lowest numeric score that passes
const PassingScore = 60

var (
	leadingNumber = regexp.MustCompile(`^\s*[-+]?(\d+(\.\d*)?|\.\d+)`)
	failMarkers   = []string{"不及格", "fail"}
)

// IsFail reports whether a score fails: a leading number below PassingScore,
// or a textual fail marker. Scores such as "优秀" or "pass" do not fail.
func IsFail(score string) bool {
	if m := leadingNumber.FindString(score); m != "" {
		if n, err := strconv.ParseFloat(strings.TrimSpace(m), 64); err == nil && n < PassingScore {
			return true
		}
	}

	lower := strings.ToLower(score)
	for _, marker := range failMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// GroupBySemester groups grades by their exact semester string, newest
// semester first. Records keep their input order inside a group.
func GroupBySemester(grades []domain.RawGrade) []domain.SemesterGroup {
	index := make(map[string]int)
	groups := make([]domain.SemesterGroup, 0)

	for _, g := range grades {
		i, ok := index[g.Semester]
		if !ok {
			i = len(groups)
			index[g.Semester] = i
			groups = append(groups, domain.SemesterGroup{SemesterName: g.Semester})
		}
		groups[i].Courses = append(groups[i].Courses, domain.GradeRecord{
			RawGrade: g,
			IsFail:   IsFail(string(g.Score)),
		})
	}

	names := make([]string, 0, len(groups))
	for _, g := range groups {
		names = append(names, g.SemesterName)
	}
	domain.SortSemesters(names)

	sorted := make([]domain.SemesterGroup, 0, len(groups))
	for _, name := range names {
		sorted = append(sorted, groups[index[name]])
	}
	return sorted
}

// GradeService loads the grade list cache-first and fetches rankings on demand
type GradeService struct {
	api     DataAPI
	session SessionSource
	loader  *Loader[[]domain.RawGrade]
	logger  *zap.Logger
}

// NewGradeService creates a new GradeService
func NewGradeService(api DataAPI, store repository.Store, session SessionSource, logger *zap.Logger) *GradeService {
	loader := NewLoader(LoaderConfig[[]domain.RawGrade]{
		Kind:   "grades",
		Key:    repository.KeyCachedGrades,
		Fetch:  api.Grades,
		Decode: decodeGrades,
	}, store, session, logger)

	return &GradeService{
		api:     api,
		session: session,
		loader:  loader,
		logger:  logger,
	}
}

// Load returns the cached grades and settles a background refresh
func (s *GradeService) Load(ctx context.Context) (Snapshot[[]domain.RawGrade], <-chan Settlement[[]domain.RawGrade]) {
	return s.loader.Load(ctx)
}

// Refresh fetches the grades synchronously
func (s *GradeService) Refresh(ctx context.Context) Settlement[[]domain.RawGrade] {
	return s.loader.Refresh(ctx)
}

// Cached returns the persisted grades
func (s *GradeService) Cached() ([]domain.RawGrade, bool) {
	return s.loader.Cached()
}

// Report derives the semester-grouped report
func (s *GradeService) Report(grades []domain.RawGrade) []domain.SemesterGroup {
	return GroupBySemester(grades)
}

// Ranking fetches the GPA and rank summary across all semesters. It needs a
// live session; an expired token is cleared like any data request.
func (s *GradeService) Ranking(ctx context.Context) (*domain.Ranking, error) {
	token := s.session.Token()
	if token == "" {
		return nil, domain.ErrLoginRequired
	}

	username := s.session.Credential().Username
	if username == "" {
		return nil, domain.ErrNoStoredCredentials
	}

	ranking, err := s.api.Rankings(ctx, token, username, "")
	if err != nil {
		if errors.Is(err, domain.ErrSessionExpired) {
			s.session.ExpireToken(token)
			return nil, fmt.Errorf("%w: %w", domain.ErrLoginRequired, err)
		}
		s.logger.Warn("Failed to fetch rankings", zap.Error(err))
		return nil, fmt.Errorf("fetch rankings: %w", err)
	}
	return ranking, nil
}

func decodeGrades(raw json.RawMessage) ([]domain.RawGrade, error) {
	var grades []domain.RawGrade
	if err := json.Unmarshal(raw, &grades); err != nil {
		return nil, fmt.Errorf("grades payload: %w", err)
	}
	if grades == nil {
		grades = []domain.RawGrade{}
	}
	return grades, nil
}
