package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
	"unicode/utf16"

	"campusync/internal/domain"
	"campusync/internal/repository"

	"go.uber.org/zap"
)

// MaxWeeks is the number of weeks a semester view can show
const MaxWeeks = 25

var palette = []string{
	"#A0C4FF", // blue
	"#FFADAD", // red
	"#CAFFBF", // green
	"#FDFFB6", // yellow
	"#BDB2FF", // purple
	"#FFC6FF", // pink
	"#9BF6FF", // cyan
	"#FFD6A5", // orange
}

// CourseColor maps a course name onto the palette, giving the same colour
// as the mini-program client. The hash runs over UTF-16 code units; only the
// shift truncates to 32 bits, the running sum does not wrap.
func CourseColor(name string) string {
	var hash int64
	for _, unit := range utf16.Encode([]rune(name)) {
		hash = int64(unit) + int64(int32(hash)<<5) - hash
	}

	if hash < 0 {
		hash = -hash
	}
	return palette[hash%int64(len(palette))]
}

// ClampWeek forces week into [1, MaxWeeks]
func ClampWeek(week int) int {
	if week < 1 {
		return 1
	}
	if week > MaxWeeks {
		return MaxWeeks
	}
	return week
}

// WeekIndex returns the clamped teaching week that contains today
func WeekIndex(semesterStart, today time.Time) int {
	days := daysBetween(semesterStart, today)
	week := days/7 + 1
	if days < 0 && days%7 != 0 {
		week--
	}
	return ClampWeek(week)
}

// MondayOf returns the date of the Monday of the week containing t
func MondayOf(t time.Time) time.Time {
	d := dateOnly(t)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

// FilterWeek returns copies of the courses taught in week
func FilterWeek(courses []domain.RawCourse, week int) []domain.RawCourse {
	out := make([]domain.RawCourse, 0, len(courses))
	for _, c := range courses {
		if c.WeeksList.Contains(week) {
			out = append(out, c)
		}
	}
	return out
}

// SortCourses orders courses by day, then by first period
func SortCourses(courses []domain.RawCourse) {
	sort.SliceStable(courses, func(i, j int) bool {
		if courses[i].Day != courses[j].Day {
			return courses[i].Day < courses[j].Day
		}
		return courses[i].Start < courses[j].Start
	})
}

// MergeBlocks joins neighbouring blocks of the same course whose periods are
// exactly contiguous. The input must already be sorted; the merge is a single
// left-to-right pass, so running it again on its own output changes nothing.
func MergeBlocks(blocks []domain.CourseBlock) []domain.CourseBlock {
	if len(blocks) == 0 {
		return []domain.CourseBlock{}
	}

	merged := make([]domain.CourseBlock, 0, len(blocks))
	current := blocks[0]
	for _, next := range blocks[1:] {
		if canMerge(current, next) {
			current.Step += next.Step
			continue
		}
		merged = append(merged, current)
		current = next
	}
	return append(merged, current)
}

func canMerge(a, b domain.CourseBlock) bool {
	return a.Day == b.Day &&
		a.Name == b.Name &&
		a.Teacher == b.Teacher &&
		a.Room == b.Room &&
		a.Start+a.Step == b.Start
}

// DayLabels returns the seven labelled dates of week
func DayLabels(semesterStart time.Time, week int, today time.Time) []domain.DayLabel {
	monday := dateOnly(semesterStart).AddDate(0, 0, (week-1)*7)

	labels := make([]domain.DayLabel, 0, 7)
	for i := 0; i < 7; i++ {
		labels = append(labels, domain.NewDayLabel(i, monday.AddDate(0, 0, i), today))
	}
	return labels
}

// DeriveWeekView turns the raw course list into the display blocks and day
// labels of week. The raw records are left untouched.
func DeriveWeekView(courses []domain.RawCourse, week int, semesterStart, today time.Time) domain.WeekView {
	week = ClampWeek(week)

	filtered := FilterWeek(courses, week)
	SortCourses(filtered)

	blocks := make([]domain.CourseBlock, 0, len(filtered))
	for _, c := range filtered {
		blocks = append(blocks, domain.CourseBlock{RawCourse: c, Color: CourseColor(c.Name)})
	}

	days := DayLabels(semesterStart, week, today)
	return domain.WeekView{
		Week:   week,
		Month:  int(days[0].Date.Month()),
		Blocks: MergeBlocks(blocks),
		Days:   days,
	}
}

// ResolveSemesterStart picks the first Monday of semester: the calendar
// entry, else the server start_date, else derived from the server week
// number (week 1 when that is missing too)
func ResolveSemesterStart(calendar domain.SemesterCalendar, semester string, snapshot domain.TimetableSnapshot, today time.Time) time.Time {
	if start, ok := calendar.Start(semester); ok {
		return dateOnly(start)
	}

	if snapshot.StartDate != "" {
		start, err := time.ParseInLocation(domain.DateLayout, snapshot.StartDate, today.Location())
		if err == nil {
			return start
		}
	}

	week := 1
	if snapshot.CurrentWeek > 0 {
		week = snapshot.CurrentWeek
	}
	return MondayOf(today).AddDate(0, 0, -(week-1)*7)
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// daysBetween counts calendar days from a to b, ignoring DST shifts
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.In(a.Location()).Date()
	from := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	to := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}

// DataAPI is the part of the backend the data services need
type DataAPI interface {
	Grades(ctx context.Context, token string) (json.RawMessage, error)
	Timetable(ctx context.Context, token, semester string) (json.RawMessage, error)
	Rankings(ctx context.Context, token, username, semester string) (*domain.Ranking, error)
}

// TimetableService loads timetables cache-first, one snapshot per semester,
// and derives week views from them
type TimetableService struct {
	api             DataAPI
	store           repository.Store
	session         SessionSource
	calendar        domain.SemesterCalendar
	defaultSemester string
	logger          *zap.Logger
	now             func() time.Time

	mu      sync.Mutex
	loaders map[string]*Loader[domain.TimetableSnapshot]
}

// NewTimetableService creates a new TimetableService
func NewTimetableService(api DataAPI, store repository.Store, session SessionSource, calendar domain.SemesterCalendar, defaultSemester string, logger *zap.Logger) *TimetableService {
	return &TimetableService{
		api:             api,
		store:           store,
		session:         session,
		calendar:        calendar,
		defaultSemester: defaultSemester,
		logger:          logger,
		now:             time.Now,
		loaders:         make(map[string]*Loader[domain.TimetableSnapshot]),
	}
}

// DefaultSemester returns the semester shown when none is chosen
func (s *TimetableService) DefaultSemester() string {
	return s.defaultSemester
}

// Semesters returns the selectable semesters, newest first
func (s *TimetableService) Semesters() []string {
	ids := s.calendar.Semesters()
	for _, id := range ids {
		if id == s.defaultSemester {
			return ids
		}
	}
	ids = append(ids, s.defaultSemester)
	domain.SortSemesters(ids)
	return ids
}

// Load returns the cached timetable of semester and settles a background refresh
func (s *TimetableService) Load(ctx context.Context, semester string) (Snapshot[domain.TimetableSnapshot], <-chan Settlement[domain.TimetableSnapshot]) {
	return s.loader(semester).Load(ctx)
}

// Refresh fetches the timetable of semester synchronously
func (s *TimetableService) Refresh(ctx context.Context, semester string) Settlement[domain.TimetableSnapshot] {
	return s.loader(semester).Refresh(ctx)
}

// Cached returns the persisted timetable of semester
func (s *TimetableService) Cached(semester string) (domain.TimetableSnapshot, bool) {
	return s.loader(semester).Cached()
}

// Context locates the current week of semester
func (s *TimetableService) Context(semester string, snapshot domain.TimetableSnapshot) domain.WeekContext {
	semester = s.semesterOrDefault(semester)
	today := s.now()
	start := ResolveSemesterStart(s.calendar, semester, snapshot, today)

	week := WeekIndex(start, today)
	if snapshot.CurrentWeek > 0 {
		week = ClampWeek(snapshot.CurrentWeek)
	}

	return domain.WeekContext{
		SemesterID:       semester,
		SemesterStart:    start,
		CurrentWeekIndex: week - 1,
	}
}

// WeekView derives the view of week from snapshot; week 0 means the current week
func (s *TimetableService) WeekView(semester string, snapshot domain.TimetableSnapshot, week int) domain.WeekView {
	wc := s.Context(semester, snapshot)
	if week == 0 {
		week = wc.CurrentWeek()
	}

	view := DeriveWeekView(snapshot.Courses, week, wc.SemesterStart, s.now())
	view.Semester = wc.SemesterID
	return view
}

func (s *TimetableService) semesterOrDefault(semester string) string {
	if semester == "" {
		return s.defaultSemester
	}
	return semester
}

func (s *TimetableService) loader(semester string) *Loader[domain.TimetableSnapshot] {
	semester = s.semesterOrDefault(semester)

	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.loaders[semester]; ok {
		return l
	}

	l := NewLoader(LoaderConfig[domain.TimetableSnapshot]{
		Kind: "timetable",
		Key:  repository.TimetableKey(semester),
		Fetch: func(ctx context.Context, token string) (json.RawMessage, error) {
			return s.api.Timetable(ctx, token, semester)
		},
		Decode: decodeTimetable,
	}, s.store, s.session, s.logger.With(zap.String("semester", semester)))

	s.loaders[semester] = l
	return l
}

func decodeTimetable(raw json.RawMessage) (domain.TimetableSnapshot, error) {
	var snapshot domain.TimetableSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return domain.TimetableSnapshot{}, fmt.Errorf("timetable payload: %w", err)
	}
	if snapshot.Courses == nil {
		snapshot.Courses = []domain.RawCourse{}
	}
	return snapshot, nil
}
