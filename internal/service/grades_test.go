package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"campusync/internal/domain"
	"campusync/internal/remote"
	"campusync/internal/repository"
	"campusync/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestIsFail(t *testing.T) {
	tests := []struct {
		score string
		want  bool
	}{
		{score: "59", want: true},
		{score: "59.9", want: true},
		{score: "0", want: true},
		{score: "60", want: false},
		{score: "95.5", want: false},
		{score: " 45 ", want: true},
		{score: "45(补考)", want: true},
		{score: "不及格", want: true},
		{score: "Fail", want: true},
		{score: "及格", want: false},
		{score: "优秀", want: false},
		{score: "Pass", want: false},
		{score: "", want: false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsFail(tt.score), "score %q", tt.score)
	}
}

func TestGroupBySemester(t *testing.T) {
	grades := []domain.RawGrade{
		testutil.NewTestGrade("2023-2024-2", "Physics", "88"),
		testutil.NewTestGrade("2024-2025-1", "Math", "52"),
		testutil.NewTestGrade("2023-2024-2", "English", "不及格"),
		testutil.NewTestGrade("2024-2025-1", "History", "优秀"),
		testutil.NewTestGrade("2023-2024-1", "Art", "75"),
	}

	groups := GroupBySemester(grades)

	require.Len(t, groups, 3)
	assert.Equal(t, "2024-2025-1", groups[0].SemesterName)
	assert.Equal(t, "2023-2024-2", groups[1].SemesterName)
	assert.Equal(t, "2023-2024-1", groups[2].SemesterName)

	require.Len(t, groups[0].Courses, 2)
	assert.Equal(t, "Math", groups[0].Courses[0].Course)
	assert.True(t, groups[0].Courses[0].IsFail)
	assert.Equal(t, "History", groups[0].Courses[1].Course)
	assert.False(t, groups[0].Courses[1].IsFail)

	require.Len(t, groups[1].Courses, 2)
	assert.Equal(t, "Physics", groups[1].Courses[0].Course)
	assert.True(t, groups[1].Courses[1].IsFail)
}

func TestGroupBySemester_Empty(t *testing.T) {
	groups := GroupBySemester(nil)

	assert.NotNil(t, groups)
	assert.Empty(t, groups)
}

func TestGradeService_ExpiredSession(t *testing.T) {
	tests := []struct {
		name       string
		cached     []byte
		wantFatal  bool
		wantNotice string
	}{
		{name: "no cached grades forces login", wantFatal: true, wantNotice: NoticeLoginRequired},
		{
			name:       "cached grades stay visible",
			cached:     []byte(`[{"semester":"2024-2025-1","course_name":"Math","credit":4,"score":"91"}]`),
			wantNotice: NoticeExpiredCached,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := new(testutil.MockDataAPI)
			api.On("Grades", mock.Anything, "tok").Return(nil, domain.ErrSessionExpired)

			store := testutil.NewMemoryStore()
			if tt.cached != nil {
				require.NoError(t, store.Set(repository.KeyCachedGrades, tt.cached))
			}
			session := &fakeSession{token: "tok"}
			svc := NewGradeService(api, store, session, testutil.NewTestLogger())

			snapshot, settled := svc.Load(context.Background())
			assert.Equal(t, tt.cached != nil, snapshot.Cached)

			s := waitSettlement(t, settled)
			assert.Equal(t, tt.wantFatal, s.Fatal)
			assert.Equal(t, tt.wantNotice, s.Notice)
			assert.Empty(t, session.Token())

			if tt.cached != nil {
				require.Len(t, s.Data, 1)
				assert.Equal(t, domain.Score("4"), s.Data[0].Credit)
				raw, _ := store.Get(repository.KeyCachedGrades)
				assert.Equal(t, tt.cached, raw)
			}
			api.AssertExpectations(t)
		})
	}
}

func TestGradeService_LoadFresh(t *testing.T) {
	api := new(testutil.MockDataAPI)
	api.On("Grades", mock.Anything, "tok").
		Return(json.RawMessage(`[{"semester":"2024-2025-1","course_name":"Math","credit":"3.5","score":58,"type":"required","is_retake":true}]`), nil)

	store := testutil.NewMemoryStore()
	svc := NewGradeService(api, store, &fakeSession{token: "tok"}, testutil.NewTestLogger())

	s := svc.Refresh(context.Background())

	require.NoError(t, s.Err)
	require.Len(t, s.Data, 1)
	grade := s.Data[0]
	assert.Equal(t, domain.Score("58"), grade.Score)
	assert.Equal(t, domain.Score("3.5"), grade.Credit)
	assert.True(t, grade.IsRetake)

	report := svc.Report(s.Data)
	require.Len(t, report, 1)
	assert.True(t, report[0].Courses[0].IsFail)

	cached, ok := svc.Cached()
	assert.True(t, ok)
	assert.Equal(t, s.Data, cached)
}

func TestGradeService_Ranking(t *testing.T) {
	ranking := &domain.Ranking{GPA: "3.52", ClassRank: "3/40"}

	tests := []struct {
		name      string
		token     string
		setupMock func(*testutil.MockDataAPI)
		want      *domain.Ranking
		wantErr   error
		wantToken string
	}{
		{
			name:      "success",
			token:     "tok",
			setupMock: func(m *testutil.MockDataAPI) { m.On("Rankings", mock.Anything, "tok", testCred.Username, "").Return(ranking, nil) },
			want:      ranking,
			wantToken: "tok",
		},
		{
			name:      "no session",
			setupMock: func(m *testutil.MockDataAPI) {},
			wantErr:   domain.ErrLoginRequired,
		},
		{
			name:  "expired",
			token: "tok",
			setupMock: func(m *testutil.MockDataAPI) {
				m.On("Rankings", mock.Anything, "tok", testCred.Username, "").Return(nil, domain.ErrSessionExpired)
			},
			wantErr: domain.ErrLoginRequired,
		},
		{
			name:  "server error keeps session",
			token: "tok",
			setupMock: func(m *testutil.MockDataAPI) {
				m.On("Rankings", mock.Anything, "tok", testCred.Username, "").Return(nil, &remote.StatusError{Code: 500})
			},
			wantErr:   &remote.StatusError{},
			wantToken: "tok",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := new(testutil.MockDataAPI)
			tt.setupMock(api)
			session := &fakeSession{token: tt.token}
			svc := NewGradeService(api, testutil.NewMemoryStore(), session, testutil.NewTestLogger())

			got, err := svc.Ranking(context.Background())

			switch want := tt.wantErr.(type) {
			case nil:
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			case *remote.StatusError:
				var statusErr *remote.StatusError
				assert.True(t, errors.As(err, &statusErr))
				assert.Equal(t, 500, statusErr.Code)
			default:
				assert.ErrorIs(t, err, want)
				assert.Nil(t, got)
			}
			assert.Equal(t, tt.wantToken, session.Token())
			api.AssertExpectations(t)
		})
	}
}
