package testutil

import (
	"context"
	"encoding/json"

	"campusync/internal/domain"
	"campusync/internal/remote"

	"github.com/stretchr/testify/mock"
)

// MockAuthAPI is a mock for service.AuthAPI
type MockAuthAPI struct {
	mock.Mock
}

func (m *MockAuthAPI) FetchCaptcha(ctx context.Context) (*domain.CaptchaChallenge, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CaptchaChallenge), args.Error(1)
}

func (m *MockAuthAPI) Login(ctx context.Context, req remote.LoginRequest) (*remote.LoginResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*remote.LoginResult), args.Error(1)
}

// MockDataAPI is a mock for service.DataAPI
type MockDataAPI struct {
	mock.Mock
}

func (m *MockDataAPI) Grades(ctx context.Context, token string) (json.RawMessage, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

func (m *MockDataAPI) Timetable(ctx context.Context, token, semester string) (json.RawMessage, error) {
	args := m.Called(ctx, token, semester)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

func (m *MockDataAPI) Rankings(ctx context.Context, token, username, semester string) (*domain.Ranking, error) {
	args := m.Called(ctx, token, username, semester)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Ranking), args.Error(1)
}
