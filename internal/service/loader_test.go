package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"campusync/internal/domain"
	"campusync/internal/remote"
	"campusync/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	mu      sync.Mutex
	token   string
	expired []string
}

func (f *fakeSession) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeSession) ExpireToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expired = append(f.expired, token)
	if f.token == token {
		f.token = ""
	}
}

func (f *fakeSession) Credential() domain.Credential {
	return testCred
}

type fetchResult struct {
	raw json.RawMessage
	err error
}

// newListLoader creates a loader of string lists whose fetches return the
// queued results in order
func newListLoader(store *testutil.MemoryStore, session SessionSource, results ...fetchResult) (*Loader[[]string], *int) {
	calls := 0
	var mu sync.Mutex
	cfg := LoaderConfig[[]string]{
		Kind: "list",
		Key:  "cached_list",
		Fetch: func(ctx context.Context, token string) (json.RawMessage, error) {
			mu.Lock()
			defer mu.Unlock()
			r := results[calls]
			calls++
			return r.raw, r.err
		},
		Decode: func(raw json.RawMessage) ([]string, error) {
			var items []string
			if err := json.Unmarshal(raw, &items); err != nil {
				return nil, err
			}
			return items, nil
		},
	}
	return NewLoader(cfg, store, session, testutil.NewTestLogger()), &calls
}

func waitSettlement[T any](t *testing.T, settled <-chan Settlement[T]) Settlement[T] {
	t.Helper()
	select {
	case s := <-settled:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("settlement did not arrive")
		return Settlement[T]{}
	}
}

func TestLoader_Load_SurvivesConsumerCancellation(t *testing.T) {
	store := testutil.NewMemoryStore()
	require.NoError(t, store.Set("cached_list", []byte(`["old"]`)))

	release := make(chan struct{})
	fetched := make(chan error, 1)
	cfg := LoaderConfig[[]string]{
		Kind: "list",
		Key:  "cached_list",
		Fetch: func(ctx context.Context, token string) (json.RawMessage, error) {
			<-release
			if err := ctx.Err(); err != nil {
				fetched <- err
				return nil, fmt.Errorf("%w: %v", remote.ErrTransport, err)
			}
			fetched <- nil
			return json.RawMessage(`["new"]`), nil
		},
		Decode: func(raw json.RawMessage) ([]string, error) {
			var items []string
			err := json.Unmarshal(raw, &items)
			return items, err
		},
	}
	loader := NewLoader(cfg, store, &fakeSession{token: "tok"}, testutil.NewTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	_, settled := loader.Load(ctx)

	// the consumer goes away before the fetch completes
	cancel()
	close(release)

	s := waitSettlement(t, settled)
	assert.True(t, s.Fresh)
	assert.Equal(t, []string{"new"}, s.Data)
	assert.NoError(t, <-fetched)

	raw, err := store.Get("cached_list")
	require.NoError(t, err)
	assert.JSONEq(t, `["new"]`, string(raw))
}

func TestLoader_Load_ReturnsSnapshotImmediately(t *testing.T) {
	store := testutil.NewMemoryStore()
	require.NoError(t, store.Set("cached_list", []byte(`["old"]`)))

	release := make(chan struct{})
	session := &fakeSession{token: "tok"}
	cfg := LoaderConfig[[]string]{
		Kind: "list",
		Key:  "cached_list",
		Fetch: func(ctx context.Context, token string) (json.RawMessage, error) {
			<-release
			return json.RawMessage(`["new"]`), nil
		},
		Decode: func(raw json.RawMessage) ([]string, error) {
			var items []string
			err := json.Unmarshal(raw, &items)
			return items, err
		},
	}
	loader := NewLoader(cfg, store, session, testutil.NewTestLogger())

	snapshot, settled := loader.Load(context.Background())

	assert.True(t, snapshot.Cached)
	assert.Equal(t, []string{"old"}, snapshot.Data)

	close(release)
	s := waitSettlement(t, settled)
	assert.True(t, s.Fresh)
	assert.Equal(t, []string{"new"}, s.Data)
}

func TestLoader_Load_EmptyWithoutSnapshot(t *testing.T) {
	store := testutil.NewMemoryStore()
	loader, _ := newListLoader(store, &fakeSession{token: "tok"}, fetchResult{raw: json.RawMessage(`["a"]`)})

	snapshot, settled := loader.Load(context.Background())

	assert.False(t, snapshot.Cached)
	assert.Empty(t, snapshot.Data)

	s := waitSettlement(t, settled)
	assert.True(t, s.Fresh)
	assert.True(t, s.HasData)
	assert.Empty(t, s.Notice)
}

func TestLoader_Refresh_SuccessOverwritesSnapshot(t *testing.T) {
	store := testutil.NewMemoryStore()
	require.NoError(t, store.Set("cached_list", []byte(`["old"]`)))
	loader, _ := newListLoader(store, &fakeSession{token: "tok"}, fetchResult{raw: json.RawMessage(`["a","b"]`)})

	s := loader.Refresh(context.Background())

	require.NoError(t, s.Err)
	assert.True(t, s.Fresh)
	assert.Equal(t, []string{"a", "b"}, s.Data)
	assert.False(t, loader.Offline())

	raw, _ := store.Get("cached_list")
	assert.Equal(t, `["a","b"]`, string(raw))
}

func TestLoader_Refresh_ExpiredWithSnapshotGoesOffline(t *testing.T) {
	store := testutil.NewMemoryStore()
	original := []byte(`[ "kept" ,"exactly"]`)
	require.NoError(t, store.Set("cached_list", original))
	session := &fakeSession{token: "tok"}
	loader, _ := newListLoader(store, session, fetchResult{err: domain.ErrSessionExpired})

	s := loader.Refresh(context.Background())

	assert.ErrorIs(t, s.Err, domain.ErrSessionExpired)
	assert.False(t, s.Fatal)
	assert.True(t, s.Offline)
	assert.True(t, s.HasData)
	assert.Equal(t, []string{"kept", "exactly"}, s.Data)
	assert.Equal(t, NoticeExpiredCached, s.Notice)
	assert.True(t, loader.Offline())

	raw, _ := store.Get("cached_list")
	assert.Equal(t, original, raw)
	assert.Equal(t, []string{"tok"}, session.expired)
	assert.Empty(t, session.Token())
}

func TestLoader_Refresh_ExpiredWithoutSnapshotIsFatal(t *testing.T) {
	store := testutil.NewMemoryStore()
	session := &fakeSession{token: "tok"}
	loader, _ := newListLoader(store, session, fetchResult{err: domain.ErrSessionExpired})

	s := loader.Refresh(context.Background())

	assert.True(t, s.Fatal)
	assert.False(t, s.HasData)
	assert.Equal(t, NoticeLoginRequired, s.Notice)
	assert.ErrorIs(t, s.Err, domain.ErrLoginRequired)
	assert.Empty(t, session.Token())
}

func TestLoader_Refresh_WithoutToken(t *testing.T) {
	tests := []struct {
		name       string
		snapshot   []byte
		wantFatal  bool
		wantNotice string
	}{
		{name: "no snapshot", wantFatal: true, wantNotice: NoticeLoginRequired},
		{name: "with snapshot", snapshot: []byte(`["x"]`), wantNotice: NoticeOffline},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testutil.NewMemoryStore()
			if tt.snapshot != nil {
				require.NoError(t, store.Set("cached_list", tt.snapshot))
			}
			loader, calls := newListLoader(store, &fakeSession{})

			s := loader.Refresh(context.Background())

			assert.Equal(t, 0, *calls)
			assert.Equal(t, tt.wantFatal, s.Fatal)
			assert.Equal(t, !tt.wantFatal, s.Offline)
			assert.Equal(t, tt.wantNotice, s.Notice)
			assert.ErrorIs(t, s.Err, domain.ErrLoginRequired)
		})
	}
}

func TestLoader_Refresh_FailureNoticeOnlyBeforeFirstSuccess(t *testing.T) {
	store := testutil.NewMemoryStore()
	transportErr := fmt.Errorf("%w: connection refused", remote.ErrTransport)
	loader, _ := newListLoader(store, &fakeSession{token: "tok"},
		fetchResult{err: transportErr},
		fetchResult{raw: json.RawMessage(`["a"]`)},
		fetchResult{err: &remote.StatusError{Code: 500}},
	)

	first := loader.Refresh(context.Background())
	assert.ErrorIs(t, first.Err, remote.ErrTransport)
	assert.Equal(t, NoticeRefreshFailed, first.Notice)
	assert.False(t, first.Fatal)
	assert.False(t, first.HasData)

	second := loader.Refresh(context.Background())
	require.NoError(t, second.Err)

	third := loader.Refresh(context.Background())
	assert.Error(t, third.Err)
	assert.Empty(t, third.Notice)
	assert.True(t, third.HasData)
	assert.Equal(t, []string{"a"}, third.Data)

	raw, _ := store.Get("cached_list")
	assert.Equal(t, `["a"]`, string(raw))
}

func TestLoader_Refresh_UndecodablePayloadKeepsSnapshot(t *testing.T) {
	store := testutil.NewMemoryStore()
	require.NoError(t, store.Set("cached_list", []byte(`["good"]`)))
	loader, _ := newListLoader(store, &fakeSession{token: "tok"}, fetchResult{raw: json.RawMessage(`{"not":"a list"}`)})

	s := loader.Refresh(context.Background())

	assert.Error(t, s.Err)
	assert.False(t, s.Fresh)
	assert.Equal(t, []string{"good"}, s.Data)

	raw, _ := store.Get("cached_list")
	assert.Equal(t, `["good"]`, string(raw))
}

func TestLoader_Cached_UndecodableSnapshotIsAbsent(t *testing.T) {
	store := testutil.NewMemoryStore()
	require.NoError(t, store.Set("cached_list", []byte(`garbage`)))
	loader, _ := newListLoader(store, &fakeSession{token: "tok"})

	_, ok := loader.Cached()

	assert.False(t, ok)
}

func TestLoader_Load_UnobservedSettlementIsHarmless(t *testing.T) {
	store := testutil.NewMemoryStore()
	loader, calls := newListLoader(store, &fakeSession{token: "tok"}, fetchResult{raw: json.RawMessage(`["a"]`)})

	_, settled := loader.Load(context.Background())

	// nobody reads the value; the channel is still closed once settled
	assert.Eventually(t, func() bool {
		return store.Has("cached_list")
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, *calls)

	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-settled:
			if ok {
				_, ok = <-settled
				return !ok
			}
			return true
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}
