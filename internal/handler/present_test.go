package handler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"campusync/internal/service"
	"campusync/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v3"
)

type fakeMessenger struct {
	mu      sync.Mutex
	sent    []string
	edits   []string
	editErr error
}

func (f *fakeMessenger) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, what.(string))
	return &tele.Message{ID: len(f.sent), Chat: &tele.Chat{ID: 1}}, nil
}

func (f *fakeMessenger) Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editErr != nil {
		return nil, f.editErr
	}
	f.edits = append(f.edits, what.(string))
	return &tele.Message{ID: 1, Chat: &tele.Chat{ID: 1}}, nil
}

func renderText(data string, notice string) (string, *tele.ReplyMarkup) {
	if notice != "" {
		return data + " [" + notice + "]", nil
	}
	return data, nil
}

func settledWith(s service.Settlement[string]) <-chan service.Settlement[string] {
	ch := make(chan service.Settlement[string], 1)
	ch <- s
	close(ch)
	return ch
}

func TestPresentCacheFirst(t *testing.T) {
	tests := []struct {
		name          string
		snapshot      service.Snapshot[string]
		settlement    service.Settlement[string]
		wantSent      string
		wantEdits     []string
		wantEditMatch string
	}{
		{
			name:       "cached then fresh",
			snapshot:   service.Snapshot[string]{Data: "old", Cached: true},
			settlement: service.Settlement[string]{Data: "new", HasData: true, Fresh: true},
			wantSent:   "old",
			wantEdits:  []string{"new"},
		},
		{
			name:       "loading then fresh",
			settlement: service.Settlement[string]{Data: "new", HasData: true, Fresh: true},
			wantSent:   loadingText,
			wantEdits:  []string{"new"},
		},
		{
			name:       "offline keeps cached data with notice",
			snapshot:   service.Snapshot[string]{Data: "old", Cached: true},
			settlement: service.Settlement[string]{Data: "old", HasData: true, Offline: true, Notice: service.NoticeExpiredCached},
			wantSent:   "old",
			wantEdits:  []string{"old [" + service.NoticeExpiredCached + "]"},
		},
		{
			name:       "quiet failure leaves cached message alone",
			snapshot:   service.Snapshot[string]{Data: "old", Cached: true},
			settlement: service.Settlement[string]{Data: "old", HasData: true, Err: errors.New("boom")},
			wantSent:   "old",
			wantEdits:  nil,
		},
		{
			name:          "fatal asks for login",
			settlement:    service.Settlement[string]{Fatal: true, Notice: service.NoticeLoginRequired},
			wantSent:      loadingText,
			wantEditMatch: "/login",
		},
		{
			name:          "failure without data",
			settlement:    service.Settlement[string]{Notice: service.NoticeRefreshFailed, Err: errors.New("boom")},
			wantSent:      loadingText,
			wantEditMatch: service.NoticeRefreshFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeMessenger{}

			err := presentCacheFirst(context.Background(), m, &tele.User{ID: 1}, testutil.NewTestLogger(),
				tt.snapshot, settledWith(tt.settlement), renderText)

			require.NoError(t, err)
			assert.Equal(t, []string{tt.wantSent}, m.sent)
			if tt.wantEditMatch != "" {
				require.Len(t, m.edits, 1)
				assert.Contains(t, m.edits[0], tt.wantEditMatch)
			} else {
				assert.Equal(t, tt.wantEdits, m.edits)
			}
		})
	}
}

func TestPresentCacheFirst_StopsWaitingWhenContextDone(t *testing.T) {
	m := &fakeMessenger{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	never := make(chan service.Settlement[string])
	err := presentCacheFirst(ctx, m, &tele.User{ID: 1}, testutil.NewTestLogger(),
		service.Snapshot[string]{Data: "old", Cached: true}, never, renderText)

	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, m.sent)
	assert.Empty(t, m.edits)
}

func TestPresentCacheFirst_NotModifiedIsNotAnError(t *testing.T) {
	m := &fakeMessenger{editErr: errors.New("telegram: bad request: message is not modified (400)")}

	err := presentCacheFirst(context.Background(), m, &tele.User{ID: 1}, testutil.NewTestLogger(),
		service.Snapshot[string]{Data: "same", Cached: true},
		settledWith(service.Settlement[string]{Data: "same", HasData: true, Fresh: true}),
		renderText)

	assert.NoError(t, err)
}
