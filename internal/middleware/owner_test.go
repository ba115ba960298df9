package middleware

import (
	"testing"

	"campusync/internal/testutil"

	"github.com/stretchr/testify/assert"
	tele "gopkg.in/telebot.v3"
)

// fakeContext implements the few tele.Context methods the middleware uses
type fakeContext struct {
	tele.Context
	sender    *tele.User
	callback  *tele.Callback
	sent      []interface{}
	responses []*tele.CallbackResponse
}

func (f *fakeContext) Sender() *tele.User { return f.sender }
func (f *fakeContext) Callback() *tele.Callback { return f.callback }

func (f *fakeContext) Send(what interface{}, opts ...interface{}) error {
	f.sent = append(f.sent, what)
	return nil
}

func (f *fakeContext) Respond(resp ...*tele.CallbackResponse) error {
	f.responses = append(f.responses, resp...)
	return nil
}

func TestOwnerOnly(t *testing.T) {
	tests := []struct {
		name         string
		ctx          *fakeContext
		wantNext     bool
		wantSent     int
		wantResponds int
	}{
		{
			name:     "owner passes",
			ctx:      &fakeContext{sender: &tele.User{ID: 42}},
			wantNext: true,
		},
		{
			name:     "stranger message",
			ctx:      &fakeContext{sender: &tele.User{ID: 7, Username: "stranger"}},
			wantSent: 1,
		},
		{
			name:         "stranger callback",
			ctx:          &fakeContext{sender: &tele.User{ID: 7}, callback: &tele.Callback{ID: "cb"}},
			wantResponds: 1,
		},
		{
			name: "no sender",
			ctx:  &fakeContext{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			next := func(c tele.Context) error {
				called = true
				return nil
			}

			err := OwnerOnly(42, testutil.NewTestLogger())(next)(tt.ctx)

			assert.NoError(t, err)
			assert.Equal(t, tt.wantNext, called)
			assert.Len(t, tt.ctx.sent, tt.wantSent)
			assert.Len(t, tt.ctx.responses, tt.wantResponds)
		})
	}
}
