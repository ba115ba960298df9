package handler

import (
	"context"
	"strings"

	"campusync/internal/service"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

// renderFunc turns loaded data into message text and buttons
type renderFunc[T any] func(data T, notice string) (string, *tele.ReplyMarkup)

// presentCacheFirst shows the cached snapshot (or a loading line) at once and
// updates the same message when the background refresh settles. A
// settlement arriving after ctx is done is ignored.
func presentCacheFirst[T any](
	ctx context.Context,
	m messenger,
	to tele.Recipient,
	logger *zap.Logger,
	snapshot service.Snapshot[T],
	settled <-chan service.Settlement[T],
	render renderFunc[T],
) error {
	var (
		msg *tele.Message
		err error
	)
	if snapshot.Cached {
		text, markup := render(snapshot.Data, "")
		msg, err = m.Send(to, text, markup)
	} else {
		msg, err = m.Send(to, loadingText)
	}
	if err != nil {
		return err
	}

	var s service.Settlement[T]
	select {
	case s = <-settled:
	case <-ctx.Done():
		logger.Debug("Stopped waiting for refresh", zap.Error(ctx.Err()))
		return nil
	}

	switch {
	case s.Fatal:
		_, err = m.Edit(msg, "🔒 "+s.Notice+"\n\nUse /login to sign in.", loginMarkup())
	case s.Fresh:
		text, markup := render(s.Data, "")
		_, err = m.Edit(msg, text, markup)
	case s.HasData:
		if snapshot.Cached && s.Notice == "" {
			// already on screen
			return nil
		}
		text, markup := render(s.Data, s.Notice)
		_, err = m.Edit(msg, text, markup)
	default:
		notice := s.Notice
		if notice == "" {
			notice = service.NoticeRefreshFailed
		}
		_, err = m.Edit(msg, "⚠️ "+notice+". Try again later.", mainMenuMarkup())
	}

	if err != nil && strings.Contains(err.Error(), "message is not modified") {
		return nil
	}
	return err
}

func loginMarkup() *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{}
	menu.Inline(menu.Row(btnLogin))
	return menu
}
