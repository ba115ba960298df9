package handler

import (
	"context"
	"errors"

	"campusync/internal/domain"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

// handleGrades handles /grades with the same cache-first display as /schedule
func (h *Handler) handleGrades(c tele.Context) error {
	userID := c.Sender().ID
	if c.Callback() != nil {
		_ = c.Respond()
	}

	h.logger.Info("Grades requested", zap.Int64("user_id", userID))

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	snapshot, settled := h.grades.Load(ctx)
	return presentCacheFirst(ctx, h.messenger, c.Recipient(), h.logger, snapshot, settled,
		func(data []domain.RawGrade, notice string) (string, *tele.ReplyMarkup) {
			return formatGrades(h.grades.Report(data), notice), gradesMarkup()
		})
}

// handleRank handles /rank; rankings are never cached
func (h *Handler) handleRank(c tele.Context) error {
	userID := c.Sender().ID
	if c.Callback() != nil {
		_ = c.Respond()
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	ranking, err := h.grades.Ranking(ctx)
	switch {
	case err == nil:
		return c.Send(formatRanking(ranking), mainMenuMarkup())
	case errors.Is(err, domain.ErrLoginRequired), errors.Is(err, domain.ErrNoStoredCredentials):
		return c.Send("🔒 Rankings need an active session. Use /login to sign in.", loginMarkup())
	default:
		h.logger.Error("Failed to load rankings", zap.Error(err), zap.Int64("user_id", userID))
		return c.Send("⚠️ Failed to load rankings. Try again later.", mainMenuMarkup())
	}
}

func gradesMarkup() *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{}
	menu.Inline(menu.Row(btnRank, btnMainMenu))
	return menu
}
