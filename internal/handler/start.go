package handler

import (
	"fmt"

	"campusync/internal/domain"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

// handleStart handles /start command
func (h *Handler) handleStart(c tele.Context) error {
	userID := c.Sender().ID

	h.logger.Info("User started bot",
		zap.Int64("user_id", userID),
		zap.String("username", c.Sender().Username),
	)

	h.ResetState(userID)
	text := fmt.Sprintf("🏠 Main menu\n\n%s\n\nChoose an action:", sessionStatusText(h.sessions.State(), h.sessions.Credential().Username))

	if c.Callback() != nil {
		if err := c.Edit(text, mainMenuMarkup()); err != nil {
			if handleErr := h.handleEditError(err, c, userID); handleErr == nil {
				return nil
			}
			return c.Send(text, mainMenuMarkup())
		}
		return c.Respond()
	}
	return c.Send(text, mainMenuMarkup())
}

// handleLogout handles /logout; "/logout all" also forgets the saved account
func (h *Handler) handleLogout(c tele.Context) error {
	userID := c.Sender().ID
	forget := len(c.Args()) > 0 && c.Args()[0] == "all"

	h.ResetState(userID)
	if err := h.sessions.Logout(forget); err != nil {
		h.logger.Error("Failed to clear session", zap.Error(err))
		return c.Send("Logged out, but some stored data could not be removed.")
	}

	h.logger.Info("User logged out", zap.Int64("user_id", userID), zap.Bool("forget_account", forget))
	if forget {
		return c.Send("👋 Logged out. The saved account was removed.")
	}
	return c.Send("👋 Logged out. Cached data stays available offline; /logout all also removes the saved account.")
}

// handleCancel cancels the current conversation and returns to the menu
func (h *Handler) handleCancel(c tele.Context) error {
	return h.handleStart(c)
}

func sessionStatusText(state domain.LoginState, username string) string {
	switch state {
	case domain.StateAuthenticated:
		return fmt.Sprintf("✅ Signed in as %s", username)
	case domain.StateAwaitingManualCaptcha:
		return "🧩 Waiting for the captcha answer"
	case domain.StateAutoAttempting:
		return "⏳ Signing in..."
	case domain.StateServiceUnavailable:
		return "🚧 The academic service is under maintenance"
	default:
		if username != "" {
			return fmt.Sprintf("🔒 Not signed in (saved account: %s)", username)
		}
		return "🔒 Not signed in"
	}
}
