package handler

import (
	"bytes"
	"context"
	"errors"
	"strings"

	"campusync/internal/domain"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

// handleLogin starts the login conversation
func (h *Handler) handleLogin(c tele.Context) error {
	userID := c.Sender().ID
	state := h.GetState(userID)

	h.SetState(userID, &domain.ChatData{State: domain.ChatWaitingUsername, Semester: state.Semester})

	if c.Callback() != nil {
		_ = c.Respond()
	}

	if saved := h.sessions.Credential(); saved.Valid() {
		markup := &tele.ReplyMarkup{}
		markup.Inline(markup.Row(btnSavedLogin), markup.Row(btnCancel))
		return c.Send("Send your student ID, or sign in again as "+saved.Username+":", markup)
	}
	return c.Send("Send your student ID:", cancelMarkup())
}

// handleSavedLogin signs in with the remembered account
func (h *Handler) handleSavedLogin(c tele.Context) error {
	userID := c.Sender().ID
	_ = c.Respond()

	saved := h.sessions.Credential()
	if !saved.Valid() {
		return h.handleLogin(c)
	}

	state := h.GetState(userID)
	state.Username = saved.Username
	state.Password = saved.Password
	return h.submitLogin(c, state, "")
}

// handleNewCaptcha replaces the captcha the user is looking at
func (h *Handler) handleNewCaptcha(c tele.Context) error {
	_ = c.Respond()

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	outcome, err := h.sessions.RefreshChallenge(ctx)
	return h.replyLogin(c, h.GetState(c.Sender().ID), outcome, err)
}

// handleText handles all text messages based on state
func (h *Handler) handleText(c tele.Context) error {
	userID := c.Sender().ID
	text := strings.TrimSpace(c.Text())

	// Ignore commands (starting with /)
	if strings.HasPrefix(text, "/") {
		return nil
	}

	state := h.GetState(userID)

	switch state.State {
	case domain.ChatWaitingUsername:
		if text == "" {
			return c.Send("The student ID cannot be empty. Send it again:", cancelMarkup())
		}
		state.State = domain.ChatWaitingPassword
		state.Username = text
		h.SetState(userID, state)
		return c.Send("Now send your password. The message is deleted right after reading.", cancelMarkup())

	case domain.ChatWaitingPassword:
		if err := c.Delete(); err != nil {
			h.logger.Debug("Could not delete password message", zap.Error(err))
		}
		if text == "" {
			return c.Send("The password cannot be empty. Send it again:", cancelMarkup())
		}
		state.Password = text
		return h.submitLogin(c, state, "")

	case domain.ChatWaitingCaptcha:
		return h.submitLogin(c, state, text)

	default:
		return c.Send("Use /schedule, /grades or /rank, or /login to sign in.", mainMenuMarkup())
	}
}

// submitLogin runs one foreground login attempt and replies with its outcome
func (h *Handler) submitLogin(c tele.Context, state *domain.ChatData, answer string) error {
	userID := c.Sender().ID
	lock := h.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	outcome, err := h.sessions.Login(ctx, state.Credential(), answer)
	return h.replyLogin(c, state, outcome, err)
}

// replyLogin moves the conversation according to the session state and
// tells the user what happened
func (h *Handler) replyLogin(c tele.Context, state *domain.ChatData, outcome *domain.LoginOutcome, err error) error {
	userID := c.Sender().ID

	if outcome == nil {
		// rejected before any network call
		return c.Send(loginErrorText(err), cancelMarkup())
	}

	switch outcome.State {
	case domain.StateAuthenticated:
		h.ResetState(userID)
		h.logger.Info("User signed in", zap.Int64("user_id", userID))
		return c.Send("✅ Signed in.", mainMenuMarkup())

	case domain.StateAwaitingManualCaptcha:
		state.State = domain.ChatWaitingCaptcha
		h.SetState(userID, state)
		return h.sendCaptcha(c, outcome, err)

	default:
		if errors.Is(err, domain.ErrSuperseded) {
			h.ResetState(userID)
			return nil
		}
		if err != nil && !isTransient(err) {
			h.ResetState(userID)
		}
		return c.Send(loginErrorText(err), mainMenuMarkup())
	}
}

func (h *Handler) sendCaptcha(c tele.Context, outcome *domain.LoginOutcome, err error) error {
	caption := captchaCaption(outcome, err)

	if outcome.Challenge == nil {
		return c.Send(caption+"\n\nThe captcha image could not be loaded. Send any text or tap the button to fetch a new one.", captchaMarkup())
	}

	img, decodeErr := outcome.Challenge.ImageBytes()
	if decodeErr != nil || len(img) == 0 {
		h.logger.Warn("Undecodable captcha image", zap.Error(decodeErr))
		return c.Send(caption+"\n\nThe captcha image is unreadable. Tap the button to fetch a new one.", captchaMarkup())
	}

	photo := &tele.Photo{
		File:    tele.FromReader(bytes.NewReader(img)),
		Caption: caption + "\n\nSend the characters shown in the picture.",
	}
	return c.Send(photo, captchaMarkup())
}
