package middleware

import (
	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

// OwnerOnly lets only the configured Telegram user through. The bot drives a
// single academic session, so every other sender is turned away.
func OwnerOnly(ownerID int64, logger *zap.Logger) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if sender == nil {
				return nil
			}

			if sender.ID != ownerID {
				logger.Warn("Rejected update from stranger",
					zap.Int64("user_id", sender.ID),
					zap.String("username", sender.Username),
				)
				if c.Callback() != nil {
					return c.Respond(&tele.CallbackResponse{Text: "This bot is private."})
				}
				return c.Send("This bot is private.")
			}

			return next(c)
		}
	}
}
