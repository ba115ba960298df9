package domain

// ChatState is the step of the login conversation in the Telegram chat
type ChatState string

const (
	ChatIdle            ChatState = "idle"
	ChatWaitingUsername ChatState = "waiting_username"
	ChatWaitingPassword ChatState = "waiting_password"
	ChatWaitingCaptcha  ChatState = "waiting_captcha"
)

// ChatData holds temporary input collected during the login conversation
// and the semester the chat is browsing
type ChatData struct {
	State    ChatState
	Username string
	Password string
	Semester string
}

// Credential returns the collected login input
func (d *ChatData) Credential() Credential {
	return Credential{Username: d.Username, Password: d.Password}
}
