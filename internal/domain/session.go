package domain

import (
	"encoding/base64"
	"strings"
)

// LoginState is the state of the login state machine
type LoginState string

const (
	StateIdle                  LoginState = "idle"
	StateAutoAttempting        LoginState = "auto_attempting"
	StateAwaitingManualCaptcha LoginState = "awaiting_manual_captcha"
	StateAuthenticated         LoginState = "authenticated"
	StateServiceUnavailable    LoginState = "service_unavailable"
)

// Credential is the username/password pair used for (silent) authentication
type Credential struct {
	Username string
	Password string
}

// Valid reports whether both fields are present
func (c Credential) Valid() bool {
	return c.Username != "" && c.Password != ""
}

// Session holds the opaque token forwarded on every data request.
// Authenticated implies a non-empty Token.
type Session struct {
	Token         string
	Authenticated bool
}

// CaptchaChallenge is issued by the server and consumed by exactly one manual login
type CaptchaChallenge struct {
	Token     string `json:"token"`
	ImageData string `json:"image"`
}

// ImageBytes decodes ImageData, which may carry a data URI prefix
func (c CaptchaChallenge) ImageBytes() ([]byte, error) {
	data := c.ImageData
	if i := strings.Index(data, ";base64,"); i >= 0 && strings.HasPrefix(data, "data:") {
		data = data[i+len(";base64,"):]
	}
	return base64.StdEncoding.DecodeString(data)
}

// LoginOutcome describes where a login submission left the state machine.
// Refreshed is set when a new challenge was fetched instead of submitting.
type LoginOutcome struct {
	State     LoginState
	Challenge *CaptchaChallenge
	Message   string
	Refreshed bool
}

// Ranking is the academic standing summary returned by the rankings endpoint
type Ranking struct {
	GPA       string `json:"gpa"`
	ClassRank string `json:"class_rank"`
	MajorRank string `json:"major_rank"`
	AvgScore  string `json:"avg_score"`
	FailCount string `json:"fail_count"`
}
