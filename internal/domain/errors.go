package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the session, loader and presentation layers
var (
	ErrValidation          = errors.New("missing required input")
	ErrSessionExpired      = errors.New("session expired")
	ErrServiceUnavailable  = errors.New("service unavailable")
	ErrLoginRequired       = errors.New("login required")
	ErrCaptchaRequired     = errors.New("captcha answer required")
	ErrLoginInProgress     = errors.New("login already in progress")
	ErrNoStoredCredentials = errors.New("no stored credentials")
	ErrSuperseded          = errors.New("superseded by logout")
)

// LoginError is a generic login rejection carrying the server message
type LoginError struct {
	Code int
	Msg  string
}

func (e *LoginError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("login rejected (code %d)", e.Code)
	}
	return fmt.Sprintf("login rejected (code %d): %s", e.Code, e.Msg)
}
