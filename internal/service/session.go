package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"campusync/internal/domain"
	"campusync/internal/remote"
	"campusync/internal/repository"

	"go.uber.org/zap"
)

// AuthAPI is the part of the backend used by the session state machine
type AuthAPI interface {
	FetchCaptcha(ctx context.Context) (*domain.CaptchaChallenge, error)
	Login(ctx context.Context, req remote.LoginRequest) (*remote.LoginResult, error)
}

// SessionService owns the credential, the session token and the captcha
// escalation state. It is the single writer of that material: every
// transition happens under mu, network calls happen outside it.
//
// Foreground (user-initiated) logins take precedence over the silent
// background refresh. generation is bumped by every foreground transition so
// a background settlement that started earlier is discarded.
type SessionService struct {
	api    AuthAPI
	store  repository.Store
	logger *zap.Logger

	mu         sync.Mutex
	state      domain.LoginState
	session    domain.Session
	credential domain.Credential
	challenge  *domain.CaptchaChallenge
	foreground bool
	generation uint64
}

// NewSessionService creates a session manager in the Idle state
func NewSessionService(api AuthAPI, store repository.Store, logger *zap.Logger) *SessionService {
	return &SessionService{
		api:    api,
		store:  store,
		logger: logger,
		state:  domain.StateIdle,
	}
}

// Restore loads the persisted token and credential. A stored token means
// the previous process ended authenticated.
func (s *SessionService) Restore() error {
	token, err := s.store.Get(repository.KeyUserToken)
	if err != nil {
		return fmt.Errorf("failed to read token: %w", err)
	}
	username, err := s.store.Get(repository.KeyUsername)
	if err != nil {
		return fmt.Errorf("failed to read username: %w", err)
	}
	password, err := s.store.Get(repository.KeyPassword)
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.credential = domain.Credential{Username: string(username), Password: string(password)}
	if len(token) > 0 {
		s.session = domain.Session{Token: string(token), Authenticated: true}
		s.state = domain.StateAuthenticated
	}

	s.logger.Info("Session restored",
		zap.String("state", string(s.state)),
		zap.Bool("has_credential", s.credential.Valid()),
	)
	return nil
}

// State returns the current login state
func (s *SessionService) State() domain.LoginState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Session returns a copy of the current session
func (s *SessionService) Session() domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Token returns the session token, empty when not authenticated
func (s *SessionService) Token() string {
	return s.Session().Token
}

// Credential returns the remembered credential
func (s *SessionService) Credential() domain.Credential {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credential
}

// Challenge returns a copy of the active captcha challenge, or nil
func (s *SessionService) Challenge() *domain.CaptchaChallenge {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.challenge == nil {
		return nil
	}
	c := *s.challenge
	return &c
}

// Login submits a foreground login. Without an active challenge it is an
// automatic attempt; in AwaitingManualCaptcha the active challenge is
// consumed together with answer. In AwaitingManualCaptcha with no challenge
// (the last one was used up) nothing is submitted: a new challenge is
// fetched and the outcome has Refreshed set.
//
// cred becomes the remembered credential only once the server accepts it.
//
// Rejections are reported as errors alongside an outcome describing the
// resulting state: *domain.LoginError for generic failures,
// domain.ErrServiceUnavailable for maintenance. A transport error leaves
// the state as it was before the call.
func (s *SessionService) Login(ctx context.Context, cred domain.Credential, answer string) (*domain.LoginOutcome, error) {
	if !cred.Valid() {
		return nil, fmt.Errorf("%w: username and password", domain.ErrValidation)
	}

	s.mu.Lock()
	if s.foreground {
		s.mu.Unlock()
		return nil, domain.ErrLoginInProgress
	}

	prevState := s.state
	var challenge *domain.CaptchaChallenge

	if prevState == domain.StateAwaitingManualCaptcha {
		if s.challenge == nil {
			s.mu.Unlock()
			return s.RefreshChallenge(ctx)
		}
		answer = strings.TrimSpace(answer)
		if answer == "" {
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: captcha answer", domain.ErrValidation)
		}
		// single use: gone whatever the outcome
		challenge = s.challenge
		s.challenge = nil
	} else {
		s.state = domain.StateAutoAttempting
	}

	s.foreground = true
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	req := remote.LoginRequest{Username: cred.Username, Password: cred.Password}
	if challenge != nil {
		req.Token = challenge.Token
		req.Captcha = answer
	}

	s.logger.Info("Login attempt",
		zap.String("username", cred.Username),
		zap.Bool("manual_captcha", challenge != nil),
	)

	result, err := s.api.Login(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.foreground = false }()

	if gen != s.generation {
		s.logger.Info("Login settled after logout, discarding")
		return &domain.LoginOutcome{State: s.state}, domain.ErrSuperseded
	}

	if err != nil {
		s.state = prevState
		s.logger.Warn("Login attempt failed", zap.Error(err))
		return &domain.LoginOutcome{State: s.state}, fmt.Errorf("login: %w", err)
	}

	switch {
	case result.Code == remote.CodeOK && result.UserToken != "":
		s.authenticate(result.UserToken, cred)
		return &domain.LoginOutcome{State: s.state, Message: result.Msg}, nil

	case result.Code == remote.CodeServiceUnavailable:
		s.state = domain.StateServiceUnavailable
		s.logger.Warn("Service unavailable", zap.String("msg", result.Msg))
		return &domain.LoginOutcome{State: s.state, Message: result.Msg},
			fmt.Errorf("%w: %s", domain.ErrServiceUnavailable, result.Msg)

	case result.Code == remote.CodeAutoVerifyFailed && challenge == nil:
		s.state = domain.StateAwaitingManualCaptcha
		s.challenge = result.Challenge
		s.logger.Info("Automatic verification failed, captcha required",
			zap.Bool("challenge_in_reply", result.Challenge != nil),
		)
		if s.challenge == nil {
			return s.fetchChallengeLocked(ctx, result.Msg)
		}
		return &domain.LoginOutcome{State: s.state, Challenge: s.copyChallenge(), Message: result.Msg}, nil

	case challenge != nil:
		// failed while a challenge was active: stay, with a fresh challenge
		s.state = domain.StateAwaitingManualCaptcha
		s.logger.Info("Manual login rejected", zap.Int("code", result.Code))
		outcome, fetchErr := s.fetchChallengeLocked(ctx, result.Msg)
		if fetchErr != nil {
			return outcome, fetchErr
		}
		return outcome, &domain.LoginError{Code: result.Code, Msg: result.Msg}

	default:
		// a rejected re-login leaves a live session as it was
		s.state = domain.StateIdle
		if prevState == domain.StateAuthenticated && s.session.Authenticated {
			s.state = domain.StateAuthenticated
		}
		s.logger.Info("Login rejected", zap.Int("code", result.Code))
		return &domain.LoginOutcome{State: s.state, Message: result.Msg},
			&domain.LoginError{Code: result.Code, Msg: result.Msg}
	}
}

// RefreshChallenge replaces the active challenge with a freshly fetched one.
// Only valid in AwaitingManualCaptcha. On success the outcome carries the
// new challenge and has Refreshed set.
func (s *SessionService) RefreshChallenge(ctx context.Context) (*domain.LoginOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != domain.StateAwaitingManualCaptcha {
		return &domain.LoginOutcome{State: s.state}, domain.ErrCaptchaRequired
	}
	if s.foreground {
		return nil, domain.ErrLoginInProgress
	}

	s.foreground = true
	s.generation++
	defer func() { s.foreground = false }()

	s.challenge = nil
	outcome, err := s.fetchChallengeLocked(ctx, "")
	if err != nil {
		return outcome, err
	}
	outcome.Refreshed = true
	return outcome, nil
}

// fetchChallengeLocked fetches a captcha with mu released around the call.
// Callers hold mu and have foreground set.
func (s *SessionService) fetchChallengeLocked(ctx context.Context, msg string) (*domain.LoginOutcome, error) {
	gen := s.generation
	s.mu.Unlock()
	challenge, err := s.api.FetchCaptcha(ctx)
	s.mu.Lock()

	if gen != s.generation {
		return &domain.LoginOutcome{State: s.state}, domain.ErrSuperseded
	}
	if err != nil {
		s.logger.Warn("Failed to fetch captcha", zap.Error(err))
		return &domain.LoginOutcome{State: s.state, Message: msg}, fmt.Errorf("captcha: %w", err)
	}

	s.challenge = challenge
	return &domain.LoginOutcome{State: s.state, Challenge: s.copyChallenge(), Message: msg}, nil
}

// SilentRefresh re-authenticates in the background with the remembered
// credential. It never escalates to captcha nor reports maintenance: any
// outcome other than success leaves the session untouched, and a
// settlement that races with a foreground login is dropped.
func (s *SessionService) SilentRefresh(ctx context.Context) error {
	s.mu.Lock()
	cred := s.credential
	if !cred.Valid() {
		s.mu.Unlock()
		return domain.ErrNoStoredCredentials
	}
	if s.foreground || s.state == domain.StateAwaitingManualCaptcha {
		s.mu.Unlock()
		s.logger.Debug("Silent refresh skipped, foreground login active")
		return nil
	}
	gen := s.generation
	s.mu.Unlock()

	result, err := s.api.Login(ctx, remote.LoginRequest{Username: cred.Username, Password: cred.Password})
	if err != nil {
		s.logger.Warn("Silent refresh failed", zap.Error(err))
		return fmt.Errorf("silent refresh: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation || s.foreground || s.state == domain.StateAwaitingManualCaptcha {
		s.logger.Info("Silent refresh superseded by foreground login, discarding")
		return nil
	}

	switch result.Code {
	case remote.CodeOK:
		if result.UserToken == "" {
			return fmt.Errorf("silent refresh: %w: empty token", remote.ErrMalformedResponse)
		}
		s.authenticate(result.UserToken, cred)
		return nil
	case remote.CodeAutoVerifyFailed, remote.CodeServiceUnavailable:
		s.logger.Info("Silent refresh needs user action, keeping session", zap.Int("code", result.Code))
		return nil
	default:
		s.logger.Warn("Silent refresh rejected", zap.Int("code", result.Code))
		return &domain.LoginError{Code: result.Code, Msg: result.Msg}
	}
}

// ExpireToken clears the session after the backend rejected token. A token
// that has already been replaced is left alone.
func (s *SessionService) ExpireToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token == "" || s.session.Token != token {
		return
	}

	s.session = domain.Session{}
	if s.state == domain.StateAuthenticated {
		s.state = domain.StateIdle
	}
	if err := s.store.Remove(repository.KeyUserToken); err != nil {
		s.logger.Warn("Failed to remove expired token", zap.Error(err))
	}
	s.logger.Info("Session token expired")
}

// Logout returns to Idle and clears the token. Whether the credential is
// forgotten too is up to the caller.
func (s *SessionService) Logout(clearCredential bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.state = domain.StateIdle
	s.session = domain.Session{}
	s.challenge = nil

	var errs []error
	errs = append(errs, s.store.Remove(repository.KeyUserToken))
	if clearCredential {
		s.credential = domain.Credential{}
		errs = append(errs,
			s.store.Remove(repository.KeyUsername),
			s.store.Remove(repository.KeyPassword),
		)
	}

	s.logger.Info("Logged out", zap.Bool("credential_cleared", clearCredential))
	return errors.Join(errs...)
}

// authenticate records a successful login. Callers hold mu.
func (s *SessionService) authenticate(token string, cred domain.Credential) {
	s.session = domain.Session{Token: token, Authenticated: true}
	s.state = domain.StateAuthenticated
	s.credential = cred
	s.challenge = nil

	for key, value := range map[string]string{
		repository.KeyUserToken: token,
		repository.KeyUsername:  cred.Username,
		repository.KeyPassword:  cred.Password,
	} {
		if err := s.store.Set(key, []byte(value)); err != nil {
			s.logger.Warn("Failed to persist session material", zap.String("key", key), zap.Error(err))
		}
	}

	s.logger.Info("Authenticated", zap.String("username", cred.Username))
}

func (s *SessionService) copyChallenge() *domain.CaptchaChallenge {
	if s.challenge == nil {
		return nil
	}
	c := *s.challenge
	return &c
}
