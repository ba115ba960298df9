package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"campusync/internal/domain"
)

// Backend response codes
const (
	CodeOK                 = 200
	CodeUnauthorized       = 401
	CodeAutoVerifyFailed   = 429
	CodeServiceUnavailable = 503
)

// envelope is the common response shape of every endpoint
type envelope struct {
	Code      int             `json:"code"`
	Msg       string          `json:"msg,omitempty"`
	UserToken string          `json:"user_token,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// LoginRequest is the login submission; Token and Captcha are set only
// when answering a challenge
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Token    string `json:"token,omitempty"`
	Captcha  string `json:"captcha,omitempty"`
}

// LoginResult is the decoded login reply. Challenge is set when the
// reply carried one.
type LoginResult struct {
	Code      int
	Msg       string
	UserToken string
	Challenge *domain.CaptchaChallenge
}

type tokenRequest struct {
	Token string `json:"token"`
}

type timetableRequest struct {
	Token    string `json:"token"`
	Semester string `json:"xnxq"`
}

type rankingRequest struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	Semester string `json:"semester"`
}

// API is the typed client of the backend endpoints
type API struct {
	client Doer
}

// NewAPI creates a new API on top of client
func NewAPI(client Doer) *API {
	return &API{client: client}
}

// FetchCaptcha requests a fresh captcha challenge
func (a *API) FetchCaptcha(ctx context.Context) (*domain.CaptchaChallenge, error) {
	resp, err := a.client.Do(ctx, http.MethodGet, "/api/captcha", nil)
	if err != nil {
		return nil, err
	}

	env, err := checkEnvelope(resp)
	if err != nil {
		return nil, err
	}

	challenge, err := decodeChallenge(env.Data)
	if err != nil {
		return nil, err
	}
	if challenge == nil {
		return nil, fmt.Errorf("%w: captcha reply without challenge", ErrMalformedResponse)
	}
	return challenge, nil
}

// Login submits credentials. Server-side rejections are not errors: they
// come back in LoginResult.Code for the session state machine to interpret.
func (a *API) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	resp, err := a.client.Do(ctx, http.MethodPost, "/api/login", req)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		if resp.StatusCode != http.StatusOK {
			return &LoginResult{Code: resp.StatusCode}, nil
		}
		return nil, fmt.Errorf("%w: login: %v", ErrMalformedResponse, err)
	}

	result := &LoginResult{
		Code:      env.Code,
		Msg:       env.Msg,
		UserToken: env.UserToken,
	}
	if resp.StatusCode != http.StatusOK && result.Code == CodeOK {
		result.Code = resp.StatusCode
	}

	if result.Code == CodeAutoVerifyFailed {
		challenge, err := decodeChallenge(env.Data)
		if err != nil {
			return nil, err
		}
		result.Challenge = challenge
	}

	return result, nil
}

// Grades returns the raw grade list
func (a *API) Grades(ctx context.Context, token string) (json.RawMessage, error) {
	resp, err := a.client.Do(ctx, http.MethodPost, "/api/grades", tokenRequest{Token: token})
	if err != nil {
		return nil, err
	}

	env, err := checkEnvelope(resp)
	if err != nil {
		return nil, err
	}
	if len(env.Data) == 0 {
		return nil, fmt.Errorf("%w: grades reply without data", ErrMalformedResponse)
	}
	return env.Data, nil
}

// Timetable returns the complete timetable reply body, which carries the
// course list plus current_week, start_date and semester
func (a *API) Timetable(ctx context.Context, token, semester string) (json.RawMessage, error) {
	resp, err := a.client.Do(ctx, http.MethodPost, "/api/timetable", timetableRequest{Token: token, Semester: semester})
	if err != nil {
		return nil, err
	}

	if _, err := checkEnvelope(resp); err != nil {
		return nil, err
	}
	return json.RawMessage(resp.Body), nil
}

// Rankings returns the ranking summary for username ("all" semesters when
// semester is empty)
func (a *API) Rankings(ctx context.Context, token, username, semester string) (*domain.Ranking, error) {
	if semester == "" {
		semester = "all"
	}

	resp, err := a.client.Do(ctx, http.MethodPost, "/api/rankings", rankingRequest{
		Token:    token,
		Username: username,
		Semester: semester,
	})
	if err != nil {
		return nil, err
	}

	env, err := checkEnvelope(resp)
	if err != nil {
		return nil, err
	}

	var ranking domain.Ranking
	if err := json.Unmarshal(env.Data, &ranking); err != nil {
		return nil, fmt.Errorf("%w: rankings: %v", ErrMalformedResponse, err)
	}
	return &ranking, nil
}

// checkEnvelope decodes the envelope and maps failure codes to errors
func checkEnvelope(resp *Response) (*envelope, error) {
	var env envelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		if resp.StatusCode == http.StatusUnauthorized {
			return nil, domain.ErrSessionExpired
		}
		if resp.StatusCode != http.StatusOK {
			return nil, &StatusError{Code: resp.StatusCode}
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	switch {
	case env.Code == CodeUnauthorized || resp.StatusCode == http.StatusUnauthorized:
		return nil, domain.ErrSessionExpired
	case resp.StatusCode != http.StatusOK:
		return nil, &StatusError{Code: resp.StatusCode, Msg: env.Msg}
	case env.Code != CodeOK:
		return nil, &StatusError{Code: env.Code, Msg: env.Msg}
	}

	return &env, nil
}

func decodeChallenge(data json.RawMessage) (*domain.CaptchaChallenge, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	var challenge domain.CaptchaChallenge
	if err := json.Unmarshal(data, &challenge); err != nil {
		return nil, fmt.Errorf("%w: challenge: %v", ErrMalformedResponse, err)
	}
	if challenge.Token == "" {
		return nil, nil
	}
	return &challenge, nil
}
