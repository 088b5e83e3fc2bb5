package gst

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/taxdesk/go-gst/api"
)

// Status is the backend's authoritative view of a session.
type Status struct {
	Valid     bool
	Verified  bool
	Username  string
	ExpiresIn time.Duration
}

// ActiveSession describes a session the backend already holds for a GSTIN,
// for example one established from another client.
type ActiveSession struct {
	Found     bool
	SessionID string
	GSTIN     string
	Username  string
	ExpiresIn time.Duration
}

// Backend is the remote GST portal authentication service.
type Backend interface {
	GenerateOTP(ctx context.Context, username, gstin string) (sessionID string, err error)
	VerifyOTP(ctx context.Context, sessionID, otp, username string) error
	SessionStatus(ctx context.Context, sessionID string) (Status, error)
	ActiveSession(ctx context.Context, gstin string) (ActiveSession, error)
}

const (
	generateOTPPath   = "/gst/auth/generate-otp/"
	verifyOTPPath     = "/gst/auth/verify-otp/"
	sessionStatusPath = "/gst/auth/session-status/"
	activeSessionPath = "/gst/auth/active-session/"
)

type httpBackend struct {
	client *api.Client
}

var _ Backend = (*httpBackend)(nil)

// NewHTTPBackend returns a Backend that talks to the REST API through client,
// inheriting its cookie credentials and transparent refresh.
func NewHTTPBackend(client *api.Client) Backend {
	return &httpBackend{client: client}
}

// ErrMissingSessionID is returned when the backend accepts an OTP request but
// its answer carries no session id.
var ErrMissingSessionID = errors.New("backend returned no session_id")

type generateOTPRequest struct {
	GSTIN    string `json:"gstin"`
	Username string `json:"username"`
}

type generateOTPResponse struct {
	SessionID string `json:"session_id"`
}

func (b *httpBackend) GenerateOTP(ctx context.Context, username, gstin string) (string, error) {
	var resp generateOTPResponse
	if err := b.client.Do(ctx, http.MethodPost, generateOTPPath, generateOTPRequest{GSTIN: gstin, Username: username}, &resp); err != nil {
		return "", err
	}
	if resp.SessionID == "" {
		return "", errors.Wrap(ErrMissingSessionID, "generate otp")
	}
	return resp.SessionID, nil
}

type verifyOTPRequest struct {
	SessionID string `json:"session_id"`
	OTP       string `json:"otp"`
	Username  string `json:"username"`
}

func (b *httpBackend) VerifyOTP(ctx context.Context, sessionID, otp, username string) error {
	return b.client.Do(ctx, http.MethodPost, verifyOTPPath, verifyOTPRequest{SessionID: sessionID, OTP: otp, Username: username}, nil)
}

type sessionStatusResponse struct {
	IsValid          bool    `json:"is_valid"`
	IsVerified       bool    `json:"is_verified"`
	ExpiresInSeconds float64 `json:"expires_in_seconds"`
	Username         string  `json:"username"`
}

func (b *httpBackend) SessionStatus(ctx context.Context, sessionID string) (Status, error) {
	var resp sessionStatusResponse
	if err := b.client.Do(ctx, http.MethodGet, sessionStatusPath+"?"+url.Values{"session_id": {sessionID}}.Encode(), nil, &resp); err != nil {
		return Status{}, err
	}
	return Status{
		Valid:     resp.IsValid,
		Verified:  resp.IsVerified,
		Username:  resp.Username,
		ExpiresIn: seconds(resp.ExpiresInSeconds),
	}, nil
}

type activeSessionResponse struct {
	HasActiveSession bool    `json:"has_active_session"`
	SessionID        string  `json:"session_id"`
	GSTIN            string  `json:"gstin"`
	Username         string  `json:"username"`
	ExpiresInSeconds float64 `json:"expires_in_seconds"`
}

func (b *httpBackend) ActiveSession(ctx context.Context, gstin string) (ActiveSession, error) {
	var resp activeSessionResponse
	if err := b.client.Do(ctx, http.MethodGet, activeSessionPath+"?"+url.Values{"gstin": {gstin}}.Encode(), nil, &resp); err != nil {
		return ActiveSession{}, err
	}
	return ActiveSession{
		Found:     resp.HasActiveSession && resp.SessionID != "",
		SessionID: resp.SessionID,
		GSTIN:     resp.GSTIN,
		Username:  resp.Username,
		ExpiresIn: seconds(resp.ExpiresInSeconds),
	}, nil
}

func seconds(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}
