// Package gst tracks GST portal sessions, one per taxpayer (GSTIN), through
// the OTP handshake with the backend.
//
// A session moves through the states NONE, OTP_PENDING, AUTHENTICATED and
// EXPIRED. Expiry is never acted on by a timer: it is detected lazily by
// comparing ExpiresAt with the current time whenever a session is read.
//
// The Manager owns the session map and the active GSTIN pointer. Every
// mutating action commits the new state to a Repository before observers are
// notified, and every action reports its outcome as a sys.Result rather than
// panicking or returning a bare error.
package gst

import (
	"maps"
	"time"
)

// DefaultSessionTTL is the lifetime of a session after OTP verification.
const DefaultSessionTTL = 6 * time.Hour

// GSTINLength is the length of a GST identification number.
const GSTINLength = 15

// SessionState is the lifecycle state of a single GSTIN's session.
type SessionState int

const (
	StateNone SessionState = iota
	StateOTPPending
	StateAuthenticated
	StateExpired
)

func (s SessionState) String() string {
	switch s {
	case StateNone:
		return "NONE"
	case StateOTPPending:
		return "OTP_PENDING"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// Session is the GST portal authorization held for one GSTIN.
type Session struct {
	SessionID  string
	GSTIN      string
	Username   string
	IsVerified bool
	ExpiresAt  time.Time
}

// IsZero reports whether the session carries no backend session.
func (s Session) IsZero() bool {
	return s.SessionID == "" && !s.IsVerified
}

// State derives the lifecycle state at now.
func (s Session) State(now time.Time) SessionState {
	switch {
	case s.SessionID == "" && !s.IsVerified:
		return StateNone
	case !s.IsVerified:
		return StateOTPPending
	case s.ExpiresAt.IsZero() || !now.Before(s.ExpiresAt):
		return StateExpired
	default:
		return StateAuthenticated
	}
}

// Authenticated reports whether the session is verified and unexpired at now.
func (s Session) Authenticated(now time.Time) bool {
	return s.State(now) == StateAuthenticated
}

// Remaining returns the time left before expiry. The bool is false when the
// session is not authenticated at now, including when it has expired.
func (s Session) Remaining(now time.Time) (time.Duration, bool) {
	if !s.Authenticated(now) {
		return 0, false
	}
	return s.ExpiresAt.Sub(now), true
}

// State is the persisted part of the manager: the session map and the
// active GSTIN pointer.
type State struct {
	Sessions    map[string]Session
	ActiveGSTIN string
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s State) Clone() State {
	out := State{ActiveGSTIN: s.ActiveGSTIN, Sessions: maps.Clone(s.Sessions)}
	if out.Sessions == nil {
		out.Sessions = make(map[string]Session)
	}
	return out
}

// Current derives the session selected by ActiveGSTIN. An active GSTIN with
// no entry yields an unauthenticated placeholder carrying only the GSTIN.
func (s State) Current() Session {
	if s.ActiveGSTIN == "" {
		return Session{}
	}
	if sess, ok := s.Sessions[s.ActiveGSTIN]; ok {
		return sess
	}
	return Session{GSTIN: s.ActiveGSTIN}
}

// Snapshot is what observers receive after every committed transition.
type Snapshot struct {
	State   State
	Current Session
	Err     error
}
