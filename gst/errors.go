package gst

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/taxdesk/go-gst/api"
)

// ErrorKind classifies why a session action failed.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindInvalidInput means the action was rejected before any network call.
	KindInvalidInput
	// KindBackendRejected means the backend answered and said no.
	KindBackendRejected
	// KindNetwork means the backend could not be reached or did not answer.
	KindNetwork
	// KindSessionExpired means the session is no longer valid.
	KindSessionExpired
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindBackendRejected:
		return "backend_rejected"
	case KindNetwork:
		return "network"
	case KindSessionExpired:
		return "session_expired"
	default:
		return "unknown"
	}
}

// Error is the error carried by every failed session action.
type Error struct {
	Kind  ErrorKind
	Op    string
	GSTIN string
	Err   error
}

func (e *Error) Error() string {
	msg := e.Op + ": "
	if e.GSTIN != "" {
		msg += e.GSTIN + ": "
	}
	if e.Err != nil {
		return msg + e.Err.Error()
	}
	return msg + e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a session error, or KindUnknown.
func KindOf(err error) ErrorKind {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Kind
	}
	return KindUnknown
}

func invalidInput(op, gstin, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Op: op, GSTIN: gstin, Err: errors.Newf(format, args...)}
}

// classify maps a backend call failure onto an ErrorKind. Transport failures,
// timeouts and a failed credential refresh are network errors. Any answer
// from the backend, including a malformed one, is a rejection.
func classify(op, gstin string, err error) *Error {
	kind := KindBackendRejected
	var apiErr *api.Error
	switch {
	case errors.Is(err, ErrMissingSessionID):
		kind = KindBackendRejected
	case errors.Is(err, api.ErrRefreshFailed),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		kind = KindNetwork
	case errors.As(err, &apiErr) && apiErr.IsTransport():
		kind = KindNetwork
	case !errors.As(err, &apiErr):
		kind = KindNetwork
	}
	return &Error{Kind: kind, Op: op, GSTIN: gstin, Err: err}
}
