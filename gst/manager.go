package gst

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/taxdesk/go-gst/api"
	"github.com/taxdesk/go-gst/logger"
	"github.com/taxdesk/go-gst/sys"
)

// ErrNoActiveSession is wrapped into the error returned when the backend has
// no session to restore for a GSTIN.
var ErrNoActiveSession = errors.New("no active session")

// ErrSuperseded is wrapped into the error returned when the session an action
// started with was replaced before the action could commit.
var ErrSuperseded = errors.New("session was replaced while the request was in flight")

// Repository persists the manager state.
type Repository interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, state State) error
}

// Outcome is the value carried by every action result.
type Outcome struct {
	Session       Session
	AlreadyActive bool
	Restored      bool
}

type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithSessionTTL sets the lifetime granted on OTP verification.
func WithSessionTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// Manager drives the per-GSTIN session state machine. It is safe for
// concurrent use. Backend calls run without holding the lock; each mutation
// and its repository save form a single critical section, so concurrent
// actions on the same GSTIN resolve as last write wins.
type Manager struct {
	logger  logger.Logger
	backend Backend
	repo    Repository
	now     func() time.Time
	ttl     time.Duration

	mu      sync.Mutex
	state   State
	lastErr error

	notifyMu  sync.Mutex
	observers map[uint64]func(Snapshot)
	nextID    uint64
}

// NewManager rehydrates the state saved in repo.
func NewManager(ctx context.Context, log logger.Logger, backend Backend, repo Repository, opts ...Option) (*Manager, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	if repo == nil {
		return nil, errors.New("repository is required")
	}
	m := &Manager{
		logger:    log.WithPrefix("[gst]"),
		backend:   backend,
		repo:      repo,
		now:       time.Now,
		ttl:       DefaultSessionTTL,
		observers: make(map[uint64]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(m)
	}
	state, err := repo.Load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "error loading session state")
	}
	m.state = state.Clone()
	m.logger.Debug("rehydrated %d session(s), active gstin %q", len(m.state.Sessions), m.state.ActiveGSTIN)
	return m, nil
}

// commit applies mutate under the lock, saves the result and notifies
// observers in commit order. A failed save keeps the in-memory state and is
// recorded as the last error. actionErr becomes the last error otherwise.
// A mutate error leaves state, last error and observers untouched.
//
// Lock order is notifyMu then mu. Observers run with only notifyMu held, so
// they can read the manager.
func (m *Manager) commit(ctx context.Context, mutate func(s *State) error, actionErr error) error {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	if mutate != nil {
		if err := mutate(&m.state); err != nil {
			m.mu.Unlock()
			return err
		}
		if err := m.repo.Save(context.WithoutCancel(ctx), m.state.Clone()); err != nil {
			m.logger.Warn("failed to persist session state: %s", err)
			actionErr = errors.CombineErrors(actionErr, errors.Wrap(err, "error persisting session state"))
		}
	}
	m.lastErr = actionErr
	snap := m.snapshotLocked()
	m.mu.Unlock()

	for _, fn := range m.observers {
		fn(snap)
	}
	return nil
}

func (m *Manager) snapshotLocked() Snapshot {
	state := m.state.Clone()
	return Snapshot{State: state, Current: state.Current(), Err: m.lastErr}
}

// fail records a backend or network failure without touching the session
// map. Invalid input is returned to the caller only.
func (m *Manager) fail(ctx context.Context, err error) sys.Result[Outcome] {
	if KindOf(err) != KindInvalidInput {
		m.commit(ctx, nil, err)
	}
	return sys.Err[Outcome](err)
}

// Subscribe registers fn to receive a snapshot after every committed action.
// fn runs synchronously and may read from the manager but must not call its
// actions or Subscribe. The returned function removes the subscription and
// must not be called from inside fn.
func (m *Manager) Subscribe(fn func(Snapshot)) func() {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()
	id := m.nextID
	m.nextID++
	m.observers[id] = fn
	return func() {
		m.notifyMu.Lock()
		defer m.notifyMu.Unlock()
		delete(m.observers, id)
	}
}

func checkGSTIN(op, gstin string) *Error {
	if gstin == "" {
		return invalidInput(op, gstin, "gstin is required")
	}
	if len(gstin) != GSTINLength {
		return invalidInput(op, gstin, "gstin must be %d characters, got %d", GSTINLength, len(gstin))
	}
	return nil
}

// GenerateOTP starts the OTP handshake for gstin and makes it the active
// GSTIN. On failure the session map is left as it was.
func (m *Manager) GenerateOTP(ctx context.Context, username, gstin string) sys.Result[Outcome] {
	const op = "generate otp"
	if username == "" {
		return m.fail(ctx, invalidInput(op, gstin, "username is required"))
	}
	if err := checkGSTIN(op, gstin); err != nil {
		return m.fail(ctx, err)
	}
	sessionID, err := m.backend.GenerateOTP(ctx, username, gstin)
	if err != nil {
		m.logger.Debug("otp generation for %s failed: %s", gstin, err)
		return m.fail(ctx, classify(op, gstin, err))
	}
	sess := Session{SessionID: sessionID, GSTIN: gstin, Username: username}
	err = m.commit(ctx, func(s *State) error {
		s.Sessions[gstin] = sess
		s.ActiveGSTIN = gstin
		return nil
	}, nil)
	if err != nil {
		return sys.Err[Outcome](err)
	}
	m.logger.Info("otp sent for %s", gstin)
	return sys.Ok(Outcome{Session: sess})
}

// VerifyOTP completes the handshake for the active GSTIN's pending session.
// The otp format is checked by the caller, see ValidateOTP.
func (m *Manager) VerifyOTP(ctx context.Context, otp string) sys.Result[Outcome] {
	const op = "verify otp"
	m.mu.Lock()
	gstin := m.state.ActiveGSTIN
	pending, ok := m.state.Sessions[gstin]
	m.mu.Unlock()
	if gstin == "" {
		return m.fail(ctx, invalidInput(op, "", "no active gstin"))
	}
	if !ok || pending.SessionID == "" {
		return m.fail(ctx, invalidInput(op, gstin, "no pending session, generate an otp first"))
	}
	if otp == "" {
		return m.fail(ctx, invalidInput(op, gstin, "otp is required"))
	}
	if err := m.backend.VerifyOTP(ctx, pending.SessionID, otp, pending.Username); err != nil {
		m.logger.Debug("otp verification for %s failed: %s", gstin, err)
		return m.fail(ctx, classify(op, gstin, err))
	}
	var verified Session
	err := m.commit(ctx, func(s *State) error {
		cur, ok := s.Sessions[gstin]
		if !ok || cur.SessionID != pending.SessionID {
			return &Error{Kind: KindInvalidInput, Op: op, GSTIN: gstin, Err: ErrSuperseded}
		}
		cur.IsVerified = true
		cur.ExpiresAt = m.now().Add(m.ttl)
		s.Sessions[gstin] = cur
		verified = cur
		return nil
	}, nil)
	if err != nil {
		return sys.Err[Outcome](err)
	}
	m.logger.Info("session for %s verified until %s", gstin, verified.ExpiresAt.Format(time.RFC3339))
	return sys.Ok(Outcome{Session: verified})
}

// CheckSessionStatus validates the stored session for gstin ("" for the
// active GSTIN) against the backend. A session the backend reports invalid is
// deleted. A failed check leaves the entry in place.
func (m *Manager) CheckSessionStatus(ctx context.Context, gstin string) sys.Result[Outcome] {
	const op = "check session status"
	m.mu.Lock()
	if gstin == "" {
		gstin = m.state.ActiveGSTIN
	}
	stored, ok := m.state.Sessions[gstin]
	m.mu.Unlock()
	if gstin == "" {
		return m.fail(ctx, invalidInput(op, "", "no active gstin"))
	}
	if !ok || stored.SessionID == "" {
		return m.fail(ctx, invalidInput(op, gstin, "no session to check"))
	}
	status, err := m.backend.SessionStatus(ctx, stored.SessionID)
	if err != nil {
		m.logger.Warn("session status check for %s failed: %s", gstin, err)
		return m.fail(ctx, classify(op, gstin, err))
	}
	if !status.Valid {
		expired := &Error{Kind: KindSessionExpired, Op: op, GSTIN: gstin, Err: errors.New("backend reports the session is no longer valid")}
		err := m.commit(ctx, func(s *State) error {
			if cur, ok := s.Sessions[gstin]; ok && cur.SessionID == stored.SessionID {
				removeSession(s, gstin)
			}
			return nil
		}, expired)
		if err != nil {
			return sys.Err[Outcome](err)
		}
		m.logger.Info("session for %s expired on the backend, cleared", gstin)
		return sys.Err[Outcome](expired)
	}
	var refreshed Session
	err = m.commit(ctx, func(s *State) error {
		cur, ok := s.Sessions[gstin]
		if !ok || cur.SessionID != stored.SessionID {
			return &Error{Kind: KindInvalidInput, Op: op, GSTIN: gstin, Err: ErrSuperseded}
		}
		cur.IsVerified = status.Verified
		if status.ExpiresIn > 0 {
			cur.ExpiresAt = m.now().Add(status.ExpiresIn)
		}
		if status.Username != "" {
			cur.Username = status.Username
		}
		s.Sessions[gstin] = cur
		refreshed = cur
		return nil
	}, nil)
	if err != nil {
		return sys.Err[Outcome](err)
	}
	return sys.Ok(Outcome{Session: refreshed})
}

// InitializeSession makes gstin the active GSTIN, restoring its session from
// the backend when no valid local one exists. When the backend has nothing
// to restore the GSTIN is left active as an unauthenticated placeholder and
// the result carries that placeholder alongside an ErrNoActiveSession error.
func (m *Manager) InitializeSession(ctx context.Context, gstin string) sys.Result[Outcome] {
	const op = "initialize session"
	if err := checkGSTIN(op, gstin); err != nil {
		return m.fail(ctx, err)
	}

	if local, ok := m.Session(gstin); ok && local.Authenticated(m.now()) {
		err := m.commit(ctx, func(s *State) error {
			s.ActiveGSTIN = gstin
			return nil
		}, nil)
		if err != nil {
			return sys.Err[Outcome](err)
		}
		m.logger.Debug("%s already has a valid session", gstin)
		return sys.Ok(Outcome{Session: local, AlreadyActive: true})
	}

	active, err := m.backend.ActiveSession(ctx, gstin)
	if err != nil && api.StatusOf(err) != http.StatusNotFound {
		m.logger.Warn("active session search for %s failed: %s", gstin, err)
		return m.fail(ctx, classify(op, gstin, errors.Wrap(err, "search failed")))
	}
	if err == nil && active.Found {
		expiresIn := active.ExpiresIn
		if expiresIn <= 0 {
			expiresIn = m.ttl
		}
		restored := Session{
			SessionID:  active.SessionID,
			GSTIN:      gstin,
			Username:   active.Username,
			IsVerified: true,
			ExpiresAt:  m.now().Add(expiresIn),
		}
		err := m.commit(ctx, func(s *State) error {
			s.Sessions[gstin] = restored
			s.ActiveGSTIN = gstin
			return nil
		}, nil)
		if err != nil {
			return sys.Err[Outcome](err)
		}
		m.logger.Info("restored session for %s", gstin)
		return sys.Ok(Outcome{Session: restored, Restored: true})
	}

	notFound := &Error{Kind: KindBackendRejected, Op: op, GSTIN: gstin, Err: ErrNoActiveSession}
	err = m.commit(ctx, func(s *State) error {
		delete(s.Sessions, gstin)
		s.ActiveGSTIN = gstin
		return nil
	}, notFound)
	if err != nil {
		return sys.Err[Outcome](err)
	}
	m.logger.Debug("no active session for %s on the backend", gstin)
	return sys.Partial(Outcome{Session: Session{GSTIN: gstin}}, error(notFound))
}

// SetActive points the manager at gstin without any backend call. An empty
// gstin clears the pointer.
func (m *Manager) SetActive(ctx context.Context, gstin string) sys.Result[Outcome] {
	if gstin != "" {
		if err := checkGSTIN("set active", gstin); err != nil {
			return m.fail(ctx, err)
		}
	}
	var current Session
	err := m.commit(ctx, func(s *State) error {
		s.ActiveGSTIN = gstin
		current = s.Current()
		return nil
	}, nil)
	if err != nil {
		return sys.Err[Outcome](err)
	}
	return sys.Ok(Outcome{Session: current})
}

// ClearSession removes the session for gstin ("" for the active GSTIN).
func (m *Manager) ClearSession(ctx context.Context, gstin string) sys.Result[Outcome] {
	var cleared Session
	err := m.commit(ctx, func(s *State) error {
		if gstin == "" {
			gstin = s.ActiveGSTIN
		}
		if gstin == "" {
			return nil
		}
		cleared = s.Sessions[gstin]
		removeSession(s, gstin)
		return nil
	}, nil)
	if err != nil {
		return sys.Err[Outcome](err)
	}
	if gstin != "" {
		m.logger.Info("cleared session for %s", gstin)
	}
	return sys.Ok(Outcome{Session: cleared})
}

// Logout drops every session and the active pointer.
func (m *Manager) Logout(ctx context.Context) sys.Result[Outcome] {
	err := m.commit(ctx, func(s *State) error {
		*s = State{Sessions: make(map[string]Session)}
		return nil
	}, nil)
	if err != nil {
		return sys.Err[Outcome](err)
	}
	m.logger.Info("logged out of all sessions")
	return sys.Ok(Outcome{})
}

func removeSession(s *State, gstin string) {
	delete(s.Sessions, gstin)
	if s.ActiveGSTIN == gstin {
		s.ActiveGSTIN = ""
	}
}

// State returns a copy of the session map and active pointer.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

// Current returns the session selected by the active GSTIN.
func (m *Manager) Current() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Current()
}

func (m *Manager) Session(gstin string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.state.Sessions[gstin]
	return sess, ok
}

func (m *Manager) resolve(gstin string) Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gstin == "" {
		return m.state.Current()
	}
	return m.state.Sessions[gstin]
}

// Remaining returns the time left on the session for gstin ("" for the
// active GSTIN). It never mutates state: an expired session reports false
// until it is checked or cleared.
func (m *Manager) Remaining(gstin string) (time.Duration, bool) {
	return m.resolve(gstin).Remaining(m.now())
}

// IsAuthenticated reports whether gstin ("" for the active GSTIN) has a
// verified, unexpired session.
func (m *Manager) IsAuthenticated(gstin string) bool {
	return m.resolve(gstin).Authenticated(m.now())
}

// LastError returns the error recorded by the most recent action, if any.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Now returns the manager's clock reading.
func (m *Manager) Now() time.Time {
	return m.now()
}
