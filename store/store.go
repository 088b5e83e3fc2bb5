// Package store provides gst.Repository implementations that keep the
// session state as one blob under a fixed storage key.
//
// The blob is the persisted-state envelope
//
//	{"state": {"sessions": {...}, "activeGstin": "..."}, "version": 0}
//
// with expiresAt stored as epoch milliseconds, encoded with the configured
// codec and optionally sealed with a passphrase-derived key.
package store

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/taxdesk/go-gst/gst"
)

// DefaultKey is the storage key used when WithKey is not given.
const DefaultKey = "gst-session-storage"

// DefaultQueryTimeout is the per-operation timeout for backends that perform
// network or disk I/O (Redis, SQLite).
const DefaultQueryTimeout = 5 * time.Second

// Version is the envelope version written by this package.
const Version = 0

// ErrUnsupportedVersion is returned when the stored envelope was written by a
// newer release.
var ErrUnsupportedVersion = errors.New("unsupported session storage version")

type config struct {
	key          string
	prefix       string
	queryTimeout time.Duration
	codec        Codec
	passphrase   string
}

// Option configures a repository.
type Option func(*config)

func applyOptions(defaultCodec Codec, opts []Option) config {
	cfg := config{key: DefaultKey, queryTimeout: DefaultQueryTimeout, codec: defaultCodec}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithKey sets the storage key. Defaults to DefaultKey.
func WithKey(key string) Option {
	return func(c *config) {
		if key != "" {
			c.key = key
		}
	}
}

// WithPrefix namespaces the storage key. Applies to the Redis backend.
func WithPrefix(p string) Option {
	return func(c *config) { c.prefix = p }
}

// WithQueryTimeout sets the per-operation timeout for I/O-backed
// repositories. Defaults to DefaultQueryTimeout.
func WithQueryTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.queryTimeout = d
		}
	}
}

// WithCodec overrides the backend's default encoding.
func WithCodec(codec Codec) Option {
	return func(c *config) {
		c.codec = codec
	}
}

// WithEncryption seals the stored blob with a key stretched from passphrase
// with Argon2id and a random salt kept in the blob. An empty passphrase
// leaves the blob in the clear.
func WithEncryption(passphrase string) Option {
	return func(c *config) { c.passphrase = passphrase }
}

type persistedSession struct {
	SessionID  string `json:"sessionId" msgpack:"sessionId"`
	GSTIN      string `json:"gstin" msgpack:"gstin"`
	Username   string `json:"username" msgpack:"username"`
	IsVerified bool   `json:"isVerified" msgpack:"isVerified"`
	ExpiresAt  *int64 `json:"expiresAt" msgpack:"expiresAt"`
}

type persistedState struct {
	Sessions    map[string]persistedSession `json:"sessions" msgpack:"sessions"`
	ActiveGSTIN *string                     `json:"activeGstin" msgpack:"activeGstin"`
}

type envelope struct {
	State   persistedState `json:"state" msgpack:"state"`
	Version int            `json:"version" msgpack:"version"`
}

func toEnvelope(state gst.State) envelope {
	env := envelope{
		State:   persistedState{Sessions: make(map[string]persistedSession, len(state.Sessions))},
		Version: Version,
	}
	for gstin, sess := range state.Sessions {
		ps := persistedSession{
			SessionID:  sess.SessionID,
			GSTIN:      sess.GSTIN,
			Username:   sess.Username,
			IsVerified: sess.IsVerified,
		}
		if !sess.ExpiresAt.IsZero() {
			ms := sess.ExpiresAt.UnixMilli()
			ps.ExpiresAt = &ms
		}
		env.State.Sessions[gstin] = ps
	}
	if state.ActiveGSTIN != "" {
		active := state.ActiveGSTIN
		env.State.ActiveGSTIN = &active
	}
	return env
}

func fromEnvelope(env envelope) (gst.State, error) {
	if env.Version > Version {
		return gst.State{}, errors.Wrapf(ErrUnsupportedVersion, "version %d", env.Version)
	}
	state := gst.State{Sessions: make(map[string]gst.Session, len(env.State.Sessions))}
	for gstin, ps := range env.State.Sessions {
		sess := gst.Session{
			SessionID:  ps.SessionID,
			GSTIN:      ps.GSTIN,
			Username:   ps.Username,
			IsVerified: ps.IsVerified,
		}
		if sess.GSTIN == "" {
			sess.GSTIN = gstin
		}
		if ps.ExpiresAt != nil {
			sess.ExpiresAt = time.UnixMilli(*ps.ExpiresAt)
		}
		state.Sessions[gstin] = sess
	}
	if env.State.ActiveGSTIN != nil {
		state.ActiveGSTIN = *env.State.ActiveGSTIN
	}
	return state, nil
}

// blob turns state into stored bytes and back according to cfg.
type blob struct {
	codec  Codec
	sealer *sealer
}

func newBlob(cfg config) (*blob, error) {
	b := &blob{codec: cfg.codec}
	if cfg.passphrase != "" {
		s, err := newSealer(cfg.passphrase, cfg.key)
		if err != nil {
			return nil, err
		}
		b.sealer = s
	}
	return b, nil
}

func (b *blob) encode(state gst.State) ([]byte, error) {
	data, err := b.codec.marshal(toEnvelope(state))
	if err != nil {
		return nil, errors.Wrap(err, "error encoding session state")
	}
	if b.sealer != nil {
		return b.sealer.seal(data)
	}
	return data, nil
}

func (b *blob) decode(data []byte) (gst.State, error) {
	if len(data) == 0 {
		return emptyState(), nil
	}
	if b.sealer != nil {
		opened, err := b.sealer.open(data)
		if err != nil {
			return gst.State{}, err
		}
		data = opened
	}
	var env envelope
	if err := b.codec.unmarshal(data, &env); err != nil {
		return gst.State{}, errors.Wrap(err, "error decoding session state")
	}
	return fromEnvelope(env)
}

func emptyState() gst.State {
	return gst.State{Sessions: make(map[string]gst.Session)}
}
