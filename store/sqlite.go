package store

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/taxdesk/go-gst/gst"
	_ "modernc.org/sqlite"
)

// SQLite keeps the state in a single-file database.
type SQLite struct {
	db   *sql.DB
	cfg  config
	blob *blob
	once sync.Once
}

var _ gst.Repository = (*SQLite)(nil)

// NewSQLite opens (and if needed creates) the database at dbPath. An empty
// dbPath or ":memory:" uses an in-memory database. It uses the msgpack codec
// unless WithCodec says otherwise.
func NewSQLite(ctx context.Context, dbPath string, opts ...Option) (*SQLite, error) {
	if dbPath == "" {
		dbPath = ":memory:"
	}
	cfg := applyOptions(CodecMsgpack, opts)
	b, err := newBlob(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "error opening sqlite database")
	}
	// a single connection keeps :memory: databases shared and serializes writers
	db.SetMaxOpenConns(1)

	qctx, cancel := context.WithTimeout(ctx, cfg.queryTimeout)
	defer cancel()
	if _, err := db.ExecContext(qctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "error enabling WAL")
	}
	if _, err := db.ExecContext(qctx, `CREATE TABLE IF NOT EXISTS storage (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "error creating storage table")
	}
	return &SQLite{db: db, cfg: cfg, blob: b}, nil
}

func (s *SQLite) Load(ctx context.Context) (gst.State, error) {
	qctx, cancel := context.WithTimeout(ctx, s.cfg.queryTimeout)
	defer cancel()
	var data []byte
	err := s.db.QueryRowContext(qctx, `SELECT value FROM storage WHERE key = ?`, s.cfg.key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return emptyState(), nil
	}
	if err != nil {
		return gst.State{}, errors.Wrap(err, "error reading session state from sqlite")
	}
	return s.blob.decode(data)
}

func (s *SQLite) Save(ctx context.Context, state gst.State) error {
	data, err := s.blob.encode(state)
	if err != nil {
		return err
	}
	qctx, cancel := context.WithTimeout(ctx, s.cfg.queryTimeout)
	defer cancel()
	_, err = s.db.ExecContext(qctx,
		`INSERT INTO storage (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		s.cfg.key, data, time.Now().UnixMilli(),
	)
	if err != nil {
		return errors.Wrap(err, "error writing session state to sqlite")
	}
	return nil
}

func (s *SQLite) Close() error {
	var err error
	s.once.Do(func() {
		err = s.db.Close()
	})
	return err
}
