package store

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/taxdesk/go-gst/gst"
)

// Redis keeps the state in a Redis string so several processes can share
// the same sessions.
type Redis struct {
	client *redis.Client
	ctx    context.Context
	cfg    config
	blob   *blob
}

var _ gst.Repository = (*Redis)(nil)

// NewRedis returns a repository backed by client. It uses the msgpack codec
// unless WithCodec says otherwise. The caller owns the client lifecycle.
func NewRedis(ctx context.Context, client *redis.Client, opts ...Option) (*Redis, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	cfg := applyOptions(CodecMsgpack, opts)
	b, err := newBlob(cfg)
	if err != nil {
		return nil, err
	}
	return &Redis{client: client, ctx: ctx, cfg: cfg, blob: b}, nil
}

// NewRedisFromURL parses a redis:// URL and connects to it.
func NewRedisFromURL(ctx context.Context, redisURL string, opts ...Option) (*Redis, error) {
	ropts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "error parsing redis url")
	}
	client := redis.NewClient(ropts)
	qctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()
	if err := client.Ping(qctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "error connecting to redis")
	}
	return NewRedis(ctx, client, opts...)
}

func (r *Redis) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = r.ctx
	}
	return context.WithTimeout(parent, r.cfg.queryTimeout)
}

// Key returns the fully prefixed Redis key.
func (r *Redis) Key() string {
	if r.cfg.prefix == "" {
		return r.cfg.key
	}
	return r.cfg.prefix + ":" + r.cfg.key
}

func (r *Redis) Load(ctx context.Context) (gst.State, error) {
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	data, err := r.client.Get(qctx, r.Key()).Bytes()
	if err == redis.Nil {
		return emptyState(), nil
	}
	if err != nil {
		return gst.State{}, errors.Wrap(err, "error reading session state from redis")
	}
	return r.blob.decode(data)
}

func (r *Redis) Save(ctx context.Context, state gst.State) error {
	data, err := r.blob.encode(state)
	if err != nil {
		return err
	}
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	if err := r.client.Set(qctx, r.Key(), data, 0).Err(); err != nil {
		return errors.Wrap(err, "error writing session state to redis")
	}
	return nil
}

// Close releases the client.
func (r *Redis) Close() error {
	return r.client.Close()
}
