package api

import (
	"context"
	"sync"

	"github.com/taxdesk/go-gst/logger"
	"golang.org/x/sync/singleflight"
)

const refreshKey = "refresh"

// refresher coordinates credential refreshes so that at most one refresh call
// is in flight. Requests record the generation before they are sent; a 401
// observed for a request sent before the last refresh completed is answered
// with that refresh's outcome instead of starting another one.
//
// Waiters share the refresh result and are released together when it
// completes. Their replays then race, so no ordering between them, FIFO or
// otherwise, is guaranteed.
type refresher struct {
	logger  logger.Logger
	refresh func(ctx context.Context) error
	group   singleflight.Group

	mu      sync.Mutex
	gen     uint64
	lastErr error
}

func newRefresher(logger logger.Logger, refresh func(ctx context.Context) error) *refresher {
	return &refresher{logger: logger, refresh: refresh}
}

func (r *refresher) generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen
}

// await blocks until the refresh covering generation seen has completed and
// returns its error. The first caller for a generation starts the refresh.
func (r *refresher) await(ctx context.Context, seen uint64) error {
	r.mu.Lock()
	if r.gen != seen {
		err := r.lastErr
		r.mu.Unlock()
		return err
	}
	// DoChan registers the call before returning and the leader needs r.mu to
	// bump the generation, so any caller that reaches this point while the
	// generation is unchanged joins the call in flight.
	ch := r.group.DoChan(refreshKey, func() (any, error) {
		r.logger.Debug("refreshing credential")
		err := r.refresh(context.WithoutCancel(ctx))
		r.mu.Lock()
		r.gen++
		r.lastErr = err
		r.mu.Unlock()
		if err != nil {
			r.logger.Warn("credential refresh failed: %s", err)
		} else {
			r.logger.Debug("credential refreshed")
		}
		return nil, err
	})
	r.mu.Unlock()

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}
