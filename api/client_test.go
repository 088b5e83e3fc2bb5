package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taxdesk/go-gst/logger"
)

// fakeBackend serves protected JSON endpoints that answer 401 until the
// client presents the cookie issued by the refresh endpoint.
type fakeBackend struct {
	t            *testing.T
	server       *httptest.Server
	refreshCalls atomic.Int32
	unauthorized atomic.Int32
	// refresh blocks until this many 401s have been served, so every request
	// in a test lands in the same refresh window.
	waitFor     int32
	windowFull  chan struct{}
	closeWindow sync.Once
	failRefresh bool
	alwaysDeny  bool

	mu   sync.Mutex
	hits map[string]int
}

func newFakeBackend(t *testing.T, waitFor int32) *fakeBackend {
	fb := &fakeBackend{t: t, waitFor: waitFor, windowFull: make(chan struct{}), hits: make(map[string]int)}
	if waitFor <= 0 {
		close(fb.windowFull)
		fb.closeWindow.Do(func() {})
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/token/refresh/", func(w http.ResponseWriter, r *http.Request) {
		fb.refreshCalls.Add(1)
		select {
		case <-fb.windowFull:
		case <-time.After(5 * time.Second):
			t.Error("refresh window never filled")
		}
		if fb.failRefresh {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"detail":"refresh token expired"}`))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "access", Value: "fresh", Path: "/"})
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		fb.hits[r.URL.Path]++
		fb.mu.Unlock()
		cookie, err := r.Cookie("access")
		if fb.alwaysDeny || err != nil || cookie.Value != "fresh" {
			if fb.unauthorized.Add(1) >= fb.waitFor {
				fb.closeWindow.Do(func() { close(fb.windowFull) })
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"detail":"token expired"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"path": r.URL.Path})
	})
	fb.server = httptest.NewServer(mux)
	t.Cleanup(fb.server.Close)
	return fb
}

func (fb *fakeBackend) hitsFor(p string) int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.hits[p]
}

func newTestClient(t *testing.T, baseURL string, opts ...Option) *Client {
	t.Helper()
	c, err := New(logger.NewTestLogger(), baseURL, opts...)
	require.NoError(t, err)
	return c
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	_, err := New(logger.NewTestLogger(), "ftp://example.com")
	assert.Error(t, err)
	_, err = New(logger.NewTestLogger(), "://bad")
	assert.Error(t, err)
}

func TestDoDecodesJSONAndSetsHeaders(t *testing.T) {
	var gotHeaders http.Header
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		json.NewDecoder(r.Body).Decode(&gotBody)
		assert.Equal(t, "/api/gst/auth/generate-otp/", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"session_id":"sess_1"}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL+"/api", WithToken("tok"))
	var resp struct {
		SessionID string `json:"session_id"`
	}
	err := c.Do(context.Background(), http.MethodPost, "/gst/auth/generate-otp/", map[string]string{"gstin": "27AAMCR5575Q1ZA"}, &resp)
	require.NoError(t, err)
	assert.Equal(t, "sess_1", resp.SessionID)
	assert.Equal(t, "27AAMCR5575Q1ZA", gotBody["gstin"])
	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.Equal(t, "Bearer tok", gotHeaders.Get("Authorization"))
	assert.NotEmpty(t, gotHeaders.Get("X-Request-ID"))
	assert.Contains(t, gotHeaders.Get("User-Agent"), "go-gst/")
}

func TestDoPassesQueryString(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "sess_1", r.URL.Query().Get("session_id"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	assert.NoError(t, c.Do(context.Background(), http.MethodGet, "/gst/auth/session-status/?session_id=sess_1", nil, nil))
}

func TestDoSurfacesNon401ErrorsWithoutRefresh(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"Invalid credentials"}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	err := c.Do(context.Background(), http.MethodPost, "/gst/auth/generate-otp/", map[string]string{}, nil)
	require.Error(t, err)
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "Invalid credentials", apiErr.Error())
	assert.NotEmpty(t, apiErr.RequestID)
	assert.False(t, apiErr.IsTransport())
	assert.Equal(t, int32(1), calls.Load(), "no refresh and no replay")
}

func TestDoRefreshesOn401AndReplays(t *testing.T) {
	fb := newFakeBackend(t, 1)
	c := newTestClient(t, fb.server.URL)

	var resp map[string]string
	require.NoError(t, c.Do(context.Background(), http.MethodGet, "/a", nil, &resp))
	assert.Equal(t, "/a", resp["path"])
	assert.Equal(t, int32(1), fb.refreshCalls.Load())
	assert.Equal(t, 2, fb.hitsFor("/a"))
	assert.NotEmpty(t, c.Cookies())

	// the credential is fresh now, so no further refresh is needed
	require.NoError(t, c.Do(context.Background(), http.MethodGet, "/a", nil, &resp))
	assert.Equal(t, int32(1), fb.refreshCalls.Load())
	assert.Equal(t, 3, fb.hitsFor("/a"))
}

func TestConcurrent401sShareOneRefresh(t *testing.T) {
	const n = 5
	fb := newFakeBackend(t, n)
	c := newTestClient(t, fb.server.URL)

	var wg sync.WaitGroup
	results := make([]map[string]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.Do(context.Background(), http.MethodGet, fmt.Sprintf("/r%d", i), nil, &results[i])
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), fb.refreshCalls.Load())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		p := fmt.Sprintf("/r%d", i)
		assert.Equal(t, p, results[i]["path"])
		assert.Equal(t, 2, fb.hitsFor(p), "each request is replayed exactly once")
	}
}

func TestTwoSimultaneous401sShareOneRefresh(t *testing.T) {
	fb := newFakeBackend(t, 2)
	c := newTestClient(t, fb.server.URL)

	var wg sync.WaitGroup
	var a, b map[string]string
	var errA, errB error
	wg.Add(2)
	go func() { defer wg.Done(); errA = c.Do(context.Background(), http.MethodGet, "/a", nil, &a) }()
	go func() { defer wg.Done(); errB = c.Do(context.Background(), http.MethodGet, "/b", nil, &b) }()
	wg.Wait()

	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Equal(t, "/a", a["path"])
	assert.Equal(t, "/b", b["path"])
	assert.Equal(t, int32(1), fb.refreshCalls.Load())
}

func TestRetriedRequestIsNotRefreshedAgain(t *testing.T) {
	fb := newFakeBackend(t, 1)
	fb.alwaysDeny = true
	c := newTestClient(t, fb.server.URL)

	err := c.Do(context.Background(), http.MethodGet, "/a", nil, nil)
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.False(t, errors.Is(err, ErrRefreshFailed))
	assert.Equal(t, int32(1), fb.refreshCalls.Load())
	assert.Equal(t, 2, fb.hitsFor("/a"))
}

func TestRefreshFailureReleasesAllWaiters(t *testing.T) {
	const n = 3
	fb := newFakeBackend(t, n)
	fb.failRefresh = true
	var hookCalls atomic.Int32
	c := newTestClient(t, fb.server.URL, WithRefreshFailedHook(func(err error) {
		hookCalls.Add(1)
		assert.True(t, errors.Is(err, ErrRefreshFailed))
	}))

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.Do(context.Background(), http.MethodGet, fmt.Sprintf("/f%d", i), nil, nil)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), fb.refreshCalls.Load(), "a 401 from the refresh endpoint is never refreshed")
	assert.Equal(t, int32(1), hookCalls.Load())
	for i := 0; i < n; i++ {
		require.Error(t, errs[i])
		assert.True(t, errors.Is(errs[i], ErrRefreshFailed))
		assert.Equal(t, 1, fb.hitsFor(fmt.Sprintf("/f%d", i)), "failed refresh means no replay")
	}
}

func TestExplicitRefresh(t *testing.T) {
	fb := newFakeBackend(t, 0)
	c := newTestClient(t, fb.server.URL)
	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, int32(1), fb.refreshCalls.Load())
	assert.Equal(t, "fresh", c.Cookies()[0].Value)
}

func TestTransportRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, WithTransportRetries(2))
	require.NoError(t, c.Do(context.Background(), http.MethodGet, "/x", nil, nil))
	assert.Equal(t, int32(2), calls.Load())

	calls.Store(0)
	noRetry := newTestClient(t, server.URL)
	err := noRetry.Do(context.Background(), http.MethodGet, "/x", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, StatusOf(err))
}

func TestTransportErrorIsTyped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c := newTestClient(t, url)
	err := c.Do(context.Background(), http.MethodGet, "/x", nil, nil)
	require.Error(t, err)
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.IsTransport())
}

func TestTimeoutOptionIgnoresOrder(t *testing.T) {
	own := &http.Client{Timeout: time.Minute}

	a := newTestClient(t, "https://example.com", WithTimeout(5*time.Second), WithHTTPClient(own))
	b := newTestClient(t, "https://example.com", WithHTTPClient(own), WithTimeout(5*time.Second))
	assert.Equal(t, 5*time.Second, a.client.Timeout)
	assert.Equal(t, 5*time.Second, b.client.Timeout)

	kept := newTestClient(t, "https://example.com", WithHTTPClient(own))
	assert.Equal(t, time.Minute, kept.client.Timeout)
	assert.Equal(t, DefaultTimeout, newTestClient(t, "https://example.com").client.Timeout)

	assert.Nil(t, own.Jar)
	assert.Equal(t, time.Minute, own.Timeout)
	assert.NotNil(t, kept.client.Jar)
}

func TestResolveKeepsTrailingSlash(t *testing.T) {
	c := newTestClient(t, "https://example.com/api")
	assert.Equal(t, "https://example.com/api/gst/auth/verify-otp/", c.resolve("/gst/auth/verify-otp/").String())
	assert.Equal(t, "https://example.com/api/x?y=1", c.resolve("x?y=1").String())

	root := newTestClient(t, "https://example.com")
	assert.Equal(t, "https://example.com/auth/token/refresh/", root.resolve(DefaultRefreshPath).String())
}

func TestSafeBodyPreview(t *testing.T) {
	assert.Equal(t, `{"a":1}`, safeBodyPreview([]byte(`{"a":1}`), "application/json", 0))
	assert.Contains(t, safeBodyPreview([]byte("0123456789"), "text/plain", 4), "[truncated, total: 10 chars]")
	assert.Contains(t, safeBodyPreview([]byte{0, 1, 2}, "application/pdf", 0), "<binary: 3 bytes")
}
