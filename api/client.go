package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"path"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/taxdesk/go-gst/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/publicsuffix"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

// DefaultRefreshPath is the endpoint that renews the credential cookie.
const DefaultRefreshPath = "/auth/token/refresh/"

// DefaultTimeout is the per-request timeout used unless WithTimeout or
// WithHTTPClient says otherwise.
const DefaultTimeout = 30 * time.Second

const tracerName = "github.com/taxdesk/go-gst/api"

// ErrRefreshFailed is wrapped into every error caused by a failed credential refresh.
var ErrRefreshFailed = errors.New("credential refresh failed")

type Client struct {
	baseURL         *url.URL
	token           string
	refreshPath     string
	client          *http.Client
	timeout         time.Duration
	logger          logger.Logger
	tracer          trace.Tracer
	retries         int
	refresher       *refresher
	onRefreshFailed func(error)
}

type Error struct {
	URL       string
	Method    string
	Status    int
	Body      string
	TheError  error
	TraceID   string
	RequestID string
}

func (e *Error) Error() string {
	if e == nil || e.TheError == nil {
		return ""
	}
	return e.TheError.Error()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.TheError
}

// IsTransport reports whether the request failed before any HTTP response was received.
func (e *Error) IsTransport() bool {
	return e != nil && e.Status == 0
}

func NewError(url, method string, status int, body string, err error, traceID string) *Error {
	return &Error{
		URL:      url,
		Method:   method,
		Status:   status,
		Body:     body,
		TheError: err,
		TraceID:  traceID,
	}
}

// StatusOf returns the HTTP status carried by err, or 0 when err is not an *Error.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsUnauthorized reports whether err is an HTTP 401 from the backend.
func IsUnauthorized(err error) bool {
	return StatusOf(err) == http.StatusUnauthorized
}

type Option func(*Client)

// WithHTTPClient uses a copy of hc as the underlying http.Client, so hc itself
// is never modified. The copy gets a cookie jar when hc has none, and
// WithTimeout overrides its Timeout whatever the option order.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithToken sends the token as a bearer Authorization header in addition to cookies.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithRefreshPath overrides DefaultRefreshPath.
func WithRefreshPath(p string) Option {
	return func(c *Client) { c.refreshPath = p }
}

// WithTransportRetries retries connection failures and 408/429/502/503/504
// responses up to n extra times with exponential backoff. Disabled by default.
func WithTransportRetries(n int) Option {
	return func(c *Client) { c.retries = n }
}

// WithTimeout sets the per-request timeout of the underlying http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithRefreshFailedHook registers fn to be called once per failed refresh.
// Routing the user back to a login flow is the hook's business.
func WithRefreshFailedHook(fn func(error)) Option {
	return func(c *Client) { c.onRefreshFailed = fn }
}

func New(logger logger.Logger, baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "error parsing base url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Newf("base url %q must be http or https", baseURL)
	}
	c := &Client{
		baseURL:     u,
		refreshPath: DefaultRefreshPath,
		logger:      logger.WithPrefix("[api]"),
		tracer:      otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	hc := http.Client{Timeout: DefaultTimeout}
	if c.client != nil {
		hc = *c.client
	}
	if c.timeout > 0 {
		hc.Timeout = c.timeout
	}
	if hc.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, errors.Wrap(err, "error creating cookie jar")
		}
		hc.Jar = jar
	}
	c.client = &hc
	c.refresher = newRefresher(c.logger, c.doRefresh)
	return c, nil
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Cookies returns the credential cookies currently held for the backend.
func (c *Client) Cookies() []*http.Cookie {
	return c.client.Jar.Cookies(c.baseURL)
}

type Response struct {
	Detail  string `json:"detail"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (r Response) text() string {
	switch {
	case r.Detail != "":
		return r.Detail
	case r.Error != "":
		return r.Error
	default:
		return r.Message
	}
}

func UserAgent() string {
	gitSHA := Commit
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				gitSHA = setting.Value
			}
		}
	}
	return "go-gst/" + Version + " (" + gitSHA + ")"
}

func shouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false
		}
		if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
			return true
		}
		return strings.Contains(err.Error(), "EOF")
	}
	if resp != nil {
		switch resp.StatusCode {
		case http.StatusRequestTimeout, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout, http.StatusTooManyRequests:
			return true
		}
	}
	return false
}

// safeBodyPreview returns a preview of a response body for logging. Binary
// and unknown content is replaced by its size and hash.
func safeBodyPreview(body []byte, contentType string, maxChars int) string {
	if maxChars == 0 {
		maxChars = 200
	}
	lowerContentType := strings.ToLower(contentType)
	for _, safeType := range []string{"text/", "application/json", "application/xml", "application/x-www-form-urlencoded"} {
		if strings.Contains(lowerContentType, safeType) || contentType == "" {
			if len(body) > maxChars {
				return string(body[:maxChars]) + fmt.Sprintf("[truncated, total: %d chars]", len(body))
			}
			return string(body)
		}
	}
	hash := sha256.Sum256(body)
	return fmt.Sprintf("<binary: %d bytes, sha256=%s>", len(body), hex.EncodeToString(hash[:8]))
}

func (c *Client) resolve(pathParam string) *url.URL {
	u := *c.baseURL
	u.RawQuery = ""
	if i := strings.Index(pathParam, "?"); i != -1 {
		u.RawQuery = pathParam[i+1:]
		pathParam = pathParam[:i]
	}
	basePath := u.Path
	switch {
	case pathParam == "":
	case basePath == "" || basePath == "/":
		u.Path = pathParam
	default:
		trailing := strings.HasSuffix(pathParam, "/")
		u.Path = path.Join(basePath, pathParam)
		if trailing {
			u.Path += "/"
		}
	}
	return &u
}

// request is one logical call. retried marks that the call has already been
// replayed after a refresh and must not trigger another one.
type request struct {
	method    string
	url       *url.URL
	body      []byte
	requestID string
	retried   bool
	isRefresh bool
}

type result struct {
	status  int
	header  http.Header
	body    []byte
	traceID string
}

func (c *Client) send(ctx context.Context, r *request) (*result, error) {
	var resp *http.Response
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, r.method, r.url.String(), bytes.NewReader(r.body))
		if err != nil {
			return nil, NewError(r.url.String(), r.method, 0, "", errors.Wrap(err, "error creating request"), "")
		}
		req.Header.Set("User-Agent", UserAgent())
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Request-ID", r.requestID)
		if len(r.body) > 0 {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

		resp, err = c.client.Do(req)
		if shouldRetry(resp, err) && attempt < c.retries {
			c.logger.Trace("%s %s returned retryable error, retrying (attempt %d)", r.method, r.url.Path, attempt+1)
			if resp != nil {
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
			}
			backoff := time.Duration(150*math.Pow(2, float64(attempt))) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			continue
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			e := NewError(r.url.String(), r.method, 0, "", errors.Wrap(err, "error sending request"), "")
			e.RequestID = r.requestID
			return nil, e
		}
		break
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		e := NewError(r.url.String(), r.method, resp.StatusCode, "", errors.Wrap(err, "error reading response body"), resp.Header.Get("traceparent"))
		e.RequestID = r.requestID
		return nil, e
	}
	contentType := resp.Header.Get("Content-Type")
	c.logger.Debug("%s %s -> %s body: %s", r.method, r.url.Path, resp.Status, safeBodyPreview(body, contentType, 200))
	return &result{status: resp.StatusCode, header: resp.Header, body: body, traceID: resp.Header.Get("traceparent")}, nil
}

func (c *Client) toError(r *request, res *result) *Error {
	msg := fmt.Sprintf("request failed with status (%d %s)", res.status, http.StatusText(res.status))
	if strings.Contains(res.header.Get("Content-Type"), "application/json") {
		var apiResponse Response
		if err := json.Unmarshal(res.body, &apiResponse); err == nil && apiResponse.text() != "" {
			msg = apiResponse.text()
		}
	}
	e := NewError(r.url.String(), r.method, res.status, string(res.body), errors.New(msg), res.traceID)
	e.RequestID = r.requestID
	return e
}

// Do issues a JSON request against the backend and decodes a JSON response
// into response (when non-nil). A 401 triggers one coordinated credential
// refresh after which the request is replayed exactly once. Concurrent
// replays are not ordered relative to each other.
func (c *Client) Do(ctx context.Context, method, pathParam string, payload any, response any) (err error) {
	u := c.resolve(pathParam)
	ctx, span := c.tracer.Start(ctx, "HTTP "+method, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.request.method", method), attribute.String("url.path", u.Path)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	r := &request{method: method, url: u, requestID: uuid.NewString()}
	if payload != nil {
		r.body, err = json.Marshal(payload)
		if err != nil {
			return NewError(u.String(), method, 0, "", errors.Wrap(err, "error marshalling payload"), "")
		}
	}
	c.logger.Trace("sending request: %s %s (%s)", method, u.String(), r.requestID)

	res, err := c.execute(ctx, r)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.Int("http.response.status_code", res.status))
	if res.status > 299 {
		return c.toError(r, res)
	}
	if response != nil && len(res.body) > 0 {
		if err := json.Unmarshal(res.body, response); err != nil {
			return NewError(u.String(), method, res.status, string(res.body), errors.Wrap(err, "error JSON decoding response"), res.traceID)
		}
	}
	return nil
}

func (c *Client) execute(ctx context.Context, r *request) (*result, error) {
	generation := c.refresher.generation()
	res, err := c.send(ctx, r)
	if err != nil {
		return nil, err
	}
	if res.status != http.StatusUnauthorized || r.retried || r.isRefresh {
		return res, nil
	}
	r.retried = true
	c.logger.Debug("%s %s unauthorized, awaiting credential refresh", r.method, r.url.Path)
	if err := c.refresher.await(ctx, generation); err != nil {
		return nil, err
	}
	return c.send(ctx, r)
}

// Refresh renews the credential, joining a refresh already in flight.
func (c *Client) Refresh(ctx context.Context) error {
	return c.refresher.await(ctx, c.refresher.generation())
}

func (c *Client) doRefresh(ctx context.Context) error {
	r := &request{
		method:    http.MethodPost,
		url:       c.resolve(c.refreshPath),
		requestID: uuid.NewString(),
		isRefresh: true,
	}
	ctx, span := c.tracer.Start(ctx, "credential refresh", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	res, err := c.send(ctx, r)
	if err == nil && res.status > 299 {
		err = c.toError(r, res)
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		err = errors.Mark(errors.Wrap(err, "refresh"), ErrRefreshFailed)
		if c.onRefreshFailed != nil {
			c.onRefreshFailed(err)
		}
		return err
	}
	return nil
}
