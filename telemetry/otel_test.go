package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taxdesk/go-gst/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace/noop"
)

type collector struct {
	mu    sync.Mutex
	paths map[string]int
	auth  []string
}

func newCollector(t *testing.T) (*collector, *httptest.Server) {
	c := &collector{paths: make(map[string]int)}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		c.paths[r.URL.Path]++
		c.auth = append(c.auth, r.Header.Get("Authorization"))
		c.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return c, server
}

func TestNewExportsLogsAndTraces(t *testing.T) {
	c, server := newCollector(t)
	ctx := context.Background()

	log, shutdown, err := New(ctx, "gstctl-test", server.URL, "tok", nil)
	require.NoError(t, err)
	require.NotNil(t, log)
	require.NotNil(t, shutdown)

	log.Info("hello %s", "collector")
	_, span := otel.Tracer("test").Start(ctx, "gst.generate_otp")
	span.End()
	shutdown()

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, 1, c.paths["/v1/logs"])
	assert.Equal(t, 1, c.paths["/v1/traces"])
	for _, a := range c.auth {
		assert.Equal(t, "Bearer tok", a)
	}
}

func TestNewStacksConsoleLogger(t *testing.T) {
	_, server := newCollector(t)
	console := logger.NewTestLogger()

	log, shutdown, err := New(context.Background(), "gstctl-test", server.URL, "", console)
	require.NoError(t, err)
	defer shutdown()

	log.Warn("session for %s expired", "27AAMCR5575Q1ZA")
	assert.Equal(t, []string{"session for 27AAMCR5575Q1ZA expired"}, console.Messages("WARNING"))
}

func TestNewWithInvalidURL(t *testing.T) {
	log, shutdown, err := New(context.Background(), "gstctl-test", "://invalid-url", "", nil)
	assert.Error(t, err)
	assert.Nil(t, log)
	assert.Nil(t, shutdown)
	assert.Contains(t, err.Error(), "error parsing otlpServerURL")

	_, _, err = New(context.Background(), "gstctl-test", "grpc://collector:4317", "", nil)
	assert.Error(t, err)
}

func TestStartSpan(t *testing.T) {
	log := logger.NewTestLogger()
	tracer := noop.NewTracerProvider().Tracer("test")

	ctx, log2, span := StartSpan(context.Background(), log, tracer, "gst.verify", attribute.String("gstin", "27AAMCR5575Q1ZA"))
	require.NotNil(t, ctx)
	require.NotNil(t, log2)
	require.NotNil(t, span)
	span.End()
}
