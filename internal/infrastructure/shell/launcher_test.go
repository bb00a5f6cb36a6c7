package shell

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/hotexit/internal/domain/window"
	"github.com/GriffinCanCode/hotexit/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/hotexit/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/hotexit/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/hotexit/internal/shared/id"
)

func testConfig(url string) Config {
	cfg := DefaultConfig(url)
	cfg.RetryWaitMin = time.Millisecond
	cfg.RetryWaitMax = 5 * time.Millisecond
	cfg.RateLimit = 0
	return cfg
}

func newTestLauncher(t *testing.T, cfg Config) (*Launcher, *monitoring.Metrics) {
	t.Helper()
	metrics := monitoring.NewMetrics()
	l, err := NewLauncher(cfg, zap.NewNop())
	require.NoError(t, err)
	return l.WithMetrics(metrics), metrics
}

var sampleRequest = window.LaunchRequest{Label: "doc-1", X: 125, Y: 125, Width: 800, Height: 600}

func TestNewLauncherRequiresURL(t *testing.T) {
	_, err := NewLauncher(Config{}, nil)
	assert.Error(t, err)
}

func TestLaunchPostsWindowRequest(t *testing.T) {
	var (
		got     window.LaunchRequest
		traceID string
		method  string
		path    string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		traceID = r.Header.Get(tracing.HeaderTraceID)
		body, _ := io.ReadAll(r.Body)
		_ = sonic.ConfigStd.Unmarshal(body, &got)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	l, metrics := newTestLauncher(t, testConfig(srv.URL+"/"))

	trace := id.NewTraceID()
	ctx := tracing.WithTrace(context.Background(), trace, id.NewSpanID())
	require.NoError(t, l.Launch(ctx, sampleRequest))

	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, WindowsPath, path)
	assert.Equal(t, sampleRequest, got)
	assert.Equal(t, string(trace), traceID)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ShellLaunches.WithLabelValues("success")))
}

func TestLaunchRetriesDroppedConnections(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			conn, _, err := w.(http.Hijacker).Hijack()
			require.NoError(t, err)
			_ = conn.Close()
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	l, _ := newTestLauncher(t, testConfig(srv.URL))
	require.NoError(t, l.Launch(context.Background(), sampleRequest))
	assert.Equal(t, int32(3), calls.Load())
}

func TestLaunchDoesNotRetryServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	l, _ := newTestLauncher(t, testConfig(srv.URL))
	err := l.Launch(context.Background(), sampleRequest)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(1), calls.Load(), "the shell may already have opened the window")
}

func TestLaunchRejectedDoesNotRetryOrTrip(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "label already open", http.StatusConflict)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.BreakerFailures = 1
	l, metrics := newTestLauncher(t, cfg)

	for i := 0; i < 3; i++ {
		err := l.Launch(context.Background(), sampleRequest)
		assert.ErrorIs(t, err, ErrRejected)
		assert.Contains(t, err.Error(), "label already open")
	}
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, resilience.StateClosed, l.BreakerState())
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.ShellLaunches.WithLabelValues("rejected")))
}

func TestLaunchOpensBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.RetryMax = 0
	cfg.BreakerFailures = 2
	cfg.BreakerTimeout = time.Minute
	l, metrics := newTestLauncher(t, cfg)

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, l.Launch(context.Background(), sampleRequest), ErrUnavailable)
	}
	require.Equal(t, resilience.StateOpen, l.BreakerState())

	err := l.Launch(context.Background(), sampleRequest)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load(), "open breaker fails fast")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ShellLaunches.WithLabelValues("circuit_open")))
	assert.Equal(t, float64(resilience.StateOpen), testutil.ToFloat64(metrics.ShellBreaker))
}

func TestLaunchRespectsCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.RateLimit = 1
	cfg.Burst = 1
	l, _ := newTestLauncher(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Launch(ctx, sampleRequest)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, resilience.StateClosed, l.BreakerState())
}
