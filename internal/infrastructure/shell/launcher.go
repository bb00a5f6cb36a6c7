package shell

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/hotexit/internal/domain/window"
	"github.com/GriffinCanCode/hotexit/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/hotexit/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/hotexit/internal/infrastructure/tracing"
)

// WindowsPath is the host shell endpoint that creates windows
const WindowsPath = "/windows"

var (
	// ErrRejected is returned when the shell refuses a request (4xx)
	ErrRejected = errors.New("shell rejected window request")
	// ErrUnavailable is returned when the shell fails a request (5xx)
	ErrUnavailable = errors.New("shell unavailable")
)

// Config configures the host shell client
type Config struct {
	BaseURL      string
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	// RateLimit caps launches per second; zero disables the limit
	RateLimit float64
	Burst     int
	// BreakerFailures consecutive failures open the breaker
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// DefaultConfig returns client defaults for a shell at baseURL
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:         baseURL,
		Timeout:         5 * time.Second,
		RetryMax:        2,
		RetryWaitMin:    100 * time.Millisecond,
		RetryWaitMax:    2 * time.Second,
		RateLimit:       20,
		Burst:           10,
		BreakerFailures: 3,
		BreakerTimeout:  30 * time.Second,
	}
}

// Launcher creates windows through the host shell's HTTP API
type Launcher struct {
	client  *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// NewLauncher creates a launcher for the shell described by cfg
func NewLauncher(cfg Config, logger *zap.Logger) (*Launcher, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("shell base URL is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.Logger = nil

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryMax).
		SetRetryWaitTime(cfg.RetryWaitMin).
		SetRetryMaxWaitTime(cfg.RetryWaitMax).
		SetJSONMarshaler(sonic.ConfigStd.Marshal).
		SetJSONUnmarshaler(sonic.ConfigStd.Unmarshal).
		SetHeader("User-Agent", "hotexit/1.0").
		SetTransport(retryClient.HTTPClient.Transport)
	// Window creation is not idempotent: a 5xx may come after the shell opened
	// the window, so only requests that never got a response are retried
	client.AddRetryCondition(func(resp *resty.Response, err error) bool {
		if err == nil {
			return false
		}
		ctx := context.Background()
		if resp != nil && resp.Request != nil {
			ctx = resp.Request.Context()
		}
		retry, _ := retryablehttp.DefaultRetryPolicy(ctx, nil, err)
		return retry
	})

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	l := &Launcher{
		client:  client,
		limiter: limiter,
		logger:  logger.Named("shell"),
	}

	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 3
	}
	l.breaker = resilience.New("shell", resilience.Settings{
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsFailure: func(err error) bool {
			return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrRejected)
		},
		OnStateChange: func(name string, from, to resilience.State) {
			l.logger.Warn("Shell circuit breaker changed state",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			if l.metrics != nil {
				l.metrics.SetShellBreakerState(int(to))
			}
		},
	})

	return l, nil
}

// WithMetrics adds metrics tracking to the launcher
func (l *Launcher) WithMetrics(metrics *monitoring.Metrics) *Launcher {
	l.metrics = metrics
	return l
}

// BreakerState returns the current circuit breaker state
func (l *Launcher) BreakerState() resilience.State {
	return l.breaker.State()
}

// Launch asks the shell to create the window described by req
func (l *Launcher) Launch(ctx context.Context, req window.LaunchRequest) error {
	if err := l.limiter.Wait(ctx); err != nil {
		l.record("rate_limited")
		return fmt.Errorf("shell rate limit: %w", err)
	}

	_, err := resilience.Call(l.breaker, func() (*resty.Response, error) {
		r := l.client.R().SetContext(ctx).SetBody(req)
		tracing.InjectHeaders(ctx, r.Header)

		resp, err := r.Post(WindowsPath)
		if err != nil {
			return nil, err
		}
		switch {
		case resp.StatusCode() >= http.StatusInternalServerError:
			return resp, fmt.Errorf("%w: %s", ErrUnavailable, resp.Status())
		case resp.IsError():
			return resp, fmt.Errorf("%w: %s: %s", ErrRejected, resp.Status(), strings.TrimSpace(resp.String()))
		}
		return resp, nil
	})

	switch {
	case err == nil:
		l.record("success")
		l.logger.Debug("Window launched", zap.String("window_label", req.Label))
		return nil
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrTooManyRequests):
		l.record("circuit_open")
	case errors.Is(err, ErrRejected):
		l.record("rejected")
	default:
		l.record("error")
	}
	return fmt.Errorf("launch %s: %w", req.Label, err)
}

func (l *Launcher) record(status string) {
	if l.metrics != nil {
		l.metrics.RecordShellLaunch(status)
	}
}
