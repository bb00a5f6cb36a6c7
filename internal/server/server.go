package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/hotexit/internal/api/commands"
	apihttp "github.com/GriffinCanCode/hotexit/internal/api/http"
	"github.com/GriffinCanCode/hotexit/internal/api/middleware"
	"github.com/GriffinCanCode/hotexit/internal/api/ws"
	"github.com/GriffinCanCode/hotexit/internal/domain/hotexit"
	"github.com/GriffinCanCode/hotexit/internal/domain/window"
	"github.com/GriffinCanCode/hotexit/internal/infrastructure/config"
	"github.com/GriffinCanCode/hotexit/internal/infrastructure/logging"
	"github.com/GriffinCanCode/hotexit/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/hotexit/internal/infrastructure/shell"
	"github.com/GriffinCanCode/hotexit/internal/infrastructure/storage"
	"github.com/GriffinCanCode/hotexit/internal/infrastructure/tracing"
)

// EventsPath is the websocket route for a window's event stream
const EventsPath = "/windows/:label/events"

// gzipMinSize keeps small JSON replies uncompressed
const gzipMinSize = 1024

// Server wraps the HTTP server and dependencies
type Server struct {
	config   *config.Config
	logger   *logging.Logger
	metrics  *monitoring.Metrics
	tracer   *tracing.Tracer
	store    *storage.Store
	windows  *window.Manager
	launcher *shell.Launcher
	hub      *ws.Hub
	coord    *hotexit.Coordinator
	commands *commands.Commands
	router   *gin.Engine
	handler  http.Handler
	http     *http.Server
}

// New creates a server from cfg. The logger is owned by the caller.
func New(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger.Info("Initializing hot-exit server",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("data_dir", cfg.HotExit.DataDir),
		zap.String("shell_url", cfg.Shell.URL),
	)

	// Initialize metrics first (needed by other components)
	metrics := monitoring.NewMetrics()
	tracer := tracing.New("hotexit", logger.Logger)

	backupPolicy, err := storage.ParseBackupPolicy(cfg.HotExit.BackupPolicy)
	if err != nil {
		tracer.Close()
		return nil, err
	}
	store, err := storage.NewStore(cfg.HotExit.DataDir, backupPolicy, logger.Logger)
	if err != nil {
		tracer.Close()
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	store.WithMetrics(metrics)

	var launcher *shell.Launcher
	var windowLauncher window.Launcher
	if cfg.Shell.URL != "" {
		launcher, err = shell.NewLauncher(shellConfig(cfg.Shell), logger.Logger)
		if err != nil {
			tracer.Close()
			return nil, fmt.Errorf("failed to create shell client: %w", err)
		}
		launcher.WithMetrics(metrics)
		windowLauncher = launcher
		logger.Info("Host shell client configured", zap.String("url", cfg.Shell.URL))
	} else {
		logger.Warn("No shell URL configured, multi-window restore cannot open windows")
	}
	windows := window.NewManager(windowLauncher, logger.Logger)

	hubCfg := ws.DefaultConfig()
	hubCfg.MailboxSize = cfg.HotExit.MailboxSize
	hubCfg.AllowedOrigins = cfg.CORS.AllowOrigins
	hub := ws.NewHub(windows, hubCfg, logger.Logger).WithMetrics(metrics)

	stalePolicy, err := hotexit.ParseStalePolicy(cfg.HotExit.StalePolicy)
	if err != nil {
		tracer.Close()
		return nil, err
	}
	coord, err := hotexit.NewCoordinator(hub, windows, hotexit.Options{
		CaptureTimeout:         cfg.HotExit.CaptureTimeout.Std(),
		MaxAgeDays:             cfg.HotExit.MaxAgeDays,
		StalePolicy:            stalePolicy,
		AppVersion:             cfg.HotExit.AppVersion,
		DocumentWindowPatterns: cfg.HotExit.DocumentWindows,
	}, logger.Logger)
	if err != nil {
		tracer.Close()
		return nil, fmt.Errorf("failed to create coordinator: %w", err)
	}
	coord.WithMetrics(metrics).WithTracer(tracer)

	cmds := commands.New(coord, store, logger.Logger)

	s := &Server{
		config:   cfg,
		logger:   logger,
		metrics:  metrics,
		tracer:   tracer,
		store:    store,
		windows:  windows,
		launcher: launcher,
		hub:      hub,
		coord:    coord,
		commands: cmds,
	}
	if err := s.setupRouter(); err != nil {
		tracer.Close()
		return nil, err
	}

	logger.Info("Server initialized successfully")
	return s, nil
}

func (s *Server) setupRouter() error {
	cfg := s.config
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(s.tracer))
	router.Use(monitoring.Middleware(s.metrics))
	corsCfg := middleware.DefaultCORSConfig()
	if len(cfg.CORS.AllowOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.CORS.AllowOrigins
	}
	router.Use(middleware.CORS(corsCfg))
	if cfg.RateLimit.Enabled {
		s.logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		rl.ExemptPaths = append(rl.ExemptPaths, EventsPath)
		router.Use(middleware.RateLimit(rl))
	}

	handlers := apihttp.NewHandlers(s.commands, s.windows, s.logger.Logger).
		WithMetrics(s.metrics).
		WithConnections(s.hub)
	if s.launcher != nil {
		handlers.WithShell(s.launcher)
	}
	handlers.Routes(router)

	// WebSocket
	router.GET(EventsPath, s.hub.HandleConnection)

	// Metrics endpoint
	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	gzip, err := gzhttp.NewWrapper(gzhttp.MinSize(gzipMinSize))
	if err != nil {
		return fmt.Errorf("failed to create gzip wrapper: %w", err)
	}
	compressed := gzip(router)

	s.router = router
	s.handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Upgrade requests must reach the hub with a hijackable writer
		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			router.ServeHTTP(w, r)
			return
		}
		compressed.ServeHTTP(w, r)
	})
	s.http = &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// Handler returns the root handler, gzip included
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Commands returns the command surface
func (s *Server) Commands() *commands.Commands {
	return s.commands
}

// Run serves HTTP until Shutdown is called
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, disconnects windows and waits for
// in-flight requests until ctx expires
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	// Hijacked websocket connections are not tracked by http.Server
	s.hub.Close()

	var err error
	if shutdownErr := s.http.Shutdown(ctx); shutdownErr != nil {
		s.logger.Error("HTTP shutdown failed", zap.Error(shutdownErr))
		err = fmt.Errorf("failed to shut down http server: %w", shutdownErr)
	}

	s.tracer.Close()
	return err
}

func shellConfig(cfg config.ShellConfig) shell.Config {
	out := shell.DefaultConfig(cfg.URL)
	if cfg.Timeout > 0 {
		out.Timeout = cfg.Timeout.Std()
	}
	out.RetryMax = cfg.RetryMax
	out.RateLimit = cfg.RateLimit
	if cfg.BreakerFailures > 0 {
		out.BreakerFailures = cfg.BreakerFailures
	}
	if cfg.BreakerTimeout > 0 {
		out.BreakerTimeout = cfg.BreakerTimeout.Std()
	}
	return out
}
