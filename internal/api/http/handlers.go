package http

import (
	"net/http"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/hotexit/internal/api/commands"
	"github.com/GriffinCanCode/hotexit/internal/domain/hotexit"
	"github.com/GriffinCanCode/hotexit/internal/domain/session"
	"github.com/GriffinCanCode/hotexit/internal/domain/window"
	"github.com/GriffinCanCode/hotexit/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/hotexit/internal/infrastructure/resilience"
)

// MaxSessionBytes caps request bodies carrying a session
const MaxSessionBytes = 64 << 20

// Version is reported by the root endpoint
const Version = "1.0.0"

// ConnectionView reports which windows hold a live event connection
type ConnectionView interface {
	Connected() []string
}

// BreakerView reports the host shell circuit breaker state
type BreakerView interface {
	BreakerState() resilience.State
}

// Handlers contains all HTTP handlers
type Handlers struct {
	cmds        *commands.Commands
	windows     *window.Manager
	connections ConnectionView
	shell       BreakerView
	metrics     *monitoring.Metrics
	logger      *zap.Logger
	windowLog   *zap.Logger
}

// NewHandlers creates a new handler set
func NewHandlers(cmds *commands.Commands, windows *window.Manager, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		cmds:      cmds,
		windows:   windows,
		logger:    logger.Named("http"),
		windowLog: logger.Named("window"),
	}
}

// WithMetrics includes the metrics snapshot in status responses
func (h *Handlers) WithMetrics(metrics *monitoring.Metrics) *Handlers {
	h.metrics = metrics
	return h
}

// WithConnections reports live event connections in health responses
func (h *Handlers) WithConnections(view ConnectionView) *Handlers {
	h.connections = view
	return h
}

// WithShell reports the shell client's breaker in health responses
func (h *Handlers) WithShell(view BreakerView) *Handlers {
	h.shell = view
	return h
}

// Routes registers every handler on r. The websocket route is registered by
// the server, which owns the hub.
func (h *Handlers) Routes(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	hx := r.Group("/hot-exit")
	hx.POST("/capture", h.Capture)
	hx.POST("/restore", h.Restore)
	hx.POST("/restore/multi-window", h.RestoreMultiWindow)
	hx.POST("/restore/saved", h.RestoreSaved)
	hx.GET("/session", h.GetSession)
	hx.DELETE("/session", h.ClearSession)
	hx.GET("/windows/:label/state", h.PullWindowState)
	hx.POST("/windows/:label/complete", h.SignalWindowComplete)
	hx.GET("/status", h.Status)

	r.GET("/windows", h.ListWindows)
	r.POST("/windows", h.RegisterWindow)
	r.DELETE("/windows/:label", h.UnregisterWindow)
	r.POST("/windows/:label/logs", h.StreamLogs)
}

// Root handles the service banner
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "hotexit",
		"version": Version,
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	resp := gin.H{
		"status":  "healthy",
		"windows": h.windows.Stats(),
	}
	if h.connections != nil {
		resp["connected"] = h.connections.Connected()
	}
	if h.shell != nil {
		resp["shell"] = gin.H{"configured": true, "breaker": h.shell.BreakerState().String()}
	} else {
		resp["shell"] = gin.H{"configured": false}
	}
	c.JSON(http.StatusOK, resp)
}

// ============================================================================
// Hot exit
// ============================================================================

// Capture collects every document window's state and persists it
func (h *Handlers) Capture(c *gin.Context) {
	data, err := h.cmds.Capture(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": data})
}

// Restore stages the posted session's main window state for one window
func (h *Handlers) Restore(c *gin.Context) {
	opts, ok := restoreOptions(c)
	if !ok {
		return
	}
	data, ok := bindSession(c)
	if !ok {
		return
	}

	if err := h.cmds.Restore(c.Request.Context(), data, opts); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "staged"})
}

// RestoreMultiWindow recreates every window of the posted session
func (h *Handlers) RestoreMultiWindow(c *gin.Context) {
	opts, ok := restoreOptions(c)
	if !ok {
		return
	}
	data, ok := bindSession(c)
	if !ok {
		return
	}

	result, err := h.cmds.RestoreMultiWindow(c.Request.Context(), data, opts)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// RestoreSaved restores the persisted session across windows
func (h *Handlers) RestoreSaved(c *gin.Context) {
	opts, ok := restoreOptions(c)
	if !ok {
		return
	}

	result, err := h.cmds.RestoreSaved(c.Request.Context(), opts)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetSession returns the persisted session or {"session": null}
func (h *Handlers) GetSession(c *gin.Context) {
	data, err := h.cmds.Inspect(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": data})
}

// ClearSession discards staged state and the persisted session
func (h *Handlers) ClearSession(c *gin.Context) {
	if err := h.cmds.Clear(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PullWindowState returns the state staged for the window, or {"state": null}
func (h *Handlers) PullWindowState(c *gin.Context) {
	state := h.cmds.PullWindowState(c.Param("label"))
	c.JSON(http.StatusOK, gin.H{"state": state})
}

// SignalWindowComplete records that the window finished restoring
func (h *Handlers) SignalWindowComplete(c *gin.Context) {
	done := h.cmds.SignalWindowComplete(c.Param("label"))
	c.JSON(http.StatusOK, gin.H{"all_complete": done})
}

// Status returns coordinator diagnostics
func (h *Handlers) Status(c *gin.Context) {
	resp := gin.H{
		"hot_exit":         h.cmds.Status(),
		"awaiting_consume": h.cmds.AwaitingConsume(),
		"windows":          h.windows.Stats(),
	}
	if h.metrics != nil {
		resp["metrics"] = h.metrics.Snapshot()
	}
	c.JSON(http.StatusOK, resp)
}

func restoreOptions(c *gin.Context) (hotexit.RestoreOptions, bool) {
	raw := c.DefaultQuery("force", "false")
	force, err := strconv.ParseBool(raw)
	if err != nil {
		badRequest(c, "invalid force parameter: "+raw)
		return hotexit.RestoreOptions{}, false
	}
	return hotexit.RestoreOptions{Force: force}, true
}

func bindSession(c *gin.Context) (*session.SessionData, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxSessionBytes)
	body, err := c.GetRawData()
	if err != nil {
		badRequest(c, "failed to read session body")
		return nil, false
	}

	var data session.SessionData
	if err := sonic.ConfigStd.Unmarshal(body, &data); err != nil {
		badRequest(c, "invalid session JSON: "+err.Error())
		return nil, false
	}
	return &data, true
}
