package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MaxLogEntries caps one log batch from a window
const MaxLogEntries = 500

// WindowLogEntry represents a log entry from a document window
type WindowLogEntry struct {
	ID        string                 `json:"id"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Context   map[string]interface{} `json:"context"`
	Timestamp string                 `json:"timestamp"`
}

// WindowLogRequest represents a batch of logs from a window
type WindowLogRequest struct {
	Entries []WindowLogEntry `json:"entries"`
}

// StreamLogs forwards a window's frontend logs into the backend log, so a
// failed restore can be diagnosed from one place
func (h *Handlers) StreamLogs(c *gin.Context) {
	label := c.Param("label")

	var req WindowLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid log request format")
		return
	}
	if len(req.Entries) == 0 {
		badRequest(c, "no log entries provided")
		return
	}
	if len(req.Entries) > MaxLogEntries {
		badRequest(c, "too many log entries")
		return
	}

	logger := h.windowLog.With(zap.String("window_label", label))
	for _, entry := range req.Entries {
		logWindowEntry(logger, entry)
	}

	c.JSON(http.StatusOK, gin.H{
		"entries_received": len(req.Entries),
		"timestamp":        time.Now().Unix(),
	})
}

func logWindowEntry(logger *zap.Logger, entry WindowLogEntry) {
	fields := make([]zap.Field, 0, len(entry.Context)+2)
	fields = append(fields,
		zap.String("window_log_id", entry.ID),
		zap.String("window_timestamp", entry.Timestamp),
	)

	for key, value := range entry.Context {
		switch v := value.(type) {
		case string:
			fields = append(fields, zap.String(key, v))
		case float64:
			fields = append(fields, zap.Float64(key, v))
		case bool:
			fields = append(fields, zap.Bool(key, v))
		default:
			fields = append(fields, zap.Any(key, v))
		}
	}

	switch entry.Level {
	case "error":
		logger.Error(entry.Message, fields...)
	case "warn":
		logger.Warn(entry.Message, fields...)
	case "debug", "verbose":
		logger.Debug(entry.Message, fields...)
	default:
		logger.Info(entry.Message, fields...)
	}
}
