package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/hotexit/internal/api/commands"
	"github.com/GriffinCanCode/hotexit/internal/domain/hotexit"
	"github.com/GriffinCanCode/hotexit/internal/domain/migration"
	"github.com/GriffinCanCode/hotexit/internal/domain/window"
	"github.com/GriffinCanCode/hotexit/internal/infrastructure/storage"
)

// Error codes returned in the "code" field of error bodies
const (
	CodeBadRequest          = "bad_request"
	CodeNoWindows           = "no_windows"
	CodeCaptureTimeout      = "capture_timeout"
	CodeIncompatibleVersion = "incompatible_version"
	CodeMigrationGap        = "migration_gap"
	CodeStaleSession        = "stale_session"
	CodeWindowNotFound      = "window_not_found"
	CodeNoWindowState       = "no_window_state"
	CodeCorruptSession      = "corrupt_session"
	CodeNoSavedSession      = "no_saved_session"
	CodeInvalidLabel        = "invalid_label"
	CodeTimeout             = "timeout"
	CodeInternal            = "internal"
)

// statusFor maps a domain error to an HTTP status and error code
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, hotexit.ErrNoWindows):
		return http.StatusConflict, CodeNoWindows
	case errors.Is(err, hotexit.ErrCaptureTimeout):
		return http.StatusGatewayTimeout, CodeCaptureTimeout
	case errors.Is(err, migration.ErrIncompatibleVersion):
		return http.StatusUnprocessableEntity, CodeIncompatibleVersion
	case errors.Is(err, migration.ErrMigrationGap):
		return http.StatusInternalServerError, CodeMigrationGap
	case errors.Is(err, hotexit.ErrStaleSession):
		return http.StatusPreconditionFailed, CodeStaleSession
	case errors.Is(err, hotexit.ErrWindowNotFound), errors.Is(err, window.ErrUnknownWindow):
		return http.StatusNotFound, CodeWindowNotFound
	case errors.Is(err, hotexit.ErrNoWindowState):
		return http.StatusUnprocessableEntity, CodeNoWindowState
	case errors.Is(err, storage.ErrCorruptSession):
		return http.StatusInternalServerError, CodeCorruptSession
	case errors.Is(err, commands.ErrNoSavedSession):
		return http.StatusNotFound, CodeNoSavedSession
	case errors.Is(err, window.ErrInvalidLabel):
		return http.StatusBadRequest, CodeInvalidLabel
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeTimeout
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// respondError writes err as {"error", "code"} and attaches it to the context
// so tracing marks the span failed
func respondError(c *gin.Context, err error) {
	status, code := statusFor(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error(), "code": code})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg, "code": CodeBadRequest})
}
