package http

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/hotexit/internal/domain/session"
	"github.com/GriffinCanCode/hotexit/internal/domain/window"
)

// RegisterWindowRequest is sent by the host shell when it opens a window
type RegisterWindowRequest struct {
	Label    string                  `json:"label" binding:"required"`
	Geometry *session.WindowGeometry `json:"geometry,omitempty"`
}

// ListWindows lists every registered window
func (h *Handlers) ListWindows(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"windows": h.windows.List(),
		"stats":   h.windows.Stats(),
	})
}

// RegisterWindow records a window the host shell opened
func (h *Handlers) RegisterWindow(c *gin.Context) {
	var req RegisterWindowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid window request: "+err.Error())
		return
	}

	w, err := h.windows.Register(req.Label, req.Geometry)
	if err != nil {
		respondError(c, err)
		return
	}
	h.logger.Debug("Window registered by shell", zap.String("window_label", w.Label))
	c.JSON(http.StatusCreated, w)
}

// UnregisterWindow forgets a window the host shell closed
func (h *Handlers) UnregisterWindow(c *gin.Context) {
	label := c.Param("label")
	if !h.windows.Unregister(label) {
		respondError(c, fmt.Errorf("%w: %s", window.ErrUnknownWindow, label))
		return
	}
	c.Status(http.StatusNoContent)
}
