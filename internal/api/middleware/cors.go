package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/hotexit/internal/infrastructure/tracing"
)

// CORSConfig defines CORS configuration options.
type CORSConfig struct {
	AllowOrigins []string
	AllowMethods []string
	AllowHeaders []string
	MaxAge       time.Duration
}

// DefaultCORSConfig allows the editor's webview origins.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"tauri://localhost", "http://localhost:1420"},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Content-Length",
			"Accept",
			"Accept-Encoding",
			"Origin",
			tracing.HeaderTraceID,
			tracing.HeaderSpanID,
		},
		MaxAge: 12 * time.Hour,
	}
}

// CORS creates a CORS middleware with the provided configuration.
// Webview origins use custom schemes such as tauri://, so those are allowed.
func CORS(cfg CORSConfig) gin.HandlerFunc {
	if len(cfg.AllowMethods) == 0 {
		cfg.AllowMethods = DefaultCORSConfig().AllowMethods
	}
	if len(cfg.AllowHeaders) == 0 {
		cfg.AllowHeaders = DefaultCORSConfig().AllowHeaders
	}
	return cors.New(cors.Config{
		AllowOrigins:      cfg.AllowOrigins,
		AllowMethods:      cfg.AllowMethods,
		AllowHeaders:      cfg.AllowHeaders,
		ExposeHeaders:     []string{tracing.HeaderTraceID},
		AllowWildcard:     true,
		AllowCustomSchema: true,
		AllowWebSockets:   true,
		MaxAge:            cfg.MaxAge,
	})
}
