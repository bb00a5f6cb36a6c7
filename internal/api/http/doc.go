// Package http exposes the hot-exit command surface over Gin.
//
// Errors are returned as {"error": message, "code": code}; statusFor maps
// domain sentinels to statuses (stale sessions are 412 and can be retried
// with ?force=true under the prompt policy).
//
// Endpoints:
//   - POST /hot-exit/capture
//   - POST /hot-exit/restore, /hot-exit/restore/multi-window, /hot-exit/restore/saved
//   - GET, DELETE /hot-exit/session
//   - GET /hot-exit/windows/:label/state, POST /hot-exit/windows/:label/complete
//   - GET /hot-exit/status
//   - GET, POST /windows, DELETE /windows/:label, POST /windows/:label/logs
//   - GET /, /health
package http
