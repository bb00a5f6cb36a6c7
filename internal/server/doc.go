// Package server wires the hot-exit backend together.
//
// This package orchestrates all components:
//   - Session store, window registry and host shell client
//   - WebSocket hub acting as the coordinator's event bus
//   - Capture/restore coordinator and command surface
//   - HTTP routing with Gin, gzip for large session payloads
//   - Middleware stack (recovery, tracing, metrics, CORS, rate limiting)
//
// Server Lifecycle:
//  1. Load configuration from defaults, TOML and environment
//  2. Initialize logger, metrics and tracer
//  3. Open the session store under the data directory
//  4. Build registry, hub, coordinator and routes
//  5. Start HTTP server
//  6. Graceful shutdown on signal: windows disconnected, requests drained
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.New(cfg, logger)
//	go srv.Run()
//	// ...
//	srv.Shutdown(ctx)
package server
