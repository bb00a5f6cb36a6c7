/*
Package monitoring provides Prometheus metrics for the hot-exit backend.

# Overview

Every collector is registered on a private registry owned by Metrics, so
several instances can coexist (tests, embedded servers) without colliding on
the global default registry.

# Features

- HTTP request metrics (latency, throughput, size) keyed by route template
- Capture rounds by outcome, response verdicts, windows per capture
- Restore operations by mode, windows created, pending windows
- Session store operations, backup failures, session size
- Window event stream connections, messages and mailbox activity
- Host shell launch results and circuit breaker state
- Go runtime, process and uptime collectors

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics, "write")
	// ... perform operation ...
	timer.Stop("success")
*/
package monitoring
