// Package shell talks to the desktop host shell that owns native windows.
//
// Launcher implements window.Launcher by posting window requests to the
// shell's HTTP API. Calls go through a rate limiter and a circuit breaker,
// and transient failures are retried with backoff.
package shell
