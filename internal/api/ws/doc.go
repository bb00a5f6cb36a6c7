// Package ws provides the per-window WebSocket event stream.
//
// Each document window holds one connection at /windows/:label/events. The
// Hub implements hotexit.EventBus over these connections, so capture
// requests, timeout notices and restore signals reach windows as JSON
// envelopes, and capture responses flow back to coordinator subscriptions.
//
// Features:
//   - One live connection per label; reconnecting replaces the old socket
//   - Bounded mailbox for signals emitted to windows that have not connected yet
//   - Server pings with read deadlines to detect dead peers
//   - Window registry connect/disconnect tracking
//
// Message Types (Window → Server):
//   - hot-exit:capture-response: Reply to a capture request
//   - ping: Keep-alive ping
//
// Message Types (Server → Window):
//   - hot-exit:capture-request: Start of a capture round
//   - hot-exit:capture-timeout: Round deadline passed
//   - hot-exit:restore-start: Pull staged state and restore
//   - pong: Reply to ping
//
// Envelope:
//
//	{"topic": "hot-exit:capture-request", "payload": {"capture_id": "..."}}
//
// Example Usage:
//
//	hub := ws.NewHub(windows, ws.DefaultConfig(), logger)
//	router.GET("/windows/:label/events", hub.HandleConnection)
package ws
