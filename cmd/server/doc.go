// Package main is the entry point for the hot-exit backend server.
//
// The server sits between the editor's host shell and its document windows.
// On quit the shell asks it to capture every window's unsaved state; on the
// next launch it restores that state, opening extra windows through the shell.
//
// Architecture:
//
//	Host shell ──HTTP──► Backend ◄──WebSocket── Document windows
//	     ▲                  │
//	     └──POST /windows───┘
//
// Configuration:
//   - Defaults, then hotexit.toml, then environment variables
//   - CLI flags (override everything)
//
// Usage:
//
//	# Production mode
//	./server -port 8000 -data-dir ~/.config/hotexit
//
//	# Development mode (colored logs)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
