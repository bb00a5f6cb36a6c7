/*
Package cli implements hotexitctl, the command line companion to the hot-exit server.

Local commands work on the session file directly:

	hotexitctl inspect [--backup] [--full]
	hotexitctl clear
	hotexitctl migrate [--dry-run]

Server commands talk to a running server over HTTP:

	hotexitctl capture [--full]
	hotexitctl restore [--force] [--file session.json [--single]]
	hotexitctl status

Every command prints YAML by default; -o json switches to JSON.
*/
package cli
