// Package config loads service configuration.
//
// Values are layered: built-in defaults, then an optional TOML file, then
// environment variables. CLI flags in cmd/server override the result.
//
// Configuration Sections:
//   - Server: HTTP listen address and shutdown timeout
//   - HotExit: data directory, capture timeout, stale and backup policies
//   - Shell: host shell URL and client resilience settings
//   - Logging: log level and output format
//   - RateLimit: per-IP rate limiting
//   - CORS: allowed webview origins
//
// Example hotexit.toml:
//
//	[hot_exit]
//	capture_timeout = "5s"
//	stale_policy = "prompt"
//
//	[shell]
//	url = "http://127.0.0.1:7070"
//
// Environment Variables:
//   - PORT, HOST, SHUTDOWN_TIMEOUT
//   - HOTEXIT_CONFIG, HOTEXIT_DATA_DIR, HOTEXIT_CAPTURE_TIMEOUT, HOTEXIT_MAX_AGE_DAYS
//   - HOTEXIT_STALE_POLICY, HOTEXIT_BACKUP_POLICY, HOTEXIT_DOCUMENT_WINDOWS
//   - HOTEXIT_APP_VERSION, HOTEXIT_MAILBOX_SIZE
//   - SHELL_URL, SHELL_TIMEOUT, SHELL_RETRY_MAX, SHELL_RATE_LIMIT
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//   - CORS_ALLOW_ORIGINS
package config
