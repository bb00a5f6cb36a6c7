package hotexit

import "errors"

var (
	// ErrNoWindows means no document window was open to capture
	ErrNoWindows = errors.New("no document windows to capture")
	// ErrCaptureTimeout means the deadline passed with zero responses
	ErrCaptureTimeout = errors.New("capture timeout: no windows responded")
	// ErrStaleSession means the session is older than the configured maximum age
	ErrStaleSession = errors.New("session is stale")
	// ErrWindowNotFound means the restore target window does not exist
	ErrWindowNotFound = errors.New("window not found")
	// ErrNoWindowState means the session holds no window state to restore
	ErrNoWindowState = errors.New("no window state in session")
)
