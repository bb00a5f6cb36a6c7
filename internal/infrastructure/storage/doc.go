// Package storage persists the hot-exit session to a single JSON file.
//
// Layout under the data directory:
//   - session.json: the current session
//   - session.prev.json: the session that session.json replaced last
//
// Writes go to a temp file in the same directory, are fsynced, and then
// renamed over session.json, so readers only ever observe a complete old file
// or a complete new one. The previous file is copied to the backup path
// before the rename. Writes are serialised within one process; there is no
// cross-process locking.
package storage
