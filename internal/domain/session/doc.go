// Package session defines the versioned hot-exit session document.
//
// A session is the snapshot of every open document window taken right before
// an update restart (or periodically for crash recovery). It is built fresh by
// each capture round, persisted as a single JSON file and consumed by restore.
//
// Structure:
//   - SessionData: schema version, capture timestamp, producing app version
//   - WindowState: one window's tabs, UI layout and optional geometry
//   - TabState / DocumentState: the editor buffer snapshot for a tab
//
// The document payload is opaque to the backend. Restore only re-keys window
// labels and moves states around; it never interprets buffer contents.
//
// Example Usage:
//
//	s := session.New("0.4.2")
//	s.Windows = append(s.Windows, state)
//	session.SortWindows(s.Windows)
//	if s.IsStale(session.MaxSessionAgeDays) {
//	    // discard or ask the user
//	}
package session
