package session

import (
	"math"
	"sort"
	"time"
)

const (
	// SchemaVersion is the current on-disk schema version. Version 0 is invalid.
	SchemaVersion = 2

	// MaxSessionAgeDays is the default staleness threshold for restore
	MaxSessionAgeDays int64 = 7

	// MainWindowLabel is the label of the primary editor window
	MainWindowLabel = "main"

	// DocumentWindowPrefix prefixes labels of secondary document windows (doc-0, doc-1, ...)
	DocumentWindowPrefix = "doc-"

	secondsPerDay int64 = 24 * 60 * 60
)

// New creates an empty session at the current schema version
func New(appVersion string) *SessionData {
	return &SessionData{
		Version:    SchemaVersion,
		Timestamp:  time.Now().Unix(),
		AppVersion: appVersion,
		Windows:    []WindowState{},
	}
}

// IsCompatible reports strict equality with the current schema version.
// Restore paths use migration.CanMigrate instead, which accepts older versions.
func (s *SessionData) IsCompatible() bool {
	return s.Version == SchemaVersion
}

// IsStale reports whether the session is older than maxAgeDays
func (s *SessionData) IsStale(maxAgeDays int64) bool {
	return s.IsStaleAt(time.Now(), maxAgeDays)
}

// IsStaleAt evaluates staleness against the given clock reading.
// Non-positive thresholds, future timestamps and arithmetic overflow all count as stale.
func (s *SessionData) IsStaleAt(now time.Time, maxAgeDays int64) bool {
	if maxAgeDays <= 0 {
		return true
	}
	if maxAgeDays > math.MaxInt64/secondsPerDay {
		return true
	}
	maxAge := maxAgeDays * secondsPerDay

	current := now.Unix()
	if s.Timestamp > current {
		return true
	}
	// current - Timestamp overflows when Timestamp is far in the past
	if s.Timestamp < 0 && current > math.MaxInt64+s.Timestamp {
		return true
	}
	return current-s.Timestamp > maxAge
}

// Age returns how long ago the session was captured
func (s *SessionData) Age(now time.Time) time.Duration {
	return now.Sub(time.Unix(s.Timestamp, 0))
}

// MainWindowState returns the index of the window flagged as main,
// falling back to the first window. Returns -1 for an empty session.
func (s *SessionData) MainWindowState() int {
	for i := range s.Windows {
		if s.Windows[i].IsMainWindow {
			return i
		}
	}
	if len(s.Windows) > 0 {
		return 0
	}
	return -1
}

// SortWindows orders windows main-first, then by label ascending
func SortWindows(windows []WindowState) {
	sort.SliceStable(windows, func(i, j int) bool {
		a, b := windows[i], windows[j]
		if a.IsMainWindow != b.IsMainWindow {
			return a.IsMainWindow
		}
		return a.WindowLabel < b.WindowLabel
	})
}

// Clone returns a deep copy of the session
func (s *SessionData) Clone() *SessionData {
	if s == nil {
		return nil
	}
	out := *s
	if s.Windows != nil {
		out.Windows = make([]WindowState, len(s.Windows))
		for i := range s.Windows {
			out.Windows[i] = s.Windows[i].Clone()
		}
	}
	if s.Workspace != nil {
		ws := *s.Workspace
		ws.RootPath = cloneString(s.Workspace.RootPath)
		out.Workspace = &ws
	}
	return &out
}

// Clone returns a deep copy of the window state
func (w WindowState) Clone() WindowState {
	out := w
	out.ActiveTabID = cloneString(w.ActiveTabID)
	if w.Geometry != nil {
		g := *w.Geometry
		out.Geometry = &g
	}
	if w.Tabs != nil {
		out.Tabs = make([]TabState, len(w.Tabs))
		for i := range w.Tabs {
			out.Tabs[i] = w.Tabs[i].clone()
		}
	}
	return out
}

func (t TabState) clone() TabState {
	out := t
	out.FilePath = cloneString(t.FilePath)
	out.Document = t.Document.clone()
	return out
}

func (d DocumentState) clone() DocumentState {
	out := d
	if d.CursorInfo != nil {
		c := *d.CursorInfo
		if d.CursorInfo.HeadingLevel != nil {
			level := *d.CursorInfo.HeadingLevel
			c.HeadingLevel = &level
		}
		out.CursorInfo = &c
	}
	if d.LastModifiedTimestamp != nil {
		ts := *d.LastModifiedTimestamp
		out.LastModifiedTimestamp = &ts
	}
	if d.UntitledNumber != nil {
		n := *d.UntitledNumber
		out.UntitledNumber = &n
	}
	out.UndoHistory = cloneHistory(d.UndoHistory)
	out.RedoHistory = cloneHistory(d.RedoHistory)
	return out
}

func cloneHistory(in []HistoryCheckpoint) []HistoryCheckpoint {
	if in == nil {
		return nil
	}
	out := make([]HistoryCheckpoint, len(in))
	for i, cp := range in {
		out[i] = cp
		if cp.CursorOffset != nil {
			off := *cp.CursorOffset
			out[i].CursorOffset = &off
		}
	}
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
