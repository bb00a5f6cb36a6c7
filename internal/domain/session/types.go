package session

// SessionData is the root document captured from all windows and persisted to disk
type SessionData struct {
	Version    int             `json:"version"`
	Timestamp  int64           `json:"timestamp"` // Unix seconds
	AppVersion string          `json:"app_version"`
	Windows    []WindowState   `json:"windows"`
	Workspace  *WorkspaceState `json:"workspace"` // Reserved, not filled by capture
}

// WindowState captures one window's full UI and document state
type WindowState struct {
	WindowLabel  string          `json:"window_label"`
	IsMainWindow bool            `json:"is_main_window"`
	ActiveTabID  *string         `json:"active_tab_id"`
	Tabs         []TabState      `json:"tabs"`
	UIState      UIState         `json:"ui_state"`
	Geometry     *WindowGeometry `json:"geometry"`
}

// TabState captures a single editor tab
type TabState struct {
	ID       string        `json:"id"`
	FilePath *string       `json:"file_path"`
	Title    string        `json:"title"`
	IsPinned bool          `json:"is_pinned"`
	Document DocumentState `json:"document"`
}

// DocumentState is the in-memory buffer snapshot of a tab
type DocumentState struct {
	Content               string      `json:"content"`
	SavedContent          string      `json:"saved_content"` // Last content written to disk
	IsDirty               bool        `json:"is_dirty"`
	IsMissing             bool        `json:"is_missing"`
	IsDivergent           bool        `json:"is_divergent"`
	LineEnding            string      `json:"line_ending"`
	CursorInfo            *CursorInfo `json:"cursor_info"`
	LastModifiedTimestamp *int64      `json:"last_modified_timestamp"`
	IsUntitled            bool        `json:"is_untitled"`
	UntitledNumber        *uint32     `json:"untitled_number"`

	// Added in schema v2
	UndoHistory []HistoryCheckpoint `json:"undo_history"`
	RedoHistory []HistoryCheckpoint `json:"redo_history"`
}

// HistoryCheckpoint is one entry of the cross-mode undo/redo stacks
type HistoryCheckpoint struct {
	Markdown     string  `json:"markdown"`
	Mode         string  `json:"mode"` // "wysiwyg" or "source"
	CursorOffset *uint32 `json:"cursor_offset"`
	Timestamp    int64   `json:"timestamp"`
}

// CursorInfo locates the cursor inside the document
type CursorInfo struct {
	From         uint32 `json:"from"`
	To           uint32 `json:"to"`
	NodeType     string `json:"node_type"`
	HeadingLevel *uint8 `json:"heading_level"`
}

// UIState captures window chrome visibility and editor modes
type UIState struct {
	SidebarVisible        bool   `json:"sidebar_visible"`
	SidebarWidth          uint32 `json:"sidebar_width"`
	OutlineVisible        bool   `json:"outline_visible"`
	SidebarViewMode       string `json:"sidebar_view_mode"`
	StatusBarVisible      bool   `json:"status_bar_visible"`
	SourceModeEnabled     bool   `json:"source_mode_enabled"`
	FocusModeEnabled      bool   `json:"focus_mode_enabled"`
	TypewriterModeEnabled bool   `json:"typewriter_mode_enabled"`
}

// WindowGeometry is the window position and size in logical pixels
type WindowGeometry struct {
	X      int32  `json:"x"`
	Y      int32  `json:"y"`
	Width  uint32 `json:"width"`
	Height uint32 `json:"height"`
}

// WorkspaceState holds workspace-level metadata
type WorkspaceState struct {
	RootPath        *string `json:"root_path"`
	IsWorkspaceMode bool    `json:"is_workspace_mode"`
	ShowHiddenFiles bool    `json:"show_hidden_files"`
}
