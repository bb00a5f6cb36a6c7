package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/hotexit/internal/domain/session"
	"github.com/GriffinCanCode/hotexit/internal/infrastructure/monitoring"
)

func newTestStore(t *testing.T, policy BackupPolicy) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), policy, zap.NewNop())
	require.NoError(t, err)
	return store
}

func sampleSession(content string) *session.SessionData {
	path := "/notes/today.md"
	tabID := "tab-1"
	s := session.New("1.2.0")
	s.Windows = []session.WindowState{{
		WindowLabel:  "main",
		IsMainWindow: true,
		ActiveTabID:  &tabID,
		Tabs: []session.TabState{{
			ID:       tabID,
			FilePath: &path,
			Title:    "today.md",
			Document: session.DocumentState{
				Content:      content,
				SavedContent: "# saved",
				IsDirty:      true,
				LineEnding:   "\n",
				UndoHistory:  []session.HistoryCheckpoint{},
				RedoHistory:  []session.HistoryCheckpoint{},
			},
		}},
		UIState:  session.UIState{SidebarVisible: true, SidebarWidth: 260},
		Geometry: &session.WindowGeometry{X: 10, Y: 20, Width: 1200, Height: 800},
	}}
	return s
}

func tempFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var out []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			out = append(out, e.Name())
		}
	}
	return out
}

func TestNewStoreRequiresDir(t *testing.T) {
	_, err := NewStore("", BackupBestEffort, nil)
	assert.Error(t, err)
}

func TestNewStoreCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	store, err := NewStore(dir, "", nil)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, filepath.Join(dir, SessionFile), store.Path())
	assert.Equal(t, filepath.Join(dir, BackupFile), store.BackupPath())
}

func TestReadAbsent(t *testing.T) {
	store := newTestStore(t, BackupBestEffort)

	s, err := store.Read(context.Background())
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = store.ReadBackup(context.Background())
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestWriteReadRoundTrip(t *testing.T) {
	store := newTestStore(t, BackupBestEffort)
	ctx := context.Background()
	original := sampleSession("# draft")

	require.NoError(t, store.Write(ctx, original))

	loaded, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, original, loaded)

	raw, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"window_label": "main"`)
	assert.Contains(t, string(raw), `"app_version": "1.2.0"`)

	assert.Empty(t, tempFiles(t, filepath.Dir(store.Path())))
}

func TestWriteKeepsPreviousAsBackup(t *testing.T) {
	store := newTestStore(t, BackupBestEffort)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, sampleSession("first")))

	backup, err := store.ReadBackup(ctx)
	require.NoError(t, err)
	assert.Nil(t, backup, "no backup before the second write")

	require.NoError(t, store.Write(ctx, sampleSession("second")))

	current, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", current.Windows[0].Tabs[0].Document.Content)

	backup, err = store.ReadBackup(ctx)
	require.NoError(t, err)
	require.NotNil(t, backup)
	assert.Equal(t, "first", backup.Windows[0].Tabs[0].Document.Content)
}

func TestWriteBackupFailurePolicies(t *testing.T) {
	ctx := context.Background()

	t.Run("best effort continues", func(t *testing.T) {
		metrics := monitoring.NewMetrics()
		store := newTestStore(t, BackupBestEffort).WithMetrics(metrics)
		require.NoError(t, store.Write(ctx, sampleSession("first")))
		require.NoError(t, os.Mkdir(store.BackupPath(), 0o700))

		require.NoError(t, store.Write(ctx, sampleSession("second")))

		current, err := store.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, "second", current.Windows[0].Tabs[0].Document.Content)
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BackupFailures))
	})

	t.Run("strict aborts", func(t *testing.T) {
		store := newTestStore(t, BackupStrict)
		require.NoError(t, store.Write(ctx, sampleSession("first")))
		require.NoError(t, os.Mkdir(store.BackupPath(), 0o700))

		err := store.Write(ctx, sampleSession("second"))
		require.Error(t, err)

		current, err := store.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, "first", current.Windows[0].Tabs[0].Document.Content)
		assert.Empty(t, tempFiles(t, filepath.Dir(store.Path())))
	})
}

func TestWriteRenameFailureRemovesTemp(t *testing.T) {
	store := newTestStore(t, BackupBestEffort)
	dir := filepath.Dir(store.Path())

	// a non-empty directory at the final path makes the rename fail
	require.NoError(t, os.MkdirAll(filepath.Join(store.Path(), "occupied"), 0o700))

	err := store.Write(context.Background(), sampleSession("x"))
	require.Error(t, err)
	assert.Empty(t, tempFiles(t, dir))
}

func TestWriteNilAndCancelled(t *testing.T) {
	store := newTestStore(t, BackupBestEffort)
	assert.Error(t, store.Write(context.Background(), nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, store.Write(ctx, sampleSession("x")), context.Canceled)
	_, err := os.Stat(store.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestReadCorrupt(t *testing.T) {
	store := newTestStore(t, BackupBestEffort)
	require.NoError(t, os.WriteFile(store.Path(), []byte("{not json"), 0o600))

	s, err := store.Read(context.Background())
	assert.Nil(t, s)
	assert.ErrorIs(t, err, ErrCorruptSession)
}

func TestReadVersionOneFile(t *testing.T) {
	store := newTestStore(t, BackupBestEffort)
	legacy := `{
  "version": 1,
  "timestamp": 1700000000,
  "app_version": "0.3.24",
  "windows": [{
    "window_label": "main",
    "is_main_window": true,
    "active_tab_id": null,
    "tabs": [{"id": "t1", "file_path": null, "title": "Untitled-1", "is_pinned": false,
      "document": {"content": "hi", "saved_content": "", "is_dirty": true, "is_missing": false,
        "is_divergent": false, "line_ending": "\n", "cursor_info": null,
        "last_modified_timestamp": null, "is_untitled": true, "untitled_number": 1}}],
    "ui_state": {"sidebar_visible": false, "sidebar_width": 240, "outline_visible": false,
      "sidebar_view_mode": "files", "status_bar_visible": true, "source_mode_enabled": false,
      "focus_mode_enabled": false, "typewriter_mode_enabled": false},
    "geometry": null
  }],
  "workspace": null
}`
	require.NoError(t, os.WriteFile(store.Path(), []byte(legacy), 0o600))

	s, err := store.Read(context.Background())
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, 1, s.Version)
	require.Len(t, s.Windows, 1)
	doc := s.Windows[0].Tabs[0].Document
	assert.Equal(t, "hi", doc.Content)
	assert.True(t, doc.IsUntitled)
	require.NotNil(t, doc.UntitledNumber)
	assert.Equal(t, uint32(1), *doc.UntitledNumber)
	assert.Nil(t, doc.UndoHistory)
}

func TestDeleteIdempotent(t *testing.T) {
	store := newTestStore(t, BackupBestEffort)
	ctx := context.Background()

	require.NoError(t, store.Delete(ctx))

	require.NoError(t, store.Write(ctx, sampleSession("x")))
	require.NoError(t, store.Delete(ctx))
	require.NoError(t, store.Delete(ctx))

	s, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestParseBackupPolicy(t *testing.T) {
	p, err := ParseBackupPolicy("")
	require.NoError(t, err)
	assert.Equal(t, BackupBestEffort, p)

	p, err = ParseBackupPolicy("strict")
	require.NoError(t, err)
	assert.Equal(t, BackupStrict, p)

	_, err = ParseBackupPolicy("sometimes")
	assert.Error(t, err)
}
