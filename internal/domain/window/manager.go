package window

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/hotexit/internal/domain/session"
)

// Cascade placement for windows opened by restore
const (
	CascadeBaseX  = 100
	CascadeBaseY  = 100
	CascadeOffset = 25
	CascadeWrap   = 10
	DefaultWidth  = 800
	DefaultHeight = 600
)

var (
	// ErrInvalidLabel is returned for empty or malformed labels
	ErrInvalidLabel = errors.New("invalid window label")
	// ErrUnknownWindow is returned when a label is not registered
	ErrUnknownWindow = errors.New("unknown window")
	// ErrNotReserved is returned when opening a label that was not reserved
	ErrNotReserved = errors.New("window label not reserved")
	// ErrNoLauncher is returned when no host shell is configured
	ErrNoLauncher = errors.New("no window launcher configured")
)

// Launcher asks the host shell to create a window
type Launcher interface {
	Launch(ctx context.Context, req LaunchRequest) error
}

// LauncherFunc adapts a function to Launcher
type LauncherFunc func(ctx context.Context, req LaunchRequest) error

// Launch calls f
func (f LauncherFunc) Launch(ctx context.Context, req LaunchRequest) error {
	return f(ctx, req)
}

// Manager is the registry of windows known to the backend
type Manager struct {
	mu       sync.RWMutex
	windows  map[string]*Window // Protected by mu
	nextDoc  uint64             // Protected by mu
	cascade  int                // Protected by mu
	launcher Launcher
	logger   *zap.Logger
	now      func() time.Time
}

// NewManager creates a window registry. launcher may be nil when the backend
// cannot create windows itself.
func NewManager(launcher Launcher, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		windows:  make(map[string]*Window),
		launcher: launcher,
		logger:   logger.Named("window"),
		now:      time.Now,
	}
}

// KindOf classifies a label
func KindOf(label string) Kind {
	if label == session.MainWindowLabel || strings.HasPrefix(label, session.DocumentWindowPrefix) {
		return KindDocument
	}
	return KindAuxiliary
}

func validLabel(label string) bool {
	if label == "" || len(label) > 128 {
		return false
	}
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == ':', r == '/':
		default:
			return false
		}
	}
	return true
}

// Register records an open window reported by the host shell
func (m *Manager) Register(label string, geometry *session.WindowGeometry) (*Window, error) {
	if !validLabel(label) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLabel, label)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	w := m.upsert(label)
	w.State = StateOpen
	if geometry != nil {
		g := *geometry
		w.Geometry = &g
	}

	m.logger.Debug("Window registered", zap.String("window_label", label), zap.String("kind", string(w.Kind)))
	return w.clone(), nil
}

// Unregister forgets a window that closed
func (m *Manager) Unregister(label string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.windows[label]; !ok {
		return false
	}
	delete(m.windows, label)
	m.logger.Debug("Window unregistered", zap.String("window_label", label))
	return true
}

// Connect marks label as attached to the event transport. Unknown labels are
// registered as open, since a window that connects exists.
func (m *Manager) Connect(label string) error {
	if !validLabel(label) {
		return fmt.Errorf("%w: %q", ErrInvalidLabel, label)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	w := m.upsert(label)
	w.State = StateOpen
	w.Connected = true
	now := m.now()
	w.ConnectedAt = &now
	return nil
}

// Disconnect marks label as detached. The window stays registered so it can
// reconnect after a reload.
func (m *Manager) Disconnect(label string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w, ok := m.windows[label]; ok {
		w.Connected = false
	}
}

// Get returns a copy of the window registered under label
func (m *Manager) Get(label string) (*Window, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.windows[label]
	if !ok {
		return nil, false
	}
	return w.clone(), true
}

// List returns copies of every registered window sorted by label
func (m *Manager) List() []*Window {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Window, 0, len(m.windows))
	for _, w := range m.windows {
		out = append(out, w.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// Labels lists open windows sorted by label
func (m *Manager) Labels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	labels := make([]string, 0, len(m.windows))
	for label, w := range m.windows {
		if w.State == StateOpen {
			labels = append(labels, label)
		}
	}
	sort.Strings(labels)
	return labels
}

// Exists reports whether label is an open window
func (m *Manager) Exists(label string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.windows[label]
	return ok && w.State == StateOpen
}

// ReserveDocumentWindow allocates the next free doc-N label
func (m *Manager) ReserveDocumentWindow() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var label string
	for {
		label = session.DocumentWindowPrefix + strconv.FormatUint(m.nextDoc, 10)
		m.nextDoc++
		if _, taken := m.windows[label]; !taken {
			break
		}
	}

	m.windows[label] = &Window{
		Label:     label,
		Kind:      KindDocument,
		State:     StateReserved,
		CreatedAt: m.now(),
	}
	return label, nil
}

// OpenDocumentWindow asks the launcher to create the window for a reserved label
func (m *Manager) OpenDocumentWindow(ctx context.Context, label string) error {
	if m.launcher == nil {
		return ErrNoLauncher
	}

	m.mu.Lock()
	w, ok := m.windows[label]
	if !ok || w.State != StateReserved {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotReserved, label)
	}
	geometry := m.nextCascade()
	w.State = StateLaunching
	w.Geometry = &geometry
	m.mu.Unlock()

	req := LaunchRequest{
		Label:  label,
		X:      geometry.X,
		Y:      geometry.Y,
		Width:  geometry.Width,
		Height: geometry.Height,
	}
	if err := m.launcher.Launch(ctx, req); err != nil {
		m.mu.Lock()
		if w, ok := m.windows[label]; ok && w.State == StateLaunching {
			w.State = StateReserved
		}
		m.mu.Unlock()
		return fmt.Errorf("launch window %s: %w", label, err)
	}

	m.mu.Lock()
	// the window may already have connected while the launch call was in flight
	if w, ok := m.windows[label]; ok && w.State == StateLaunching {
		w.State = StateOpen
	}
	m.mu.Unlock()

	m.logger.Info("Document window opened",
		zap.String("window_label", label),
		zap.Int32("x", geometry.X),
		zap.Int32("y", geometry.Y))
	return nil
}

// ReleaseDocumentWindow drops a reservation that was never opened
func (m *Manager) ReleaseDocumentWindow(label string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w, ok := m.windows[label]; ok && w.State != StateOpen {
		delete(m.windows, label)
	}
}

// Stats returns registry counters
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var st Stats
	for _, w := range m.windows {
		st.Total++
		if w.Kind == KindDocument {
			st.Documents++
		}
		if w.Connected {
			st.Connected++
		}
		if w.State != StateOpen {
			st.Pending++
		}
	}
	return st
}

// upsert returns the entry for label, creating it if needed (must hold lock)
func (m *Manager) upsert(label string) *Window {
	w, ok := m.windows[label]
	if !ok {
		w = &Window{Label: label, Kind: KindOf(label), CreatedAt: m.now()}
		m.windows[label] = w
	}
	m.bumpCounter(label)
	return w
}

// bumpCounter keeps reservations clear of doc-N labels the shell created itself (must hold lock)
func (m *Manager) bumpCounter(label string) {
	suffix, ok := strings.CutPrefix(label, session.DocumentWindowPrefix)
	if !ok {
		return
	}
	n, err := strconv.ParseUint(suffix, 10, 64)
	if err != nil {
		return
	}
	if n >= m.nextDoc {
		m.nextDoc = n + 1
	}
}

// nextCascade computes geometry for the next launched window (must hold lock)
func (m *Manager) nextCascade() session.WindowGeometry {
	step := m.cascade % CascadeWrap
	m.cascade++
	return session.WindowGeometry{
		X:      int32(CascadeBaseX + step*CascadeOffset),
		Y:      int32(CascadeBaseY + step*CascadeOffset),
		Width:  DefaultWidth,
		Height: DefaultHeight,
	}
}
