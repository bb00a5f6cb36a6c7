package commands

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/hotexit/internal/domain/hotexit"
	"github.com/GriffinCanCode/hotexit/internal/domain/session"
)

// ErrNoSavedSession means there is no persisted session to restore
var ErrNoSavedSession = errors.New("no saved session")

// consumeTimeout bounds the file delete after a saved session is fully restored
const consumeTimeout = 5 * time.Second

// SessionStore persists the captured session
type SessionStore interface {
	Write(ctx context.Context, data *session.SessionData) error
	Read(ctx context.Context) (*session.SessionData, error)
	Delete(ctx context.Context) error
}

// Commands is the operation surface exposed to the shell and windows
type Commands struct {
	coord  *hotexit.Coordinator
	store  SessionStore
	logger *zap.Logger

	mu sync.Mutex
	// consume is set while a restore loaded from disk waits for windows
	consume bool // Protected by mu
}

// New creates the command surface over a coordinator and a store
func New(coord *hotexit.Coordinator, store SessionStore, logger *zap.Logger) *Commands {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Commands{
		coord:  coord,
		store:  store,
		logger: logger.Named("commands"),
	}
}

// Capture collects state from every document window and persists it
func (c *Commands) Capture(ctx context.Context) (*session.SessionData, error) {
	data, err := c.coord.Capture(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.store.Write(ctx, data); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	return data, nil
}

// Restore stages the session's main window state for one window
func (c *Commands) Restore(ctx context.Context, s *session.SessionData, opts hotexit.RestoreOptions) error {
	if err := c.coord.RestoreWithOptions(ctx, s, opts); err != nil {
		return err
	}
	c.setConsume(false)
	return nil
}

// RestoreMultiWindow recreates every window of s
func (c *Commands) RestoreMultiWindow(ctx context.Context, s *session.SessionData, opts hotexit.RestoreOptions) (*hotexit.RestoreResult, error) {
	result, err := c.coord.RestoreMultiWindowWithOptions(ctx, s, opts)
	if err != nil {
		return nil, err
	}
	c.setConsume(false)
	return result, nil
}

// RestoreSaved restores the persisted session across windows. The file is
// deleted once every expected window signals completion.
func (c *Commands) RestoreSaved(ctx context.Context, opts hotexit.RestoreOptions) (*hotexit.RestoreResult, error) {
	data, err := c.store.Read(ctx)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, ErrNoSavedSession
	}

	// Windows may complete before the coordinator returns
	prev := c.swapConsume(true)
	result, err := c.coord.RestoreMultiWindowWithOptions(ctx, data, opts)
	if err != nil {
		c.setConsume(prev)
		return nil, err
	}
	c.logger.Info("Restoring saved session",
		zap.Int("windows", len(data.Windows)),
		zap.Int64("captured_at", data.Timestamp))
	return result, nil
}

// Inspect returns the persisted session, or nil when none exists
func (c *Commands) Inspect(ctx context.Context) (*session.SessionData, error) {
	return c.store.Read(ctx)
}

// Clear discards staged restore state and deletes the persisted session
func (c *Commands) Clear(ctx context.Context) error {
	c.coord.ClearPending()
	c.setConsume(false)
	return c.store.Delete(ctx)
}

// PullWindowState returns the state staged for label, or nil
func (c *Commands) PullWindowState(label string) *session.WindowState {
	return c.coord.WindowState(label)
}

// SignalWindowComplete records that label finished restoring and reports
// whether every expected window has
func (c *Commands) SignalWindowComplete(label string) bool {
	done := c.coord.MarkWindowComplete(label)
	if !done {
		return false
	}

	c.mu.Lock()
	consume := c.consume
	c.consume = false
	c.mu.Unlock()

	if consume {
		ctx, cancel := context.WithTimeout(context.Background(), consumeTimeout)
		defer cancel()
		if err := c.store.Delete(ctx); err != nil {
			c.logger.Warn("Failed to delete restored session", zap.Error(err))
		} else {
			c.logger.Info("Saved session consumed by restore")
		}
	}
	return true
}

// Status returns the coordinator's diagnostic view
func (c *Commands) Status() hotexit.Status {
	return c.coord.Status()
}

// AwaitingConsume reports whether a saved session will be deleted when the
// current restore completes
func (c *Commands) AwaitingConsume() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.consume
}

func (c *Commands) setConsume(v bool) {
	c.mu.Lock()
	c.consume = v
	c.mu.Unlock()
}

func (c *Commands) swapConsume(v bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.consume
	c.consume = v
	return prev
}
