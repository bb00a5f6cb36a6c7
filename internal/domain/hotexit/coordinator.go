package hotexit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/hotexit/internal/domain/migration"
	"github.com/GriffinCanCode/hotexit/internal/domain/session"
	"github.com/GriffinCanCode/hotexit/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/hotexit/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/hotexit/internal/shared/id"
)

// DefaultCaptureTimeout bounds how long a capture round waits for windows
const DefaultCaptureTimeout = 5 * time.Second

// DefaultDocumentWindowPatterns match the labels of windows that hold documents
var DefaultDocumentWindowPatterns = []string{
	session.MainWindowLabel,
	session.DocumentWindowPrefix + "*",
}

// StalePolicy decides what restore does with a session older than MaxAgeDays
type StalePolicy string

const (
	// StaleReject always refuses stale sessions
	StaleReject StalePolicy = "reject"
	// StalePrompt refuses stale sessions unless the caller passes Force
	StalePrompt StalePolicy = "prompt"
	// StaleForce restores stale sessions with a warning
	StaleForce StalePolicy = "force"
)

// ParseStalePolicy validates a policy name; empty selects prompt
func ParseStalePolicy(s string) (StalePolicy, error) {
	switch StalePolicy(s) {
	case "", StalePrompt:
		return StalePrompt, nil
	case StaleReject:
		return StaleReject, nil
	case StaleForce:
		return StaleForce, nil
	default:
		return "", fmt.Errorf("unknown stale policy %q (want reject, prompt or force)", s)
	}
}

// Options configures a Coordinator. Zero fields take defaults.
type Options struct {
	CaptureTimeout         time.Duration
	MaxAgeDays             int64
	StalePolicy            StalePolicy
	AppVersion             string
	DocumentWindowPatterns []string
}

// DefaultOptions returns the production defaults
func DefaultOptions() Options {
	return Options{
		CaptureTimeout:         DefaultCaptureTimeout,
		MaxAgeDays:             session.MaxSessionAgeDays,
		StalePolicy:            StalePrompt,
		DocumentWindowPatterns: append([]string(nil), DefaultDocumentWindowPatterns...),
	}
}

// RestoreOptions adjusts a single restore call
type RestoreOptions struct {
	// Force restores a stale session under the prompt policy
	Force bool
}

// RestoreResult reports the outcome of a multi-window restore
type RestoreResult struct {
	WindowsCreated []string `json:"windows_created"`
}

// CaptureSummary describes the most recently finished capture round
type CaptureSummary struct {
	CaptureID  string    `json:"capture_id"`
	Windows    int       `json:"windows"`
	Expected   int       `json:"expected"`
	Partial    bool      `json:"partial"`
	FinishedAt time.Time `json:"finished_at"`
}

// Status is a diagnostic view of the coordinator
type Status struct {
	Capture     *RoundStatus    `json:"capture"`
	LastCapture *CaptureSummary `json:"last_capture"`
	Pending     PendingSnapshot `json:"pending"`
}

// Coordinator runs capture rounds against open windows and stages sessions
// for windows to pull on restore
type Coordinator struct {
	bus      EventBus
	windows  WindowManager
	opts     Options
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	tracer   *tracing.Tracer
	migrator *migration.Engine
	pending  *PendingRestore
	now      func() time.Time

	// captureMu serialises capture rounds
	captureMu sync.Mutex

	mu    sync.Mutex
	round *captureRound   // Protected by mu
	last  *CaptureSummary // Protected by mu
}

// NewCoordinator creates a coordinator over the given event bus and window registry
func NewCoordinator(bus EventBus, windows WindowManager, opts Options, logger *zap.Logger) (*Coordinator, error) {
	if bus == nil {
		return nil, errors.New("event bus is required")
	}
	if windows == nil {
		return nil, errors.New("window manager is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	defaults := DefaultOptions()
	if opts.CaptureTimeout < 0 {
		return nil, fmt.Errorf("capture timeout must be positive, got %s", opts.CaptureTimeout)
	}
	if opts.CaptureTimeout == 0 {
		opts.CaptureTimeout = defaults.CaptureTimeout
	}
	if opts.MaxAgeDays == 0 {
		opts.MaxAgeDays = defaults.MaxAgeDays
	}
	policy, err := ParseStalePolicy(string(opts.StalePolicy))
	if err != nil {
		return nil, err
	}
	opts.StalePolicy = policy
	if len(opts.DocumentWindowPatterns) == 0 {
		opts.DocumentWindowPatterns = defaults.DocumentWindowPatterns
	}
	for _, pattern := range opts.DocumentWindowPatterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid document window pattern %q", pattern)
		}
	}

	logger = logger.Named("hotexit")
	return &Coordinator{
		bus:      bus,
		windows:  windows,
		opts:     opts,
		logger:   logger,
		migrator: migration.Default(),
		pending:  NewPendingRestore(logger),
		now:      time.Now,
	}, nil
}

// WithMetrics adds metrics tracking to the coordinator
func (c *Coordinator) WithMetrics(metrics *monitoring.Metrics) *Coordinator {
	c.metrics = metrics
	return c
}

// WithTracer adds spans around capture and restore
func (c *Coordinator) WithTracer(tracer *tracing.Tracer) *Coordinator {
	c.tracer = tracer
	return c
}

// WithMigrator replaces the built-in migration engine
func (c *Coordinator) WithMigrator(engine *migration.Engine) *Coordinator {
	c.migrator = engine
	return c
}

// Options returns the effective configuration
func (c *Coordinator) Options() Options {
	return c.opts
}

// IsDocumentWindow reports whether label matches a document window pattern
func (c *Coordinator) IsDocumentWindow(label string) bool {
	for _, pattern := range c.opts.DocumentWindowPatterns {
		if ok, _ := doublestar.Match(pattern, label); ok {
			return true
		}
	}
	return false
}

// documentWindows lists open document windows, skipping auxiliary ones
func (c *Coordinator) documentWindows() []string {
	var labels []string
	for _, label := range c.windows.Labels() {
		if c.IsDocumentWindow(label) {
			labels = append(labels, label)
		}
	}
	sort.Strings(labels)
	return labels
}

// ============================================================================
// Capture
// ============================================================================

// Capture asks every document window for its state and assembles a session.
//
// Rounds are serialised: a second call waits for the first to finish. When the
// timeout passes, whatever arrived is returned; with nothing at all the result
// is ErrCaptureTimeout.
func (c *Coordinator) Capture(ctx context.Context) (result *session.SessionData, err error) {
	c.captureMu.Lock()
	defer c.captureMu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	labels := c.documentWindows()
	if len(labels) == 0 {
		c.recordCapture("no_windows", 0, start)
		return nil, ErrNoWindows
	}

	captureID := id.NewCaptureID().String()
	logger := c.logger.With(zap.String("capture_id", captureID))

	span, ctx := c.startSpan(ctx, "hotexit.capture")
	if span != nil {
		span.SetTag("capture_id", captureID)
		defer func() { c.tracer.End(span, err) }()
	}

	sub, err := c.bus.Subscribe(TopicCaptureResponse)
	if err != nil {
		c.recordCapture("error", 0, start)
		return nil, fmt.Errorf("subscribe to capture responses: %w", err)
	}
	defer sub.Close()

	round := newCaptureRound(captureID, labels, c.now())
	c.setRound(round)
	defer c.setRound(nil)

	if err := c.bus.Broadcast(ctx, TopicCaptureRequest, CaptureRequest{CaptureID: captureID}); err != nil {
		c.recordCapture("error", 0, start)
		return nil, fmt.Errorf("broadcast capture request: %w", err)
	}
	logger.Debug("Capture requested", zap.Strings("windows", labels))

	timer := time.NewTimer(c.opts.CaptureTimeout)
	defer timer.Stop()

	timedOut := false
	messages := sub.Messages()
wait:
	for !c.roundComplete(round) {
		select {
		case msg, ok := <-messages:
			if !ok {
				logger.Warn("Capture subscription closed before all windows responded")
				timedOut = true
				break wait
			}
			c.handleResponse(logger, round, msg)
		case <-timer.C:
			timedOut = true
			break wait
		case <-ctx.Done():
			c.recordCapture("cancelled", 0, start)
			return nil, ctx.Err()
		}
	}

	c.mu.Lock()
	windows := round.windows()
	missing := round.missing()
	c.mu.Unlock()

	if timedOut {
		logger.Warn("Capture timed out",
			zap.Int("received", len(windows)),
			zap.Int("expected", len(labels)),
			zap.Strings("missing", missing))

		notice := CaptureTimeout{
			CaptureID: captureID,
			Received:  len(windows),
			Expected:  len(labels),
			Missing:   missing,
		}
		if err := c.bus.Broadcast(ctx, TopicCaptureTimeout, notice); err != nil {
			logger.Warn("Failed to broadcast capture timeout", zap.Error(err))
		}

		if len(windows) == 0 {
			c.recordCapture("timeout", 0, start)
			return nil, fmt.Errorf("%w (capture %s, %d expected)", ErrCaptureTimeout, captureID, len(labels))
		}
	}

	result = &session.SessionData{
		Version:    session.SchemaVersion,
		Timestamp:  c.now().Unix(),
		AppVersion: c.opts.AppVersion,
		Windows:    windows,
	}

	outcome := "complete"
	if timedOut {
		outcome = "partial"
	}
	c.recordCapture(outcome, len(windows), start)

	c.mu.Lock()
	c.last = &CaptureSummary{
		CaptureID:  captureID,
		Windows:    len(windows),
		Expected:   len(labels),
		Partial:    timedOut,
		FinishedAt: c.now(),
	}
	c.mu.Unlock()

	logger.Info("Session captured",
		zap.Int("windows", len(windows)),
		zap.Bool("partial", timedOut),
		zap.Duration("elapsed", time.Since(start)))
	return result, nil
}

func (c *Coordinator) handleResponse(logger *zap.Logger, round *captureRound, msg Message) {
	c.mu.Lock()
	v, resp := round.accept(msg)
	relabeledFrom, relabeled := "", false
	if v == verdictAccepted {
		relabeledFrom, relabeled = round.relabeled[resp.WindowLabel]
	}
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordCaptureResponse(string(v))
	}

	switch v {
	case verdictAccepted:
		if relabeled {
			logger.Warn("Normalized mismatched window label",
				zap.String("window_label", resp.WindowLabel),
				zap.String("reported_label", relabeledFrom))
		}
	case verdictMalformed:
		logger.Warn("Dropping malformed capture response",
			zap.String("source", msg.Source),
			zap.Int("bytes", len(msg.Payload)))
	default:
		logger.Debug("Dropping capture response",
			zap.String("verdict", string(v)),
			zap.String("window_label", resp.WindowLabel),
			zap.String("response_capture_id", resp.CaptureID),
			zap.String("source", msg.Source))
	}
}

func (c *Coordinator) roundComplete(round *captureRound) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return round.complete()
}

func (c *Coordinator) setRound(round *captureRound) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.round = round
}

func (c *Coordinator) recordCapture(outcome string, windows int, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordCapture(outcome, windows, time.Since(start))
	}
}

// ============================================================================
// Restore
// ============================================================================

// Restore stages the session's main window state for an existing window and
// signals it to pull
func (c *Coordinator) Restore(ctx context.Context, s *session.SessionData) error {
	return c.RestoreWithOptions(ctx, s, RestoreOptions{})
}

// RestoreWithOptions is Restore with per-call options
func (c *Coordinator) RestoreWithOptions(ctx context.Context, s *session.SessionData, opts RestoreOptions) (err error) {
	span, ctx := c.startSpan(ctx, "hotexit.restore")
	defer func() {
		c.recordRestore("single", err)
		if span != nil {
			c.tracer.End(span, err)
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}

	prepared, err := c.prepare(s, opts)
	if err != nil {
		return err
	}

	target, err := c.resolveTarget()
	if err != nil {
		return err
	}

	idx := prepared.MainWindowState()
	if idx < 0 {
		return ErrNoWindowState
	}
	state := prepared.Windows[idx].Clone()
	state.WindowLabel = target

	c.pending.Stage(map[string]session.WindowState{target: state}, []string{target})
	c.publishPending()

	if err := c.bus.EmitTo(ctx, target, TopicRestoreStart, nil); err != nil {
		return fmt.Errorf("emit restore start to %s: %w", target, err)
	}

	c.logger.Info("Restore staged",
		zap.String("window_label", target),
		zap.Int("tabs", len(state.Tabs)),
		zap.Int("version", prepared.Version))
	return nil
}

// RestoreMultiWindow recreates every window of the session: the main state
// goes to the existing main window and each other state gets a new window
func (c *Coordinator) RestoreMultiWindow(ctx context.Context, s *session.SessionData) (*RestoreResult, error) {
	return c.RestoreMultiWindowWithOptions(ctx, s, RestoreOptions{})
}

// RestoreMultiWindowWithOptions is RestoreMultiWindow with per-call options.
//
// All states are staged before any new window is opened, so a window that
// pulls immediately on startup always finds its state. Windows that fail to
// open are dropped from the expected set.
func (c *Coordinator) RestoreMultiWindowWithOptions(ctx context.Context, s *session.SessionData, opts RestoreOptions) (result *RestoreResult, err error) {
	span, ctx := c.startSpan(ctx, "hotexit.restore_multi_window")
	defer func() {
		c.recordRestore("multi", err)
		if span != nil {
			c.tracer.End(span, err)
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prepared, err := c.prepare(s, opts)
	if err != nil {
		return nil, err
	}

	if !c.windows.Exists(session.MainWindowLabel) {
		return nil, fmt.Errorf("%w: %s", ErrWindowNotFound, session.MainWindowLabel)
	}

	states := make(map[string]session.WindowState, len(prepared.Windows))
	expected := []string{session.MainWindowLabel}

	mainIdx := prepared.MainWindowState()
	if mainIdx >= 0 {
		mainState := prepared.Windows[mainIdx].Clone()
		mainState.WindowLabel = session.MainWindowLabel
		mainState.IsMainWindow = true
		states[session.MainWindowLabel] = mainState
	} else {
		c.logger.Warn("No main window state in session, main will restore empty")
	}

	var reserved []string
	for i, w := range prepared.Windows {
		if i == mainIdx {
			continue
		}
		label, err := c.windows.ReserveDocumentWindow()
		if err != nil {
			c.logger.Warn("Failed to reserve window",
				zap.String("saved_label", w.WindowLabel),
				zap.Error(err))
			continue
		}
		state := w.Clone()
		state.WindowLabel = label
		state.IsMainWindow = false
		states[label] = state
		expected = append(expected, label)
		reserved = append(reserved, label)
	}

	// Stage before opening
	c.pending.Stage(states, expected)

	created := make([]string, 0, len(reserved))
	for _, label := range reserved {
		if err := c.windows.OpenDocumentWindow(ctx, label); err != nil {
			c.logger.Warn("Failed to open window, dropping it from restore",
				zap.String("window_label", label),
				zap.Error(err))
			c.pending.Drop(label)
			c.windows.ReleaseDocumentWindow(label)
			continue
		}
		created = append(created, label)
	}
	c.publishPending()
	if c.metrics != nil {
		c.metrics.AddWindowsCreated(len(created))
	}

	if err := c.bus.EmitTo(ctx, session.MainWindowLabel, TopicRestoreStart, nil); err != nil {
		return nil, fmt.Errorf("emit restore start to %s: %w", session.MainWindowLabel, err)
	}

	c.logger.Info("Multi-window restore staged",
		zap.Int("windows", len(prepared.Windows)),
		zap.Strings("created", created),
		zap.Int("failed", len(reserved)-len(created)),
		zap.Int("version", prepared.Version))
	return &RestoreResult{WindowsCreated: created}, nil
}

// prepare migrates s to the current schema and applies the stale policy
func (c *Coordinator) prepare(s *session.SessionData, opts RestoreOptions) (*session.SessionData, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil session", ErrNoWindowState)
	}

	if c.migrator.NeedsMigration(s) {
		c.logger.Info("Migrating session",
			zap.Int("from_version", s.Version),
			zap.Int("to_version", c.migrator.Target()))
	}
	migrated, err := c.migrator.Migrate(s)
	if err != nil {
		return nil, err
	}

	now := c.now()
	if !migrated.IsStaleAt(now, c.opts.MaxAgeDays) {
		return migrated, nil
	}

	age := migrated.Age(now).Round(time.Second)
	switch {
	case c.opts.StalePolicy == StaleForce,
		c.opts.StalePolicy == StalePrompt && opts.Force:
		c.logger.Warn("Restoring stale session",
			zap.Duration("age", age),
			zap.Int64("max_age_days", c.opts.MaxAgeDays))
		return migrated, nil
	default:
		return nil, fmt.Errorf("%w: captured %s ago, limit %d days", ErrStaleSession, age, c.opts.MaxAgeDays)
	}
}

// resolveTarget picks main, or else the first document window by label
func (c *Coordinator) resolveTarget() (string, error) {
	if c.windows.Exists(session.MainWindowLabel) {
		return session.MainWindowLabel, nil
	}
	labels := c.windows.Labels()
	sort.Strings(labels)
	for _, label := range labels {
		if strings.HasPrefix(label, session.DocumentWindowPrefix) {
			return label, nil
		}
	}
	return "", fmt.Errorf("%w: no document window open", ErrWindowNotFound)
}

func (c *Coordinator) recordRestore(mode string, err error) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordRestore(mode, restoreOutcome(err))
}

func restoreOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrStaleSession):
		return "stale"
	case errors.Is(err, migration.ErrIncompatibleVersion), errors.Is(err, migration.ErrMigrationGap):
		return "incompatible"
	case errors.Is(err, ErrWindowNotFound):
		return "window_not_found"
	case errors.Is(err, ErrNoWindowState):
		return "no_window_state"
	default:
		return "error"
	}
}

// ============================================================================
// Pull-based handoff
// ============================================================================

// WindowState returns the state staged for label, or nil when none is staged
func (c *Coordinator) WindowState(label string) *session.WindowState {
	state, ok := c.pending.Take(label)
	if !ok {
		return nil
	}
	return &state
}

// MarkWindowComplete records that label finished restoring and reports
// whether every expected window has
func (c *Coordinator) MarkWindowComplete(label string) bool {
	done := c.pending.MarkComplete(label)
	c.publishPending()
	if done {
		c.logger.Info("All windows restored", zap.String("last_window", label))
	}
	return done
}

// ClearPending discards all staged restore state
func (c *Coordinator) ClearPending() {
	c.pending.Clear()
	c.publishPending()
}

// Status returns the in-flight round, the last finished round and the staging area
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	var st Status
	if c.round != nil {
		rs := c.round.status()
		st.Capture = &rs
	}
	if c.last != nil {
		last := *c.last
		st.LastCapture = &last
	}
	c.mu.Unlock()

	st.Pending = c.pending.Snapshot()
	return st
}

func (c *Coordinator) publishPending() {
	if c.metrics != nil {
		c.metrics.SetPendingWindows(c.pending.Remaining())
	}
}

func (c *Coordinator) startSpan(ctx context.Context, name string) (*tracing.Span, context.Context) {
	if c.tracer == nil {
		return nil, ctx
	}
	return c.tracer.StartSpan(ctx, name)
}
