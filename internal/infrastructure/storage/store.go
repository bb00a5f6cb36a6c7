package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/hotexit/internal/domain/session"
	"github.com/GriffinCanCode/hotexit/internal/infrastructure/monitoring"
)

const (
	// SessionFile is the current session under the data directory
	SessionFile = "session.json"
	// BackupFile holds the session that SessionFile replaced
	BackupFile = "session.prev.json"

	filePerm = 0o600
	dirPerm  = 0o700
)

// ErrCorruptSession is returned when a session file exists but cannot be decoded
var ErrCorruptSession = errors.New("corrupt session file")

// BackupPolicy controls what happens when the previous session cannot be backed up
type BackupPolicy string

const (
	// BackupBestEffort logs the failure and continues with the write
	BackupBestEffort BackupPolicy = "best_effort"
	// BackupStrict aborts the write, leaving session.json untouched
	BackupStrict BackupPolicy = "strict"
)

// ParseBackupPolicy validates a policy name; empty selects best effort
func ParseBackupPolicy(s string) (BackupPolicy, error) {
	switch BackupPolicy(s) {
	case "", BackupBestEffort:
		return BackupBestEffort, nil
	case BackupStrict:
		return BackupStrict, nil
	default:
		return "", fmt.Errorf("unknown backup policy %q (want %s or %s)", s, BackupBestEffort, BackupStrict)
	}
}

// Store reads and writes the session file under a data directory
type Store struct {
	dir     string
	policy  BackupPolicy
	logger  *zap.Logger
	metrics *monitoring.Metrics

	mu sync.Mutex
}

// NewStore creates the data directory if needed and returns a store rooted there
func NewStore(dir string, policy BackupPolicy, logger *zap.Logger) (*Store, error) {
	if dir == "" {
		return nil, errors.New("data directory is required")
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if policy == "" {
		policy = BackupBestEffort
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		dir:    dir,
		policy: policy,
		logger: logger.Named("storage"),
	}, nil
}

// WithMetrics adds metrics tracking to the store
func (s *Store) WithMetrics(metrics *monitoring.Metrics) *Store {
	s.metrics = metrics
	return s
}

// Path returns the location of session.json
func (s *Store) Path() string {
	return filepath.Join(s.dir, SessionFile)
}

// BackupPath returns the location of session.prev.json
func (s *Store) BackupPath() string {
	return filepath.Join(s.dir, BackupFile)
}

// Write atomically replaces session.json with the encoded session
func (s *Store) Write(ctx context.Context, data *session.SessionData) (err error) {
	if data == nil {
		return errors.New("nil session")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	timer := monitoring.NewTimer(s.metrics, "write")
	defer func() {
		if err != nil {
			timer.Stop("error")
		} else {
			timer.Stop("success")
		}
	}()

	payload, err := sonic.ConfigStd.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if err := tmp.Chmod(filePerm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := s.backup(); err != nil {
		if s.policy == BackupStrict {
			return fmt.Errorf("backup previous session: %w", err)
		}
		s.logger.Warn("Failed to back up previous session, continuing",
			zap.String("backup_path", s.BackupPath()),
			zap.Error(err))
	}

	if err := os.Rename(tmpName, s.Path()); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	committed = true

	if err := syncDir(s.dir); err != nil {
		s.logger.Debug("Directory sync skipped", zap.Error(err))
	}

	if s.metrics != nil {
		s.metrics.SetSessionBytes(len(payload))
	}
	s.logger.Debug("Session written",
		zap.String("path", s.Path()),
		zap.Int("bytes", len(payload)),
		zap.Int("windows", len(data.Windows)),
		zap.Int("version", data.Version))
	return nil
}

// backup copies the current session.json to session.prev.json if it exists
func (s *Store) backup() error {
	src, err := os.Open(s.Path())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		s.countBackupFailure()
		return err
	}
	defer src.Close()

	if err := copyToFile(src, s.BackupPath()); err != nil {
		s.countBackupFailure()
		return err
	}
	return nil
}

func (s *Store) countBackupFailure() {
	if s.metrics != nil {
		s.metrics.IncBackupFailures()
	}
}

// Read loads session.json. A missing file yields (nil, nil).
func (s *Store) Read(ctx context.Context) (*session.SessionData, error) {
	return s.readFile(ctx, "read", s.Path())
}

// ReadBackup loads session.prev.json with the same semantics as Read
func (s *Store) ReadBackup(ctx context.Context) (*session.SessionData, error) {
	return s.readFile(ctx, "read_backup", s.BackupPath())
}

func (s *Store) readFile(ctx context.Context, op, path string) (*session.SessionData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timer := monitoring.NewTimer(s.metrics, op)
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		timer.Stop("absent")
		return nil, nil
	}
	if err != nil {
		timer.Stop("error")
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}

	var decoded session.SessionData
	if err := sonic.ConfigStd.Unmarshal(raw, &decoded); err != nil {
		timer.Stop("corrupt")
		s.logger.Warn("Session file could not be decoded",
			zap.String("path", path),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptSession, filepath.Base(path), err)
	}

	timer.Stop("success")
	return &decoded, nil
}

// Delete removes session.json. Deleting an absent file is not an error.
func (s *Store) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	timer := monitoring.NewTimer(s.metrics, "delete")
	if err := os.Remove(s.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		timer.Stop("error")
		return fmt.Errorf("delete session file: %w", err)
	}
	timer.Stop("success")

	s.logger.Debug("Session deleted", zap.String("path", s.Path()))
	return nil
}

func copyToFile(src io.Reader, dst string) error {
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePerm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func syncDir(dirPath string) error {
	dir, err := os.Open(dirPath)
	if err != nil {
		return fmt.Errorf("open dir for sync: %w", err)
	}
	defer dir.Close()

	if err := dir.Sync(); err != nil {
		return fmt.Errorf("sync dir: %w", err)
	}
	return nil
}
