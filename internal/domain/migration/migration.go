package migration

import (
	"errors"
	"fmt"

	"github.com/GriffinCanCode/hotexit/internal/domain/session"
)

const (
	// MinSupportedVersion is the oldest schema the engine can upgrade
	MinSupportedVersion = 1

	// CurrentVersion is the schema every migration targets
	CurrentVersion = session.SchemaVersion
)

var (
	ErrIncompatibleVersion = errors.New("incompatible session version")
	ErrMigrationGap        = errors.New("no migration path")
)

// Step upgrades a session from version N to N+1. The input is already a private copy.
type Step func(s *session.SessionData) (*session.SessionData, error)

// Engine applies registered steps until a session reaches the target version
type Engine struct {
	minVersion int
	target     int
	steps      map[int]Step
}

// NewEngine creates an engine with the given version window and steps keyed by source version
func NewEngine(minVersion, target int, steps map[int]Step) *Engine {
	copied := make(map[int]Step, len(steps))
	for v, step := range steps {
		copied[v] = step
	}
	return &Engine{minVersion: minVersion, target: target, steps: copied}
}

var defaultEngine = NewEngine(MinSupportedVersion, CurrentVersion, map[int]Step{
	1: v1ToV2,
})

// Default returns the engine holding the built-in steps
func Default() *Engine {
	return defaultEngine
}

// Target returns the version sessions are migrated to
func (e *Engine) Target() int {
	return e.target
}

// CanMigrate reports whether a session at version v can be brought to the target
func (e *Engine) CanMigrate(v int) bool {
	return v >= e.minVersion && v <= e.target
}

// NeedsMigration reports whether the session is older than the target
func (e *Engine) NeedsMigration(s *session.SessionData) bool {
	return s.Version < e.target
}

// Migrate returns the session at the target version.
// The input is never modified; a session already at target is returned as-is.
func (e *Engine) Migrate(s *session.SessionData) (*session.SessionData, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil session", ErrIncompatibleVersion)
	}
	if !e.CanMigrate(s.Version) {
		return nil, fmt.Errorf("%w: cannot migrate from version %d to %d (supported %d to %d)",
			ErrIncompatibleVersion, s.Version, e.target, e.minVersion, e.target)
	}
	if s.Version == e.target {
		return s, nil
	}

	current := s.Clone()
	for current.Version < e.target {
		from := current.Version
		step, ok := e.steps[from]
		if !ok {
			return nil, fmt.Errorf("%w: from version %d", ErrMigrationGap, from)
		}

		next, err := step(current)
		if err != nil {
			return nil, fmt.Errorf("migrate v%d to v%d: %w", from, from+1, err)
		}
		if next == nil || next.Version != from+1 {
			return nil, fmt.Errorf("%w: step from version %d did not advance", ErrMigrationGap, from)
		}
		current = next
	}

	return current, nil
}

// CanMigrate reports whether the built-in steps can upgrade version v
func CanMigrate(v int) bool {
	return defaultEngine.CanMigrate(v)
}

// NeedsMigration reports whether s is older than CurrentVersion
func NeedsMigration(s *session.SessionData) bool {
	return defaultEngine.NeedsMigration(s)
}

// Migrate upgrades s to CurrentVersion using the built-in steps
func Migrate(s *session.SessionData) (*session.SessionData, error) {
	return defaultEngine.Migrate(s)
}
