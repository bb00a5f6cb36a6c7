package hotexit

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/hotexit/internal/domain/session"
)

// PendingRestore holds window states staged for pull-based restore.
// Windows read their state with Take and report with MarkComplete.
type PendingRestore struct {
	mu        sync.Mutex
	states    map[string]session.WindowState // Protected by mu
	expected  map[string]struct{}            // Protected by mu
	completed map[string]struct{}            // Protected by mu
	logger    *zap.Logger
}

// PendingSnapshot is a point-in-time view of the staging area
type PendingSnapshot struct {
	Staged      []string `json:"staged"`
	Expected    []string `json:"expected"`
	Completed   []string `json:"completed"`
	AllComplete bool     `json:"all_complete"`
}

// NewPendingRestore creates an empty staging area
func NewPendingRestore(logger *zap.Logger) *PendingRestore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PendingRestore{
		states:    make(map[string]session.WindowState),
		expected:  make(map[string]struct{}),
		completed: make(map[string]struct{}),
		logger:    logger,
	}
}

// Stage replaces everything staged so far with states and the expected label set
func (p *PendingRestore) Stage(states map[string]session.WindowState, expected []string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.reset()
	for label, state := range states {
		p.states[label] = state.Clone()
	}
	for _, label := range expected {
		p.expected[label] = struct{}{}
	}
}

// Take returns a copy of the state staged for label. The entry stays staged,
// so a window that reloads can pull again.
func (p *PendingRestore) Take(label string) (session.WindowState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, ok := p.states[label]
	if !ok {
		return session.WindowState{}, false
	}
	return state.Clone(), true
}

// MarkComplete records that label finished restoring and reports whether every
// expected window has. Labels outside the expected set are ignored.
func (p *PendingRestore) MarkComplete(label string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.expected[label]; ok {
		p.completed[label] = struct{}{}
	} else {
		p.logger.Warn("Ignoring completion from unexpected window",
			zap.String("window_label", label))
	}
	return p.allComplete()
}

// Drop removes label from the staged and expected sets
func (p *PendingRestore) Drop(label string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.states, label)
	delete(p.expected, label)
	delete(p.completed, label)
}

// Clear discards all staged state
func (p *PendingRestore) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.reset()
}

// Remaining returns how many expected windows have not completed
func (p *PendingRestore) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.expected) - len(p.completed)
}

// Snapshot returns sorted label lists for diagnostics
func (p *PendingRestore) Snapshot() PendingSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	return PendingSnapshot{
		Staged:      sortedKeys(p.states),
		Expected:    sortedKeys(p.expected),
		Completed:   sortedKeys(p.completed),
		AllComplete: p.allComplete(),
	}
}

// allComplete must be called with mu held
func (p *PendingRestore) allComplete() bool {
	if len(p.expected) == 0 {
		return false
	}
	for label := range p.expected {
		if _, ok := p.completed[label]; !ok {
			return false
		}
	}
	return true
}

// reset must be called with mu held
func (p *PendingRestore) reset() {
	p.states = make(map[string]session.WindowState)
	p.expected = make(map[string]struct{})
	p.completed = make(map[string]struct{})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
