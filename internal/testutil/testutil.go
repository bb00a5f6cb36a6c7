// Package testutil provides fakes shared by package tests: an in-memory event
// bus, a testify mock of the window manager and session builders.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/mock"

	"github.com/GriffinCanCode/hotexit/internal/domain/hotexit"
	"github.com/GriffinCanCode/hotexit/internal/domain/session"
)

// ============================================================================
// In-memory event bus
// ============================================================================

// Event is one message the bus sent towards windows
type Event struct {
	Target  string // empty for broadcasts
	Topic   string
	Payload []byte
}

// MemoryBus is an in-process hotexit.EventBus
type MemoryBus struct {
	mu   sync.Mutex
	subs map[string]map[*memorySub]struct{}
	sent []Event

	// OnBroadcast runs synchronously for every successful broadcast
	OnBroadcast func(topic string, payload []byte)
	// OnEmit runs synchronously for every successful targeted emit
	OnEmit func(label, topic string)

	BroadcastErr error
	EmitErr      error
	SubscribeErr error
}

// NewMemoryBus creates an empty bus
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string]map[*memorySub]struct{})}
}

// Broadcast records the event and invokes OnBroadcast
func (b *MemoryBus) Broadcast(_ context.Context, topic string, payload any) error {
	if b.BroadcastErr != nil {
		return b.BroadcastErr
	}
	data, err := sonic.ConfigStd.Marshal(payload)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.sent = append(b.sent, Event{Topic: topic, Payload: data})
	hook := b.OnBroadcast
	b.mu.Unlock()

	if hook != nil {
		hook(topic, data)
	}
	return nil
}

// EmitTo records a targeted event and invokes OnEmit
func (b *MemoryBus) EmitTo(_ context.Context, label, topic string, payload any) error {
	if b.EmitErr != nil {
		return b.EmitErr
	}
	data, err := sonic.ConfigStd.Marshal(payload)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.sent = append(b.sent, Event{Target: label, Topic: topic, Payload: data})
	hook := b.OnEmit
	b.mu.Unlock()

	if hook != nil {
		hook(label, topic)
	}
	return nil
}

// Subscribe registers a buffered subscription for topic
func (b *MemoryBus) Subscribe(topic string) (hotexit.Subscription, error) {
	if b.SubscribeErr != nil {
		return nil, b.SubscribeErr
	}

	sub := &memorySub{bus: b, topic: topic, ch: make(chan hotexit.Message, 256)}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[*memorySub]struct{})
	}
	b.subs[topic][sub] = struct{}{}
	return sub, nil
}

// Publish delivers a window-originated message to subscribers of topic
func (b *MemoryBus) Publish(source, topic string, payload any) {
	data, ok := payload.([]byte)
	if !ok {
		var err error
		data, err = sonic.ConfigStd.Marshal(payload)
		if err != nil {
			panic(fmt.Sprintf("testutil: marshal payload: %v", err))
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs[topic] {
		select {
		case sub.ch <- hotexit.Message{Topic: topic, Source: source, Payload: data}:
		default:
		}
	}
}

// Subscribers returns the number of open subscriptions on topic
func (b *MemoryBus) Subscribers(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic])
}

// Sent returns every recorded outgoing event
func (b *MemoryBus) Sent() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Event(nil), b.sent...)
}

// SentOn returns recorded events for topic
func (b *MemoryBus) SentOn(topic string) []Event {
	var out []Event
	for _, e := range b.Sent() {
		if e.Topic == topic {
			out = append(out, e)
		}
	}
	return out
}

type memorySub struct {
	bus   *MemoryBus
	topic string
	ch    chan hotexit.Message
	once  sync.Once
}

func (s *memorySub) Messages() <-chan hotexit.Message { return s.ch }

func (s *memorySub) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		delete(s.bus.subs[s.topic], s)
		close(s.ch)
	})
}

// CaptureIDFrom decodes the capture id out of a capture-request payload
func CaptureIDFrom(t *testing.T, payload []byte) string {
	t.Helper()
	var req hotexit.CaptureRequest
	if err := sonic.ConfigStd.Unmarshal(payload, &req); err != nil {
		t.Fatalf("decode capture request: %v", err)
	}
	return req.CaptureID
}

// Respond publishes a capture response from label
func Respond(bus *MemoryBus, captureID, label string, state session.WindowState) {
	bus.Publish(label, hotexit.TopicCaptureResponse, hotexit.CaptureResponse{
		CaptureID:   captureID,
		WindowLabel: label,
		State:       state,
	})
}

// ============================================================================
// Window manager mock
// ============================================================================

// MockWindowManager is a testify mock of hotexit.WindowManager
type MockWindowManager struct {
	mock.Mock
}

// Labels mocks the Labels method.
func (m *MockWindowManager) Labels() []string {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]string)
}

// Exists mocks the Exists method.
func (m *MockWindowManager) Exists(label string) bool {
	args := m.Called(label)
	if fn, ok := args.Get(0).(func(string) bool); ok {
		return fn(label)
	}
	return args.Bool(0)
}

// ReserveDocumentWindow mocks the ReserveDocumentWindow method.
func (m *MockWindowManager) ReserveDocumentWindow() (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

// OpenDocumentWindow mocks the OpenDocumentWindow method.
func (m *MockWindowManager) OpenDocumentWindow(ctx context.Context, label string) error {
	args := m.Called(ctx, label)
	return args.Error(0)
}

// ReleaseDocumentWindow mocks the ReleaseDocumentWindow method.
func (m *MockWindowManager) ReleaseDocumentWindow(label string) {
	m.Called(label)
}

// NewMockWindowManager creates a mock whose Labels and Exists reflect the given open windows
func NewMockWindowManager(t *testing.T, open ...string) *MockWindowManager {
	t.Helper()
	m := new(MockWindowManager)

	m.On("Labels").Return(append([]string(nil), open...)).Maybe()
	set := make(map[string]bool, len(open))
	for _, label := range open {
		set[label] = true
	}
	m.On("Exists", mock.AnythingOfType("string")).Return(func(label string) bool {
		return set[label]
	}).Maybe()

	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// ============================================================================
// Session builders
// ============================================================================

// WindowState builds a window with one dirty tab whose content is content
func WindowState(label string, isMain bool, content string) session.WindowState {
	tabID := label + "-tab"
	return session.WindowState{
		WindowLabel:  label,
		IsMainWindow: isMain,
		ActiveTabID:  &tabID,
		Tabs: []session.TabState{{
			ID:    tabID,
			Title: "Untitled",
			Document: session.DocumentState{
				Content:     content,
				IsDirty:     true,
				LineEnding:  "\n",
				IsUntitled:  true,
				UndoHistory: []session.HistoryCheckpoint{},
				RedoHistory: []session.HistoryCheckpoint{},
			},
		}},
		UIState: session.UIState{SidebarVisible: true, SidebarWidth: 240, StatusBarVisible: true},
	}
}

// Session builds a current-version session captured at ts with the given windows
func Session(ts time.Time, windows ...session.WindowState) *session.SessionData {
	return &session.SessionData{
		Version:    session.SchemaVersion,
		Timestamp:  ts.Unix(),
		AppVersion: "test",
		Windows:    windows,
	}
}
