package hotexit

import (
	"sort"
	"time"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/hotexit/internal/domain/session"
)

// verdict classifies an incoming capture response
type verdict string

const (
	verdictAccepted   verdict = "accepted"
	verdictStale      verdict = "stale"
	verdictUnexpected verdict = "unexpected"
	verdictDuplicate  verdict = "duplicate"
	verdictMalformed  verdict = "malformed"
)

// captureRound is the bookkeeping for one in-flight capture
type captureRound struct {
	id        string
	startedAt time.Time
	expected  map[string]struct{}
	responses map[string]session.WindowState
	// relabeled maps a sender to the label it reported when the two disagreed
	relabeled map[string]string
}

// RoundStatus describes the in-flight capture round
type RoundStatus struct {
	CaptureID string    `json:"capture_id"`
	StartedAt time.Time `json:"started_at"`
	Expected  []string  `json:"expected"`
	Responded []string  `json:"responded"`
}

func newCaptureRound(captureID string, labels []string, now time.Time) *captureRound {
	expected := make(map[string]struct{}, len(labels))
	for _, label := range labels {
		expected[label] = struct{}{}
	}
	return &captureRound{
		id:        captureID,
		startedAt: now,
		expected:  expected,
		responses: make(map[string]session.WindowState, len(labels)),
		relabeled: make(map[string]string),
	}
}

// accept validates msg and records its window state when it belongs to this round
func (r *captureRound) accept(msg Message) (verdict, *CaptureResponse) {
	var resp CaptureResponse
	if err := sonic.ConfigStd.Unmarshal(msg.Payload, &resp); err != nil {
		return verdictMalformed, nil
	}
	if resp.CaptureID != r.id {
		return verdictStale, &resp
	}
	// The sender wins over the self-reported label when the transport knows it
	key := resp.WindowLabel
	if msg.Source != "" {
		key = msg.Source
	}
	if _, ok := r.expected[key]; !ok {
		return verdictUnexpected, &resp
	}
	if _, ok := r.responses[key]; ok {
		return verdictDuplicate, &resp
	}

	state := resp.State
	switch {
	case resp.WindowLabel != key:
		r.relabeled[key] = resp.WindowLabel
	case state.WindowLabel != key:
		r.relabeled[key] = state.WindowLabel
	}
	resp.WindowLabel = key
	state.WindowLabel = key
	resp.State = state
	r.responses[key] = state
	return verdictAccepted, &resp
}

func (r *captureRound) complete() bool {
	return len(r.responses) >= len(r.expected)
}

// windows returns the collected states ordered main first, then by label
func (r *captureRound) windows() []session.WindowState {
	out := make([]session.WindowState, 0, len(r.responses))
	for _, state := range r.responses {
		out = append(out, state)
	}
	session.SortWindows(out)
	return out
}

func (r *captureRound) missing() []string {
	var out []string
	for label := range r.expected {
		if _, ok := r.responses[label]; !ok {
			out = append(out, label)
		}
	}
	sort.Strings(out)
	return out
}

func (r *captureRound) status() RoundStatus {
	return RoundStatus{
		CaptureID: r.id,
		StartedAt: r.startedAt,
		Expected:  sortedKeys(r.expected),
		Responded: sortedKeys(r.responses),
	}
}
