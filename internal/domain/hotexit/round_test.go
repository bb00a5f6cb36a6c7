package hotexit

import (
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/hotexit/internal/domain/session"
)

func responseMsg(t *testing.T, source, captureID, label string, state session.WindowState) Message {
	t.Helper()
	data, err := sonic.ConfigStd.Marshal(CaptureResponse{CaptureID: captureID, WindowLabel: label, State: state})
	require.NoError(t, err)
	return Message{Topic: TopicCaptureResponse, Source: source, Payload: data}
}

func TestRoundAccept(t *testing.T) {
	r := newCaptureRound("cap_1", []string{"main", "doc-0"}, time.Unix(100, 0))

	tests := []struct {
		name string
		msg  Message
		want verdict
	}{
		{"malformed", Message{Payload: []byte("nope")}, verdictMalformed},
		{"other round", responseMsg(t, "main", "cap_0", "main", windowState("main", "x")), verdictStale},
		{"not expected", responseMsg(t, "doc-4", "cap_1", "doc-4", windowState("doc-4", "x")), verdictUnexpected},
		{"unexpected sender", responseMsg(t, "doc-4", "cap_1", "main", windowState("main", "x")), verdictUnexpected},
		{"accepted", responseMsg(t, "main", "cap_1", "main", windowState("main", "first")), verdictAccepted},
		{"duplicate", responseMsg(t, "main", "cap_1", "main", windowState("main", "second")), verdictDuplicate},
		{"unknown sender", responseMsg(t, "", "cap_1", "doc-0", windowState("stale-label", "doc")), verdictAccepted},
	}

	for _, tt := range tests {
		got, _ := r.accept(tt.msg)
		assert.Equal(t, tt.want, got, tt.name)
	}

	assert.True(t, r.complete())
	windows := r.windows()
	require.Len(t, windows, 2)
	assert.Equal(t, "main", windows[0].WindowLabel)
	assert.Equal(t, "first", windows[0].Tabs[0].Document.Content)
	assert.Equal(t, "doc-0", windows[1].WindowLabel)
	assert.Equal(t, "stale-label", r.relabeled["doc-0"])
}

func TestRoundMissingAndStatus(t *testing.T) {
	started := time.Unix(1700000000, 0)
	r := newCaptureRound("cap_2", []string{"main", "doc-2", "doc-1"}, started)

	assert.Equal(t, []string{"doc-1", "doc-2", "main"}, r.missing())
	assert.False(t, r.complete())

	v, _ := r.accept(responseMsg(t, "doc-2", "cap_2", "doc-2", windowState("doc-2", "")))
	require.Equal(t, verdictAccepted, v)

	assert.Equal(t, []string{"doc-1", "main"}, r.missing())
	st := r.status()
	assert.Equal(t, "cap_2", st.CaptureID)
	assert.Equal(t, started, st.StartedAt)
	assert.Equal(t, []string{"doc-1", "doc-2", "main"}, st.Expected)
	assert.Equal(t, []string{"doc-2"}, st.Responded)
}

func TestRoundNormalizesMislabeledSender(t *testing.T) {
	r := newCaptureRound("cap_3", []string{"main", "doc-0"}, time.Unix(100, 0))

	v, resp := r.accept(responseMsg(t, "doc-0", "cap_3", "doc-7", windowState("doc-7", "kept")))
	require.Equal(t, verdictAccepted, v)
	assert.Equal(t, "doc-0", resp.WindowLabel)
	assert.Equal(t, "doc-7", r.relabeled["doc-0"])

	v, _ = r.accept(responseMsg(t, "main", "cap_3", "doc-0", windowState("doc-0", "main state")))
	require.Equal(t, verdictAccepted, v, "the sender, not the claimed label, is the key")

	v, _ = r.accept(responseMsg(t, "doc-0", "cap_3", "doc-0", windowState("doc-0", "again")))
	assert.Equal(t, verdictDuplicate, v)

	assert.True(t, r.complete())
	windows := r.windows()
	require.Len(t, windows, 2)
	labels := []string{windows[0].WindowLabel, windows[1].WindowLabel}
	assert.ElementsMatch(t, []string{"main", "doc-0"}, labels)
	for _, w := range windows {
		if w.WindowLabel == "doc-0" {
			assert.Equal(t, "kept", w.Tabs[0].Document.Content)
		}
	}
}
