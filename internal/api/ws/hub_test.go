package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/hotexit/internal/domain/hotexit"
	"github.com/GriffinCanCode/hotexit/internal/domain/session"
	"github.com/GriffinCanCode/hotexit/internal/domain/window"
	"github.com/GriffinCanCode/hotexit/internal/infrastructure/monitoring"
)

type fixture struct {
	hub     *Hub
	windows *window.Manager
	metrics *monitoring.Metrics
	srv     *httptest.Server
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	windows := window.NewManager(nil, zap.NewNop())
	metrics := monitoring.NewMetrics()
	hub := NewHub(windows, cfg, zap.NewNop()).WithMetrics(metrics)

	router := gin.New()
	router.GET("/windows/:label/events", hub.HandleConnection)
	srv := httptest.NewServer(router)

	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return &fixture{hub: hub, windows: windows, metrics: metrics, srv: srv}
}

func (f *fixture) url(label string) string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/windows/" + label + "/events"
}

func (f *fixture) dial(t *testing.T, label string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(f.url(label), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	require.Eventually(t, func() bool { return f.hub.IsConnected(label) }, time.Second, 5*time.Millisecond)
	return c
}

func readEnvelope(t *testing.T, c *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := c.ReadMessage()
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, sonic.ConfigStd.Unmarshal(data, &env))
	return env
}

func writeEnvelope(t *testing.T, c *websocket.Conn, topic string, payload any) {
	t.Helper()
	data, err := encode(topic, payload)
	require.NoError(t, err)
	require.NoError(t, c.WriteMessage(websocket.TextMessage, data))
}

func TestConnectRegistersWindow(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	c := f.dial(t, "main")

	w, ok := f.windows.Get("main")
	require.True(t, ok)
	assert.True(t, w.Connected)
	assert.Equal(t, []string{"main"}, f.hub.Connected())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.WSConnections))

	require.NoError(t, c.Close())
	assert.Eventually(t, func() bool {
		w, _ := f.windows.Get("main")
		return !w.Connected && !f.hub.IsConnected("main")
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.WSConnections))
	assert.True(t, f.windows.Exists("main"), "disconnected windows stay registered")
}

func TestConnectRejectsInvalidLabel(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	_, resp, err := websocket.DefaultDialer.Dial(f.url("bad%20label"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCheckOrigin(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowedOrigins = []string{"tauri://localhost"}
	f := newFixture(t, cfg)

	header := http.Header{"Origin": {"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(f.url("main"), header)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "tauri://localhost")
	c, _, err := websocket.DefaultDialer.Dial(f.url("main"), header)
	require.NoError(t, err)
	_ = c.Close()
}

func TestBroadcastReachesEveryWindow(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	main := f.dial(t, "main")
	doc := f.dial(t, "doc-0")

	req := hotexit.CaptureRequest{CaptureID: "cap-1"}
	require.NoError(t, f.hub.Broadcast(context.Background(), hotexit.TopicCaptureRequest, req))

	for _, c := range []*websocket.Conn{main, doc} {
		env := readEnvelope(t, c)
		assert.Equal(t, hotexit.TopicCaptureRequest, env.Topic)
		assert.JSONEq(t, `{"capture_id":"cap-1"}`, string(env.Payload))
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.WSMessages.WithLabelValues("out", hotexit.TopicCaptureRequest)))
}

func TestEmitToConnectedWindow(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	main := f.dial(t, "main")
	doc := f.dial(t, "doc-0")

	require.NoError(t, f.hub.EmitTo(context.Background(), "doc-0", hotexit.TopicRestoreStart, nil))

	env := readEnvelope(t, doc)
	assert.Equal(t, hotexit.TopicRestoreStart, env.Topic)
	assert.Empty(t, env.Payload)

	require.NoError(t, main.SetReadDeadline(time.Now().Add(50*time.Millisecond)))
	_, _, err := main.ReadMessage()
	assert.Error(t, err, "other windows receive nothing")
}

func TestEmitToHeldUntilConnect(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	require.NoError(t, f.hub.EmitTo(ctx, "doc-3", "first", map[string]int{"n": 1}))
	require.NoError(t, f.hub.EmitTo(ctx, "doc-3", "second", map[string]int{"n": 2}))
	assert.Equal(t, 2, f.hub.Held("doc-3"))

	c := f.dial(t, "doc-3")
	assert.Equal(t, "first", readEnvelope(t, c).Topic)
	assert.Equal(t, "second", readEnvelope(t, c).Topic)
	assert.Zero(t, f.hub.Held("doc-3"))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.MailboxDelivered))
}

func TestMailboxDropsOldest(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MailboxSize = 2
	f := newFixture(t, cfg)
	ctx := context.Background()

	for _, topic := range []string{"a", "b", "c"} {
		require.NoError(t, f.hub.EmitTo(ctx, "main", topic, nil))
	}
	assert.Equal(t, 2, f.hub.Held("main"))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.MailboxDropped))

	c := f.dial(t, "main")
	assert.Equal(t, "b", readEnvelope(t, c).Topic)
	assert.Equal(t, "c", readEnvelope(t, c).Topic)
}

func TestEmitToWithoutMailbox(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MailboxSize = 0
	f := newFixture(t, cfg)

	err := f.hub.EmitTo(context.Background(), "main", hotexit.TopicRestoreStart, nil)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSubscribeReceivesWindowMessages(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	sub, err := f.hub.Subscribe(hotexit.TopicCaptureResponse)
	require.NoError(t, err)
	defer sub.Close()

	c := f.dial(t, "doc-1")
	writeEnvelope(t, c, hotexit.TopicCaptureResponse, hotexit.CaptureResponse{CaptureID: "cap-9", WindowLabel: "doc-1"})
	writeEnvelope(t, c, "other-topic", nil)

	select {
	case msg := <-sub.Messages():
		assert.Equal(t, hotexit.TopicCaptureResponse, msg.Topic)
		assert.Equal(t, "doc-1", msg.Source)
		var resp hotexit.CaptureResponse
		require.NoError(t, sonic.ConfigStd.Unmarshal(msg.Payload, &resp))
		assert.Equal(t, "cap-9", resp.CaptureID)
	case <-time.After(2 * time.Second):
		t.Fatal("no message delivered")
	}

	select {
	case msg := <-sub.Messages():
		t.Fatalf("unexpected message on %s", msg.Topic)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPingPong(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	c := f.dial(t, "main")

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("not json")))
	writeEnvelope(t, c, TopicPing, nil)

	assert.Equal(t, TopicPong, readEnvelope(t, c).Topic)
}

func TestReconnectReplacesConnection(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	old := f.dial(t, "main")
	fresh := f.dial(t, "main")

	require.NoError(t, old.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := old.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "old socket is closed: %v", err)

	require.NoError(t, f.hub.Broadcast(context.Background(), "hello", nil))
	assert.Equal(t, "hello", readEnvelope(t, fresh).Topic)

	// the replaced socket's exit must not mark the window disconnected
	time.Sleep(50 * time.Millisecond)
	w, _ := f.windows.Get("main")
	assert.True(t, w.Connected)
	assert.True(t, f.hub.IsConnected("main"))
}

func TestCloseEndsSubscriptions(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	sub, err := f.hub.Subscribe(hotexit.TopicCaptureResponse)
	require.NoError(t, err)
	c := f.dial(t, "main")

	f.hub.Close()

	_, ok := <-sub.Messages()
	assert.False(t, ok)
	sub.Close()

	_, err = f.hub.Subscribe("x")
	assert.ErrorIs(t, err, ErrHubClosed)
	assert.ErrorIs(t, f.hub.Broadcast(context.Background(), "x", nil), ErrHubClosed)
	assert.ErrorIs(t, f.hub.EmitTo(context.Background(), "main", "x", nil), ErrHubClosed)

	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = c.ReadMessage()
	assert.Error(t, err)
}

func TestCancelledContext(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, f.hub.Broadcast(ctx, "x", nil), context.Canceled)
	assert.ErrorIs(t, f.hub.EmitTo(ctx, "main", "x", nil), context.Canceled)
	assert.Zero(t, f.hub.Held("main"))
}

func TestCaptureOverWebSocket(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	coord, err := hotexit.NewCoordinator(f.hub, f.windows, hotexit.Options{CaptureTimeout: 2 * time.Second}, zap.NewNop())
	require.NoError(t, err)

	respond := func(label string, isMain bool) {
		c := f.dial(t, label)
		go func() {
			_, data, err := c.ReadMessage()
			if err != nil {
				return
			}
			var env Envelope
			if sonic.ConfigStd.Unmarshal(data, &env) != nil {
				return
			}
			var req hotexit.CaptureRequest
			if sonic.ConfigStd.Unmarshal(env.Payload, &req) != nil {
				return
			}
			out, _ := encode(hotexit.TopicCaptureResponse, hotexit.CaptureResponse{
				CaptureID:   req.CaptureID,
				WindowLabel: label,
				State:       session.WindowState{WindowLabel: label, IsMainWindow: isMain},
			})
			_ = c.WriteMessage(websocket.TextMessage, out)
		}()
	}
	respond("main", true)
	respond("doc-0", false)

	captured, err := coord.Capture(context.Background())
	require.NoError(t, err)
	require.Len(t, captured.Windows, 2)
	assert.Equal(t, "main", captured.Windows[0].WindowLabel)
	assert.Equal(t, "doc-0", captured.Windows[1].WindowLabel)
}
