package server

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/hotexit/internal/api/ws"
	"github.com/GriffinCanCode/hotexit/internal/domain/hotexit"
	"github.com/GriffinCanCode/hotexit/internal/domain/session"
	"github.com/GriffinCanCode/hotexit/internal/domain/window"
	"github.com/GriffinCanCode/hotexit/internal/infrastructure/config"
	"github.com/GriffinCanCode/hotexit/internal/infrastructure/logging"
	"github.com/GriffinCanCode/hotexit/internal/testutil"
)

type fakeShell struct {
	mu       sync.Mutex
	launched []window.LaunchRequest
}

func (s *fakeShell) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req window.LaunchRequest
	body, _ := io.ReadAll(r.Body)
	if err := sonic.ConfigStd.Unmarshal(body, &req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.launched = append(s.launched, req)
	s.mu.Unlock()
	w.WriteHeader(http.StatusCreated)
}

func (s *fakeShell) labels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.launched))
	for i, req := range s.launched {
		out[i] = req.Label
	}
	return out
}

type harness struct {
	srv   *Server
	ts    *httptest.Server
	shell *fakeShell
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	shell := &fakeShell{}
	shellSrv := httptest.NewServer(shell)
	t.Cleanup(shellSrv.Close)

	cfg := config.Default()
	cfg.Server.Port = "0"
	cfg.HotExit.DataDir = t.TempDir()
	cfg.HotExit.CaptureTimeout = config.Duration(2 * time.Second)
	cfg.Shell.URL = shellSrv.URL
	cfg.RateLimit.Enabled = false
	cfg.Logging.Development = true
	require.NoError(t, cfg.Validate())

	srv, err := New(cfg, logging.NewNop())
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return &harness{srv: srv, ts: ts, shell: shell}
}

func (h *harness) dial(t *testing.T, label string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/windows/" + label + "/events"
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	require.Eventually(t, func() bool { return h.srv.hub.IsConnected(label) }, time.Second, 5*time.Millisecond)
	return c
}

func (h *harness) post(t *testing.T, path string, body []byte) *http.Response {
	t.Helper()
	resp, err := http.Post(h.ts.URL+path, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func readEnvelope(t *testing.T, c *websocket.Conn) ws.Envelope {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := c.ReadMessage()
	require.NoError(t, err)
	var env ws.Envelope
	require.NoError(t, sonic.ConfigStd.Unmarshal(data, &env))
	return env
}

// answerCapture replies to the next capture request on c
func answerCapture(t *testing.T, c *websocket.Conn, state session.WindowState) {
	t.Helper()
	env := readEnvelope(t, c)
	require.Equal(t, hotexit.TopicCaptureRequest, env.Topic)

	var req hotexit.CaptureRequest
	require.NoError(t, sonic.ConfigStd.Unmarshal(env.Payload, &req))

	payload, err := sonic.ConfigStd.Marshal(hotexit.CaptureResponse{
		CaptureID:   req.CaptureID,
		WindowLabel: state.WindowLabel,
		State:       state,
	})
	require.NoError(t, err)
	out, err := sonic.ConfigStd.Marshal(ws.Envelope{Topic: hotexit.TopicCaptureResponse, Payload: payload})
	require.NoError(t, err)
	require.NoError(t, c.WriteMessage(websocket.TextMessage, out))
}

func TestCaptureAndInspectOverHTTP(t *testing.T) {
	h := newHarness(t)
	main := h.dial(t, "main")
	doc := h.dial(t, "doc-0")

	big := strings.Repeat("lorem ipsum ", 400)
	done := make(chan struct{})
	go func() {
		defer close(done)
		answerCapture(t, main, testutil.WindowState("main", true, big))
		answerCapture(t, doc, testutil.WindowState("doc-0", false, "second"))
	}()

	resp := h.post(t, "/hot-exit/capture", nil)
	<-done
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, h.ts.URL+"/hot-exit/session", nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "gzip")
	raw, err := http.DefaultTransport.RoundTrip(req)
	require.NoError(t, err)
	defer raw.Body.Close()
	assert.Equal(t, http.StatusOK, raw.StatusCode)
	assert.Equal(t, "gzip", raw.Header.Get("Content-Encoding"), "large sessions are compressed")

	status, err := http.Get(h.ts.URL + "/hot-exit/status")
	require.NoError(t, err)
	defer status.Body.Close()
	var body struct {
		HotExit hotexit.Status `json:"hot_exit"`
	}
	data, _ := io.ReadAll(status.Body)
	require.NoError(t, sonic.ConfigStd.Unmarshal(data, &body))
	require.NotNil(t, body.HotExit.LastCapture)
	assert.Equal(t, 2, body.HotExit.LastCapture.Windows)
	assert.False(t, body.HotExit.LastCapture.Partial)
}

func TestMultiWindowRestoreOpensWindowsThroughShell(t *testing.T) {
	h := newHarness(t)
	main := h.dial(t, "main")

	s := testutil.Session(time.Now(),
		testutil.WindowState("main", true, "# main"),
		testutil.WindowState("doc-3", false, "# three"),
		testutil.WindowState("doc-8", false, "# eight"))
	body, err := sonic.ConfigStd.Marshal(s)
	require.NoError(t, err)

	resp := h.post(t, "/hot-exit/restore/multi-window", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result hotexit.RestoreResult
	data, _ := io.ReadAll(resp.Body)
	require.NoError(t, sonic.ConfigStd.Unmarshal(data, &result))
	assert.Equal(t, []string{"doc-0", "doc-1"}, result.WindowsCreated)
	assert.Equal(t, []string{"doc-0", "doc-1"}, h.shell.labels())

	env := readEnvelope(t, main)
	assert.Equal(t, hotexit.TopicRestoreStart, env.Topic)

	// a freshly opened window pulls its state
	state, err := http.Get(h.ts.URL + "/hot-exit/windows/doc-1/state")
	require.NoError(t, err)
	defer state.Body.Close()
	var pulled struct {
		State *session.WindowState `json:"state"`
	}
	data, _ = io.ReadAll(state.Body)
	require.NoError(t, sonic.ConfigStd.Unmarshal(data, &pulled))
	require.NotNil(t, pulled.State)
	assert.Equal(t, "# eight", pulled.State.Tabs[0].Document.Content)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)
	h.dial(t, "main")

	resp, err := http.Get(h.ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Trace-ID"))

	var health map[string]any
	data, _ := io.ReadAll(resp.Body)
	require.NoError(t, sonic.ConfigStd.Unmarshal(data, &health))
	assert.Equal(t, []any{"main"}, health["connected"])
	assert.Equal(t, "closed", health["shell"].(map[string]any)["breaker"])

	metrics, err := http.Get(h.ts.URL + "/metrics")
	require.NoError(t, err)
	defer metrics.Body.Close()
	text, _ := io.ReadAll(metrics.Body)
	assert.Contains(t, string(text), "hotexit_ws_connections 1")
	assert.Contains(t, string(text), "hotexit_http_requests_total")
}

func TestRunAndShutdown(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Port = "0"
	cfg.HotExit.DataDir = t.TempDir()

	srv, err := New(cfg, nil)
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() { errc <- srv.Run() }()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Shutdown")
	}
}

func TestNewRejectsUnusableDataDir(t *testing.T) {
	cfg := config.Default()
	cfg.HotExit.DataDir = "/dev/null/hotexit"
	_, err := New(cfg, nil)
	assert.Error(t, err)
}
