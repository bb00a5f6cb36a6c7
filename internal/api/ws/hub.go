package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/hotexit/internal/domain/hotexit"
	"github.com/GriffinCanCode/hotexit/internal/infrastructure/monitoring"
)

// Topics handled by the hub itself
const (
	TopicPing = "ping"
	TopicPong = "pong"
)

var (
	// ErrNotConnected is returned by EmitTo when the window is not connected
	// and no mailbox is configured
	ErrNotConnected = errors.New("window not connected")
	// ErrHubClosed is returned after Close
	ErrHubClosed = errors.New("event hub closed")
)

// Envelope is the wire format in both directions
type Envelope struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Registry tracks which windows hold a live connection
type Registry interface {
	Connect(label string) error
	Disconnect(label string)
}

// Config configures the hub
type Config struct {
	// MailboxSize bounds messages held for a window that is not connected.
	// Zero disables holding.
	MailboxSize     int
	WriteTimeout    time.Duration
	PongWait        time.Duration
	PingInterval    time.Duration
	MaxMessageBytes int64
	// SubscriberBuffer is the channel size of each subscription
	SubscriberBuffer int
	// AllowedOrigins lists accepted Origin headers; "*" accepts any.
	// Requests without an Origin header are always accepted.
	AllowedOrigins []string
}

// DefaultConfig returns hub defaults
func DefaultConfig() Config {
	return Config{
		MailboxSize:      16,
		WriteTimeout:     10 * time.Second,
		PongWait:         60 * time.Second,
		PingInterval:     50 * time.Second,
		MaxMessageBytes:  32 << 20,
		SubscriberBuffer: 64,
	}
}

// Hub owns one websocket per window label and implements hotexit.EventBus
type Hub struct {
	cfg      Config
	registry Registry
	upgrader websocket.Upgrader
	logger   *zap.Logger
	metrics  *monitoring.Metrics

	mu        sync.RWMutex
	conns     map[string]*conn                      // Protected by mu
	mailboxes map[string][][]byte                   // Protected by mu
	subs      map[string]map[*subscription]struct{} // Protected by mu
	closed    bool                                  // Protected by mu
}

// NewHub creates a hub. registry may be nil.
func NewHub(registry Registry, cfg Config, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = def.PongWait
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.PongWait {
		cfg.PingInterval = cfg.PongWait * 9 / 10
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = def.MaxMessageBytes
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = def.SubscriberBuffer
	}

	h := &Hub{
		cfg:       cfg,
		registry:  registry,
		logger:    logger.Named("ws"),
		conns:     make(map[string]*conn),
		mailboxes: make(map[string][][]byte),
		subs:      make(map[string]map[*subscription]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// WithMetrics adds metrics tracking to the hub
func (h *Hub) WithMetrics(metrics *monitoring.Metrics) *Hub {
	h.metrics = metrics
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return slices.Contains(h.cfg.AllowedOrigins, "*") || slices.Contains(h.cfg.AllowedOrigins, origin)
}

// ============================================================================
// Connections
// ============================================================================

// HandleConnection upgrades GET /windows/:label/events and serves the window
// until it disconnects. A new connection for a label replaces the old one.
func (h *Hub) HandleConnection(c *gin.Context) {
	label := c.Param("label")

	if h.isClosed() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": ErrHubClosed.Error(), "code": "hub_closed"})
		return
	}
	if h.registry != nil {
		if err := h.registry.Connect(label); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_label"})
			return
		}
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.String("window_label", label), zap.Error(err))
		if h.registry != nil {
			h.registry.Disconnect(label)
		}
		return
	}

	cn := &conn{id: uuid.NewString(), label: label, ws: ws, done: make(chan struct{})}
	if !h.attach(cn) {
		cn.close(websocket.CloseGoingAway, "shutting down")
		return
	}
	defer h.detach(cn)

	go h.keepAlive(cn)
	h.readLoop(cn)
}

// attach makes cn the live connection for its label and flushes the
// mailbox before any other writer can reach it
func (h *Hub) attach(cn *conn) bool {
	cn.writeMu.Lock()
	defer cn.writeMu.Unlock()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	old := h.conns[cn.label]
	h.conns[cn.label] = cn
	pending := h.mailboxes[cn.label]
	delete(h.mailboxes, cn.label)
	h.mu.Unlock()

	if old != nil {
		h.logger.Info("Replacing window connection",
			zap.String("window_label", cn.label),
			zap.String("old_conn", old.id),
			zap.String("new_conn", cn.id))
		old.close(websocket.CloseGoingAway, "replaced by new connection")
	}
	if h.metrics != nil {
		h.metrics.IncWSConnections()
	}

	delivered := 0
	for _, data := range pending {
		if err := cn.writeLocked(websocket.TextMessage, data, h.cfg.WriteTimeout); err != nil {
			h.logger.Warn("Failed to deliver held message",
				zap.String("window_label", cn.label), zap.Error(err))
			break
		}
		delivered++
	}
	if delivered > 0 {
		if h.metrics != nil {
			h.metrics.AddMailboxDelivered(delivered)
		}
		h.logger.Debug("Delivered held messages",
			zap.String("window_label", cn.label), zap.Int("count", delivered))
	}

	h.logger.Info("Window connected", zap.String("window_label", cn.label), zap.String("conn_id", cn.id))
	return true
}

func (h *Hub) detach(cn *conn) {
	cn.close(websocket.CloseNormalClosure, "")

	h.mu.Lock()
	current := h.conns[cn.label] == cn
	if current {
		delete(h.conns, cn.label)
	}
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.DecWSConnections()
	}
	if current && h.registry != nil {
		h.registry.Disconnect(cn.label)
	}
	h.logger.Info("Window disconnected", zap.String("window_label", cn.label), zap.String("conn_id", cn.id))
}

func (h *Hub) readLoop(cn *conn) {
	cn.ws.SetReadLimit(h.cfg.MaxMessageBytes)
	_ = cn.ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	cn.ws.SetPongHandler(func(string) error {
		return cn.ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		_, data, err := cn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("WebSocket read error", zap.String("window_label", cn.label), zap.Error(err))
			}
			return
		}
		_ = cn.ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))

		var env Envelope
		if err := sonic.ConfigStd.Unmarshal(data, &env); err != nil || env.Topic == "" {
			h.logger.Debug("Dropping malformed message", zap.String("window_label", cn.label))
			continue
		}
		if h.metrics != nil {
			h.metrics.RecordWSMessage("in", env.Topic)
		}

		if env.Topic == TopicPing {
			if err := h.send(cn, TopicPong, nil); err != nil {
				return
			}
			continue
		}
		h.dispatch(hotexit.Message{Topic: env.Topic, Source: cn.label, Payload: env.Payload})
	}
}

func (h *Hub) keepAlive(cn *conn) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-cn.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(h.cfg.WriteTimeout)
			if err := cn.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				cn.close(websocket.CloseGoingAway, "ping failed")
				return
			}
		}
	}
}

// IsConnected reports whether label has a live connection
func (h *Hub) IsConnected(label string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.conns[label]
	return ok
}

// Connected lists labels with a live connection
func (h *Hub) Connected() []string {
	h.mu.RLock()
	labels := make([]string, 0, len(h.conns))
	for label := range h.conns {
		labels = append(labels, label)
	}
	h.mu.RUnlock()
	sort.Strings(labels)
	return labels
}

// Held returns the number of messages held for label
func (h *Hub) Held(label string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.mailboxes[label])
}

// Close disconnects every window and ends every subscription
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	conns := make([]*conn, 0, len(h.conns))
	for _, cn := range h.conns {
		conns = append(conns, cn)
	}
	for topic, set := range h.subs {
		for sub := range set {
			sub.once.Do(func() { close(sub.ch) })
		}
		delete(h.subs, topic)
	}
	h.mailboxes = make(map[string][][]byte)
	h.mu.Unlock()

	for _, cn := range conns {
		cn.close(websocket.CloseGoingAway, "server shutting down")
	}
}

func (h *Hub) isClosed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closed
}

// ============================================================================
// EventBus
// ============================================================================

// Broadcast sends topic to every connected window. Windows whose write fails
// are disconnected; the broadcast itself only fails on encoding errors.
func (h *Hub) Broadcast(ctx context.Context, topic string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encode(topic, payload)
	if err != nil {
		return err
	}

	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return ErrHubClosed
	}
	conns := make([]*conn, 0, len(h.conns))
	for _, cn := range h.conns {
		conns = append(conns, cn)
	}
	h.mu.RUnlock()

	for _, cn := range conns {
		if err := h.write(cn, topic, data); err != nil {
			h.logger.Warn("Broadcast write failed",
				zap.String("window_label", cn.label), zap.String("topic", topic), zap.Error(err))
		}
	}
	return nil
}

// EmitTo sends topic to label. When the window is not connected the message
// is held until it connects; the oldest held message is dropped when full.
func (h *Hub) EmitTo(ctx context.Context, label, topic string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encode(topic, payload)
	if err != nil {
		return err
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHubClosed
	}
	cn, ok := h.conns[label]
	if !ok {
		defer h.mu.Unlock()
		return h.holdLocked(label, topic, data)
	}
	h.mu.Unlock()

	if err := h.write(cn, topic, data); err != nil {
		return fmt.Errorf("emit %s to %s: %w", topic, label, err)
	}
	return nil
}

func (h *Hub) holdLocked(label, topic string, data []byte) error {
	if h.cfg.MailboxSize <= 0 {
		return fmt.Errorf("emit %s to %s: %w", topic, label, ErrNotConnected)
	}
	box := h.mailboxes[label]
	if len(box) >= h.cfg.MailboxSize {
		box = box[1:]
		if h.metrics != nil {
			h.metrics.IncMailboxDropped()
		}
		h.logger.Warn("Mailbox full, dropping oldest message", zap.String("window_label", label))
	}
	h.mailboxes[label] = append(box, data)
	h.logger.Debug("Holding message for window",
		zap.String("window_label", label), zap.String("topic", topic))
	return nil
}

// Subscribe registers for messages windows send on topic
func (h *Hub) Subscribe(topic string) (hotexit.Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}
	sub := &subscription{hub: h, topic: topic, ch: make(chan hotexit.Message, h.cfg.SubscriberBuffer)}
	set, ok := h.subs[topic]
	if !ok {
		set = make(map[*subscription]struct{})
		h.subs[topic] = set
	}
	set[sub] = struct{}{}
	return sub, nil
}

func (h *Hub) dispatch(msg hotexit.Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[msg.Topic] {
		select {
		case sub.ch <- msg:
		default:
			h.logger.Warn("Subscriber full, dropping message",
				zap.String("topic", msg.Topic), zap.String("window_label", msg.Source))
		}
	}
}

func (h *Hub) send(cn *conn, topic string, payload any) error {
	data, err := encode(topic, payload)
	if err != nil {
		return err
	}
	return h.write(cn, topic, data)
}

func (h *Hub) write(cn *conn, topic string, data []byte) error {
	if err := cn.write(websocket.TextMessage, data, h.cfg.WriteTimeout); err != nil {
		cn.close(websocket.CloseGoingAway, "write failed")
		return err
	}
	if h.metrics != nil {
		h.metrics.RecordWSMessage("out", topic)
	}
	return nil
}

func encode(topic string, payload any) ([]byte, error) {
	env := Envelope{Topic: topic}
	if payload != nil {
		raw, err := sonic.ConfigStd.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", topic, err)
		}
		env.Payload = raw
	}
	return sonic.ConfigStd.Marshal(env)
}

// ============================================================================
// Connection and subscription
// ============================================================================

type conn struct {
	id    string
	label string
	ws    *websocket.Conn

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

func (c *conn) write(messageType int, data []byte, timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.writeLocked(messageType, data, timeout)
}

func (c *conn) writeLocked(messageType int, data []byte, timeout time.Duration) error {
	select {
	case <-c.done:
		return websocket.ErrCloseSent
	default:
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(timeout))
	return c.ws.WriteMessage(messageType, data)
}

func (c *conn) close(code int, reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(code, reason)
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = c.ws.Close()
	})
}

type subscription struct {
	hub   *Hub
	topic string
	ch    chan hotexit.Message
	once  sync.Once
}

func (s *subscription) Messages() <-chan hotexit.Message {
	return s.ch
}

func (s *subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if set, ok := s.hub.subs[s.topic]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(s.hub.subs, s.topic)
		}
	}
	s.once.Do(func() { close(s.ch) })
}
