package channel

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/gorilla/websocket"

	"github.com/Bui-Thanh-Liem/social-fe-sub000/pkg/clients"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/pkg/logging"
)

const (
	defaultPingInterval     = 54 * time.Second
	defaultHandshakeTimeout = 30 * time.Second
	writeWait               = 10 * time.Second
	maxMessageSize          = 512 * 1024
)

// WebSocketConfig configures the websocket transport
type WebSocketConfig struct {
	URL              string
	Token            string
	Logger           logging.Logger
	Reconnect        clients.ReconnectConfig
	PingInterval     time.Duration
	HandshakeTimeout time.Duration
}

// WebSocket is the default push channel: one authenticated websocket with
// read and ping pumps and automatic redial with backoff.
type WebSocket struct {
	cfg       WebSocketConfig
	logger    logging.Logger
	reconnect failsafe.Executor[any]
	envelopes chan Envelope

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	closed    bool
	hooks     reconnectHooks
	runCtx    context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	writeMu sync.Mutex
}

// NewWebSocket creates a websocket transport
func NewWebSocket(cfg WebSocketConfig) *WebSocket {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	return &WebSocket{
		cfg:       cfg,
		logger:    logging.OrDiscard(cfg.Logger),
		reconnect: clients.NewReconnectExecutor(cfg.Reconnect),
		envelopes: make(chan Envelope, envelopeBuffer),
	}
}

// Connect dials the channel once. Later drops are redialed in the background.
func (w *WebSocket) Connect(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return fmt.Errorf("websocket transport closed")
	}
	if w.connected {
		w.mu.Unlock()
		return fmt.Errorf("client is already connected")
	}
	if w.runCtx == nil {
		w.runCtx, w.cancel = context.WithCancel(context.Background())
	}
	w.mu.Unlock()

	if err := w.dial(ctx); err != nil {
		return err
	}
	w.logger.WithField("url", w.cfg.URL).Info("Connected to push channel")
	return nil
}

func (w *WebSocket) buildURL() (string, error) {
	u, err := url.Parse(w.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("invalid channel url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	return u.String(), nil
}

func (w *WebSocket) dial(ctx context.Context) error {
	wsURL, err := w.buildURL()
	if err != nil {
		return err
	}
	headers := make(http.Header)
	if w.cfg.Token != "" {
		headers.Set("Authorization", "Bearer "+w.cfg.Token)
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = w.cfg.HandshakeTimeout

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return fmt.Errorf("failed to connect to WebSocket (status: %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("failed to connect to WebSocket: %w", err)
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		_ = conn.Close()
		return fmt.Errorf("websocket transport closed")
	}
	w.conn = conn
	w.connected = true
	stop := make(chan struct{})
	w.wg.Add(2)
	w.mu.Unlock()

	go w.readPump(conn, stop)
	go w.pingPump(conn, stop)
	return nil
}

// Send writes a frame on the current connection
func (w *WebSocket) Send(ctx context.Context, frame Frame) error {
	w.mu.Lock()
	conn, connected := w.conn, w.connected
	w.mu.Unlock()
	if !connected || conn == nil {
		return ErrNotConnected
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("failed to send %s frame: %w", frame.Op, err)
	}
	return nil
}

// Envelopes returns inbound envelopes
func (w *WebSocket) Envelopes() <-chan Envelope {
	return w.envelopes
}

// OnReconnect registers a callback fired after each successful redial
func (w *WebSocket) OnReconnect(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.hooks.add(fn)
}

// Connected reports whether a connection is up
func (w *WebSocket) Connected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.connected
}

func (w *WebSocket) readPump(conn *websocket.Conn, stop chan struct{}) {
	defer w.wg.Done()
	defer close(stop)

	conn.SetReadLimit(maxMessageSize)
	readTimeout := 2 * w.cfg.PingInterval
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			w.dropped(conn, err)
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		env, err := ParseEnvelope(data)
		if err != nil {
			w.logger.WithError(err).Warn("Dropping malformed envelope")
			continue
		}
		select {
		case w.envelopes <- env:
		case <-w.runCtx.Done():
			return
		}
	}
}

func (w *WebSocket) pingPump(conn *websocket.Conn, stop chan struct{}) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			w.writeMu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			w.writeMu.Unlock()
			if err != nil {
				w.logger.WithError(err).Warn("Failed to send ping")
				_ = conn.Close()
				return
			}
		}
	}
}

// dropped handles a connection that stopped reading
func (w *WebSocket) dropped(conn *websocket.Conn, err error) {
	w.mu.Lock()
	if w.conn == conn {
		w.connected = false
		w.conn = nil
	}
	closed := w.closed
	if !closed {
		w.wg.Add(1)
	}
	w.mu.Unlock()
	_ = conn.Close()

	if closed {
		return
	}
	if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
		w.logger.WithError(err).Warn("Push channel dropped, reconnecting")
	} else {
		w.logger.WithError(err).Info("Push channel closed, reconnecting")
	}
	go w.redial()
}

func (w *WebSocket) redial() {
	defer w.wg.Done()
	ctx := w.runCtx
	err := w.reconnect.WithContext(ctx).Run(func() error {
		return w.dial(ctx)
	})
	if err != nil {
		if ctx.Err() == nil {
			w.logger.WithError(err).Error("Giving up reconnecting to push channel")
		}
		return
	}

	w.mu.Lock()
	hooks := w.hooks.snapshot()
	w.mu.Unlock()

	w.logger.Info("Reconnected to push channel")
	for _, fn := range hooks {
		fn()
	}
}

// Close shuts the connection and stops redialing. Envelopes is closed once
// all pumps have exited.
func (w *WebSocket) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	conn := w.conn
	w.conn = nil
	w.connected = false
	if w.cancel != nil {
		w.cancel()
	}
	w.mu.Unlock()

	if conn != nil {
		w.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		w.writeMu.Unlock()
		_ = conn.Close()
	}
	w.wg.Wait()
	close(w.envelopes)
	w.logger.Info("Disconnected from push channel")
	return nil
}
