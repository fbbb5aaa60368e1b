package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Bui-Thanh-Liem/social-fe-sub000/pkg/logging"
)

// MockChannelServer is an in-process push channel. It records every frame a
// client sends and lets tests push envelopes to connected clients.
type MockChannelServer struct {
	server      *httptest.Server
	upgrader    websocket.Upgrader
	logger      logging.Logger
	jwtHelper   *JWTTestHelper
	connections map[*MockConnection]struct{}
	connMutex   sync.RWMutex
	frames      chan map[string]interface{}
	connects    int

	// Callbacks for test customization
	OnConnect    func(conn *MockConnection)
	OnFrame      func(conn *MockConnection, frame map[string]interface{})
	AuthRequired bool
}

// MockConnection is one upgraded client connection
type MockConnection struct {
	conn     *websocket.Conn
	userID   string
	messages chan interface{}
	closed   bool
	mutex    sync.RWMutex
}

// NewMockChannelServer creates a mock channel server without authentication
func NewMockChannelServer() *MockChannelServer {
	mock := &MockChannelServer{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:      logging.NewDiscardLogger(),
		jwtHelper:   NewJWTTestHelper(),
		connections: make(map[*MockConnection]struct{}),
		frames:      make(chan map[string]interface{}, 100),
	}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.handleWebSocket))
	return mock
}

// NewMockChannelServerWithAuth creates a mock server that requires a bearer
// token signed by jwtHelper.
func NewMockChannelServerWithAuth(jwtHelper *JWTTestHelper) *MockChannelServer {
	mock := NewMockChannelServer()
	mock.jwtHelper = jwtHelper
	mock.AuthRequired = true
	return mock
}

// URL returns the WebSocket URL of the mock server
func (m *MockChannelServer) URL() string {
	return strings.Replace(m.server.URL, "http://", "ws://", 1)
}

// Close shuts down the mock server
func (m *MockChannelServer) Close() {
	m.DropConnections()
	m.server.Close()
}

// Frames returns the channel of frames received from clients
func (m *MockChannelServer) Frames() <-chan map[string]interface{} {
	return m.frames
}

// ConnectCount returns how many connections were accepted so far
func (m *MockChannelServer) ConnectCount() int {
	m.connMutex.RLock()
	defer m.connMutex.RUnlock()
	return m.connects
}

// Connections returns the number of open connections
func (m *MockChannelServer) Connections() int {
	m.connMutex.RLock()
	defer m.connMutex.RUnlock()
	return len(m.connections)
}

// Push sends a JSON message to every connection
func (m *MockChannelServer) Push(message interface{}) {
	m.connMutex.RLock()
	defer m.connMutex.RUnlock()
	for conn := range m.connections {
		conn.Send(message)
	}
}

// DropConnections closes every open connection, simulating a network drop
func (m *MockChannelServer) DropConnections() {
	m.connMutex.Lock()
	conns := make([]*MockConnection, 0, len(m.connections))
	for conn := range m.connections {
		conns = append(conns, conn)
	}
	m.connections = make(map[*MockConnection]struct{})
	m.connMutex.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}

func (m *MockChannelServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := "test-user"
	if m.AuthRequired {
		authHeader := r.Header.Get("Authorization")
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
			return
		}
		claims, err := m.jwtHelper.ValidateJWT(parts[1])
		if err != nil {
			http.Error(w, "Invalid authentication", http.StatusUnauthorized)
			return
		}
		userID = claims.UserID
	}

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.WithError(err).Error("Failed to upgrade WebSocket connection")
		return
	}

	mockConn := &MockConnection{
		conn:     conn,
		userID:   userID,
		messages: make(chan interface{}, 64),
	}

	m.connMutex.Lock()
	m.connections[mockConn] = struct{}{}
	m.connects++
	m.connMutex.Unlock()

	if m.OnConnect != nil {
		m.OnConnect(mockConn)
	}

	go mockConn.readPump(m)
	go mockConn.writePump()
}

// Send queues a message for the connection
func (c *MockConnection) Send(message interface{}) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if !c.closed {
		select {
		case c.messages <- message:
		default:
			// Channel full, drop message
		}
	}
}

// Close closes the connection
func (c *MockConnection) Close() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.closed {
		c.closed = true
		close(c.messages)
		_ = c.conn.Close() //nolint:errcheck // test utility
	}
}

// UserID returns the authenticated user of the connection
func (c *MockConnection) UserID() string {
	return c.userID
}

func (c *MockConnection) readPump(server *MockChannelServer) {
	defer func() {
		server.connMutex.Lock()
		delete(server.connections, c)
		server.connMutex.Unlock()
		c.Close()
	}()

	for {
		var frame map[string]interface{}
		if err := c.conn.ReadJSON(&frame); err != nil {
			return
		}

		select {
		case server.frames <- frame:
		default:
			// Channel full, drop frame
		}

		if server.OnFrame != nil {
			server.OnFrame(c, frame)
		}
	}
}

func (c *MockConnection) writePump() {
	for message := range c.messages {
		_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck // test utility
		if err := c.conn.WriteJSON(message); err != nil {
			return
		}
	}
}
