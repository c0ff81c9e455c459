package gateway

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ConnConfig holds WebSocket tuning for local UI connections.
type ConnConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnConfig returns defaults sized for a local UI: small frames,
// generous timeouts.
func DefaultConnConfig() ConnConfig {
	return ConnConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// The gateway binds to loopback for a local UI; origin checks
		// stay open.
		CheckOrigin: func(r *http.Request) bool { return true },
	}
}

// Manager tracks the UI connections of this client (usually one browser
// tab, occasionally several) and fans room snapshots out to all of them.
type Manager struct {
	mu       sync.RWMutex
	conns    map[*Conn]bool
	upgrader websocket.Upgrader
	config   ConnConfig

	// onCommand receives decoded frames from any connection.
	onCommand func(conn *Conn, data []byte)
}

// Conn is one UI WebSocket connection.
type Conn struct {
	ID      string
	ws      *websocket.Conn
	send    chan []byte
	manager *Manager
}

// NewManager creates a connection manager.
func NewManager(config ConnConfig, onCommand func(conn *Conn, data []byte)) *Manager {
	return &Manager{
		conns: make(map[*Conn]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:    config,
		onCommand: onCommand,
	}
}

// Upgrade turns an HTTP request into a managed WebSocket connection.
func (m *Manager) Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	ws, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	conn := &Conn{
		ID:      uuid.New().String(),
		ws:      ws,
		send:    make(chan []byte, 64),
		manager: m,
	}
	m.register(conn)

	go conn.writePump()
	go conn.readPump()

	log.Info().Str("connection_id", conn.ID).Msg("UI connection established")
	return conn, nil
}

// Broadcast queues a frame on every connection; a connection too slow to
// drain its buffer gets dropped rather than stalling the rest.
func (m *Manager) Broadcast(data []byte) {
	m.mu.RLock()
	targets := make([]*Conn, 0, len(m.conns))
	for conn := range m.conns {
		targets = append(targets, conn)
	}
	m.mu.RUnlock()

	for _, conn := range targets {
		conn.Send(data)
	}
}

// Send queues a frame on this connection.
func (c *Conn) Send(data []byte) {
	select {
	case c.send <- data:
	default:
		log.Warn().Str("connection_id", c.ID).Msg("send buffer full, closing connection")
		c.manager.unregister(c)
		c.ws.Close()
	}
}

// Count returns the number of live connections.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// Close tears down every connection.
func (m *Manager) Close() {
	m.mu.Lock()
	conns := make([]*Conn, 0, len(m.conns))
	for conn := range m.conns {
		conns = append(conns, conn)
	}
	m.mu.Unlock()

	for _, conn := range conns {
		m.unregister(conn)
		conn.ws.Close()
	}
}

func (m *Manager) register(conn *Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[conn] = true
}

func (m *Manager) unregister(conn *Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conns[conn]; ok {
		delete(m.conns, conn)
		close(conn.send)
	}
}

func (c *Conn) readPump() {
	defer func() {
		c.manager.unregister(c)
		c.ws.Close()
		log.Info().Str("connection_id", c.ID).Msg("UI connection closed")
	}()

	c.ws.SetReadLimit(c.manager.config.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("UI connection read failed")
			}
			return
		}
		c.manager.onCommand(c, data)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
