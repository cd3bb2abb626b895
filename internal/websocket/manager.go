// Package websocket streams charoster notifications to WebSocket clients.
//
// A Manager owns the connected clients. One hub goroutine handles client
// registration and broadcasting; each client has a write pump draining its
// send buffer and a read pump that detects disconnects. A client whose
// buffer is full is dropped instead of stalling the broadcast.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/charoster/internal/logging"
	"github.com/conneroisu/charoster/internal/types"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 54 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	sendBuffer = 256
)

// Client represents a WebSocket client connection
type Client struct {
	conn         *websocket.Conn
	send         chan []byte
	lastActivity time.Time
}

// OriginValidator decides whether a cross-origin client may connect
type OriginValidator interface {
	IsAllowedOrigin(origin string) bool
}

// OriginFunc adapts a function to OriginValidator
type OriginFunc func(origin string) bool

// IsAllowedOrigin implements OriginValidator
func (f OriginFunc) IsAllowedOrigin(origin string) bool { return f(origin) }

// Manager handles WebSocket connections and event broadcasting
type Manager struct {
	clients      map[*websocket.Conn]*Client
	clientsMutex sync.RWMutex

	broadcast  chan []byte
	register   chan *Client
	unregister chan *websocket.Conn

	originValidator OriginValidator
	logger          logging.Logger

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
	shutdown     chan struct{}
}

// NewManager creates a manager and starts its hub goroutine. A nil
// validator accepts same-origin clients only.
func NewManager(originValidator OriginValidator, logger logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		clients:         make(map[*websocket.Conn]*Client),
		broadcast:       make(chan []byte, 256),
		register:        make(chan *Client, 32),
		unregister:      make(chan *websocket.Conn, 32),
		originValidator: originValidator,
		logger:          logger.WithComponent("websocket"),
		ctx:             ctx,
		cancel:          cancel,
		shutdown:        make(chan struct{}),
	}
	go m.runHub()
	return m
}

// HandleWebSocket upgrades the request and registers the client
func (m *Manager) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	select {
	case <-m.shutdown:
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	default:
	}

	opts := &websocket.AcceptOptions{CompressionMode: websocket.CompressionDisabled}
	if origin := r.Header.Get("Origin"); origin != "" && m.originValidator != nil {
		if !m.originValidator.IsAllowedOrigin(origin) {
			m.logger.Warn(r.Context(), nil, "WebSocket connection rejected", "origin", origin)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		// Validated above; coder/websocket would otherwise reject cross-origin requests.
		opts.InsecureSkipVerify = true
	}

	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		m.logger.Warn(r.Context(), err, "WebSocket upgrade failed", "remote", r.RemoteAddr)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	client := &Client{
		conn:         conn,
		send:         make(chan []byte, sendBuffer),
		lastActivity: time.Now(),
	}

	select {
	case m.register <- client:
	case <-m.ctx.Done():
		conn.Close(websocket.StatusServiceRestart, "Server shutting down")
		return
	}

	go m.handleClient(client)
}

func (m *Manager) runHub() {
	for {
		select {
		case client := <-m.register:
			m.registerClient(client)
		case conn := <-m.unregister:
			m.unregisterClient(conn)
		case message := <-m.broadcast:
			m.broadcastToClients(message)
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Manager) registerClient(client *Client) {
	m.clientsMutex.Lock()
	m.clients[client.conn] = client
	total := len(m.clients)
	m.clientsMutex.Unlock()

	m.logger.Debug(m.ctx, "WebSocket client connected", "clients", total)
}

func (m *Manager) unregisterClient(conn *websocket.Conn) {
	m.clientsMutex.Lock()
	client, exists := m.clients[conn]
	if exists {
		delete(m.clients, conn)
		close(client.send)
	}
	total := len(m.clients)
	m.clientsMutex.Unlock()

	if exists {
		conn.Close(websocket.StatusNormalClosure, "")
		m.logger.Debug(m.ctx, "WebSocket client disconnected", "clients", total)
	}
}

func (m *Manager) broadcastToClients(message []byte) {
	m.clientsMutex.RLock()
	var slow []*websocket.Conn
	for conn, client := range m.clients {
		select {
		case client.send <- message:
		default:
			slow = append(slow, conn)
		}
	}
	m.clientsMutex.RUnlock()

	for _, conn := range slow {
		m.unregisterClient(conn)
	}
}

func (m *Manager) handleClient(client *Client) {
	go m.writeToClient(client)
	m.readFromClient(client)

	select {
	case m.unregister <- client.conn:
	case <-m.ctx.Done():
	}
}

// readFromClient discards client messages until the connection closes
func (m *Manager) readFromClient(client *Client) {
	for {
		_, _, err := client.conn.Read(m.ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && m.ctx.Err() == nil {
				m.logger.Debug(m.ctx, "WebSocket read ended", "error", err.Error())
			}
			return
		}
		client.lastActivity = time.Now()
	}
}

func (m *Manager) writeToClient(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-client.send:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(m.ctx, writeWait)
			err := client.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				m.logger.Debug(m.ctx, "WebSocket write failed", "error", err.Error())
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(m.ctx, writeWait)
			err := client.conn.Ping(ctx)
			cancel()
			if err != nil {
				return
			}

		case <-m.ctx.Done():
			return
		}
	}
}

// Broadcast sends an event to every connected client
func (m *Manager) Broadcast(event types.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		m.logger.Error(m.ctx, err, "Failed to marshal event", "type", event.Type)
		return
	}

	select {
	case m.broadcast <- data:
	case <-m.ctx.Done():
	default:
		m.logger.Warn(m.ctx, nil, "Broadcast channel full, dropping event", "type", event.Type)
	}
}

// Forward broadcasts every event received on events until the channel
// closes, ctx is done, or the manager shuts down
func (m *Manager) Forward(ctx context.Context, events <-chan types.Event) {
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			m.Broadcast(event)
		case <-ctx.Done():
			return
		case <-m.ctx.Done():
			return
		}
	}
}

// ConnectedClients returns the number of connected clients
func (m *Manager) ConnectedClients() int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()
	return len(m.clients)
}

// Shutdown closes every client connection and stops the hub
func (m *Manager) Shutdown() {
	m.shutdownOnce.Do(func() {
		close(m.shutdown)
		m.cancel()

		m.clientsMutex.Lock()
		for conn, client := range m.clients {
			close(client.send)
			conn.Close(websocket.StatusGoingAway, "Server shutdown")
		}
		m.clients = make(map[*websocket.Conn]*Client)
		m.clientsMutex.Unlock()
	})
}
