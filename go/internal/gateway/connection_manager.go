package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/basta/go/internal/events"
	"github.com/rs/zerolog/log"
)

// MessageHandler handles one message a client sent over its socket.
type MessageHandler func(ctx context.Context, c *Connection, msg ClientMessage)

// ConnectionManager manages WebSocket connections grouped into game rooms
type ConnectionManager struct {
	// Connection pools organized by game code
	rooms map[string]map[*Connection]bool
	mu    sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan BroadcastMessage
}

// Connection represents a WebSocket connection to a player
type Connection struct {
	ID       string
	PlayerID int64
	Code     string
	Conn     *websocket.Conn
	Send     chan []byte
	Manager  *ConnectionManager

	ConnectedAt time.Time

	ctx     context.Context
	cancel  context.CancelFunc
	handler MessageHandler
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	HandlerTimeout  time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage is an event waiting to be delivered to a room
type BroadcastMessage struct {
	Event events.Event
	// Target, when set, receives the event alone.
	Target *Connection
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		HandlerTimeout:  10 * time.Second,
		MaxMessageSize:  16 * 1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      256,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		rooms: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan BroadcastMessage, 1000),
	}
}

// Start delivers queued broadcasts until ctx is done
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.closeAll()
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// Publish queues an event for the room it is addressed to.
func (cm *ConnectionManager) Publish(_ context.Context, e events.Event) error {
	select {
	case cm.broadcastCh <- BroadcastMessage{Event: e}:
		return nil
	default:
		log.Warn().Str("game_code", e.GameCode).Str("event_type", string(e.Type)).Msg("broadcast channel full, dropping message")
		return fmt.Errorf("broadcast channel full, dropped %s", e.Type)
	}
}

// SendTo queues an event for a single connection.
func (cm *ConnectionManager) SendTo(c *Connection, e events.Event) {
	select {
	case cm.broadcastCh <- BroadcastMessage{Event: e, Target: c}:
	default:
		log.Warn().
			Str("connection_id", c.ID).
			Int64("player_id", c.PlayerID).
			Msg("broadcast channel full, dropping direct message")
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and joins it to
// the room of code.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, code string, playerID int64, handler MessageHandler) (*Connection, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	connection := &Connection{
		ID:          uuid.New().String(),
		PlayerID:    playerID,
		Code:        code,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBuffer),
		Manager:     cm,
		ConnectedAt: time.Now(),
		ctx:         ctx,
		cancel:      cancel,
		handler:     handler,
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Int64("player_id", playerID).
		Str("game_code", code).
		Msg("WebSocket connection established")

	return connection, nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.rooms[conn.Code] == nil {
		cm.rooms[conn.Code] = make(map[*Connection]bool)
	}
	cm.rooms[conn.Code][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("game_code", conn.Code).
		Int("total_connections", len(cm.rooms[conn.Code])).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.unregisterLocked(conn)
}

func (cm *ConnectionManager) unregisterLocked(conn *Connection) {
	connections, exists := cm.rooms[conn.Code]
	if !exists {
		return
	}
	if _, exists := connections[conn]; !exists {
		return
	}
	delete(connections, conn)
	close(conn.Send)
	conn.cancel()

	if len(connections) == 0 {
		delete(cm.rooms, conn.Code)
	}

	log.Info().
		Str("connection_id", conn.ID).
		Int64("player_id", conn.PlayerID).
		Str("game_code", conn.Code).
		Msg("connection unregistered")
}

// CloseRoom disconnects every client of a game. Pending messages are
// flushed before the close frame.
func (cm *ConnectionManager) CloseRoom(code string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	n := len(cm.rooms[code])
	for conn := range cm.rooms[code] {
		cm.unregisterLocked(conn)
	}
	if n > 0 {
		log.Info().Str("game_code", code).Int("connections", n).Msg("room closed")
	}
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	for _, connections := range cm.rooms {
		for conn := range connections {
			cm.unregisterLocked(conn)
		}
	}
}

func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	code := message.Event.GameCode

	var targets []*Connection
	cm.mu.RLock()
	if message.Target != nil {
		if cm.rooms[code][message.Target] {
			targets = append(targets, message.Target)
		}
	} else {
		for conn := range cm.rooms[code] {
			targets = append(targets, conn)
		}
	}
	cm.mu.RUnlock()

	if len(targets) > 0 {
		data, err := json.Marshal(message.Event)
		if err != nil {
			log.Error().Err(err).Msg("failed to marshal event for broadcast")
			return
		}
		cm.deliver(targets, data)
	}

	log.Debug().
		Str("event_type", string(message.Event.Type)).
		Str("game_code", code).
		Int("connections", len(targets)).
		Msg("event broadcasted")

	if message.Event.Type == events.TypeGameDeleted && message.Target == nil {
		cm.CloseRoom(code)
	}
}

func (cm *ConnectionManager) deliver(targets []*Connection, data []byte) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	for _, conn := range targets {
		if !cm.rooms[conn.Code][conn] {
			continue
		}
		select {
		case conn.Send <- data:
		default:
			// Connection is slow/dead, close it
			log.Warn().
				Str("connection_id", conn.ID).
				Int64("player_id", conn.PlayerID).
				Msg("connection send buffer full, closing connection")
			cm.unregisterLocked(conn)
		}
	}
}

// Stats returns connection counts per room
func (cm *ConnectionManager) Stats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{Rooms: make(map[string]int, len(cm.rooms))}
	for code, connections := range cm.rooms {
		stats.Rooms[code] = len(connections)
		stats.TotalConnections += len(connections)
	}
	return stats
}

// ConnectionStats is returned by Stats
type ConnectionStats struct {
	TotalConnections int            `json:"totalConnections"`
	Rooms            map[string]int `json:"rooms"`
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			return
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

func (c *Connection) handleClientMessage(raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Debug().Err(err).Str("connection_id", c.ID).Msg("ignoring malformed client message")
		return
	}
	if c.handler == nil {
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, c.Manager.config.HandlerTimeout)
	defer cancel()
	c.handler(ctx, c, msg)
}
