// Package realtime implements the fanout plane: a single actor
// goroutine owning every connection's state, matching the teacher's
// websocket Hub pattern, generalized from a single DM conversation per
// user to named conversation "rooms" a connection can join and leave.
package realtime

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"histeeria-backend/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait             = 10 * time.Second
	pongWait              = 60 * time.Second
	pingPeriod            = (pongWait * 9) / 10
	maxMessageSize        = 8192
	maxConnectionsPerUser = 5
)

// Connection is a single WebSocket connection, belonging to exactly one
// user and zero or more conversation rooms.
type Connection struct {
	ID      string
	UserID  string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *Manager
	mu      sync.Mutex
	closed  bool
}

type registration struct {
	conn *Connection
}

type broadcastToUsers struct {
	userIDs []string
	payload []byte
}

type broadcastToRoom struct {
	conversationID string
	excludeUserID  string
	payload        []byte
}

type roomChange struct {
	conversationID string
	userID         string
	join           bool
}

// Hooks lets the HTTP/engine layer react to client-originated events
// without the manager importing any engine package.
type Hooks struct {
	// OnJoinConversation is called before a join_conversation event is
	// honored; returning false refuses the join (not a member).
	OnJoinConversation func(ctx context.Context, userID, conversationID string) bool
	OnTyping           func(ctx context.Context, userID, conversationID string, isTyping bool)
	// OnUserOnline/OnUserOffline fire on a user's first connect / last
	// disconnect, letting the delivery engine promote sent->delivered and
	// the cache layer record shared presence.
	OnUserOnline  func(ctx context.Context, userID string)
	OnUserOffline func(ctx context.Context, userID string)
}

// Manager owns every connection and conversation room.
type Manager struct {
	connections map[string][]*Connection // userID -> connections
	rooms       map[string]map[string]bool // conversationID -> set of userIDs

	register    chan registration
	unregister  chan registration
	toUsers     chan broadcastToUsers
	toRoom      chan broadcastToRoom
	roomChanges chan roomChange

	mu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc

	hooks Hooks
}

// NewManager creates a realtime fanout manager.
func NewManager(hooks Hooks) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		connections: make(map[string][]*Connection),
		rooms:       make(map[string]map[string]bool),
		register:    make(chan registration, 256),
		unregister:  make(chan registration, 256),
		toUsers:     make(chan broadcastToUsers, 1024),
		toRoom:      make(chan broadcastToRoom, 1024),
		roomChanges: make(chan roomChange, 256),
		ctx:         ctx,
		cancel:      cancel,
		hooks:       hooks,
	}
	return m
}

// Run is the manager's single event loop; every mutation to connection
// or room state happens here, never from a connection's own goroutines.
func (m *Manager) Run() {
	log.Println("[Realtime] manager started")
	defer log.Println("[Realtime] manager stopped")

	for {
		select {
		case reg := <-m.register:
			m.handleRegister(reg.conn)
		case reg := <-m.unregister:
			m.handleUnregister(reg.conn)
		case b := <-m.toUsers:
			m.handleBroadcastToUsers(b)
		case b := <-m.toRoom:
			m.handleBroadcastToRoom(b)
		case rc := <-m.roomChanges:
			m.handleRoomChange(rc)
		case <-m.ctx.Done():
			m.shutdown()
			return
		}
	}
}

// Register starts a connection's read/write pumps and hands it to the loop.
func (m *Manager) Register(userID string, conn *websocket.Conn) *Connection {
	connection := &Connection{
		ID:      uuid.NewString(),
		UserID:  userID,
		Conn:    conn,
		Send:    make(chan []byte, 256),
		Manager: m,
	}
	m.register <- registration{conn: connection}

	go connection.writePump()
	go connection.readPump()

	return connection
}

// Unregister removes a connection.
func (m *Manager) Unregister(conn *Connection) {
	m.unregister <- registration{conn: conn}
}

// BroadcastToUser sends an envelope to every connection of one user.
func (m *Manager) BroadcastToUser(userID string, envelope models.WSEnvelope) {
	payload, err := json.Marshal(envelope)
	if err != nil {
		log.Printf("[Realtime] failed to marshal envelope: %v", err)
		return
	}
	m.toUsers <- broadcastToUsers{userIDs: []string{userID}, payload: payload}
}

// BroadcastToUsers sends an envelope to every connection of several users.
func (m *Manager) BroadcastToUsers(userIDs []string, envelope models.WSEnvelope) {
	payload, err := json.Marshal(envelope)
	if err != nil {
		log.Printf("[Realtime] failed to marshal envelope: %v", err)
		return
	}
	m.toUsers <- broadcastToUsers{userIDs: userIDs, payload: payload}
}

// BroadcastToConversation sends an envelope to every member of a room
// currently present, excluding excludeUserID if non-empty (typically
// the sender, who already has the optimistic copy).
func (m *Manager) BroadcastToConversation(conversationID, excludeUserID string, envelope models.WSEnvelope) {
	payload, err := json.Marshal(envelope)
	if err != nil {
		log.Printf("[Realtime] failed to marshal envelope: %v", err)
		return
	}
	m.toRoom <- broadcastToRoom{conversationID: conversationID, excludeUserID: excludeUserID, payload: payload}
}

// JoinConversation adds a user to a room after the hook confirms
// membership; safe to call repeatedly.
func (m *Manager) JoinConversation(ctx context.Context, userID, conversationID string) bool {
	if m.hooks.OnJoinConversation != nil && !m.hooks.OnJoinConversation(ctx, userID, conversationID) {
		return false
	}
	m.roomChanges <- roomChange{conversationID: conversationID, userID: userID, join: true}
	return true
}

// LeaveConversation removes a user from a room.
func (m *Manager) LeaveConversation(userID, conversationID string) {
	m.roomChanges <- roomChange{conversationID: conversationID, userID: userID, join: false}
}

// IsUserConnected reports whether a user has any live connection.
func (m *Manager) IsUserConnected(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conns, ok := m.connections[userID]
	return ok && len(conns) > 0
}

// Shutdown gracefully stops the manager.
func (m *Manager) Shutdown() {
	m.cancel()
}

// SetOnlineHooks wires the online/offline hooks after construction: the
// delivery engine they call into is built after the manager is already
// running.
func (m *Manager) SetOnlineHooks(onOnline, onOffline func(ctx context.Context, userID string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks.OnUserOnline = onOnline
	m.hooks.OnUserOffline = onOffline
}

func (m *Manager) handleRegister(conn *Connection) {
	m.mu.Lock()

	wasOffline := len(m.connections[conn.UserID]) == 0

	if len(m.connections[conn.UserID]) >= maxConnectionsPerUser {
		oldest := m.connections[conn.UserID][0]
		oldest.Close()
		m.connections[conn.UserID] = m.connections[conn.UserID][1:]
	}
	m.connections[conn.UserID] = append(m.connections[conn.UserID], conn)
	log.Printf("[Realtime] user %s connected (id %s), total %d", conn.UserID, conn.ID, len(m.connections[conn.UserID]))

	if wasOffline {
		m.broadcastPresenceLocked(conn.UserID, true)
	}
	onOnline := m.hooks.OnUserOnline
	m.mu.Unlock()

	if wasOffline && onOnline != nil {
		onOnline(context.Background(), conn.UserID)
	}
}

func (m *Manager) handleUnregister(conn *Connection) {
	m.mu.Lock()

	conns, ok := m.connections[conn.UserID]
	if !ok {
		m.mu.Unlock()
		return
	}
	wentOffline := false
	for i, c := range conns {
		if c.ID == conn.ID {
			close(c.Send)
			m.connections[conn.UserID] = append(conns[:i], conns[i+1:]...)
			if len(m.connections[conn.UserID]) == 0 {
				wentOffline = true
				m.broadcastPresenceLocked(conn.UserID, false)
				delete(m.connections, conn.UserID)
				for _, members := range m.rooms {
					delete(members, conn.UserID)
				}
			}
			break
		}
	}
	onOffline := m.hooks.OnUserOffline
	m.mu.Unlock()

	if wentOffline && onOffline != nil {
		onOffline(context.Background(), conn.UserID)
	}
}

// broadcastPresenceLocked emits a user:online/offline event to every
// other member of every room userID currently belongs to. Must be called
// while holding m.mu for writing, since it reads m.rooms/m.connections
// directly rather than going through the public broadcast channels.
func (m *Manager) broadcastPresenceLocked(userID string, online bool) {
	eventType := models.EventUserOffline
	if online {
		eventType = models.EventUserOnline
	}
	payload, err := json.Marshal(models.WSEnvelope{
		ID:        uuid.NewString(),
		Type:      eventType,
		Data:      models.PresenceInfo{UserID: userID, IsOnline: online},
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		log.Printf("[Realtime] failed to marshal presence envelope: %v", err)
		return
	}

	notified := make(map[string]bool)
	for _, members := range m.rooms {
		if !members[userID] {
			continue
		}
		for otherID := range members {
			if otherID == userID || notified[otherID] {
				continue
			}
			for _, conn := range m.connections[otherID] {
				select {
				case conn.Send <- payload:
				default:
					go m.Unregister(conn)
				}
			}
			notified[otherID] = true
		}
	}
}

func (m *Manager) handleBroadcastToUsers(b broadcastToUsers) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, userID := range b.userIDs {
		for _, conn := range m.connections[userID] {
			select {
			case conn.Send <- b.payload:
			default:
				log.Printf("[Realtime] send buffer full for user %s, closing", userID)
				go m.Unregister(conn)
			}
		}
	}
}

func (m *Manager) handleBroadcastToRoom(b broadcastToRoom) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members := m.rooms[b.conversationID]
	for userID := range members {
		if userID == b.excludeUserID {
			continue
		}
		for _, conn := range m.connections[userID] {
			select {
			case conn.Send <- b.payload:
			default:
				go m.Unregister(conn)
			}
		}
	}
}

func (m *Manager) handleRoomChange(rc roomChange) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rc.join {
		if m.rooms[rc.conversationID] == nil {
			m.rooms[rc.conversationID] = make(map[string]bool)
		}
		m.rooms[rc.conversationID][rc.userID] = true
		return
	}
	if members, ok := m.rooms[rc.conversationID]; ok {
		delete(members, rc.userID)
		if len(members) == 0 {
			delete(m.rooms, rc.conversationID)
		}
	}
}

func (m *Manager) shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for userID, conns := range m.connections {
		for _, c := range conns {
			c.Close()
		}
		delete(m.connections, userID)
	}
	m.rooms = make(map[string]map[string]bool)
}

// Close marks the connection closed, idempotently.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.Conn.Close()
	}
}

func (c *Connection) readPump() {
	defer func() {
		c.Manager.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[Realtime] read error for user %s: %v", c.UserID, err)
			}
			return
		}
		c.handleClientEvent(raw)
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Connection) handleClientEvent(raw []byte) {
	var envelope models.WSEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		log.Printf("[Realtime] failed to unmarshal client event: %v", err)
		return
	}

	var conversationID string
	if envelope.ConversationID != nil {
		conversationID = *envelope.ConversationID
	}

	ctx := context.Background()
	switch envelope.Type {
	case models.EventJoinConversation:
		if conversationID != "" {
			c.Manager.JoinConversation(ctx, c.UserID, conversationID)
		}
	case models.EventLeaveConversation:
		if conversationID != "" {
			c.Manager.LeaveConversation(c.UserID, conversationID)
		}
	case models.EventTypingStart:
		if c.Manager.hooks.OnTyping != nil {
			c.Manager.hooks.OnTyping(ctx, c.UserID, conversationID, true)
		}
	case models.EventTypingStop:
		if c.Manager.hooks.OnTyping != nil {
			c.Manager.hooks.OnTyping(ctx, c.UserID, conversationID, false)
		}
	case models.EventACK:
		// Acknowledgment of a delivered envelope; no server-side state to
		// update beyond what the delivery engine already tracks.
	default:
		log.Printf("[Realtime] unknown client event type: %s", envelope.Type)
	}
}
