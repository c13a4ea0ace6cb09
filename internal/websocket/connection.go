// Package websocket owns the live socket set: the per-connection wrapper
// with its single-writer goroutine, and the registry that tracks every
// accepted connection by ID.
package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chatcore/pkg/types"
)

// Connection wraps one accepted socket together with its tracked metadata.
// All writes go through a single writer goroutine so concurrent broadcasts
// never interleave on the underlying socket.
type Connection struct {
	id           string
	conn         *websocket.Conn
	writeCh      chan []byte
	writeTimeout time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
	closeOnce    sync.Once

	mu           sync.RWMutex
	state        types.ConnectionState
	kind         types.ConnectionKind
	username     string
	userID       string
	rooms        map[string]struct{}
	connectedAt  time.Time
	lastActivity time.Time
	messageCount int
	remoteAddr   string
	userAgent    string
}

// newConnection wraps a raw socket. Connections are created through
// Registry.Accept, which assigns the ID.
func newConnection(id string, conn *websocket.Conn, remoteAddr, userAgent string, bufferSize int, writeTimeout time.Duration) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	c := &Connection{
		id:           id,
		conn:         conn,
		writeCh:      make(chan []byte, bufferSize),
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
		state:        types.StateConnected,
		kind:         types.KindGuest,
		rooms:        make(map[string]struct{}),
		connectedAt:  now,
		lastActivity: now,
		remoteAddr:   remoteAddr,
		userAgent:    userAgent,
	}

	go c.writeLoop()

	return c
}

// writeLoop is the single writer goroutine for the socket.
func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// WriteJSON queues v for delivery. It fails fast when the connection is
// closed and times out rather than blocking behind a slow client, so one
// stalled socket cannot hold up a broadcast fan-out.
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(c.writeTimeout):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Ping sends a WebSocket control ping directly, bypassing the write queue.
func (c *Connection) Ping() error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}
	return c.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(c.writeTimeout))
}

// Close cancels the writer goroutine and closes the underlying socket.
// Safe to call more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// Done is closed once the connection has been shut down.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// ID returns the unique connection identifier assigned at accept time.
func (c *Connection) ID() string {
	return c.id
}

// Authenticate binds the connection to a user identity and advances the
// state to Authenticated. Terminal states reject the transition.
func (c *Connection) Authenticate(username, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Terminal() {
		return ErrConnectionTerminal
	}

	c.username = username
	c.userID = userID
	c.state = types.StateAuthenticated
	if c.kind == types.KindGuest {
		c.kind = types.KindUser
	}
	return nil
}

// MarkDisconnected moves the connection to the Disconnected terminal state.
// A connection already evicted as Inactive keeps that state.
func (c *Connection) MarkDisconnected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.Terminal() {
		c.state = types.StateDisconnected
	}
}

// MarkInactive moves the connection to the Inactive terminal state. Used
// only by heartbeat eviction.
func (c *Connection) MarkInactive() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.Terminal() {
		c.state = types.StateInactive
	}
}

// Touch records inbound activity and bumps the message counter when count
// is true.
func (c *Connection) Touch(count bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastActivity = time.Now()
	if count {
		c.messageCount++
	}
}

func (c *Connection) State() types.ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Connection) Kind() types.ConnectionKind {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.kind
}

// SetKind overrides the connection classification, e.g. for system or
// assistant connections.
func (c *Connection) SetKind(kind types.ConnectionKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kind = kind
}

func (c *Connection) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

func (c *Connection) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Connection) RemoteAddr() string {
	return c.remoteAddr
}

func (c *Connection) UserAgent() string {
	return c.userAgent
}

func (c *Connection) ConnectedAt() time.Time {
	return c.connectedAt
}

func (c *Connection) LastActivity() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastActivity
}

func (c *Connection) MessageCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.messageCount
}

// Rooms returns a snapshot of the rooms this connection belongs to.
func (c *Connection) Rooms() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// InRoom reports whether the connection is a member of roomID.
func (c *Connection) InRoom(roomID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.rooms[roomID]
	return ok
}

// AddRoom and RemoveRoom keep the connection's room set in sync with room
// membership. Only the room index calls them; everything else reads through
// Rooms and InRoom.
func (c *Connection) AddRoom(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[roomID] = struct{}{}
}

func (c *Connection) RemoveRoom(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, roomID)
}

// Activity returns the per-connection slice of a stats snapshot.
func (c *Connection) Activity() types.ConnectionActivity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return types.ConnectionActivity{
		ConnectionID: c.id,
		Username:     c.username,
		LastActivity: c.lastActivity,
		MessageCount: c.messageCount,
	}
}
