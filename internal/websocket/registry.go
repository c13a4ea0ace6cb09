package websocket

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chatcore/pkg/types"
)

// Registry owns the set of live connections. Other components reference
// connections only by ID; removal here is the final step of the disconnect
// cascade, after room and presence cleanup.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	peak        int

	bufferSize   int
	writeTimeout time.Duration
}

// NewRegistry creates a connection registry. bufferSize and writeTimeout are
// applied to every accepted connection's write queue.
func NewRegistry(bufferSize int, writeTimeout time.Duration) *Registry {
	return &Registry{
		connections:  make(map[string]*Connection),
		bufferSize:   bufferSize,
		writeTimeout: writeTimeout,
	}
}

// Accept wraps a raw socket in a Connection, assigns it a unique ID, and
// records it. The connection starts in the Connected state with its accept
// time as initial activity.
func (r *Registry) Accept(conn *websocket.Conn, remoteAddr, userAgent string) (*Connection, error) {
	if conn == nil {
		return nil, ErrNilSocket
	}

	c := newConnection(uuid.New().String(), conn, remoteAddr, userAgent, r.bufferSize, r.writeTimeout)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.connections[c.id] = c
	if len(r.connections) > r.peak {
		r.peak = len(r.connections)
	}

	return c, nil
}

// Remove transitions the connection to Disconnected (unless heartbeat
// eviction already marked it Inactive) and drops it from the registry.
// Callers are responsible for room and presence cleanup before removal.
func (r *Registry) Remove(id string) (*Connection, error) {
	r.mu.Lock()
	conn, ok := r.connections[id]
	if ok {
		delete(r.connections, id)
	}
	r.mu.Unlock()

	if !ok {
		return nil, ErrConnectionNotFound
	}

	conn.MarkDisconnected()
	return conn, nil
}

// Get returns the connection for id.
func (r *Registry) Get(id string) (*Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.connections[id]
	if !ok {
		return nil, ErrConnectionNotFound
	}
	return conn, nil
}

// Touch records inbound activity on the connection. Called on every inbound
// frame and on pong receipt.
func (r *Registry) Touch(id string) error {
	conn, err := r.Get(id)
	if err != nil {
		return err
	}
	conn.Touch(false)
	return nil
}

// Connections returns a snapshot of all live connections.
func (r *Registry) Connections() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		conns = append(conns, conn)
	}
	return conns
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// Peak returns the highest concurrent connection count seen.
func (r *Registry) Peak() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.peak
}

// ActivitySnapshot returns per-connection activity for the stats surface.
func (r *Registry) ActivitySnapshot() []types.ConnectionActivity {
	conns := r.Connections()
	snapshot := make([]types.ConnectionActivity, 0, len(conns))
	for _, conn := range conns {
		snapshot = append(snapshot, conn.Activity())
	}
	return snapshot
}

// CloseAll closes every live connection. Used during shutdown.
func (r *Registry) CloseAll() {
	for _, conn := range r.Connections() {
		_ = conn.Close()
	}
}
