// Package presence tracks per-user availability across devices. A username
// has an entry exactly as long as at least one authenticated connection
// references it.
package presence

import (
	"sync"
	"time"

	"chatcore/internal/websocket"
	"chatcore/pkg/types"
)

// Entry is the tracked state for one username.
type entry struct {
	connections   map[string]struct{} // connection IDs, one per device
	status        types.PresenceStatus
	statusMessage string
	lastSeen      time.Time
}

// UserPresence is the read-only view of one user's availability.
type UserPresence struct {
	Username      string               `json:"username"`
	Status        types.PresenceStatus `json:"status"`
	StatusMessage string               `json:"status_message,omitempty"`
	Connections   int                  `json:"connections"`
	LastSeen      time.Time            `json:"last_seen"`
}

// Tracker maintains the username -> presence mapping.
type Tracker struct {
	mu       sync.RWMutex
	users    map[string]*entry
	byConn   map[string]string // connection ID -> username
	registry *websocket.Registry
}

// NewTracker creates an empty presence tracker backed by the registry.
func NewTracker(registry *websocket.Registry) *Tracker {
	return &Tracker{
		users:    make(map[string]*entry),
		byConn:   make(map[string]string),
		registry: registry,
	}
}

// Authenticate binds the connection to username, transitions it to the
// Authenticated state, and adds it to the user's connection set, creating
// the presence entry with status online on first device.
func (t *Tracker) Authenticate(connectionID, username string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Looked up under the lock so a disconnect removing the connection
	// cannot interleave between the check and the insert.
	conn, err := t.registry.Get(connectionID)
	if err != nil {
		return err
	}

	if err := conn.Authenticate(username, ""); err != nil {
		return err
	}

	e, ok := t.users[username]
	if !ok {
		e = &entry{
			connections: make(map[string]struct{}),
			status:      types.StatusOnline,
		}
		t.users[username] = e
	}
	e.connections[connectionID] = struct{}{}
	e.lastSeen = time.Now()
	t.byConn[connectionID] = username

	return nil
}

// SetStatus updates the user's availability and optional status message.
func (t *Tracker) SetStatus(username string, status types.PresenceStatus, message string) error {
	if !types.ValidStatus(status) {
		return ErrInvalidStatus
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.users[username]
	if !ok {
		return ErrUserNotFound
	}

	e.status = status
	e.statusMessage = message
	e.lastSeen = time.Now()
	return nil
}

// Deauthenticate removes the connection from its user's set. When the last
// device disconnects the user goes offline and the entry is dropped.
// Unknown connection IDs are ignored so disconnect cleanup stays idempotent.
func (t *Tracker) Deauthenticate(connectionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	username, ok := t.byConn[connectionID]
	if !ok {
		return
	}
	delete(t.byConn, connectionID)

	e, ok := t.users[username]
	if !ok {
		return
	}

	delete(e.connections, connectionID)
	if len(e.connections) == 0 {
		e.status = types.StatusOffline
		e.lastSeen = time.Now()
		delete(t.users, username)
	}
}

// OnlineUsers returns the usernames with at least one live connection.
func (t *Tracker) OnlineUsers() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	users := make([]string, 0, len(t.users))
	for username := range t.users {
		users = append(users, username)
	}
	return users
}

// Get returns the presence view for one username.
func (t *Tracker) Get(username string) (*UserPresence, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.users[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &UserPresence{
		Username:      username,
		Status:        e.status,
		StatusMessage: e.statusMessage,
		Connections:   len(e.connections),
		LastSeen:      e.lastSeen,
	}, nil
}

// Snapshot returns the presence view for every tracked user.
func (t *Tracker) Snapshot() []UserPresence {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snapshot := make([]UserPresence, 0, len(t.users))
	for username, e := range t.users {
		snapshot = append(snapshot, UserPresence{
			Username:      username,
			Status:        e.status,
			StatusMessage: e.statusMessage,
			Connections:   len(e.connections),
			LastSeen:      e.lastSeen,
		})
	}
	return snapshot
}

// Len returns the number of users with at least one live connection.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.users)
}
