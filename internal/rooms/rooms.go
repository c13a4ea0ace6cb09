// Package rooms maps room identifiers to member connections. Rooms are
// created implicitly on first join and dropped when their last member
// leaves; nothing about them is persisted.
package rooms

import (
	"sync"

	"chatcore/internal/websocket"
)

// Index is the room membership map. Membership is kept symmetric with each
// connection's own room set: both sides are updated under the index lock.
type Index struct {
	mu       sync.RWMutex
	members  map[string]map[string]struct{} // roomID -> set of connection IDs
	registry *websocket.Registry
}

// NewIndex creates an empty room index backed by the given registry.
func NewIndex(registry *websocket.Registry) *Index {
	return &Index{
		members:  make(map[string]map[string]struct{}),
		registry: registry,
	}
}

// Join adds the connection to the room, creating the room if needed.
// Idempotent. Unknown connection IDs are rejected so a room never references
// a connection missing from the registry.
func (i *Index) Join(roomID, connectionID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	// Looked up under the lock so a disconnect removing the connection
	// cannot interleave between the check and the insert.
	conn, err := i.registry.Get(connectionID)
	if err != nil {
		return err
	}

	if i.members[roomID] == nil {
		i.members[roomID] = make(map[string]struct{})
	}
	i.members[roomID][connectionID] = struct{}{}
	conn.AddRoom(roomID)

	return nil
}

// Leave removes the connection from the room, dropping the room when it
// becomes empty. Leaving a room the connection is not in is not an error.
func (i *Index) Leave(roomID, connectionID string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.leaveLocked(roomID, connectionID)
}

func (i *Index) leaveLocked(roomID, connectionID string) {
	members, ok := i.members[roomID]
	if !ok {
		return
	}

	delete(members, connectionID)
	if len(members) == 0 {
		delete(i.members, roomID)
	}

	if conn, err := i.registry.Get(connectionID); err == nil {
		conn.RemoveRoom(roomID)
	}
}

// LeaveAll removes the connection from every room it belongs to. Used
// during disconnect cleanup; idempotent.
func (i *Index) LeaveAll(connectionID string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	for roomID, members := range i.members {
		if _, ok := members[connectionID]; ok {
			i.leaveLocked(roomID, connectionID)
		}
	}
}

// Members returns the connection IDs in the room. An unknown room yields an
// empty slice, not an error.
func (i *Index) Members(roomID string) []string {
	i.mu.RLock()
	defer i.mu.RUnlock()

	members := make([]string, 0, len(i.members[roomID]))
	for id := range i.members[roomID] {
		members = append(members, id)
	}
	return members
}

// Count returns the number of rooms with at least one member.
func (i *Index) Count() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.members)
}
