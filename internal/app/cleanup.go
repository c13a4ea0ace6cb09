package app

import (
	"log"

	"chatcore/internal/presence"
	"chatcore/internal/rooms"
	"chatcore/internal/websocket"
)

// stateForgetter drops per-connection dispatcher state (rate limit windows).
type stateForgetter interface {
	Forget(connectionID string)
}

// NewDisconnectCascade builds the one cleanup path every disconnect goes
// through: room membership, presence, dispatcher state, then registry
// removal and socket close. The cascade is idempotent: a client-initiated
// close racing a heartbeat eviction on the same connection converges on
// identical state.
func NewDisconnectCascade(registry *websocket.Registry, index *rooms.Index, tracker *presence.Tracker, forget stateForgetter) func(connectionID string) {
	return func(connectionID string) {
		index.LeaveAll(connectionID)
		tracker.Deauthenticate(connectionID)
		if forget != nil {
			forget.Forget(connectionID)
		}

		conn, err := registry.Remove(connectionID)
		if err != nil {
			return // already removed by the racing path
		}

		// A join or authenticate racing the cascade can land between the
		// first sweep and the registry removal. Removal makes the
		// connection invisible to new joins, so this sweep is final.
		index.LeaveAll(connectionID)
		tracker.Deauthenticate(connectionID)

		_ = conn.Close()
		log.Printf("Connection removed: id=%s state=%s", connectionID, conn.State())
	}
}
