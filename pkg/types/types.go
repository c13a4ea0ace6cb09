package types

import (
	"time"
)

// Inbound frame types accepted by the dispatcher. Any other value in the
// "type" field of an inbound frame yields an error frame to the sender.
const (
	FrameChatMessage       = "chat_message"
	FrameUserTyping        = "user_typing"
	FrameRoomJoin          = "room_join"
	FrameRoomLeave         = "room_leave"
	FrameAuthentication    = "authentication"
	FrameAIRequest         = "ai_request"
	FrameFileUploadRequest = "file_upload_request"
	FrameProjectUpdate     = "project_update"
	FrameTicketUpdate      = "ticket_update"
	FramePing              = "ping"
)

// Outbound-only frame types.
const (
	FramePong   = "pong"
	FrameError  = "error"
	FrameSystem = "system"
)

// ConnectionState tracks the lifecycle of a single socket.
// Transitions are monotonic: Connected may advance to Authenticated, and any
// state may advance to Disconnected or Inactive, both of which are terminal.
type ConnectionState string

const (
	StateConnected     ConnectionState = "connected"
	StateAuthenticated ConnectionState = "authenticated"
	StateDisconnected  ConnectionState = "disconnected"
	StateInactive      ConnectionState = "inactive"
)

// Terminal reports whether no further state transitions are allowed.
func (s ConnectionState) Terminal() bool {
	return s == StateDisconnected || s == StateInactive
}

// ConnectionKind classifies who is on the other end of a socket.
type ConnectionKind string

const (
	KindUser        ConnectionKind = "user"
	KindAIAssistant ConnectionKind = "ai_assistant"
	KindSystem      ConnectionKind = "system"
	KindGuest       ConnectionKind = "guest"
)

// PresenceStatus is the aggregated availability of an authenticated user
// across all of their connections.
type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusAway    PresenceStatus = "away"
	StatusBusy    PresenceStatus = "busy"
	StatusOffline PresenceStatus = "offline"
)

// ValidStatus reports whether s is one of the four presence states.
func ValidStatus(s PresenceStatus) bool {
	switch s {
	case StatusOnline, StatusAway, StatusBusy, StatusOffline:
		return true
	}
	return false
}

// Frame is the wire representation of every message crossing a socket.
// Fields beyond Type are populated per frame type; unused fields are omitted
// from the JSON encoding.
type Frame struct {
	Type          string         `json:"type"`
	Username      string         `json:"username,omitempty"`
	Content       string         `json:"content,omitempty"`
	RoomID        string         `json:"room_id,omitempty"`
	Status        string         `json:"status,omitempty"`
	StatusMessage string         `json:"status_message,omitempty"`
	Context       string         `json:"context,omitempty"`
	Message       string         `json:"message,omitempty"`
	ErrorCode     string         `json:"error_code,omitempty"`
	MessageID     string         `json:"message_id,omitempty"`
	ConnectionID  string         `json:"connection_id,omitempty"`
	Filename      string         `json:"filename,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
	Timestamp     time.Time      `json:"timestamp,omitzero"`
}

// ErrorFrame builds the standard error frame sent back to the sender of a
// frame that could not be processed. msg must not carry internal detail.
func ErrorFrame(msg string) *Frame {
	return &Frame{
		Type:      FrameError,
		Message:   msg,
		Timestamp: time.Now(),
	}
}

// SystemFrame builds a server-originated notice frame.
func SystemFrame(event, msg string) *Frame {
	return &Frame{
		Type:      FrameSystem,
		Message:   msg,
		Data:      map[string]any{"event": event},
		Timestamp: time.Now(),
	}
}

// StoredMessage is a chat message as persisted by the message store.
type StoredMessage struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id,omitempty"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ConnectionActivity is the per-connection slice of a stats snapshot.
type ConnectionActivity struct {
	ConnectionID string    `json:"connection_id"`
	Username     string    `json:"username,omitempty"`
	LastActivity time.Time `json:"last_activity"`
	MessageCount int       `json:"message_count"`
}

// Stats is a read-only aggregate recomputed on demand from the live
// registry, room index, presence tracker, and dispatcher counters.
type Stats struct {
	ActiveConnections  int                  `json:"active_connections"`
	PeakConnections    int                  `json:"peak_connections"`
	AuthenticatedUsers int                  `json:"authenticated_users"`
	Rooms              int                  `json:"rooms"`
	MessagesByType     map[string]int64     `json:"messages_by_type"`
	Errors             int64                `json:"errors"`
	Connections        []ConnectionActivity `json:"per_connection_activity"`
}
