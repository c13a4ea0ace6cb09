package websocket

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"chatcore/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// All origins accepted; deployments front this with their own
		// origin policy.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// FrameDispatcher routes one inbound frame. Satisfied by dispatch.Dispatcher.
type FrameDispatcher interface {
	Dispatch(conn *Connection, data []byte)
}

// Handler upgrades HTTP requests and runs one read loop per connection.
type Handler struct {
	registry   *Registry
	dispatcher FrameDispatcher
	cleanup    func(connectionID string)
	readGrace  time.Duration
}

// NewHandler creates a WebSocket handler. readGrace bounds how long a
// socket may stay silent before the transport itself gives up; it should
// comfortably exceed the heartbeat eviction threshold so the supervisor,
// not the read deadline, decides evictions.
func NewHandler(registry *Registry, dispatcher FrameDispatcher, cleanup func(connectionID string), readGrace time.Duration) *Handler {
	return &Handler{
		registry:   registry,
		dispatcher: dispatcher,
		cleanup:    cleanup,
		readGrace:  readGrace,
	}
}

// HandleWebSocket accepts a socket, registers it, and hands it to the read
// loop. The connection starts unauthenticated; identity arrives later as an
// authentication frame.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	conn, err := h.registry.Accept(ws, r.RemoteAddr, r.UserAgent())
	if err != nil {
		log.Printf("Failed to accept connection: %v", err)
		_ = ws.Close()
		return
	}

	log.Printf("Connection accepted: id=%s addr=%s", conn.ID(), conn.RemoteAddr())

	welcome := types.SystemFrame("connected", "connection established")
	welcome.ConnectionID = conn.ID()
	if err := conn.WriteJSON(welcome); err != nil {
		log.Printf("Failed to send welcome frame to connection %s: %v", conn.ID(), err)
	}

	go h.readLoop(conn)
}

// readLoop processes inbound frames in receipt order until the socket
// errors or closes, then runs the disconnect cascade exactly once from its
// perspective (the cascade itself tolerates racing with heartbeat
// eviction).
func (h *Handler) readLoop(conn *Connection) {
	defer h.cleanup(conn.ID())

	ws := conn.conn

	if err := ws.SetReadDeadline(time.Now().Add(h.readGrace)); err != nil {
		log.Printf("Failed to set read deadline for connection %s: %v", conn.ID(), err)
		return
	}
	ws.SetPongHandler(func(string) error {
		conn.Touch(false)
		return ws.SetReadDeadline(time.Now().Add(h.readGrace))
	})

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error on connection %s: %v", conn.ID(), err)
			}
			return
		}

		if err := ws.SetReadDeadline(time.Now().Add(h.readGrace)); err != nil {
			return
		}

		if messageType == websocket.TextMessage {
			h.dispatcher.Dispatch(conn, data)
		}
	}
}
