// Package dispatch parses, validates, and routes inbound frames to typed
// handlers. Handler failures are converted to error frames to the sender;
// nothing that happens here may terminate a read loop or drop a connection.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"chatcore/internal/broadcast"
	"chatcore/internal/presence"
	"chatcore/internal/rooms"
	"chatcore/internal/websocket"
	"chatcore/pkg/interfaces"
	"chatcore/pkg/types"
)

// collaborator calls are bounded so a stuck service cannot pin a handler.
const opTimeout = 10 * time.Second

// aiTimeout bounds assistant generation, which runs off the read loop.
const aiTimeout = 30 * time.Second

// HandlerFunc processes one parsed frame for one connection.
type HandlerFunc func(ctx context.Context, conn *websocket.Connection, frame *types.Frame) error

// Deps carries everything a dispatcher routes through. Responder, Files,
// Projects, and History are optional collaborators; their frame types
// degrade to error frames or plain acknowledgements when unset.
type Deps struct {
	Registry    *websocket.Registry
	Rooms       *rooms.Index
	Presence    *presence.Tracker
	Broadcaster broadcast.Broadcaster
	Messages    interfaces.MessageService
	History     interfaces.HistoryService
	Responder   interfaces.AIResponder
	Files       interfaces.FileService
	Projects    interfaces.ProjectService

	RateLimitPerMinute int
	HistoryReplayLimit int
	AIRooms            []string
}

// Dispatcher routes inbound frames through a fixed registration table built
// at construction.
type Dispatcher struct {
	registry     *websocket.Registry
	rooms        *rooms.Index
	presence     *presence.Tracker
	broadcaster  broadcast.Broadcaster
	messages     interfaces.MessageService
	history      interfaces.HistoryService
	responder    interfaces.AIResponder
	files        interfaces.FileService
	projects     interfaces.ProjectService
	limiter      *RateLimiter
	aiRooms      map[string]struct{}
	historyLimit int

	handlers map[string]HandlerFunc

	countersMu     sync.Mutex
	messagesByType map[string]int64
	errorCount     atomic.Int64
}

// NewDispatcher builds the dispatcher and registers one handler per known
// frame type.
func NewDispatcher(deps Deps) *Dispatcher {
	aiRooms := make(map[string]struct{}, len(deps.AIRooms))
	for _, room := range deps.AIRooms {
		aiRooms[room] = struct{}{}
	}

	d := &Dispatcher{
		registry:       deps.Registry,
		rooms:          deps.Rooms,
		presence:       deps.Presence,
		broadcaster:    deps.Broadcaster,
		messages:       deps.Messages,
		history:        deps.History,
		responder:      deps.Responder,
		files:          deps.Files,
		projects:       deps.Projects,
		limiter:        NewRateLimiter(deps.RateLimitPerMinute),
		aiRooms:        aiRooms,
		historyLimit:   deps.HistoryReplayLimit,
		handlers:       make(map[string]HandlerFunc),
		messagesByType: make(map[string]int64),
	}

	d.register(types.FrameChatMessage, d.handleChatMessage)
	d.register(types.FrameUserTyping, d.handleUserTyping)
	d.register(types.FrameRoomJoin, d.handleRoomJoin)
	d.register(types.FrameRoomLeave, d.handleRoomLeave)
	d.register(types.FrameAuthentication, d.handleAuthentication)
	d.register(types.FrameAIRequest, d.handleAIRequest)
	d.register(types.FrameFileUploadRequest, d.handleFileUploadRequest)
	d.register(types.FrameProjectUpdate, d.handleProjectUpdate)
	d.register(types.FrameTicketUpdate, d.handleTicketUpdate)
	d.register(types.FramePing, d.handlePing)

	return d
}

func (d *Dispatcher) register(frameType string, handler HandlerFunc) {
	d.handlers[frameType] = handler
}

// Dispatch runs the processing pipeline for one inbound frame: parse,
// validate the type, touch activity and counters, then invoke the handler.
// Every failure path ends in an error frame to the sender with the
// connection left open.
func (d *Dispatcher) Dispatch(conn *websocket.Connection, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from handler panic on connection %s: %v", conn.ID(), r)
			d.errorCount.Add(1)
			d.sendError(conn, "internal error")
		}
	}()

	var frame types.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		d.errorCount.Add(1)
		d.sendError(conn, "invalid message format")
		return
	}

	if frame.Type == "" {
		d.errorCount.Add(1)
		d.sendError(conn, "missing message type")
		return
	}

	handler, ok := d.handlers[frame.Type]
	if !ok {
		d.errorCount.Add(1)
		d.sendError(conn, "unknown message type: "+frame.Type)
		return
	}

	conn.Touch(true)
	d.countFrame(frame.Type)

	if frame.Type != types.FramePing && !d.limiter.Allow(conn.ID()) {
		d.errorCount.Add(1)
		d.sendError(conn, "rate limit exceeded")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := handler(ctx, conn, &frame); err != nil {
		log.Printf("Handler %s failed for connection %s: %v", frame.Type, conn.ID(), err)
		d.errorCount.Add(1)
		d.sendError(conn, userFacingMessage(frame.Type, err))
	}
}

// Forget drops per-connection dispatcher state. Part of disconnect cleanup.
func (d *Dispatcher) Forget(connectionID string) {
	d.limiter.Forget(connectionID)
}

// Counters returns a copy of the per-type frame counters.
func (d *Dispatcher) Counters() map[string]int64 {
	d.countersMu.Lock()
	defer d.countersMu.Unlock()

	counters := make(map[string]int64, len(d.messagesByType))
	for frameType, count := range d.messagesByType {
		counters[frameType] = count
	}
	return counters
}

// Errors returns the running error counter.
func (d *Dispatcher) Errors() int64 {
	return d.errorCount.Load()
}

func (d *Dispatcher) countFrame(frameType string) {
	d.countersMu.Lock()
	d.messagesByType[frameType]++
	d.countersMu.Unlock()
}

// sendError delivers an error frame to the sender only. A failed delivery
// here means the socket is already dying; the read loop will notice.
func (d *Dispatcher) sendError(conn *websocket.Connection, msg string) {
	if err := conn.WriteJSON(types.ErrorFrame(msg)); err != nil {
		log.Printf("Failed to send error frame to connection %s: %v", conn.ID(), err)
	}
}

// userFacingMessage maps handler errors to messages that do not leak
// internal detail. Validation errors are safe to echo; collaborator
// failures get a generic message per frame type.
func userFacingMessage(frameType string, err error) string {
	validationErrs := []error{
		types.ErrMissingUsername, types.ErrMissingContent, types.ErrMissingRoomID,
		types.ErrInvalidUsername, types.ErrInvalidRoomID, types.ErrContentTooLarge,
		types.ErrInvalidStatus,
	}
	for _, validation := range validationErrs {
		if errors.Is(err, validation) {
			return validation.Error()
		}
	}

	switch {
	case errors.Is(err, ErrAIResponderMissing), errors.Is(err, interfaces.ErrAIUnavailable):
		return "AI service unavailable"
	case errors.Is(err, ErrFileServiceMissing), errors.Is(err, interfaces.ErrUploadRejected):
		return "upload could not be authorized"
	case errors.Is(err, interfaces.ErrServiceUnavailable):
		return "service temporarily unavailable"
	}

	switch frameType {
	case types.FrameChatMessage:
		return "message could not be delivered"
	case types.FrameAIRequest:
		return "AI service unavailable"
	case types.FrameFileUploadRequest:
		return "upload could not be authorized"
	default:
		return "request could not be processed"
	}
}
