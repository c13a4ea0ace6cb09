package dispatch

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"chatcore/internal/websocket"
	"chatcore/pkg/types"
)

// assistantName is the identity AI replies are attributed to, and the
// mention that triggers an assistant reply in AI-enabled rooms.
const assistantName = "assistant"

// handleChatMessage persists the message and fans it out to the room's
// members, or to every connection when no room is given. The sender
// receives its own message back as delivery confirmation.
func (d *Dispatcher) handleChatMessage(ctx context.Context, conn *websocket.Connection, frame *types.Frame) error {
	if err := frame.ValidateChat(); err != nil {
		return err
	}

	messageID, err := d.messages.SaveMessage(ctx, frame.Content, frame.Username, frame.RoomID)
	if err != nil {
		return fmt.Errorf("failed to persist message: %w", err)
	}

	out := &types.Frame{
		Type:      types.FrameChatMessage,
		Username:  frame.Username,
		Content:   frame.Content,
		RoomID:    frame.RoomID,
		MessageID: messageID,
		Timestamp: time.Now(),
	}

	if frame.RoomID != "" {
		d.broadcaster.BroadcastRoom(frame.RoomID, out, "")
	} else {
		d.broadcaster.BroadcastAll(out, "")
	}

	d.maybeRespond(frame.RoomID, frame.Content, "")

	return nil
}

// handleUserTyping broadcasts an ephemeral typing indicator. Not persisted,
// and never echoed back to the typist.
func (d *Dispatcher) handleUserTyping(ctx context.Context, conn *websocket.Connection, frame *types.Frame) error {
	out := &types.Frame{
		Type:      types.FrameUserTyping,
		Username:  frame.Username,
		RoomID:    frame.RoomID,
		Timestamp: time.Now(),
	}

	if frame.RoomID != "" {
		d.broadcaster.BroadcastRoom(frame.RoomID, out, conn.ID())
	} else {
		d.broadcaster.BroadcastAll(out, conn.ID())
	}

	return nil
}

// handleRoomJoin adds the connection to the room, confirms to the sender,
// notifies the room, and replays recent history in the background.
func (d *Dispatcher) handleRoomJoin(ctx context.Context, conn *websocket.Connection, frame *types.Frame) error {
	if err := frame.ValidateRoom(); err != nil {
		return err
	}

	if err := d.rooms.Join(frame.RoomID, conn.ID()); err != nil {
		return fmt.Errorf("failed to join room: %w", err)
	}

	confirm := &types.Frame{
		Type:         types.FrameRoomJoin,
		RoomID:       frame.RoomID,
		ConnectionID: conn.ID(),
		Username:     conn.Username(),
		Timestamp:    time.Now(),
	}
	if err := conn.WriteJSON(confirm); err != nil {
		log.Printf("Failed to confirm room join to connection %s: %v", conn.ID(), err)
	}

	if name := conn.Username(); name != "" {
		notice := types.SystemFrame("user_joined", name+" joined the room")
		notice.RoomID = frame.RoomID
		notice.Username = name
		d.broadcaster.BroadcastRoom(frame.RoomID, notice, conn.ID())
	}

	if d.history != nil && d.historyLimit > 0 {
		go d.replayHistory(conn, frame.RoomID)
	}

	return nil
}

// handleRoomLeave removes the connection from the room and confirms to the
// sender. Leaving a room the connection never joined still confirms.
func (d *Dispatcher) handleRoomLeave(ctx context.Context, conn *websocket.Connection, frame *types.Frame) error {
	if err := frame.ValidateRoom(); err != nil {
		return err
	}

	d.rooms.Leave(frame.RoomID, conn.ID())

	confirm := &types.Frame{
		Type:         types.FrameRoomLeave,
		RoomID:       frame.RoomID,
		ConnectionID: conn.ID(),
		Username:     conn.Username(),
		Timestamp:    time.Now(),
	}
	if err := conn.WriteJSON(confirm); err != nil {
		log.Printf("Failed to confirm room leave to connection %s: %v", conn.ID(), err)
	}

	if name := conn.Username(); name != "" {
		notice := types.SystemFrame("user_left", name+" left the room")
		notice.RoomID = frame.RoomID
		notice.Username = name
		d.broadcaster.BroadcastRoom(frame.RoomID, notice, conn.ID())
	}

	return nil
}

// handleAuthentication binds the connection to a username, confirms the
// assigned identity to the sender, and announces the user coming online.
func (d *Dispatcher) handleAuthentication(ctx context.Context, conn *websocket.Connection, frame *types.Frame) error {
	if err := frame.ValidateAuthentication(); err != nil {
		return err
	}

	if err := d.presence.Authenticate(conn.ID(), frame.Username); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	confirm := &types.Frame{
		Type:         types.FrameAuthentication,
		Username:     frame.Username,
		ConnectionID: conn.ID(),
		Status:       string(types.StatusOnline),
		Timestamp:    time.Now(),
	}
	if err := conn.WriteJSON(confirm); err != nil {
		log.Printf("Failed to confirm authentication to connection %s: %v", conn.ID(), err)
	}

	notice := types.SystemFrame("user_online", frame.Username+" is online")
	notice.Username = frame.Username
	notice.Status = string(types.StatusOnline)
	d.broadcaster.BroadcastAll(notice, conn.ID())

	return nil
}

// handleAIRequest forwards the prompt to the responder off the read loop.
// The reply goes to the requester only, unless the request carries a room
// ID, in which case it is broadcast to the room.
func (d *Dispatcher) handleAIRequest(ctx context.Context, conn *websocket.Connection, frame *types.Frame) error {
	if frame.Content == "" {
		return types.ErrMissingContent
	}
	if d.responder == nil {
		return ErrAIResponderMissing
	}

	go func() {
		genCtx, cancel := context.WithTimeout(context.Background(), aiTimeout)
		defer cancel()

		reply, err := d.responder.GenerateAIResponse(genCtx, frame.Content, frame.Context)
		if err != nil {
			log.Printf("AI generation failed for connection %s: %v", conn.ID(), err)
			d.errorCount.Add(1)
			d.sendError(conn, "AI service unavailable")
			return
		}

		out := &types.Frame{
			Type:      types.FrameChatMessage,
			Username:  assistantName,
			Content:   reply,
			RoomID:    frame.RoomID,
			Timestamp: time.Now(),
		}

		if frame.RoomID != "" {
			d.broadcaster.BroadcastRoom(frame.RoomID, out, "")
		} else if err := conn.WriteJSON(out); err != nil {
			log.Printf("Failed to deliver AI response to connection %s: %v", conn.ID(), err)
		}
	}()

	return nil
}

// handleFileUploadRequest returns upload authorization metadata. The actual
// transfer happens over the HTTP surface, outside this core.
func (d *Dispatcher) handleFileUploadRequest(ctx context.Context, conn *websocket.Connection, frame *types.Frame) error {
	if d.files == nil {
		return ErrFileServiceMissing
	}

	grant, err := d.files.AuthorizeUpload(ctx, conn.Username(), frame.Filename)
	if err != nil {
		return fmt.Errorf("upload authorization failed: %w", err)
	}

	out := &types.Frame{
		Type:     types.FrameFileUploadRequest,
		Filename: frame.Filename,
		Data: map[string]any{
			"upload_id":  grant.UploadID,
			"upload_url": grant.UploadURL,
			"expires_in": grant.ExpiresIn,
		},
		Timestamp: time.Now(),
	}
	return conn.WriteJSON(out)
}

// handleProjectUpdate and handleTicketUpdate acknowledge the frame and stop
// there. These types are accepted but deliberately not wired to any
// persistence in this core.
func (d *Dispatcher) handleProjectUpdate(ctx context.Context, conn *websocket.Connection, frame *types.Frame) error {
	return d.acknowledgeUpdate(ctx, conn, types.FrameProjectUpdate, frame)
}

func (d *Dispatcher) handleTicketUpdate(ctx context.Context, conn *websocket.Connection, frame *types.Frame) error {
	return d.acknowledgeUpdate(ctx, conn, types.FrameTicketUpdate, frame)
}

func (d *Dispatcher) acknowledgeUpdate(ctx context.Context, conn *websocket.Connection, kind string, frame *types.Frame) error {
	if d.projects != nil {
		if err := d.projects.AcknowledgeUpdate(ctx, kind, frame.Data); err != nil {
			log.Printf("Update acknowledgement collaborator failed for %s: %v", kind, err)
		}
	}

	ack := &types.Frame{
		Type:      kind,
		Data:      map[string]any{"event": "acknowledged"},
		Timestamp: time.Now(),
	}
	return conn.WriteJSON(ack)
}

// handlePing replies pong to the sender only. Activity was already touched
// by the pipeline.
func (d *Dispatcher) handlePing(ctx context.Context, conn *websocket.Connection, frame *types.Frame) error {
	return conn.WriteJSON(&types.Frame{
		Type:      types.FramePong,
		Timestamp: time.Now(),
	})
}

// maybeRespond triggers an assistant reply when the room is AI-enabled, a
// responder is wired, and the message mentions the assistant. Generation
// and broadcast run off the read loop.
func (d *Dispatcher) maybeRespond(roomID, content, excluding string) {
	if d.responder == nil || roomID == "" {
		return
	}
	if _, ok := d.aiRooms[roomID]; !ok {
		return
	}
	if !strings.Contains(content, "@"+assistantName) {
		return
	}

	go func() {
		genCtx, cancel := context.WithTimeout(context.Background(), aiTimeout)
		defer cancel()

		reply, err := d.responder.GenerateAIResponse(genCtx, content, roomID)
		if err != nil {
			log.Printf("Assistant reply failed in room %s: %v", roomID, err)
			d.errorCount.Add(1)
			return
		}

		saveCtx, cancelSave := context.WithTimeout(context.Background(), opTimeout)
		defer cancelSave()
		messageID, err := d.messages.SaveMessage(saveCtx, reply, assistantName, roomID)
		if err != nil {
			log.Printf("Failed to persist assistant reply in room %s: %v", roomID, err)
		}

		out := &types.Frame{
			Type:      types.FrameChatMessage,
			Username:  assistantName,
			Content:   reply,
			RoomID:    roomID,
			MessageID: messageID,
			Timestamp: time.Now(),
		}
		d.broadcaster.BroadcastRoom(roomID, out, excluding)
	}()
}

// replayHistory sends the most recent persisted room messages to a freshly
// joined connection, oldest first. Best effort; failures end the replay.
func (d *Dispatcher) replayHistory(conn *websocket.Connection, roomID string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	messages, err := d.history.RecentMessages(ctx, roomID, d.historyLimit)
	if err != nil {
		log.Printf("Failed to load history for room %s: %v", roomID, err)
		return
	}

	for _, msg := range messages {
		frame := &types.Frame{
			Type:      types.FrameChatMessage,
			Username:  msg.Username,
			Content:   msg.Content,
			RoomID:    msg.RoomID,
			MessageID: msg.ID,
			Timestamp: msg.CreatedAt,
		}
		if err := conn.WriteJSON(frame); err != nil {
			return
		}
	}

	complete := types.SystemFrame("history_complete", "Message history loaded")
	complete.RoomID = roomID
	if err := conn.WriteJSON(complete); err != nil {
		log.Printf("Failed to send history completion to connection %s: %v", conn.ID(), err)
	}
}
