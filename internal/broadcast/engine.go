// Package broadcast delivers outbound payloads to one connection, a room,
// or every connection, with per-recipient failure isolation: a failed or
// slow socket never affects delivery to the others.
package broadcast

import (
	"log"
	"sync"

	"chatcore/internal/rooms"
	"chatcore/internal/websocket"
)

// DeliveryReport summarizes one fan-out: how many recipients received the
// payload and which connection IDs failed.
type DeliveryReport struct {
	Delivered int
	Failed    []string
}

// Broadcaster is the delivery surface the dispatcher works against. It is
// satisfied by the local Engine and by the distribution bridge, so fan-out
// callers never know whether delivery spans processes.
type Broadcaster interface {
	SendTo(connectionID string, payload any) error
	BroadcastRoom(roomID string, payload any, excluding string) *DeliveryReport
	BroadcastAll(payload any, excluding string) *DeliveryReport
}

// CleanupFunc runs the disconnect cascade for a dead connection.
type CleanupFunc func(connectionID string)

// Engine performs local delivery against the live registry and room index.
type Engine struct {
	registry *websocket.Registry
	rooms    *rooms.Index

	mu      sync.Mutex
	cleanup CleanupFunc
}

// NewEngine creates a broadcast engine. The cleanup cascade is wired in
// later via SetCleanup because it depends on components built after the
// engine.
func NewEngine(registry *websocket.Registry, index *rooms.Index) *Engine {
	return &Engine{
		registry: registry,
		rooms:    index,
	}
}

// SetCleanup installs the disconnect cascade invoked for connections whose
// sends fail.
func (e *Engine) SetCleanup(cleanup CleanupFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cleanup = cleanup
}

func (e *Engine) runCleanup(connectionID string) {
	e.mu.Lock()
	cleanup := e.cleanup
	e.mu.Unlock()

	if cleanup != nil {
		cleanup(connectionID)
	}
}

// SendTo attempts a single write to one connection. On failure the
// connection is handed to the cleanup cascade; the send itself never
// removes registry state synchronously.
func (e *Engine) SendTo(connectionID string, payload any) error {
	conn, err := e.registry.Get(connectionID)
	if err != nil {
		return err
	}

	if err := conn.WriteJSON(payload); err != nil {
		log.Printf("Send failed to connection %s: %v", connectionID, err)
		go e.runCleanup(connectionID)
		return err
	}
	return nil
}

// BroadcastRoom fans the payload out to every member of the room except
// excluding. Sends run concurrently and are joined before the report is
// returned; each failed recipient goes through the cleanup cascade.
func (e *Engine) BroadcastRoom(roomID string, payload any, excluding string) *DeliveryReport {
	return e.fanOut(e.rooms.Members(roomID), payload, excluding)
}

// BroadcastAll fans the payload out to every live connection except
// excluding.
func (e *Engine) BroadcastAll(payload any, excluding string) *DeliveryReport {
	conns := e.registry.Connections()
	ids := make([]string, 0, len(conns))
	for _, conn := range conns {
		ids = append(ids, conn.ID())
	}
	return e.fanOut(ids, payload, excluding)
}

func (e *Engine) fanOut(ids []string, payload any, excluding string) *DeliveryReport {
	report := &DeliveryReport{}

	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, id := range ids {
		if id == excluding {
			continue
		}

		conn, err := e.registry.Get(id)
		if err != nil {
			continue // removed between snapshot and send
		}

		wg.Add(1)
		go func(id string, conn *websocket.Connection) {
			defer wg.Done()

			err := conn.WriteJSON(payload)

			mu.Lock()
			if err != nil {
				report.Failed = append(report.Failed, id)
			} else {
				report.Delivered++
			}
			mu.Unlock()
		}(id, conn)
	}

	wg.Wait()

	for _, id := range report.Failed {
		log.Printf("Broadcast delivery failed to connection %s, scheduling cleanup", id)
		go e.runCleanup(id)
	}

	return report
}
