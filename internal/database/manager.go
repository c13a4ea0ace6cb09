// Package database implements the MessageService collaborator on SQLite.
// Writes funnel through a single goroutine; SQLite handles concurrent reads
// but contends badly on concurrent writers.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"chatcore/pkg/types"
)

// Manager is the SQLite-backed message store.
type Manager struct {
	db           *sql.DB
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// writeOperation is one queued write with its completion channel.
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens (or creates) the store at path and starts the writer
// goroutine.
func NewManager(path string, timeout time.Duration) (*Manager, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(timeout)
	db.SetConnMaxIdleTime(timeout / 3)

	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	manager := &Manager{
		db:           db,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// writeLoop serializes all writes, retrying each failed write once.
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil {
				log.Printf("Database write failed, retrying: %v", err)
				time.Sleep(time.Second)
				err = op.operation(m.db)
				if err != nil {
					log.Printf("Database write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-m.shutdown:
			// Drain queued writes before exit.
			for {
				select {
				case op := <-m.writeChannel:
					op.result <- op.operation(m.db)
				default:
					return
				}
			}
		}
	}
}

// submitWrite queues op and waits for its result or context expiry.
func (m *Manager) submitWrite(ctx context.Context, op func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrStoreClosed
	}
	m.mu.RUnlock()

	write := writeOperation{operation: op, result: make(chan error, 1)}

	select {
	case m.writeChannel <- write:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-write.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SaveMessage persists one chat message and returns its assigned ID.
// Implements interfaces.MessageService.
func (m *Manager) SaveMessage(ctx context.Context, content, username, roomID string) (string, error) {
	id := uuid.New().String()
	createdAt := time.Now().UTC()

	err := m.submitWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO messages (id, room_id, username, content, created_at) VALUES (?, ?, ?, ?, ?)`,
			id, roomID, username, content, createdAt)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to save message: %w", err)
	}

	return id, nil
}

// RecentMessages returns up to limit messages for the room, oldest first.
// Implements interfaces.HistoryService.
func (m *Manager) RecentMessages(ctx context.Context, roomID string, limit int) ([]*types.StoredMessage, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, room_id, username, content, created_at
		 FROM (
		     SELECT id, room_id, username, content, created_at
		     FROM messages WHERE room_id = ?
		     ORDER BY created_at DESC LIMIT ?
		 ) ORDER BY created_at ASC`,
		roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []*types.StoredMessage
	for rows.Next() {
		msg := &types.StoredMessage{}
		if err := rows.Scan(&msg.ID, &msg.RoomID, &msg.Username, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return messages, nil
}

// Close stops the writer goroutine and closes the database.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	return m.db.Close()
}
