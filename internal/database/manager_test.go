package database

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	manager, err := NewManager(filepath.Join(t.TempDir(), "chatcore.db"), time.Minute)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	t.Cleanup(func() { _ = manager.Close() })
	return manager
}

func TestManager_SaveAndRecent(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	id1, err := manager.SaveMessage(ctx, "first", "alice", "general")
	if err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}
	id2, err := manager.SaveMessage(ctx, "second", "bob", "general")
	if err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}
	if id1 == id2 {
		t.Error("Message IDs must be unique")
	}

	messages, err := manager.RecentMessages(ctx, "general", 10)
	if err != nil {
		t.Fatalf("RecentMessages failed: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(messages))
	}
	// Oldest first for replay.
	if messages[0].Content != "first" || messages[1].Content != "second" {
		t.Errorf("Wrong order: %q, %q", messages[0].Content, messages[1].Content)
	}
	if messages[0].Username != "alice" || messages[0].RoomID != "general" {
		t.Errorf("Metadata not persisted: %+v", messages[0])
	}
	if messages[0].CreatedAt.IsZero() {
		t.Error("CreatedAt not persisted")
	}
}

func TestManager_RecentScopedToRoom(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	_, _ = manager.SaveMessage(ctx, "in general", "alice", "general")
	_, _ = manager.SaveMessage(ctx, "in random", "alice", "random")

	messages, err := manager.RecentMessages(ctx, "general", 10)
	if err != nil {
		t.Fatalf("RecentMessages failed: %v", err)
	}
	if len(messages) != 1 || messages[0].Content != "in general" {
		t.Errorf("Room scoping broken: %+v", messages)
	}
}

func TestManager_RecentHonorsLimit(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := manager.SaveMessage(ctx, fmt.Sprintf("message %d", i), "alice", "general"); err != nil {
			t.Fatalf("SaveMessage failed: %v", err)
		}
		// Spacing keeps created_at strictly increasing.
		time.Sleep(2 * time.Millisecond)
	}

	messages, err := manager.RecentMessages(ctx, "general", 3)
	if err != nil {
		t.Fatalf("RecentMessages failed: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(messages))
	}
	// The limit keeps the newest, still returned oldest first.
	if messages[0].Content != "message 2" || messages[2].Content != "message 4" {
		t.Errorf("Wrong window: %q .. %q", messages[0].Content, messages[2].Content)
	}
}

func TestManager_EmptyRoom(t *testing.T) {
	manager := newTestManager(t)

	messages, err := manager.RecentMessages(context.Background(), "nowhere", 10)
	if err != nil {
		t.Fatalf("RecentMessages failed: %v", err)
	}
	if len(messages) != 0 {
		t.Errorf("Expected no messages, got %d", len(messages))
	}
}

func TestManager_ConcurrentSaves(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := manager.SaveMessage(ctx, fmt.Sprintf("concurrent %d", i), "alice", "general"); err != nil {
				t.Errorf("SaveMessage failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	messages, err := manager.RecentMessages(ctx, "general", 50)
	if err != nil {
		t.Fatalf("RecentMessages failed: %v", err)
	}
	if len(messages) != 20 {
		t.Errorf("Expected 20 messages, got %d", len(messages))
	}
}

func TestManager_SaveAfterClose(t *testing.T) {
	manager := newTestManager(t)
	if err := manager.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := manager.SaveMessage(context.Background(), "too late", "alice", ""); err == nil {
		t.Error("Expected error saving after close")
	}

	// Close is idempotent.
	if err := manager.Close(); err != nil {
		t.Errorf("Second close failed: %v", err)
	}
}
