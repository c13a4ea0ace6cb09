package broadcast

import (
	"sync"
	"testing"
	"time"

	"chatcore/internal/rooms"
	"chatcore/internal/testutil"
	"chatcore/internal/websocket"
	"chatcore/pkg/types"
)

func newTestEngine(t *testing.T) (*Engine, *websocket.Registry, *rooms.Index) {
	registry := websocket.NewRegistry(100, time.Second)
	index := rooms.NewIndex(registry)
	return NewEngine(registry, index), registry, index
}

func TestEngine_SendTo(t *testing.T) {
	engine, registry, _ := newTestEngine(t)
	conn, client := testutil.AcceptConnection(t, registry)

	if err := engine.SendTo(conn.ID(), types.SystemFrame("test", "hello")); err != nil {
		t.Fatalf("SendTo failed: %v", err)
	}

	frame := client.ReadFrame(t, 2*time.Second)
	if frame.Type != types.FrameSystem || frame.Message != "hello" {
		t.Errorf("Unexpected frame: %+v", frame)
	}
}

func TestEngine_SendToUnknownConnection(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	if err := engine.SendTo("missing", types.SystemFrame("test", "hello")); err != websocket.ErrConnectionNotFound {
		t.Errorf("Expected ErrConnectionNotFound, got %v", err)
	}
}

func TestEngine_BroadcastRoomIsolatesFailures(t *testing.T) {
	engine, registry, index := newTestEngine(t)

	alive1, client1 := testutil.AcceptConnection(t, registry)
	alive2, client2 := testutil.AcceptConnection(t, registry)
	dead, _ := testutil.AcceptConnection(t, registry)

	for _, conn := range []*websocket.Connection{alive1, alive2, dead} {
		if err := index.Join("general", conn.ID()); err != nil {
			t.Fatalf("Join failed: %v", err)
		}
	}

	// Closing the server side makes every write to it fail.
	if err := dead.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	var cleanupMu sync.Mutex
	var cleaned []string
	cleanupDone := make(chan struct{}, 1)
	engine.SetCleanup(func(id string) {
		cleanupMu.Lock()
		cleaned = append(cleaned, id)
		cleanupMu.Unlock()
		cleanupDone <- struct{}{}
	})

	report := engine.BroadcastRoom("general", types.SystemFrame("test", "fanout"), "")

	if report.Delivered != 2 {
		t.Errorf("Expected 2 delivered, got %d", report.Delivered)
	}
	if len(report.Failed) != 1 || report.Failed[0] != dead.ID() {
		t.Errorf("Expected failed=[%s], got %v", dead.ID(), report.Failed)
	}

	for _, client := range []*testutil.Client{client1, client2} {
		frame := client.ReadFrame(t, 2*time.Second)
		if frame.Message != "fanout" {
			t.Errorf("Healthy member received wrong frame: %+v", frame)
		}
	}

	select {
	case <-cleanupDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Cleanup was not invoked for the failed connection")
	}
	cleanupMu.Lock()
	defer cleanupMu.Unlock()
	if len(cleaned) != 1 || cleaned[0] != dead.ID() {
		t.Errorf("Expected cleanup for %s, got %v", dead.ID(), cleaned)
	}
}

func TestEngine_BroadcastRoomExcludesSender(t *testing.T) {
	engine, registry, index := newTestEngine(t)

	sender, senderClient := testutil.AcceptConnection(t, registry)
	other, otherClient := testutil.AcceptConnection(t, registry)
	_ = index.Join("general", sender.ID())
	_ = index.Join("general", other.ID())

	report := engine.BroadcastRoom("general", types.SystemFrame("test", "typing"), sender.ID())

	if report.Delivered != 1 {
		t.Errorf("Expected 1 delivered, got %d", report.Delivered)
	}
	if frame := otherClient.ReadFrame(t, 2*time.Second); frame.Message != "typing" {
		t.Errorf("Unexpected frame: %+v", frame)
	}
	senderClient.ExpectNoFrame(t, 200*time.Millisecond)
}

func TestEngine_BroadcastRoomNotReceivedOutsideRoom(t *testing.T) {
	engine, registry, index := newTestEngine(t)

	member, memberClient := testutil.AcceptConnection(t, registry)
	_, outsiderClient := testutil.AcceptConnection(t, registry)
	_ = index.Join("general", member.ID())

	report := engine.BroadcastRoom("general", types.SystemFrame("test", "scoped"), "")

	if report.Delivered != 1 {
		t.Errorf("Expected 1 delivered, got %d", report.Delivered)
	}
	if frame := memberClient.ReadFrame(t, 2*time.Second); frame.Message != "scoped" {
		t.Errorf("Unexpected frame: %+v", frame)
	}
	outsiderClient.ExpectNoFrame(t, 200*time.Millisecond)
}

func TestEngine_BroadcastAll(t *testing.T) {
	engine, registry, _ := newTestEngine(t)

	sender, senderClient := testutil.AcceptConnection(t, registry)
	_, client2 := testutil.AcceptConnection(t, registry)
	_, client3 := testutil.AcceptConnection(t, registry)

	report := engine.BroadcastAll(types.SystemFrame("test", "everyone"), sender.ID())

	if report.Delivered != 2 {
		t.Errorf("Expected 2 delivered, got %d", report.Delivered)
	}
	if len(report.Failed) != 0 {
		t.Errorf("Expected no failures, got %v", report.Failed)
	}

	for _, client := range []*testutil.Client{client2, client3} {
		if frame := client.ReadFrame(t, 2*time.Second); frame.Message != "everyone" {
			t.Errorf("Unexpected frame: %+v", frame)
		}
	}
	senderClient.ExpectNoFrame(t, 200*time.Millisecond)
}

func TestEngine_BroadcastEmptyRoom(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	report := engine.BroadcastRoom("nobody-here", types.SystemFrame("test", "void"), "")
	if report.Delivered != 0 || len(report.Failed) != 0 {
		t.Errorf("Expected empty report, got %+v", report)
	}
}
