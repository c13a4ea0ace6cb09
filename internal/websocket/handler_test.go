package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"chatcore/pkg/types"
)

// recordingDispatcher captures every frame the read loop hands over.
type recordingDispatcher struct {
	mu     sync.Mutex
	frames [][]byte
}

func (d *recordingDispatcher) Dispatch(conn *Connection, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames = append(d.frames, append([]byte(nil), data...))
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.frames)
}

func newHandlerTestServer(t *testing.T) (*Registry, *recordingDispatcher, chan string, *websocket.Conn) {
	t.Helper()

	registry := newTestRegistry()
	dispatcher := &recordingDispatcher{}
	cleaned := make(chan string, 4)
	cleanup := func(id string) {
		if _, err := registry.Remove(id); err == nil {
			cleaned <- id
		}
	}

	handler := NewHandler(registry, dispatcher, cleanup, time.Minute)
	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial handler: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	return registry, dispatcher, cleaned, client
}

func readFrame(t *testing.T, client *websocket.Conn) *types.Frame {
	t.Helper()

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("Client read failed: %v", err)
	}
	var frame types.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("Failed to decode frame: %v", err)
	}
	return &frame
}

func TestHandler_AcceptSendsWelcome(t *testing.T) {
	registry, _, _, client := newHandlerTestServer(t)

	welcome := readFrame(t, client)
	if welcome.Type != types.FrameSystem {
		t.Errorf("Expected system welcome frame, got %s", welcome.Type)
	}
	if welcome.ConnectionID == "" {
		t.Error("Welcome frame must carry the assigned connection ID")
	}
	if _, err := registry.Get(welcome.ConnectionID); err != nil {
		t.Errorf("Welcome connection ID not registered: %v", err)
	}
}

func TestHandler_ForwardsFramesInOrder(t *testing.T) {
	_, dispatcher, _, client := newHandlerTestServer(t)
	_ = readFrame(t, client) // welcome

	for _, payload := range []string{`{"type":"ping"}`, `{"type":"chat_message"}`} {
		if err := client.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
			t.Fatalf("Client write failed: %v", err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for dispatcher.count() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("Expected 2 dispatched frames, got %d", dispatcher.count())
		}
		time.Sleep(5 * time.Millisecond)
	}

	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()
	if !strings.Contains(string(dispatcher.frames[0]), "ping") {
		t.Errorf("Frames dispatched out of order: %s", dispatcher.frames[0])
	}
}

func TestHandler_ClientCloseTriggersCleanup(t *testing.T) {
	registry, _, cleaned, client := newHandlerTestServer(t)
	welcome := readFrame(t, client)

	_ = client.Close()

	select {
	case id := <-cleaned:
		if id != welcome.ConnectionID {
			t.Errorf("Cleanup ran for %s, expected %s", id, welcome.ConnectionID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Cleanup did not run after client close")
	}

	if registry.Len() != 0 {
		t.Errorf("Expected empty registry after disconnect, got %d", registry.Len())
	}
}
