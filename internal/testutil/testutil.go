// Package testutil provides real WebSocket connections for tests: an
// in-process httptest server accepts the socket into a registry while the
// returned client side reads what the server delivers.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"

	"chatcore/internal/websocket"
	"chatcore/pkg/types"
)

var upgrader = gorilla.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is the client side of a test connection.
type Client struct {
	conn *gorilla.Conn
}

// AcceptConnection dials an in-process server that accepts the socket into
// registry. It returns the server-side Connection and the client side for
// observing delivered frames.
func AcceptConnection(t *testing.T, registry *websocket.Registry) (*websocket.Connection, *Client) {
	t.Helper()

	accepted := make(chan *websocket.Connection, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Failed to upgrade connection: %v", err)
			return
		}

		conn, err := registry.Accept(ws, r.RemoteAddr, r.UserAgent())
		if err != nil {
			t.Errorf("Failed to accept connection: %v", err)
			_ = ws.Close()
			return
		}
		accepted <- conn

		// Keep the server side reading so control frames are processed.
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	clientConn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial test server: %v", err)
	}
	t.Cleanup(func() { _ = clientConn.Close() })

	select {
	case conn := <-accepted:
		t.Cleanup(func() { _ = conn.Close() })
		return conn, &Client{conn: clientConn}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for connection accept")
		return nil, nil
	}
}

// ReadFrame reads one frame from the client side within the timeout.
func (c *Client) ReadFrame(t *testing.T, timeout time.Duration) *types.Frame {
	t.Helper()

	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read frame: %v", err)
	}

	var frame types.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("Failed to decode frame %q: %v", data, err)
	}
	return &frame
}

// ExpectNoFrame asserts that nothing arrives on the client side within the
// window.
func (c *Client) ExpectNoFrame(t *testing.T, window time.Duration) {
	t.Helper()

	if err := c.conn.SetReadDeadline(time.Now().Add(window)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}

	if _, data, err := c.conn.ReadMessage(); err == nil {
		t.Fatalf("Expected no frame, received %q", data)
	}
}

// WriteFrame sends a frame from the client side.
func (c *Client) WriteFrame(t *testing.T, v any) {
	t.Helper()

	if err := c.conn.WriteJSON(v); err != nil {
		t.Fatalf("Failed to write frame: %v", err)
	}
}

// Close closes the client side of the socket.
func (c *Client) Close() {
	_ = c.conn.Close()
}
