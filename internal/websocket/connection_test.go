package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

// Test WebSocket upgrader for creating test connections
var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// createTestWebSocketConnection dials a server that forwards every frame it
// receives to the returned channel.
func createTestWebSocketConnection(t *testing.T) (*websocket.Conn, <-chan []byte) {
	received := make(chan []byte, 100)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Failed to upgrade connection: %v", err)
			return
		}
		defer conn.Close()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				break
			}
			received <- data
		}
	}))

	t.Cleanup(func() { server.Close() })

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to create test WebSocket connection: %v", err)
	}

	return conn, received
}

func TestConnection_InterfaceCompliance(t *testing.T) {
	var _ interfaces.Peer = &Connection{}
}

func TestConnection_NewConnectionInitialization(t *testing.T) {
	wsConn, _ := createTestWebSocketConnection(t)

	conn := NewConnection(wsConn, 100, 5*time.Second)
	defer conn.Close()

	if conn.ID() == "" {
		t.Error("connection id should be assigned")
	}
	if cap(conn.writeCh) != 100 {
		t.Errorf("Expected write channel buffer of 100, got %d", cap(conn.writeCh))
	}
}

func TestConnection_UniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		wsConn, _ := createTestWebSocketConnection(t)
		conn := NewConnection(wsConn, 10, time.Second)
		if seen[conn.ID()] {
			t.Fatalf("duplicate connection id %s", conn.ID())
		}
		seen[conn.ID()] = true
		_ = conn.Close()
	}
}

func TestConnection_SendDelivers(t *testing.T) {
	wsConn, received := createTestWebSocketConnection(t)
	conn := NewConnection(wsConn, 100, 5*time.Second)
	defer conn.Close()

	if err := conn.Send(map[string]string{"type": "welcome"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if err := conn.WriteJSON(map[string]string{"type": "second"}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	for _, want := range []string{"welcome", "second"} {
		select {
		case data := <-received:
			var msg map[string]string
			if err := json.Unmarshal(data, &msg); err != nil {
				t.Fatalf("invalid JSON received: %v", err)
			}
			if msg["type"] != want {
				t.Errorf("expected %s, got %s", want, msg["type"])
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestConnection_SendNeverBlocks(t *testing.T) {
	// No writer goroutine: the buffer fills and stays full
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	conn := &Connection{id: "c1", writeCh: make(chan []byte, 1), writeTimeout: time.Second, ctx: ctx, cancel: cancel}

	if err := conn.Send("first"); err != nil {
		t.Fatalf("first Send failed: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- conn.Send("second") }()

	select {
	case err := <-done:
		if err != interfaces.ErrPeerBufferFull {
			t.Errorf("expected ErrPeerBufferFull, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Send blocked on a full buffer")
	}
}

func TestConnection_SendAfterClose(t *testing.T) {
	wsConn, _ := createTestWebSocketConnection(t)
	conn := NewConnection(wsConn, 10, time.Second)

	if err := conn.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}

	if err := conn.Send("x"); err != interfaces.ErrPeerClosed {
		t.Errorf("expected ErrPeerClosed, got %v", err)
	}
	if err := conn.WriteJSON("x"); err != ErrConnectionClosed {
		t.Errorf("expected ErrConnectionClosed, got %v", err)
	}

	select {
	case <-conn.Done():
	default:
		t.Error("Done should be closed after Close")
	}
}

func TestConnection_InvalidJSON(t *testing.T) {
	wsConn, _ := createTestWebSocketConnection(t)
	conn := NewConnection(wsConn, 10, time.Second)
	defer conn.Close()

	if err := conn.Send(make(chan int)); err != ErrInvalidJSON {
		t.Errorf("expected ErrInvalidJSON, got %v", err)
	}
}

func TestConnection_ConcurrentSends(t *testing.T) {
	wsConn, received := createTestWebSocketConnection(t)
	conn := NewConnection(wsConn, 100, 5*time.Second)
	defer conn.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				if err := conn.WriteJSON(map[string]int{"i": i, "j": j}); err != nil {
					t.Errorf("WriteJSON failed: %v", err)
				}
			}
		}(i)
	}
	wg.Wait()

	for n := 0; n < 50; n++ {
		select {
		case <-received:
		case <-time.After(2 * time.Second):
			t.Fatalf("received only %d of 50 frames", n)
		}
	}
}

func TestConnection_SendKeepsPayloadBytes(t *testing.T) {
	wsConn, received := createTestWebSocketConnection(t)
	conn := NewConnection(wsConn, 100, 5*time.Second)
	defer conn.Close()

	payload := `{"sdp":"a=fmtp:<opus> x&y","note":"<b>"}`
	msg := types.SignalMessage{Type: types.MessageTypeSignal, From: "a", Payload: json.RawMessage(payload)}
	if err := conn.Send(msg); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case data := <-received:
		if !strings.Contains(string(data), payload) {
			t.Errorf("payload altered on the wire: %s", data)
		}
		if strings.HasSuffix(string(data), "\n") {
			t.Error("frame should not carry a trailing newline")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for signal")
	}
}
