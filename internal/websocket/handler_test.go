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

	"liveclass/internal/rooms"
	"liveclass/internal/router"
	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

type mockLifecycle struct {
	mu        sync.Mutex
	tracked   map[string]bool
	untracked []string
}

func newMockLifecycle() *mockLifecycle {
	return &mockLifecycle{tracked: make(map[string]bool)}
}

func (l *mockLifecycle) Track(peer interfaces.Peer) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tracked[peer.ID()] = true
	return nil
}

func (l *mockLifecycle) Untrack(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.untracked = append(l.untracked, id)
}

func (l *mockLifecycle) untrackedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.untracked)
}

type gatewayFixture struct {
	server    *httptest.Server
	registry  *rooms.Registry
	lifecycle *mockLifecycle
}

func setupGateway(t *testing.T, config Config) *gatewayFixture {
	t.Helper()

	registry := rooms.NewRegistry()
	r := router.NewRouter(registry, nil, router.Config{})
	lifecycle := newMockLifecycle()
	handler := NewHandler(registry, r, lifecycle, config)

	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	t.Cleanup(server.Close)

	return &gatewayFixture{server: server, registry: registry, lifecycle: lifecycle}
}

func (f *gatewayFixture) dial(t *testing.T) (*websocket.Conn, string) {
	t.Helper()

	url := "ws" + strings.TrimPrefix(f.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	welcome := readFrame(t, conn)
	if welcome["type"] != types.MessageTypeWelcome {
		t.Fatalf("first frame = %v, want welcome", welcome["type"])
	}
	return conn, welcome["connectionId"].(string)
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame map[string]interface{}
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return frame
}

func writeFrame(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestHandler_WelcomeAndTrack(t *testing.T) {
	f := setupGateway(t, DefaultConfig())
	_, id := f.dial(t)

	if id == "" {
		t.Fatal("welcome should carry a connection id")
	}
	waitFor(t, func() bool { return f.registry.Stats().Connections == 1 })

	f.lifecycle.mu.Lock()
	tracked := f.lifecycle.tracked[id]
	f.lifecycle.mu.Unlock()
	if !tracked {
		t.Error("connection should be tracked by the lifecycle")
	}
}

func TestHandler_JoinAndSignal(t *testing.T) {
	f := setupGateway(t, DefaultConfig())

	mentor, mentorID := f.dial(t)
	student, studentID := f.dial(t)

	writeFrame(t, mentor, types.InboundMessage{Type: types.MessageTypeJoin, SessionID: "s1", UserID: "m1", Role: types.RoleMentor})
	info := readFrame(t, mentor)
	if info["type"] != types.MessageTypeRoomInfo || info["mentorConnectionId"] != mentorID {
		t.Fatalf("unexpected room-info: %v", info)
	}

	writeFrame(t, student, types.InboundMessage{Type: types.MessageTypeJoin, SessionID: "s1", UserID: "u1", Role: types.RoleStudent})
	info = readFrame(t, student)
	if len(info["participants"].(map[string]interface{})) != 2 {
		t.Errorf("student room-info should list 2 participants: %v", info)
	}

	joined := readFrame(t, mentor)
	if joined["type"] != types.MessageTypeParticipantJoined || joined["connectionId"] != studentID {
		t.Fatalf("unexpected participant-joined: %v", joined)
	}

	writeFrame(t, student, map[string]interface{}{
		"type":    types.MessageTypeSignal,
		"target":  mentorID,
		"payload": map[string]string{"sdp": "offer"},
	})
	signal := readFrame(t, mentor)
	if signal["type"] != types.MessageTypeSignal || signal["from"] != studentID {
		t.Fatalf("unexpected signal: %v", signal)
	}
	if signal["payload"].(map[string]interface{})["sdp"] != "offer" {
		t.Errorf("payload not passed through: %v", signal["payload"])
	}
}

func TestHandler_MalformedFrameKeepsConnectionOpen(t *testing.T) {
	f := setupGateway(t, DefaultConfig())
	conn, _ := f.dial(t)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	writeFrame(t, conn, map[string]string{"type": "join", "sessionId": "s1", "userId": "u1", "role": "admin"})

	// Still usable afterwards
	writeFrame(t, conn, types.InboundMessage{Type: types.MessageTypeJoin, SessionID: "s1", UserID: "u1", Role: types.RoleStudent})
	info := readFrame(t, conn)
	if info["type"] != types.MessageTypeRoomInfo {
		t.Fatalf("expected room-info after malformed frames, got %v", info)
	}
}

func TestHandler_DisconnectLeavesRoom(t *testing.T) {
	f := setupGateway(t, DefaultConfig())

	mentor, _ := f.dial(t)
	student, studentID := f.dial(t)

	writeFrame(t, mentor, types.InboundMessage{Type: types.MessageTypeJoin, SessionID: "s1", UserID: "m1", Role: types.RoleMentor})
	readFrame(t, mentor)
	writeFrame(t, student, types.InboundMessage{Type: types.MessageTypeJoin, SessionID: "s1", UserID: "u1", Role: types.RoleStudent})
	readFrame(t, student)
	readFrame(t, mentor)

	student.Close()

	left := readFrame(t, mentor)
	if left["type"] != types.MessageTypeParticipantLeft || left["connectionId"] != studentID {
		t.Fatalf("unexpected frame after disconnect: %v", left)
	}

	waitFor(t, func() bool { return f.registry.Stats().Connections == 1 })
	waitFor(t, func() bool { return f.lifecycle.untrackedCount() == 1 })

	snapshot, ok := f.registry.Snapshot("s1")
	if !ok || len(snapshot.Participants) != 1 {
		t.Errorf("room should hold only the mentor: %+v", snapshot)
	}
}

func TestHandler_ReadTimeoutClosesSilentConnection(t *testing.T) {
	config := DefaultConfig()
	config.ReadTimeout = 100 * time.Millisecond
	config.PingInterval = time.Hour
	f := setupGateway(t, config)

	conn, _ := f.dial(t)
	waitFor(t, func() bool { return f.registry.Stats().Connections == 1 })

	// The client never reads, so it never answers pings; the server gives up
	waitFor(t, func() bool { return f.registry.Stats().Connections == 0 })

	conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected the server to close the connection")
	}
}

func TestHandler_CheckOrigin(t *testing.T) {
	config := DefaultConfig()
	config.AllowedOrigins = []string{"https://class.example.com"}
	h := NewHandler(rooms.NewRegistry(), nil, nil, config)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "https://class.example.com")
	if !h.checkOrigin(req) {
		t.Error("configured origin should be allowed")
	}

	req.Header.Set("Origin", "https://evil.example.com")
	if h.checkOrigin(req) {
		t.Error("unknown origin should be rejected")
	}

	open := NewHandler(rooms.NewRegistry(), nil, nil, DefaultConfig())
	if !open.checkOrigin(req) {
		t.Error("no configured origins should allow everything")
	}
}

func TestHandler_RoomInfoIsJSON(t *testing.T) {
	f := setupGateway(t, DefaultConfig())
	conn, id := f.dial(t)

	writeFrame(t, conn, types.InboundMessage{Type: types.MessageTypeJoin, SessionID: "s1", UserID: "m1", Role: types.RoleMentor})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	var msg types.RoomInfoMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("room-info is not valid JSON: %v", err)
	}
	if msg.SessionID != "s1" || msg.Participants[id].Role != types.RoleMentor {
		t.Errorf("unexpected room-info: %+v", msg)
	}
}

func TestHandler_MentorFanOutDeliversEverySignal(t *testing.T) {
	f := setupGateway(t, DefaultConfig())

	mentor, _ := f.dial(t)
	writeFrame(t, mentor, types.InboundMessage{Type: types.MessageTypeJoin, SessionID: "s1", UserID: "m1", Role: types.RoleMentor})
	readFrame(t, mentor)

	const students = 3
	const perStudent = 40 // 120 signals in total from one connection
	conns := make([]*websocket.Conn, students)
	ids := make([]string, students)
	for i := range conns {
		conns[i], ids[i] = f.dial(t)
		writeFrame(t, conns[i], types.InboundMessage{Type: types.MessageTypeJoin, SessionID: "s1", UserID: "student-" + ids[i][:8], Role: types.RoleStudent})
		readFrame(t, conns[i])
	}

	for n := 0; n < perStudent; n++ {
		for _, id := range ids {
			writeFrame(t, mentor, map[string]interface{}{
				"type":    types.MessageTypeSignal,
				"target":  id,
				"payload": map[string]int{"candidate": n},
			})
		}
	}

	for i, conn := range conns {
		signals := 0
		for signals < perStudent {
			frame := readFrame(t, conn)
			if frame["type"] == types.MessageTypeSignal {
				signals++
			}
		}
		if signals != perStudent {
			t.Errorf("student %d received %d signals, want %d", i, signals, perStudent)
		}
	}
}
