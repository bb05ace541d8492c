package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"liveclass/internal/app"
	"liveclass/internal/auth"
	"liveclass/internal/config"
	"liveclass/pkg/types"
)

// testEnv is a running application backed by a temp SQLite file and an
// in-process Redis
type testEnv struct {
	app      *app.Application
	baseURL  string
	verifier *auth.Verifier
	redis    *miniredis.Miniredis
}

func startTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)

	cfg := config.DefaultConfig()
	cfg.Database.DatabasePath = filepath.Join(t.TempDir(), "liveclass.db")
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 0
	cfg.Redis.Addr = mr.Addr()
	cfg.Auth.Secret = "integration-test-secret"

	application, err := app.NewApplication(cfg)
	require.NoError(t, err)
	require.NoError(t, application.Start(context.Background()))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := application.Stop(ctx); err != nil {
			t.Logf("stop: %v", err)
		}
	})

	return &testEnv{
		app:      application,
		baseURL:  "http://" + application.GetAddr(),
		verifier: auth.NewVerifier(cfg.Auth.Secret),
		redis:    mr,
	}
}

func (e *testEnv) seedCourse(t *testing.T, courseID, mentorID string, students ...string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.app.Courses().SetCourseMentor(ctx, courseID, mentorID))
	if len(students) > 0 {
		require.NoError(t, e.app.Courses().Enroll(ctx, courseID, students...))
	}
}

func (e *testEnv) token(t *testing.T, userID string, role types.Role) string {
	t.Helper()
	token, err := e.verifier.Issue(userID, role, time.Hour)
	require.NoError(t, err)
	return token
}

// call performs an authenticated request and decodes a JSON body into out
// when out is non-nil. It returns the status code.
func (e *testEnv) call(t *testing.T, method, path, token string, body, out interface{}) int {
	t.Helper()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}

	req, err := http.NewRequest(method, e.baseURL+path, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// client is one signaling connection
type client struct {
	t    *testing.T
	conn *websocket.Conn
	id   string
}

func (e *testEnv) connect(t *testing.T) *client {
	t.Helper()

	url := "ws" + strings.TrimPrefix(e.baseURL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	c := &client{t: t, conn: conn}
	welcome := c.read()
	require.Equal(t, types.MessageTypeWelcome, welcome["type"])
	c.id = welcome["connectionId"].(string)
	return c
}

func (c *client) send(v interface{}) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(v))
}

func (c *client) join(sessionID, userID string, role types.Role) map[string]interface{} {
	c.t.Helper()
	c.send(types.InboundMessage{Type: types.MessageTypeJoin, SessionID: sessionID, UserID: userID, Role: role})
	info := c.read()
	require.Equal(c.t, types.MessageTypeRoomInfo, info["type"])
	return info
}

func (c *client) read() map[string]interface{} {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var frame map[string]interface{}
	require.NoError(c.t, c.conn.ReadJSON(&frame))
	return frame
}

// readType skips frames until one of type msgType arrives
func (c *client) readType(msgType string) map[string]interface{} {
	c.t.Helper()
	for i := 0; i < 10; i++ {
		frame := c.read()
		if frame["type"] == msgType {
			return frame
		}
	}
	c.t.Fatalf("no %s frame received", msgType)
	return nil
}

func participants(frame map[string]interface{}) map[string]interface{} {
	p, _ := frame["participants"].(map[string]interface{})
	return p
}
