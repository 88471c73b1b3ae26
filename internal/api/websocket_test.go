package api

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	fastws "github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genai-pages/backend/pkg/config"
)

func serve(t *testing.T, app *fiber.App) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.ShutdownWithTimeout(time.Second) })

	return ln.Addr().String()
}

func dialSession(t *testing.T, addr, id string) *fastws.Conn {
	t.Helper()

	conn, _, err := fastws.DefaultDialer.Dial("ws://"+addr+"/ws/sessions/"+id, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *fastws.Conn) map[string]any {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame map[string]any
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestMessageLengthLimit(t *testing.T) {
	app, _ := newTestAppWith(t, func(cfg *config.ServerConfig) { cfg.MaxMessageLength = 10 })
	id := createSession(t, app, "")

	status, out := doJSON(t, app, "POST", "/api/v1/sessions/"+id+"/turns",
		`{"message":"`+strings.Repeat("a", 200)+`"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid_request", out["error_kind"])
	assert.Equal(t, map[string]any{"message": "must be at most 10 characters"}, out["fields"])

	status, out = doJSON(t, app, "POST", "/api/v1/sessions/"+id+"/turns", `{"message":"ünïcödé"}`)
	require.Equal(t, fiber.StatusOK, status, out)

	conn := dialSession(t, serve(t, app), id)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "turn", "content": strings.Repeat("a", 200)}))
	frame := readFrame(t, conn)
	assert.Equal(t, "error", frame["type"])
	assert.Equal(t, "invalid_request", frame["error_kind"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "turn", "content": "hi there"}))
	assert.Equal(t, "status", readFrame(t, conn)["type"])

	var chunks []string
	for {
		frame = readFrame(t, conn)
		if frame["type"] != "chunk" {
			break
		}
		chunks = append(chunks, frame["content"].(string))
	}
	assert.Equal(t, "complete", frame["type"])
	assert.Equal(t, "reply to hi there", strings.Join(chunks, ""))
	assert.Len(t, frame["history"], 4)
}

func TestWebSocketDisconnectCancelsTurn(t *testing.T) {
	app, stub := newTestApp(t)
	id := createSession(t, app, "")

	hang := make(chan error, 1)
	stub.mu.Lock()
	stub.hang = hang
	stub.mu.Unlock()

	conn := dialSession(t, serve(t, app), id)
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "turn", "content": "slow question"}))
	assert.Equal(t, "status", readFrame(t, conn)["type"])
	require.NoError(t, conn.Close())

	select {
	case err := <-hang:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("turn kept running after the client disconnected")
	}
}
