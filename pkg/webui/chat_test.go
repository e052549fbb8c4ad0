package webui

import (
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"nanoweb/pkg/remote"
)

func dialChat(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws/chat"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial chat: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) chatEnvelope {
	t.Helper()
	var env chatEnvelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read envelope: %v", err)
	}
	return env
}

func TestChatWSRelaysMessages(t *testing.T) {
	env := newTestEnv(t)
	env.remote.handler = func(cmd string) *remote.Result {
		if strings.Contains(cmd, "nanobot agent --message 'hello'") {
			return &remote.Result{Stdout: "hi there\n"}
		}
		return nil
	}

	conn := dialChat(t, env)
	if err := conn.WriteJSON(map[string]string{"token": env.token(t)}); err != nil {
		t.Fatalf("send token: %v", err)
	}
	if got := readEnvelope(t, conn); got.Type != "connected" || got.Message != "Connected to nanobot chat" {
		t.Fatalf("unexpected greeting: %+v", got)
	}

	// Blank messages are ignored, so the next frame belongs to "hello".
	if err := conn.WriteJSON(map[string]string{"message": "   "}); err != nil {
		t.Fatalf("send blank: %v", err)
	}
	if err := conn.WriteJSON(map[string]string{"message": "hello"}); err != nil {
		t.Fatalf("send message: %v", err)
	}
	if got := readEnvelope(t, conn); got.Type != "thinking" || got.Message != "Processing..." {
		t.Fatalf("expected thinking, got %+v", got)
	}
	if got := readEnvelope(t, conn); got.Type != "response" || got.Message != "hi there" {
		t.Fatalf("expected response, got %+v", got)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("send invalid: %v", err)
	}
	if got := readEnvelope(t, conn); got.Type != "error" || got.Message != "invalid message format" {
		t.Fatalf("expected format error, got %+v", got)
	}
}

func TestChatWSRejectsBadToken(t *testing.T) {
	env := newTestEnv(t)

	conn := dialChat(t, env)
	if err := conn.WriteJSON(map[string]string{"token": "bogus"}); err != nil {
		t.Fatalf("send token: %v", err)
	}
	if got := readEnvelope(t, conn); got.Type != "error" || got.Message != "Authentication failed" {
		t.Fatalf("expected auth error, got %+v", got)
	}
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("connection must be closed after failed auth")
	}
	if opened, _ := env.remote.counts(); opened != 0 {
		t.Fatalf("no remote client may be opened for a rejected socket")
	}
}
