package console

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestChatURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://127.0.0.1:8000", "ws://127.0.0.1:8000/ws/chat"},
		{"https://console.example.com/", "wss://console.example.com/ws/chat"},
		{"https://example.com/nanoweb", "wss://example.com/nanoweb/ws/chat"},
	}
	for _, tc := range tests {
		got, err := ChatURL(tc.base)
		if err != nil {
			t.Fatalf("ChatURL(%q): %v", tc.base, err)
		}
		if got != tc.want {
			t.Fatalf("ChatURL(%q) = %q, want %q", tc.base, got, tc.want)
		}
	}
	if _, err := ChatURL("ftp://x"); err == nil {
		t.Fatalf("expected error for ftp scheme")
	}
}

// fakeChatServer speaks the gateway chat protocol and answers "pong: <msg>".
func fakeChatServer(t *testing.T, wantToken string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var auth map[string]string
		if err := conn.ReadJSON(&auth); err != nil {
			return
		}
		if auth["token"] != wantToken {
			conn.WriteJSON(chatEnvelope{Type: "error", Message: "Authentication failed"})
			return
		}
		conn.WriteJSON(chatEnvelope{Type: "connected", Message: "Connected to nanobot chat"})

		for {
			var in map[string]string
			if err := conn.ReadJSON(&in); err != nil {
				return
			}
			conn.WriteJSON(chatEnvelope{Type: "thinking", Message: "Processing..."})
			conn.WriteJSON(chatEnvelope{Type: "response", Message: "pong: " + in["message"]})
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestChatClientConversation(t *testing.T) {
	srv := fakeChatServer(t, "tok")
	tokens := newTestTokens(t)
	if err := tokens.Set("tok"); err != nil {
		t.Fatalf("set token: %v", err)
	}
	store := NewStore(tokens)

	client, err := NewChatClient(srv.URL, tokens, store)
	if err != nil {
		t.Fatalf("new chat client: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()
	if !client.Connected() {
		t.Fatalf("expected connected")
	}

	if err := client.Send("   "); err != nil {
		t.Fatalf("blank send: %v", err)
	}
	if err := client.Send(" hello "); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := client.WaitIdle(ctx); err != nil {
		t.Fatalf("wait idle: %v", err)
	}

	msgs := store.ChatMessages()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %+v", msgs)
	}
	if msgs[0].Role != RoleSystem || msgs[0].Content != ConnectedNotice {
		t.Fatalf("unexpected greeting: %+v", msgs[0])
	}
	if msgs[1].Role != RoleUser || msgs[1].Content != "hello" {
		t.Fatalf("unexpected user message: %+v", msgs[1])
	}
	if msgs[2].Role != RoleAssistant || msgs[2].Content != "pong: hello" {
		t.Fatalf("unexpected reply: %+v", msgs[2])
	}
	if client.Thinking() {
		t.Fatalf("thinking must be cleared by the response")
	}
}

func TestChatClientRejectedToken(t *testing.T) {
	srv := fakeChatServer(t, "tok")
	tokens := newTestTokens(t)
	if err := tokens.Set("wrong"); err != nil {
		t.Fatalf("set token: %v", err)
	}
	store := NewStore(tokens)

	client, err := NewChatClient(srv.URL, tokens, store)
	if err != nil {
		t.Fatalf("new chat client: %v", err)
	}
	err = client.Connect(context.Background())
	if !errors.Is(err, ErrChatRejected) {
		t.Fatalf("expected ErrChatRejected, got %v", err)
	}
	msgs := store.ChatMessages()
	if len(msgs) != 1 || msgs[0].Content != "Error: Authentication failed" {
		t.Fatalf("expected error system message, got %+v", msgs)
	}
	if client.Connected() {
		t.Fatalf("rejected client must not be connected")
	}
	if err := client.Send("hi"); err != nil || len(store.ChatMessages()) != 1 {
		t.Fatalf("send while disconnected must be a no-op")
	}
}

func TestChatClientChangedSignalsDisconnect(t *testing.T) {
	srv := fakeChatServer(t, "tok")
	tokens := newTestTokens(t)
	if err := tokens.Set("tok"); err != nil {
		t.Fatalf("set token: %v", err)
	}

	client, err := NewChatClient(srv.URL, tokens, NewStore(tokens))
	if err != nil {
		t.Fatalf("new chat client: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}

	changed := client.Changed()
	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case <-changed:
	case <-ctx.Done():
		t.Fatalf("Changed was not signalled on close")
	}
	if client.Connected() {
		t.Fatalf("expected disconnected after close")
	}
	select {
	case <-client.Done():
	case <-ctx.Done():
		t.Fatalf("read loop did not stop")
	}
}
