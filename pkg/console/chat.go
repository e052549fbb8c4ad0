package console

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// ConnectedNotice is shown once the chat socket is authenticated.
const ConnectedNotice = "Connected to nanobot. You can chat to add features, manage configuration, and more."

// ErrChatRejected is returned by Connect when the gateway refuses the token.
var ErrChatRejected = errors.New("chat authentication failed")

type chatEnvelope struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ChatURL derives the chat WebSocket URL from the gateway base URL.
func ChatURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/chat"
	u.RawQuery = ""
	return u.String(), nil
}

// ChatClient talks to /ws/chat and records the conversation in a Store.
type ChatClient struct {
	url    string
	tokens *TokenStore
	store  *Store
	dialer *websocket.Dialer

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	thinking  bool
	changed   chan struct{}
	done      chan struct{}

	writeMu sync.Mutex
}

// NewChatClient prepares a client for the gateway at baseURL.
func NewChatClient(baseURL string, tokens *TokenStore, store *Store) (*ChatClient, error) {
	wsURL, err := ChatURL(baseURL)
	if err != nil {
		return nil, err
	}
	return &ChatClient{
		url:     wsURL,
		tokens:  tokens,
		store:   store,
		dialer:  websocket.DefaultDialer,
		changed: make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// Connect dials the socket, authenticates and waits for the greeting.
func (c *ChatClient) Connect(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	if err := c.write(map[string]string{"token": c.tokens.Get()}); err != nil {
		conn.Close()
		return fmt.Errorf("send token: %w", err)
	}

	var first chatEnvelope
	if err := conn.ReadJSON(&first); err != nil {
		conn.Close()
		c.setState(false, false)
		return fmt.Errorf("read greeting: %w", err)
	}
	c.dispatch(first)
	if first.Type != "connected" {
		conn.Close()
		c.setState(false, false)
		return fmt.Errorf("%w: %s", ErrChatRejected, first.Message)
	}

	go c.readLoop(conn)
	return nil
}

func (c *ChatClient) readLoop(conn *websocket.Conn) {
	defer close(c.done)
	for {
		var env chatEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			c.setState(false, false)
			return
		}
		c.dispatch(env)
	}
}

func (c *ChatClient) dispatch(env chatEnvelope) {
	switch env.Type {
	case "connected":
		c.setState(true, false)
		c.store.AddChatMessage(NewChatMessage(RoleSystem, ConnectedNotice))
	case "thinking":
		c.setThinking(true)
	case "response":
		c.store.AddChatMessage(NewChatMessage(RoleAssistant, env.Message))
		c.setThinking(false)
	case "error":
		c.store.AddChatMessage(NewChatMessage(RoleSystem, "Error: "+env.Message))
		c.setThinking(false)
	}
}

// Send posts one message. Blank text or a closed socket is a no-op.
func (c *ChatClient) Send(text string) error {
	text = strings.TrimSpace(text)
	if text == "" || !c.Connected() {
		return nil
	}
	c.store.AddChatMessage(NewChatMessage(RoleUser, text))
	// Set before writing so a fast reply cannot be overtaken.
	c.setThinking(true)
	if err := c.write(map[string]string{"message": text}); err != nil {
		c.setState(false, false)
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// WaitIdle blocks until no reply is pending or the socket closes.
func (c *ChatClient) WaitIdle(ctx context.Context) error {
	for {
		c.mu.Lock()
		idle := !c.thinking || !c.connected
		ch := c.changed
		c.mu.Unlock()
		if idle {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Changed returns a channel closed at the next state change.
func (c *ChatClient) Changed() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changed
}

func (c *ChatClient) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *ChatClient) Thinking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.thinking
}

// Done is closed when the read loop ends.
func (c *ChatClient) Done() <-chan struct{} {
	return c.done
}

// Close sends a close frame and drops the connection.
func (c *ChatClient) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	c.setState(false, false)
	return conn.Close()
}

func (c *ChatClient) write(v any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("not connected")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(v)
}

func (c *ChatClient) setThinking(v bool) {
	c.mu.Lock()
	c.thinking = v
	c.broadcastLocked()
	c.mu.Unlock()
	c.store.notify()
}

func (c *ChatClient) setState(connected, thinking bool) {
	c.mu.Lock()
	c.connected = connected
	c.thinking = thinking
	c.broadcastLocked()
	c.mu.Unlock()
	c.store.notify()
}

func (c *ChatClient) broadcastLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}
