package console

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"nanoweb/pkg/nanobot"
)

// Chat roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatMessage is one line of the chat transcript. Timestamp is in
// milliseconds since the epoch.
type ChatMessage struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// NewChatMessage stamps a message with a fresh id and the current time.
func NewChatMessage(role, content string) ChatMessage {
	return ChatMessage{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Store is the console state shared by pages. Subscribers are notified
// after every change.
type Store struct {
	mu            sync.RWMutex
	tokens        *TokenStore
	authenticated bool
	serverInfo    *ServerInfo
	dashboard     *nanobot.Dashboard
	chat          []ChatMessage
	subscribers   map[int]func()
	nextID        int
}

// NewStore starts authenticated when a token is already stored.
func NewStore(tokens *TokenStore) *Store {
	return &Store{
		tokens:        tokens,
		authenticated: tokens.Get() != "",
		subscribers:   map[int]func(){},
	}
}

// Subscribe registers fn for change notifications and returns a function
// that removes it.
func (s *Store) Subscribe(fn func()) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify() {
	s.mu.RLock()
	fns := make([]func(), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn()
	}
}

func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

func (s *Store) SetAuthenticated(v bool) {
	s.mu.Lock()
	s.authenticated = v
	s.mu.Unlock()
	s.notify()
}

func (s *Store) ServerInfo() *ServerInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.serverInfo
}

func (s *Store) SetServerInfo(info *ServerInfo) {
	s.mu.Lock()
	s.serverInfo = info
	s.mu.Unlock()
	s.notify()
}

// Logout forgets the token and resets all session state.
func (s *Store) Logout() error {
	err := s.tokens.Clear()
	s.mu.Lock()
	s.authenticated = false
	s.serverInfo = nil
	s.dashboard = nil
	s.chat = nil
	s.mu.Unlock()
	s.notify()
	return err
}

func (s *Store) Dashboard() *nanobot.Dashboard {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dashboard
}

func (s *Store) SetDashboard(d *nanobot.Dashboard) {
	s.mu.Lock()
	s.dashboard = d
	s.mu.Unlock()
	s.notify()
}

// ChatMessages returns a copy of the transcript.
func (s *Store) ChatMessages() []ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ChatMessage, len(s.chat))
	copy(out, s.chat)
	return out
}

func (s *Store) AddChatMessage(msg ChatMessage) {
	s.mu.Lock()
	s.chat = append(s.chat, msg)
	s.mu.Unlock()
	s.notify()
}

func (s *Store) ClearChat() {
	s.mu.Lock()
	s.chat = nil
	s.mu.Unlock()
	s.notify()
}
