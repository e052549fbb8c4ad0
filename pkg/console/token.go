// Package console is the terminal side of nanoweb: a REST client for the
// gateway, the console state store and the chat WebSocket client.
package console

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"nanoweb/pkg/fileutil"
)

// TokenStore persists the bearer token between console invocations.
type TokenStore struct {
	path  string
	mu    sync.Mutex
	token string
	read  bool
}

// NewTokenStore stores the token at path.
func NewTokenStore(path string) *TokenStore {
	return &TokenStore{path: path}
}

// Get returns the stored token, or "" when there is none.
func (s *TokenStore) Get() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.read {
		s.read = true
		if data, err := os.ReadFile(s.path); err == nil {
			s.token = strings.TrimSpace(string(data))
		}
	}
	return s.token
}

// Set saves token with owner-only permissions.
func (s *TokenStore) Set(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fileutil.WriteFileAtomic(s.path, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	s.token = token
	s.read = true
	return nil
}

// Clear removes the stored token.
func (s *TokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.read = true
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token: %w", err)
	}
	return nil
}
