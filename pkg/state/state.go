package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"nanoweb/pkg/fileutil"
	"nanoweb/pkg/logger"
)

type fileEntry struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

func (e fileEntry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// FileStore is a JSON file-backed key-value store. Every write is persisted
// immediately; expired entries are dropped on load and on save.
type FileStore struct {
	log      *logger.Logger
	filePath string
	data     map[string]fileEntry
	mu       sync.RWMutex
	now      func() time.Time
}

// NewFileStore creates a new file-based state store.
func NewFileStore(log *logger.Logger, filePath string) (*FileStore, error) {
	s := &FileStore{
		log:      log,
		filePath: filePath,
		data:     make(map[string]fileEntry),
		now:      time.Now,
	}

	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading state: %w", err)
	}

	return s, nil
}

// Get retrieves a value from the store.
func (s *FileStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.data[key]
	if !ok || entry.expired(s.now()) {
		return "", false, nil
	}
	return entry.Value, true, nil
}

// Set stores a value.
func (s *FileStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		return nil
	}
	entry := fileEntry{Value: value}
	if ttl > 0 {
		entry.ExpiresAt = s.now().Add(ttl).UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = entry
	return s.saveLocked()
}

// Delete removes a value.
func (s *FileStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[key]; !ok {
		return nil
	}
	delete(s.data, key)
	return s.saveLocked()
}

// Exists checks if a key exists.
func (s *FileStore) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

// Close flushes the store to disk.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

// Compact drops expired entries and rewrites the file when any were
// removed. It returns the number of entries dropped.
func (s *FileStore) Compact(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	dropped := 0
	for _, entry := range s.data {
		if entry.expired(now) {
			dropped++
		}
	}
	if dropped == 0 {
		return 0, nil
	}
	return dropped, s.saveLocked()
}

func (s *FileStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	loaded := make(map[string]fileEntry)
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("unmarshaling state: %w", err)
	}

	now := s.now()
	for key, entry := range loaded {
		if !entry.expired(now) {
			s.data[key] = entry
		}
	}

	s.log.Info("Loaded state", zap.String("file", s.filePath), zap.Int("keys", len(s.data)))
	return nil
}

// saveLocked prunes expired entries and writes the rest. Callers hold mu.
func (s *FileStore) saveLocked() error {
	now := s.now()
	for key, entry := range s.data {
		if entry.expired(now) {
			delete(s.data, key)
		}
	}

	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}
	if err := fileutil.WriteFileAtomic(s.filePath, data, 0o600); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}

	s.log.Debug("Saved state", zap.String("file", s.filePath), zap.Int("keys", len(s.data)))
	return nil
}
