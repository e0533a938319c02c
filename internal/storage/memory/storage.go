package memory

import (
	"context"
	"sync"

	"github.com/mcoot/anubis-client/internal/model"
	"github.com/mcoot/anubis-client/internal/storage"
)

// Storage is an in-memory implementation of the identity storage interface
type Storage struct {
	mu     sync.RWMutex
	values map[string]string
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		values: make(map[string]string),
	}
}

// Ensure Storage implements the interface
var _ storage.IdentityStorage = (*Storage)(nil)

func (s *Storage) GetSessionID(ctx context.Context) (string, error) {
	return s.get(storage.KeySessionID)
}

func (s *Storage) SaveSessionID(ctx context.Context, sessionID string) error {
	s.set(storage.KeySessionID, sessionID)
	return nil
}

func (s *Storage) GetNickname(ctx context.Context) (string, error) {
	return s.get(storage.KeyNickname)
}

func (s *Storage) SaveNickname(ctx context.Context, nickname string) error {
	s.set(storage.KeyNickname, nickname)
	return nil
}

func (s *Storage) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, storage.KeySessionID)
	delete(s.values, storage.KeyNickname)
	return nil
}

func (s *Storage) Close() error {
	return nil
}

func (s *Storage) get(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return "", model.ErrIdentityNotFound
	}
	return v, nil
}

func (s *Storage) set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}
