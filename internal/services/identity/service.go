package identity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"unicode/utf16"

	"github.com/mcoot/anubis-client/internal/model"
	"github.com/mcoot/anubis-client/internal/storage"
)

// Store owns the local anonymous identity. Session id and nickname are persisted;
// the chip balance lives in memory and is only ever set from server pushes.
type Store struct {
	storage storage.IdentityStorage
	logger  *slog.Logger

	mu       sync.RWMutex
	identity model.Identity
}

// New creates a new identity Store
func New(store storage.IdentityStorage, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Store{
		storage: store,
		logger:  logger.With(slog.String("component", "identity")),
	}
}

// Sanitize truncates raw to MaxNicknameLength UTF-16 code units, the length
// browsers and the authority use, and drops anything outside [A-Za-z0-9_].
// It never fails.
func Sanitize(raw string) string {
	out := make([]byte, 0, model.MaxNicknameLength)
	units := 0
	for _, r := range raw {
		units += max(utf16.RuneLen(r), 1)
		if units > model.MaxNicknameLength {
			break
		}
		if isNicknameChar(r) {
			out = append(out, byte(r))
		}
	}
	return string(out)
}

func isNicknameChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_'
}

// Load reads the persisted identity into memory. The bool reports whether a
// session id had been stored; a nickname alone does not count as an identity.
func (s *Store) Load(ctx context.Context) (model.Identity, bool, error) {
	sessionID, err := s.storage.GetSessionID(ctx)
	if err != nil && !errors.Is(err, model.ErrIdentityNotFound) {
		return model.Identity{}, false, fmt.Errorf("load session id: %w", err)
	}
	nickname, err := s.storage.GetNickname(ctx)
	if err != nil && !errors.Is(err, model.ErrIdentityNotFound) {
		return model.Identity{}, false, fmt.Errorf("load nickname: %w", err)
	}

	s.mu.Lock()
	s.identity.SessionID = sessionID
	s.identity.Nickname = Sanitize(nickname)
	id := s.identity
	s.mu.Unlock()

	return id, sessionID != "", nil
}

// Save persists the session id assigned by the authority
func (s *Store) Save(ctx context.Context, sessionID string) error {
	if err := s.storage.SaveSessionID(ctx, sessionID); err != nil {
		return fmt.Errorf("save session id: %w", err)
	}
	s.mu.Lock()
	changed := s.identity.SessionID != sessionID
	s.identity.SessionID = sessionID
	s.mu.Unlock()

	if changed {
		s.logger.Info("session id stored", slog.String("session_id", sessionID))
	}
	return nil
}

// SetNickname sanitizes, stores and persists a nickname, returning the stored value.
// The in-memory value is updated even if persisting fails.
func (s *Store) SetNickname(ctx context.Context, raw string) (string, error) {
	nickname := Sanitize(raw)

	s.mu.Lock()
	s.identity.Nickname = nickname
	s.mu.Unlock()

	if err := s.storage.SaveNickname(ctx, nickname); err != nil {
		return nickname, fmt.Errorf("save nickname: %w", err)
	}
	return nickname, nil
}

// SetChips records a balance reported by the authority
func (s *Store) SetChips(chips int64) {
	if chips < 0 {
		s.logger.Warn("ignoring negative balance", slog.Int64("chips", chips))
		return
	}
	s.mu.Lock()
	s.identity.Chips = chips
	s.mu.Unlock()
}

// Clear forgets the identity both in memory and in storage
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.identity = model.Identity{}
	s.mu.Unlock()

	if err := s.storage.Clear(ctx); err != nil {
		return fmt.Errorf("clear identity: %w", err)
	}
	s.logger.Info("identity cleared")
	return nil
}

// Identity returns a copy of the current identity
func (s *Store) Identity() model.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// SessionID returns the current session id, or "" before the first handshake
func (s *Store) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity.SessionID
}
