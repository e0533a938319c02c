package storage

import (
	"context"
)

// Persisted keys. Session id and nickname are stored separately so either can be
// rewritten without touching the other.
const (
	KeySessionID = "anubis_session_id"
	KeyNickname  = "anubis_nickname"
)

// IdentityStorage persists the local identity across process restarts.
// Getters return model.ErrIdentityNotFound when the key has never been written.
type IdentityStorage interface {
	GetSessionID(ctx context.Context) (string, error)
	SaveSessionID(ctx context.Context, sessionID string) error

	GetNickname(ctx context.Context) (string, error)
	SaveNickname(ctx context.Context, nickname string) error

	// Clear removes both keys
	Clear(ctx context.Context) error

	Close() error
}
