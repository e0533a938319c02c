package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mcoot/anubis-client/internal/model"
	"github.com/mcoot/anubis-client/internal/storage"
)

// Config holds SQLite settings
type Config struct {
	// Path is the database file, or ":memory:"
	Path string
	// BusyTimeout bounds how long a write waits for another process holding the lock
	BusyTimeout time.Duration
}

// DefaultConfig returns a Config that stores the identity under the user's home directory
func DefaultConfig() Config {
	return Config{
		Path:        DefaultPath(),
		BusyTimeout: 5 * time.Second,
	}
}

// DefaultPath is ~/.anubis/identity.db, falling back to a relative path
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".anubis", "identity.db")
	}
	return filepath.Join(home, ".anubis", "identity.db")
}

// Storage is a SQLite-backed key/value store for the local identity
type Storage struct {
	db *sql.DB
}

// Ensure Storage implements the interface
var _ storage.IdentityStorage = (*Storage)(nil)

// New opens (creating if needed) the database at cfg.Path
func New(cfg Config) (*Storage, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("empty sqlite database path")
	}
	if path != ":memory:" {
		parent := filepath.Dir(path)
		if parent != "" && parent != "." {
			if err := os.MkdirAll(parent, 0o700); err != nil {
				return nil, fmt.Errorf("create identity directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases coherent and serializes writers
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = DefaultConfig().BusyTimeout
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(`PRAGMA busy_timeout = %d;`, busy.Milliseconds())); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS kv (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate identity store: %w", err)
	}

	return &Storage{db: db}, nil
}

// Close closes the database
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) GetSessionID(ctx context.Context) (string, error) {
	return s.get(ctx, storage.KeySessionID)
}

func (s *Storage) SaveSessionID(ctx context.Context, sessionID string) error {
	return s.set(ctx, storage.KeySessionID, sessionID)
}

func (s *Storage) GetNickname(ctx context.Context) (string, error) {
	return s.get(ctx, storage.KeyNickname)
}

func (s *Storage) SaveNickname(ctx context.Context, nickname string) error {
	return s.set(ctx, storage.KeyNickname, nickname)
}

func (s *Storage) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key IN (?, ?)`, storage.KeySessionID, storage.KeyNickname)
	return err
}

func (s *Storage) get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", model.ErrIdentityNotFound
		}
		return "", err
	}
	return value, nil
}

func (s *Storage) set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}
