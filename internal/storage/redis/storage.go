package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/anubis-client/internal/model"
	"github.com/mcoot/anubis-client/internal/storage"
)

// Storage is a Redis-backed implementation of the identity storage interface
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return NewWithClient(client, cfg), nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	if cfg.Profile == "" {
		cfg.Profile = DefaultConfig().Profile
	}
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the interface
var _ storage.IdentityStorage = (*Storage)(nil)

func (s *Storage) GetSessionID(ctx context.Context) (string, error) {
	return s.get(ctx, sessionIDKey(s.cfg.Profile))
}

func (s *Storage) SaveSessionID(ctx context.Context, sessionID string) error {
	return s.client.Set(ctx, sessionIDKey(s.cfg.Profile), sessionID, s.cfg.IdentityTTL).Err()
}

func (s *Storage) GetNickname(ctx context.Context) (string, error) {
	return s.get(ctx, nicknameKey(s.cfg.Profile))
}

func (s *Storage) SaveNickname(ctx context.Context, nickname string) error {
	return s.client.Set(ctx, nicknameKey(s.cfg.Profile), nickname, s.cfg.IdentityTTL).Err()
}

func (s *Storage) Clear(ctx context.Context) error {
	return s.client.Del(ctx, sessionIDKey(s.cfg.Profile), nicknameKey(s.cfg.Profile)).Err()
}

func (s *Storage) get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", model.ErrIdentityNotFound
		}
		return "", err
	}
	return v, nil
}
