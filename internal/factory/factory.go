package factory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mcoot/anubis-client/internal/cashier"
	"github.com/mcoot/anubis-client/internal/dependencies/clock"
	"github.com/mcoot/anubis-client/internal/services/alerts"
	"github.com/mcoot/anubis-client/internal/services/directory"
	"github.com/mcoot/anubis-client/internal/services/dispatcher"
	"github.com/mcoot/anubis-client/internal/services/identity"
	"github.com/mcoot/anubis-client/internal/services/projector"
	"github.com/mcoot/anubis-client/internal/services/session"
	"github.com/mcoot/anubis-client/internal/storage"
	"github.com/mcoot/anubis-client/internal/storage/memory"
	redisstorage "github.com/mcoot/anubis-client/internal/storage/redis"
	sqlitestorage "github.com/mcoot/anubis-client/internal/storage/sqlite"
	"github.com/mcoot/anubis-client/internal/transport"
)

// Storage type constants
const (
	StorageTypeSQLite = "sqlite"
	StorageTypeMemory = "memory"
	StorageTypeRedis  = "redis"
)

// App contains all wired client components
type App struct {
	// Storage
	Storage storage.IdentityStorage

	// External dependencies
	Clock clock.Clock

	// Components
	Identity   *identity.Store
	Conn       *transport.Manager
	Session    *session.Protocol
	Directory  *directory.Directory
	Projector  *projector.Projector
	Dispatcher *dispatcher.Dispatcher
	Alerts     *alerts.Center
	Cashier    *cashier.Client

	logger *slog.Logger
}

// Config holds configuration for the application factory
type Config struct {
	// Transport holds the websocket endpoint and reconnect policy (optional)
	// If URL is empty, transport.DefaultConfig() is used
	Transport transport.Config
	// Cashier holds the HTTP API root (optional)
	Cashier cashier.Config
	// Directory holds the refresh cadence (optional)
	Directory directory.Config
	// Dispatcher holds the amount policy (optional)
	Dispatcher dispatcher.Config
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// StorageType selects the identity backend ("sqlite", "redis" or "memory")
	// If empty, defaults to "sqlite"
	StorageType string
	// SQLiteConfig overrides the database location (optional)
	SQLiteConfig *sqlitestorage.Config
	// RedisConfig holds Redis connection settings (required if StorageType is "redis")
	RedisConfig *redisstorage.Config
}

// New creates a new application with all dependencies wired
func New(cfg Config) (*App, error) {
	// Use no-op logger if not provided
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	store, err := newStorage(cfg)
	if err != nil {
		return nil, err
	}

	return newWithDependencies(store, clock.New(), cfg, logger), nil
}

func newStorage(cfg Config) (storage.IdentityStorage, error) {
	storageType := cfg.StorageType
	if storageType == "" {
		storageType = StorageTypeSQLite
	}

	switch storageType {
	case StorageTypeMemory:
		return memory.New(), nil
	case StorageTypeSQLite:
		sqliteCfg := sqlitestorage.DefaultConfig()
		if cfg.SQLiteConfig != nil {
			sqliteCfg = *cfg.SQLiteConfig
		}
		store, err := sqlitestorage.New(sqliteCfg)
		if err != nil {
			return nil, fmt.Errorf("open identity database: %w", err)
		}
		return store, nil
	case StorageTypeRedis:
		if cfg.RedisConfig == nil {
			return nil, errors.New("RedisConfig required when StorageType is redis")
		}
		store, err := redisstorage.New(*cfg.RedisConfig)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, errors.New("invalid StorageType: must be 'sqlite', 'redis' or 'memory'")
	}
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(store storage.IdentityStorage, clk clock.Clock, cfg Config, logger *slog.Logger) *App {
	ids := identity.New(store, logger)
	conn := transport.New(cfg.Transport, logger)
	sess := session.New(conn, ids, logger)
	dir := directory.New(conn, sess, clk, cfg.Directory, logger)
	proj := projector.New(conn, sess, logger)
	disp := dispatcher.New(conn, proj, cfg.Dispatcher, logger)
	center := alerts.New(conn, clk, logger)
	cash := cashier.New(cfg.Cashier, sess, logger)

	sess.OnTableChange(func(tableID string) {
		dir.SetSeated(tableID != "")
	})

	return &App{
		Storage:    store,
		Clock:      clk,
		Identity:   ids,
		Conn:       conn,
		Session:    sess,
		Directory:  dir,
		Projector:  proj,
		Dispatcher: disp,
		Alerts:     center,
		Cashier:    cash,
		logger:     logger,
	}
}

// Load reads the stored identity without connecting
func (a *App) Load(ctx context.Context) error {
	id, resumed, err := a.Identity.Load(ctx)
	if err != nil {
		return err
	}
	a.logger.Debug("identity loaded",
		slog.Bool("resumed", resumed),
		slog.String("session_id", id.SessionID))
	return nil
}

// Start loads the identity, connects, and begins refreshing the directory
func (a *App) Start(ctx context.Context) error {
	if err := a.Load(ctx); err != nil {
		return err
	}
	if err := a.Conn.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	a.Directory.Start(ctx)
	return nil
}

// Close stops the refresh loop, closes the connection and releases storage
func (a *App) Close() error {
	a.Directory.Stop()
	err := a.Conn.Disconnect()
	if closeErr := a.Storage.Close(); closeErr != nil {
		err = errors.Join(err, closeErr)
	}
	return err
}
