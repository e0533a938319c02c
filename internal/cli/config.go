package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mcoot/anubis-client/internal/cashier"
	"github.com/mcoot/anubis-client/internal/factory"
	"github.com/mcoot/anubis-client/internal/services/dispatcher"
	redisstorage "github.com/mcoot/anubis-client/internal/storage/redis"
	sqlitestorage "github.com/mcoot/anubis-client/internal/storage/sqlite"
	"github.com/mcoot/anubis-client/internal/transport"
)

// Config holds CLI configuration
type Config struct {
	ServerURL string
	APIURL    string
	Store     string
	DBPath    string
	RedisURL  string
	Profile   string
	Output    string
	LogFormat string
	Verbose   bool
	Clamp     bool
	Timeout   time.Duration
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		ServerURL: getEnvOrDefault("ANUBIS_SERVER", transport.DefaultConfig().URL),
		APIURL:    getEnvOrDefault("ANUBIS_API", cashier.DefaultConfig().BaseURL),
		Store:     getEnvOrDefault("ANUBIS_STORE", factory.StorageTypeSQLite),
		DBPath:    getEnvOrDefault("ANUBIS_DB", sqlitestorage.DefaultPath()),
		RedisURL:  os.Getenv("ANUBIS_REDIS_URL"),
		Profile:   getEnvOrDefault("ANUBIS_PROFILE", redisstorage.DefaultConfig().Profile),
		Output:    getEnvOrDefault("ANUBIS_OUTPUT", "text"),
		LogFormat: "text",
		Verbose:   false,
		Timeout:   10 * time.Second,
	}
}

// FactoryConfig translates the CLI settings into an application config
func (c *Config) FactoryConfig(logger *slog.Logger) (factory.Config, error) {
	tcfg := transport.DefaultConfig()
	tcfg.URL = c.ServerURL

	ccfg := cashier.DefaultConfig()
	ccfg.BaseURL = c.APIURL

	dcfg := dispatcher.DefaultConfig()
	if c.Clamp {
		dcfg.AmountPolicy = dispatcher.PolicyClamp
	}

	cfg := factory.Config{
		Transport:   tcfg,
		Cashier:     ccfg,
		Dispatcher:  dcfg,
		Logger:      logger,
		StorageType: c.Store,
	}

	switch c.Store {
	case factory.StorageTypeSQLite, "":
		sqliteCfg := sqlitestorage.DefaultConfig()
		sqliteCfg.Path = c.DBPath
		cfg.SQLiteConfig = &sqliteCfg
	case factory.StorageTypeRedis:
		if c.RedisURL == "" {
			return factory.Config{}, fmt.Errorf("ANUBIS_REDIS_URL required when store is %q", factory.StorageTypeRedis)
		}
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = c.RedisURL
		redisCfg.Profile = c.Profile
		cfg.RedisConfig = &redisCfg
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
