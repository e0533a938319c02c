package cli

import (
	"log/slog"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	cfg    *Config
	out    *Output
	logger *slog.Logger
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cfg = DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "anubis",
		Short: "Terminal client for the Anubis poker room",
		Long: `anubis is a terminal client for the Anubis poker room.

Identities are anonymous: the room assigns a session id on first connect and
the client keeps it locally so chips and seat survive restarts and reconnects.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger = newLogger(cmd)
			out = NewOutput(cfg.Output, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if out.JSON() {
				pterm.DisableStyling()
			}
			return nil
		},
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Websocket URL (env: ANUBIS_SERVER)")
	rootCmd.PersistentFlags().StringVar(&cfg.APIURL, "api", cfg.APIURL, "Cashier HTTP URL (env: ANUBIS_API)")
	rootCmd.PersistentFlags().StringVar(&cfg.Store, "store", cfg.Store, "Identity store: sqlite, redis, memory (env: ANUBIS_STORE)")
	rootCmd.PersistentFlags().StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite identity database (env: ANUBIS_DB)")
	rootCmd.PersistentFlags().StringVar(&cfg.RedisURL, "redis-url", cfg.RedisURL, "Redis URL for the redis store (env: ANUBIS_REDIS_URL)")
	rootCmd.PersistentFlags().StringVar(&cfg.Profile, "profile", cfg.Profile, "Identity namespace in the redis store (env: ANUBIS_PROFILE)")
	rootCmd.PersistentFlags().StringVarP(&cfg.Output, "output", "o", cfg.Output, "Output format: text, json (env: ANUBIS_OUTPUT)")
	rootCmd.PersistentFlags().StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: text, json")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Verbose output")
	rootCmd.PersistentFlags().DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "How long to wait for the session handshake")

	// Add subcommands
	rootCmd.AddCommand(newIdentityCmd())
	rootCmd.AddCommand(newNicknameCmd())
	rootCmd.AddCommand(newTablesCmd())
	rootCmd.AddCommand(newPlayCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newCashierCmd())

	return rootCmd
}

// newLogger writes to stderr so stdout stays parseable with -o json
func newLogger(cmd *cobra.Command) *slog.Logger {
	if cfg.LogFormat == "json" {
		level := slog.LevelWarn
		if cfg.Verbose {
			level = slog.LevelDebug
		}
		return slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	}

	level := pterm.LogLevelWarn
	if cfg.Verbose {
		level = pterm.LogLevelDebug
	}
	return slog.New(pterm.NewSlogHandler(pterm.DefaultLogger.WithWriter(cmd.ErrOrStderr()).WithLevel(level)))
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
