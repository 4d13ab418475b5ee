package root

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ragdesk/ragdesk/pkg/config"
	"github.com/ragdesk/ragdesk/pkg/environment"
	"github.com/ragdesk/ragdesk/pkg/logging"
	"github.com/ragdesk/ragdesk/pkg/server"
	"github.com/ragdesk/ragdesk/pkg/session"
	"github.com/ragdesk/ragdesk/pkg/tools"
	"github.com/ragdesk/ragdesk/pkg/tools/builtin"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, flags, listenAddr)
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address, overrides the configured host and port")

	return cmd
}

func runServe(cmd *cobra.Command, flags *rootFlags, listenAddr string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}

	// The config can raise the log level; --debug always wins.
	if !flags.debugMode && flags.logFilePath == "" {
		if closer, err := logging.Setup(logging.ParseLevel(cfg.Log.Level), cfg.Log.File); err == nil {
			flags.logFile = closer
		}
	}

	env := environment.NewOS()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	registry := tools.NewRegistry()
	builtin.NewSearchToolSet(searchEngine(ctx, cfg, env), cfg.Search.MaxResults).Register(registry)
	builtin.NewTimeToolSet(time.Now).Register(registry)
	builtin.NewFetchToolSet().Register(registry)

	srv := server.New(cfg, store, registry, env)

	addr := cfg.Addr()
	if listenAddr != "" {
		addr = listenAddr
	}
	return srv.Serve(ctx, addr)
}

func openStore(cfg *config.Config) (session.Store, error) {
	if cfg.DatabasePath == "" {
		slog.Warn("No database path configured, sessions will not survive restarts")
		return session.NewInMemoryStore(), nil
	}
	return session.NewSQLiteStore(cfg.DatabasePath)
}

// searchEngine picks the configured backend, falling back to the
// keyless engine when the SerpAPI key is absent.
func searchEngine(ctx context.Context, cfg *config.Config, env environment.Provider) builtin.SearchEngine {
	if cfg.Search.Engine == "serpapi" {
		key, err := env.Get(ctx, cfg.Search.APIKeyEnv)
		if err == nil && key != "" {
			return builtin.NewSerpAPIEngine(key)
		}
		slog.Warn("SerpAPI key not set, falling back to DuckDuckGo", "env", cfg.Search.APIKeyEnv)
	}
	return builtin.NewDuckDuckGoEngine()
}
