// Command banditsync synchronizes locally stored conversations and
// projects with a sync gateway.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Burtson-Labs/bandit-sync/internal/config"
	"github.com/Burtson-Labs/bandit-sync/internal/engine"
	"github.com/Burtson-Labs/bandit-sync/internal/logging"
	"github.com/Burtson-Labs/bandit-sync/internal/store"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "banditsync",
	Short: "Conversation and project sync for Bandit chat clients",
	Long: `banditsync keeps a local conversation/project database in sync with a
Bandit sync gateway: local edits are batched and uploaded, remote changes
are pulled through a cursor-based exchange, and both sides converge.

Configuration lives in ~/.banditsync/config.yaml and can be overridden
with BANDIT_SYNC_* environment variables.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.banditsync/config.yaml)")
}

// runtime bundles everything a command needs after setup.
type runtime struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.Store
	engine *engine.Engine
}

func (rt *runtime) close() {
	rt.engine.Close()
	if err := rt.store.Close(); err != nil {
		rt.logger.Warn("failed to close store", "error", err)
	}
}

// setup loads config, opens the local store, hydrates it, and builds the
// engine. Callers still decide whether to Initialize (which may hit the
// network).
func setup(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := logging.New(cfg.LogLevel, cfg.LogPath())

	st, err := store.Open(cfg.DatabasePath(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	eng := engine.New(st, engine.Options{
		GatewayURL:       cfg.GatewayURL,
		Token:            cfg.Token,
		Timezone:         cfg.Timezone,
		DebounceInterval: cfg.DebounceInterval,
		PriorityInterval: cfg.PriorityInterval,
		Logger:           logger,
	})

	if err := st.Hydrate(ctx); err != nil {
		eng.Close()
		st.Close()
		return nil, fmt.Errorf("failed to hydrate local store: %w", err)
	}

	return &runtime{cfg: cfg, logger: logger, store: st, engine: eng}, nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
