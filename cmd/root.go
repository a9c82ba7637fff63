// Package cmd defines the paperfeeds command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/paper-feeds/internal/config"
	"github.com/JakeFAU/paper-feeds/internal/logging"
)

// envKeyType is the key for storing the Env in the command context.
type envKeyType string

const envKey envKeyType = "env"

// Env carries what every subcommand needs before it builds its own services.
type Env struct {
	Config config.Config
	Logger *zap.Logger
}

// loadEnv is a variable so tests can swap in a fixed configuration.
var loadEnv = func(path string) (*Env, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Development())
	if err != nil {
		return nil, err
	}
	// Package-level helpers such as the API's JSON writer log through zap.L().
	zap.ReplaceGlobals(logger)
	return &Env{Config: cfg, Logger: logger}, nil
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "paperfeeds",
		Short: "RSS feeds for the latest papers of academic journals.",
		Long: `paperfeeds searches Crossref for journals, keeps their recent papers in
Postgres and serves an RSS feed per journal. Running it without a
subcommand starts the web server.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			env, err := loadEnv(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), envKey, env))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if env, ok := cmd.Context().Value(envKey).(*Env); ok && env != nil {
				_ = env.Logger.Sync()
			}
		},

		RunE: runServe,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml); PAPERFEEDS_* env vars override it")

	cmd.AddCommand(newServeCmd(), newMigrateCmd(), newFetchCmd())
	return cmd
}

func resolveEnv(ctx context.Context) (*Env, error) {
	env, ok := ctx.Value(envKey).(*Env)
	if !ok || env == nil {
		return nil, errors.New("configuration not initialized")
	}
	return env, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
