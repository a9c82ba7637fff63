package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/paper-feeds/internal/app"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE:  runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	env, err := resolveEnv(cmd.Context())
	if err != nil {
		return err
	}
	if strings.HasPrefix(env.Config.DB.DSN, app.MemoryDSN) {
		return errors.New("migrate requires a postgres db.dsn")
	}

	store, err := app.OpenPostgres(cmd.Context(), env.Config)
	if err != nil {
		return err
	}
	defer store.Close()

	applied, err := store.Migrate(cmd.Context())
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	for _, m := range applied {
		env.Logger.Info("applied migration", zap.Int("version", m.Version), zap.String("name", m.Name))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", len(applied))
	return nil
}
