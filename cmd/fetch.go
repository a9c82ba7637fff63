package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/paper-feeds/internal/app"
)

func newFetchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "fetch <issn>",
		Short: "Fetch recent papers for one journal and exit",
		Long: `fetch pulls papers for a stored journal from Crossref in the foreground.
Only papers indexed since the newest stored one are requested. The journal
must already exist, e.g. from a previous search.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, err := app.OpenStore(ctx, env.Config, env.Logger)
			if err != nil {
				return err
			}
			defer store.Close()

			svc, rdb, err := app.NewService(env.Config, store, nil, env.Logger)
			if err != nil {
				return err
			}
			if rdb != nil {
				defer rdb.Close()
			}

			stats, err := svc.PopulatePapers(ctx, args[0], limit)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d pages, %d inserted, %d updated, %d skipped\n",
				args[0], stats.Pages, stats.Inserted, stats.Updated, stats.Skipped)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum papers to consume (0 uses fetch.limit)")
	return cmd
}
