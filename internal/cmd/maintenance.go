package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nainya/contentver/internal/app"
	"github.com/nainya/contentver/internal/config"
	"github.com/nainya/contentver/pkg/docstore/pgstore"
	"github.com/nainya/contentver/pkg/docstore/sqlitestore"
)

func newReplayCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "replay",
		Short: "Replay saves queued while the store was unavailable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !opts.cfg.Outbox.Enabled {
				return fmt.Errorf("outbox is disabled")
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				stats, err := a.ReplayOutbox(ctx)
				if perr := printJSON(cmd, map[string]any{
					"saved":     stats.Saved,
					"discarded": stats.Discarded,
					"remaining": stats.Remaining,
				}); perr != nil {
					return perr
				}
				return err
			})
		},
	}
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the store schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := opts.cfg.Store
			switch s.Backend {
			case config.BackendPostgres:
				if err := pgstore.Migrate(s.Postgres.DSN); err != nil {
					return err
				}
			case config.BackendSQLite:
				st, err := sqlitestore.Open(cmd.Context(), s.SQLite.Path)
				if err != nil {
					return err
				}
				if err := st.Close(); err != nil {
					return err
				}
			default:
				return fmt.Errorf("backend %s has no schema to migrate", s.Backend)
			}
			return printJSON(cmd, map[string]any{"backend": s.Backend, "migrated": true})
		},
	}
}
