package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nainya/contentver/internal/app"
	"github.com/nainya/contentver/pkg/version"
)

// parseValue reads a flag as JSON, falling back to the raw string
func parseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

func newSaveCmd(opts *rootOptions) *cobra.Command {
	var req version.SaveRequest
	var oldValue, newValue string

	cmd := &cobra.Command{
		Use:   "save",
		Short: "Record an edit of a field",
		Long: `Record an edit of a field. Values are parsed as JSON; anything that
is not valid JSON is stored as a plain string.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req.OldValue = parseValue(oldValue)
			req.NewValue = parseValue(newValue)

			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				id, queued, err := a.Save(ctx, req)
				if err != nil {
					return err
				}
				if queued {
					l := a.Logger.Scope("cli", req.PageType, req.Field)
					l.Warn().Msg("Store unavailable; save queued in the outbox")
				}
				return printJSON(cmd, map[string]any{"id": id, "queued": queued})
			})
		},
	}

	cmd.Flags().StringVar(&req.PageType, "page-type", "", "page type")
	cmd.Flags().StringVar(&req.Field, "field", "", "field name")
	cmd.Flags().StringVar(&oldValue, "old", "", "previous value (JSON)")
	cmd.Flags().StringVar(&newValue, "new", "", "new value (JSON)")
	cmd.Flags().StringVar(&req.Author, "author", "", "author name")
	cmd.Flags().StringVar(&req.AuthorEmail, "email", "", "author email")
	cmd.Flags().StringVar(&req.Comment, "comment", "", "optional comment")
	_ = cmd.MarkFlagRequired("page-type")
	_ = cmd.MarkFlagRequired("field")
	return cmd
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list PAGE_TYPE FIELD",
		Short: "List versions of a field, newest first",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if limit <= 0 {
					limit = a.Config.Versions.MaxPerField + a.Config.Versions.OverflowBuffer
				}
				versions, err := a.Engine.ListVersions(ctx, args[0], args[1], limit)
				if err != nil {
					return err
				}
				return printJSON(cmd, versions)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum versions (0: the retention window)")
	return cmd
}

func newShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show VERSION_ID",
		Short: "Show one version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				v, err := a.Engine.GetVersion(ctx, args[0])
				if err != nil {
					return err
				}
				if v == nil {
					return fmt.Errorf("version %s: %w", args[0], version.ErrNotFound)
				}
				return printJSON(cmd, v)
			})
		},
	}
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history PAGE_TYPE FIELD",
		Short: "Show the summarised history of a field",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				entries, err := a.Engine.GetVersionHistory(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSON(cmd, entries)
			})
		},
	}
}

func newDiffCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "diff FROM_ID TO_ID",
		Short: "Describe the changes between two versions of a field",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				changes, err := a.Engine.DiffVersions(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]any{"changes": changes})
			})
		},
	}
}

func newApproveCmd(opts *rootOptions) *cobra.Command {
	var by string

	cmd := &cobra.Command{
		Use:   "approve VERSION_ID",
		Short: "Approve a version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Engine.ApproveVersion(ctx, args[0], by); err != nil {
					return err
				}
				return printJSON(cmd, map[string]any{"id": args[0], "approved": true})
			})
		},
	}
	cmd.Flags().StringVar(&by, "by", "", "approver")
	_ = cmd.MarkFlagRequired("by")
	return cmd
}

func newRollbackCmd(opts *rootOptions) *cobra.Command {
	var author, email string

	cmd := &cobra.Command{
		Use:   "rollback VERSION_ID",
		Short: "Append a version that undoes VERSION_ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				id, err := a.Engine.RollbackToVersion(ctx, args[0], author, email)
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]any{"id": id, "rolledBack": args[0]})
			})
		},
	}
	cmd.Flags().StringVar(&author, "author", "", "author name")
	cmd.Flags().StringVar(&email, "email", "", "author email")
	return cmd
}

func newEnforceCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "enforce PAGE_TYPE FIELD",
		Short: "Run the retention policy for a field",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				deleted, err := a.Engine.EnforceRetention(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]any{"deleted": deleted})
			})
		},
	}
}
