package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/emberworks/fireside/pkg/slogx"
)

func newSessionsCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage stored user sessions",
	}

	cmd.AddCommand(
		newSessionsListCommand(app),
		newSessionsDeleteCommand(app),
	)

	return cmd
}

func newSessionsListCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := app.OpenStore()
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tUSER ID\tUPDATED")
			for _, rec := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\n", rec.Name, rec.UserID, rec.UpdatedAt.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}
}

func newSessionsDeleteCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a stored session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := app.OpenStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Delete(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("delete session %q: %w", args[0], err)
			}
			slogx.FromContext(cmd.Context()).Info("session deleted", "name", args[0])
			return nil
		},
	}
}
