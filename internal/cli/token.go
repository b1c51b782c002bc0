package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/emberworks/fireside/pkg/session"
)

func newTokenCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Print a service-account bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cred, err := app.Credentials()
			if err != nil {
				return err
			}

			sess, err := session.NewServiceAccountWith(cmd.Context(), cred, app.Exchanger())
			if err != nil {
				return fmt.Errorf("open service-account session: %w", err)
			}

			bearer, err := sess.Bearer(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), bearer)
			return nil
		},
	}
}
