package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/emberworks/fireside/pkg/session"
	"github.com/emberworks/fireside/pkg/slogx"
	"github.com/emberworks/fireside/pkg/tokenstore"
)

func newUserTokenCommand(app *App) *cobra.Command {
	var (
		uid  string
		save string
	)

	cmd := &cobra.Command{
		Use:   "user-token --uid UID",
		Short: "Impersonate a user and print their bearer token",
		Long: `user-token signs a custom token for the given user id with the
service-account key, exchanges it for a user session and prints the
bearer token. With --save, the session's refresh token is stored under
the given name so it can be picked up later with "fireside resume".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cred, err := app.Credentials()
			if err != nil {
				return err
			}

			sess, err := session.ByUserIDWith(cmd.Context(), cred, uid, app.Exchanger())
			if err != nil {
				return fmt.Errorf("impersonate %s: %w", uid, err)
			}

			if save != "" {
				store, err := app.OpenStore()
				if err != nil {
					return err
				}
				defer store.Close()

				rec, err := store.Put(cmd.Context(), tokenstore.Record{
					Name:         save,
					UserID:       sess.UserID(),
					RefreshToken: sess.RefreshToken(),
				})
				if err != nil {
					return fmt.Errorf("save session %q: %w", save, err)
				}
				slogx.FromContext(cmd.Context()).Info("session saved",
					"name", rec.Name, "user_id", rec.UserID)
			}

			fmt.Fprintln(cmd.OutOrStdout(), sess.AccessToken())
			return nil
		},
	}

	cmd.Flags().StringVar(&uid, "uid", "", "user id to impersonate")
	cmd.Flags().StringVar(&save, "save", "", "store the refresh token under this name")
	_ = cmd.MarkFlagRequired("uid")

	return cmd
}
