package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/emberworks/fireside/pkg/session"
	"github.com/emberworks/fireside/pkg/slogx"
)

func newResumeCommand(app *App) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "resume --name NAME",
		Short: "Resume a stored user session and print its bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := resumeSession(cmd, app, name)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), sess.AccessToken())
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "stored session name")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

// resumeSession rebuilds a user session from the stored refresh token
// and writes back the rotated token the provider hands out on the
// exchange.
func resumeSession(cmd *cobra.Command, app *App, name string) (*session.UserSession, error) {
	cred, err := app.Credentials()
	if err != nil {
		return nil, err
	}

	store, err := app.OpenStore()
	if err != nil {
		return nil, err
	}
	defer store.Close()

	rec, err := store.Get(cmd.Context(), name)
	if err != nil {
		return nil, fmt.Errorf("load session %q: %w", name, err)
	}

	sess, err := session.ByRefreshTokenWith(cmd.Context(), cred, rec.RefreshToken, app.Exchanger())
	if err != nil {
		return nil, fmt.Errorf("resume session %q: %w", name, err)
	}

	if sess.RefreshToken() != rec.RefreshToken {
		rec.RefreshToken = sess.RefreshToken()
		rec.UserID = sess.UserID()
		if _, err := store.Put(cmd.Context(), rec); err != nil {
			return nil, fmt.Errorf("store rotated refresh token for %q: %w", name, err)
		}
		slogx.FromContext(cmd.Context()).Debug("refresh token rotated", "name", name)
	}

	return sess, nil
}
