package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/emberworks/fireside/pkg/session"
	"github.com/emberworks/fireside/pkg/users"
)

func newUserInfoCommand(app *App) *cobra.Command {
	var (
		uid  string
		name string
	)

	cmd := &cobra.Command{
		Use:   "userinfo (--uid UID | --name NAME)",
		Short: "Print the account record for a user session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (uid == "") == (name == "") {
				return errors.New("exactly one of --uid or --name is required")
			}

			cred, err := app.Credentials()
			if err != nil {
				return err
			}

			var sess session.AuthBearer
			if name != "" {
				sess, err = resumeSession(cmd, app, name)
			} else {
				sess, err = session.ByUserIDWith(cmd.Context(), cred, uid, app.Exchanger())
			}
			if err != nil {
				return err
			}

			rec, err := users.NewClient(cred.APIKey).Info(cmd.Context(), sess)
			if err != nil {
				return fmt.Errorf("look up account: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		},
	}

	cmd.Flags().StringVar(&uid, "uid", "", "user id to impersonate")
	cmd.Flags().StringVar(&name, "name", "", "stored session name")

	return cmd
}
