package cli

import (
	"github.com/spf13/cobra"

	"github.com/emberworks/fireside/pkg/idx"
	"github.com/emberworks/fireside/pkg/slogx"
)

// NewRootCommand builds the fireside command tree.
func NewRootCommand(cfg Config) *cobra.Command {
	app := NewApp(cfg)

	rootCmd := &cobra.Command{
		Use:   "fireside",
		Short: "Mint and manage identity-provider sessions from a service-account key",
		Long: `fireside mints OAuth bearer tokens from a service-account key file,
impersonates users via signed custom tokens, and persists refresh
tokens so user sessions can be resumed without repeating the
impersonation flow.

The key file path comes from FIRESIDE_CREDENTIALS; the session store
is configured with FIRESIDE_STORE, FIRESIDE_STORE_FILE and
FIRESIDE_PASSPHRASE.`,
		Version:       BuildVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		// Every invocation gets the configured logger and a request id
		// in its context; subcommands log via slogx.FromContext.
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			ctx := slogx.WithContext(cmd.Context(), app.logger)
			cmd.SetContext(slogx.WithRequestID(ctx, idx.New().String()))
		},
	}

	rootCmd.AddCommand(
		newTokenCommand(app),
		newUserTokenCommand(app),
		newResumeCommand(app),
		newUserInfoCommand(app),
		newSessionsCommand(app),
	)

	return rootCmd
}
