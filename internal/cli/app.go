// Package cli wires the library packages into the fireside command.
// Each subcommand loads the service-account key file, builds an
// exchanger against the production endpoints and works through the
// session and tokenstore packages; nothing here talks to the provider
// directly.
package cli

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/emberworks/fireside/pkg/credentials"
	"github.com/emberworks/fireside/pkg/slogx"
	"github.com/emberworks/fireside/pkg/tokenstore"
	"github.com/emberworks/fireside/pkg/tokenx"
)

// BuildVersion should be set at build time via ldflags. Later problem
const BuildVersion = "v0.1.0"

// App holds the pieces every subcommand needs. Credentials and the
// session store are opened lazily so commands that fail flag parsing
// never touch the filesystem.
type App struct {
	cfg    Config
	logger *slog.Logger

	cred *credentials.Credentials
}

func NewApp(cfg Config) *App {
	return &App{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "fireside",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}
}

// Credentials loads and caches the service-account key file.
func (a *App) Credentials() (*credentials.Credentials, error) {
	if a.cred != nil {
		return a.cred, nil
	}

	cred, err := credentials.FromFile(a.cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("load credentials from %s: %w", a.cfg.CredentialsFile, err)
	}
	if a.cfg.APIKey != "" {
		cred.APIKey = a.cfg.APIKey
	}

	a.cred = cred
	a.logger.Debug("credentials loaded",
		"project_id", cred.ProjectID,
		"client_email", cred.ClientEmail,
	)
	return cred, nil
}

// Exchanger returns an exchanger against the production endpoints with
// the configured timeout.
func (a *App) Exchanger() *tokenx.Exchanger {
	x := tokenx.New(tokenx.DefaultEndpoints())
	x.HTTPClient = &http.Client{Timeout: a.cfg.HTTPTimeout}
	x.Logger = a.logger
	return x
}

// OpenStore opens the configured session store. The caller closes it.
func (a *App) OpenStore() (tokenstore.Store, error) {
	switch a.cfg.StoreDriver {
	case "file":
		return tokenstore.NewFileStore(a.cfg.StoreFile, a.cfg.StorePassphrase), nil
	case "sqlite":
		return tokenstore.NewSQLiteStore(a.cfg.StoreDB)
	default:
		return nil, fmt.Errorf("unknown store driver %q (want file or sqlite)", a.cfg.StoreDriver)
	}
}
