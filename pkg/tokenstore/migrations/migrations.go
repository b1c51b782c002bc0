package migrations

import "embed"

// Migrations holds the embedded SQL migration files.
//
//go:embed *.sql
var Migrations embed.FS
