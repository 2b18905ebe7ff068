// Package migrations embeds the goose migrations for the SQLite store backend.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
