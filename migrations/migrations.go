// Package migrations embeds the PostgreSQL schema for cmd/migrate.
package migrations

import "embed"

// FS holds the numbered golang-migrate up/down files.
//
//go:embed *.sql
var FS embed.FS
