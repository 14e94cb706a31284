// Package migrations embeds the SQL schema migrations applied by golang-migrate.
package migrations

import "embed"

// FS holds one directory per database engine; only "postgres" exists today
//
//go:embed postgres/*.sql
var FS embed.FS
