package migrations

import "embed"

// FS embeds the SQL migrations applied by golang-migrate.
//
//go:embed *.sql
var FS embed.FS
