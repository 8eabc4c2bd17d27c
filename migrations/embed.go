// Package migrations embeds the goose SQL migrations applied by `portal migrate`.
package migrations

import "embed"

// FS holds the SQL migration files.
//
//go:embed *.sql
var FS embed.FS
