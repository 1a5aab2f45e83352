// Package migrations embeds SQL migration files applied by goose.
package migrations

import "embed"

// FS holds the versioned migration files.
//
//go:embed *.sql
var FS embed.FS
