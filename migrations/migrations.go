// Package migrations embeds the goose SQL migrations for each supported
// database dialect.
package migrations

import "embed"

// FS holds the per-dialect migration directories ("postgres", "sqlite").
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS
