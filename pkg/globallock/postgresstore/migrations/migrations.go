// Package migrations embeds the SQL schema for postgresstore so the
// binary that links it needs no separate migrations directory on disk.
package migrations

import "embed"

// FS holds the embedded *.sql migration files, for use with
// golang-migrate's iofs source driver.
//
//go:embed *.sql
var FS embed.FS
