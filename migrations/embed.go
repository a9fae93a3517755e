// Package migrations embeds the SQLite schema into the binary.
//
// Files are named NNNN_description.sql and applied in order by
// database.(*DB).Migrate.
package migrations

import "embed"

// FS holds every .sql migration at its root.
//
//go:embed *.sql
var FS embed.FS
