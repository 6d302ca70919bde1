// Package migrations embeds the schema for both supported drivers.
//
// Files are applied in name order. The sqlite and postgres directories carry
// the same migration ids so status output is identical across drivers.
package migrations

import "embed"

//go:embed sqlite/*.sql
var SqliteMigrations embed.FS

//go:embed postgres/*.sql
var PostgresMigrations embed.FS
