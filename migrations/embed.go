// Package migrations embeds the SQL schema for both storage drivers.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS

// Postgres returns the migrations for the pgx-backed store.
func Postgres() fs.FS {
	sub, _ := fs.Sub(FS, "postgres")
	return sub
}

// SQLite returns the migrations for the embedded store.
func SQLite() fs.FS {
	sub, _ := fs.Sub(FS, "sqlite")
	return sub
}
