// Package migrations holds example migrations in both file layouts. They
// are plain SQL that Postgres, MySQL and SQLite all accept.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed *.sql
var files embed.FS

func FS() fs.FS {
	return files
}
