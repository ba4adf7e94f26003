// Package migrations embeds the history schema into the binary.
//
// Pass FS to database.DB.Migrate; the files live at its root.
package migrations

import "embed"

// FS holds the YYYYMMDD_HHMMSS_description.{up,down}.sql files.
//
//go:embed *.sql
var FS embed.FS
