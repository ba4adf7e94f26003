// Package database opens the bridge's SQLite file (reading history and
// write audit) through mattn/go-sqlite3 and applies schema migrations.
//
// Migration files are named YYYYMMDD_HHMMSS_name.up.sql with an optional
// .down.sql and are embedded by the migrations package. Each applied file
// is recorded with its SHA-256; Migrate refuses to run when an applied
// file has changed or disappeared, so schema changes always go in a new
// file.
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	err = db.Migrate(ctx, migrations.FS)
package database
