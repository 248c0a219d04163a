// Package database provides the SQLite store for automation rules and hourly
// telemetry.
//
// Open configures WAL mode, a busy timeout and foreign keys through the
// go-sqlite3 connection string. Schema changes live as paired
// *.up.sql / *.down.sql files in the top-level migrations package, which
// embeds them and registers them through MigrationsFS.
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns are nullable or defaulted.
package database
