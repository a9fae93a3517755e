// Package database opens the SQLite file that holds appliance state
// history and applies the embedded schema.
//
// Migrations are forward-only NNNN_name.sql files. Each is recorded in
// schema_migrations with a SHA-256 of its body; editing a file after it ran
// makes Migrate fail with ErrMigrationChanged instead of silently diverging.
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
