// Package database provides SQLite connectivity for the access core.
//
// It owns:
//   - The database connection (WAL mode, busy timeout, foreign keys)
//   - Embedded schema migrations (see the top-level migrations package)
//   - A health check used by the operational API
//
// The access repositories (cards, doors, users, permissions) and the audit
// log are built on *DB. The core never creates or deletes credentials; the
// schema exists so those collaborators have somewhere to read from.
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are additive: each version has an .up.sql and a .down.sql file
// named YYYYMMDD_HHMMSS_description.
package database
