// Package database provides SQLite connectivity for homecore.
//
// SQLite holds the periodic snapshot of the entity graph (rooms, devices,
// actions), sensor time-series samples and the action run log. The live
// state is in memory; the database is only read at startup and written by
// the snapshot scheduler.
//
// This package manages:
//   - Connection setup with WAL mode and busy timeout
//   - Forward-only schema migrations embedded in the binary
//   - Health checks and transactional helpers
//
// Usage:
//
//	db, err := database.Open(database.FromConfig(cfg.Database))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
