// Package platform provides the embedded-SQLite store wiring shared by
// the account pool (C2), the rate limiter (C1), and the job/worker
// checkpoint stores (C4). Every durable component in this repo opens
// its database through Open, which is the Go equivalent of the
// source's `sqlite3.connect(...); PRAGMA journal_mode=WAL`.
package platform

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Open opens (creating if necessary) a WAL-mode SQLite database at
// path, applies the given migration store's schema, and returns the
// connection pool. A single *sql.DB is safe for concurrent use and is
// limited here to one open connection. The account pool and the rate
// limiter additionally serialize their writes behind a process-local
// mutex; the scheduler's checkpoint stores issue single-statement
// upserts without one.
func Open(path, migrationStore string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory for %s: %w", path, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode on %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting synchronous mode on %s: %w", path, err)
	}

	if err := Bootstrap(db, migrationStore); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
