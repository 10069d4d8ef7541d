package platform

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// Store names, each mapping to a subdirectory under migrations/ and to
// one of the three embedded SQLite databases.
const (
	StoreAccounts    = "accounts"
	StoreCheckpoints = "checkpoints"
	StoreRateBuckets = "ratebuckets"
)

// Bootstrap applies the embedded schema migrations for the named store
// to db. It is idempotent: re-running it on an already-migrated
// database is a no-op (migrate.ErrNoChange). A missing schema is
// repaired by idempotent bootstrap, not by a one-shot CREATE TABLE
// script.
func Bootstrap(db *sql.DB, store string) error {
	sub, err := fs.Sub(migrationsFS, "migrations/"+store)
	if err != nil {
		return fmt.Errorf("locating migrations for %s: %w", store, err)
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("loading migrations for %s: %w", store, err)
	}

	target, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("wrapping sqlite connection for %s: %w", store, err)
	}

	m, err := migrate.NewWithInstance("iofs", source, store, target)
	if err != nil {
		return fmt.Errorf("creating migrator for %s: %w", store, err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("running migrations for %s: %w", store, err)
	}
	return nil
}
