package store

import (
	"fmt"
	"net/url"

	"github.com/go-errors/errors"
	gomigrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/blockwatch-bot/blockwatch/migrations"
)

// migrateURL renders cfg as the URL golang-migrate's pgx driver expects,
// distinct from dsn's libpq keyword/value form that pgxpool consumes.
func (cfg Config) migrateURL() string {
	return fmt.Sprintf("pgx://%s:%s@%s:%d/%s?sslmode=disable",
		url.QueryEscape(cfg.Username), url.QueryEscape(cfg.Password),
		cfg.Host, cfg.Port, cfg.DatabaseName)
}

// applyMigrations runs every pending migration embedded in the migrations
// package against cfg's database, using golang-migrate's pgx driver
// (registered by its blank import above) so schema management shares the
// same driver family as the rest of the store.
func applyMigrations(cfg Config) error {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return errors.Errorf("load embedded migrations: %v", err)
	}

	m, err := gomigrate.NewWithSourceInstance("iofs", source, cfg.migrateURL())
	if err != nil {
		return errors.Errorf("init migrator: %v", err)
	}
	defer func() {
		_, _ = m.Close()
	}()

	if err := m.Up(); err != nil && err != gomigrate.ErrNoChange {
		return errors.Errorf("run migrations: %v", err)
	}

	return nil
}
