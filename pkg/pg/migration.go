package pg

import (
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
)

// Migrate applies every pending goose migration from dir against the
// database described by cfg.
func Migrate(cfg Config, dir string) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "migrate: set dialect")
	}

	db, err := newSqlConnection(cfg)
	if err != nil {
		return errors.Wrap(err, "migrate: connect")
	}
	defer db.Close()

	if err := goose.Up(db, dir); err != nil {
		return errors.Wrap(err, "migrate: up")
	}
	return nil
}

// MigrateDown rolls back the most recent migration. Used by the ops CLI
// when a release has to be backed out.
func MigrateDown(cfg Config, dir string) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "migrate: set dialect")
	}

	db, err := newSqlConnection(cfg)
	if err != nil {
		return errors.Wrap(err, "migrate: connect")
	}
	defer db.Close()

	if err := goose.Down(db, dir); err != nil {
		return errors.Wrap(err, "migrate: down")
	}
	return nil
}
