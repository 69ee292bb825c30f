// Ops CLI for the broadcast platform. Runs goose migrations against the
// write database:
//
//	cli --env=.env --dir=./migrations          apply pending migrations
//	cli --env=.env --dir=./migrations --down   roll back the latest one
package main

import (
	"os"
	"strings"

	"github.com/nimasrn/voice-broadcast/internal/config"
	"github.com/nimasrn/voice-broadcast/pkg/logger"
	"github.com/nimasrn/voice-broadcast/pkg/pg"
)

func main() {
	if err := config.Load(argValue("--env=", ".env")); err != nil {
		logger.Error("cli: failed to load config", "error", err)
		os.Exit(1)
	}

	pgConf := pg.Config{
		User:     config.Get().PostgresWriteUser,
		Host:     config.Get().PostgresWriteHost,
		Port:     config.Get().PostgresWritePort,
		Password: config.Get().PostgresWritePassword,
		Database: config.Get().PostgresWriteDatabase,
	}

	dir := argValue("--dir=", "./migrations")
	if _, err := os.Stat(dir); err != nil {
		logger.Error("cli: migrations directory not found", "dir", dir, "error", err)
		os.Exit(1)
	}

	if hasArg("--down") {
		if err := pg.MigrateDown(pgConf, dir); err != nil {
			logger.Error("cli: rollback failed", "error", err)
			os.Exit(1)
		}
		logger.Info("cli: rolled back latest migration", "dir", dir)
		return
	}

	if err := pg.Migrate(pgConf, dir); err != nil {
		logger.Error("cli: migration failed", "error", err)
		os.Exit(1)
	}
	logger.Info("cli: migrations applied", "dir", dir)
}

func argValue(prefix, fallback string) string {
	for _, v := range os.Args[1:] {
		if strings.HasPrefix(v, prefix) {
			return strings.TrimPrefix(v, prefix)
		}
	}
	return fallback
}

func hasArg(name string) bool {
	for _, v := range os.Args[1:] {
		if v == name {
			return true
		}
	}
	return false
}
