package migrations

import (
	"database/sql"
	_ "embed"

	"github.com/goran-ethernal/staking-indexer/internal/db"
	"github.com/goran-ethernal/staking-indexer/internal/logger"
)

//go:embed 001_initial.sql
var mig0001 string

func all() []db.Migration {
	return []db.Migration{
		{
			ID:  "001_initial.sql",
			SQL: mig0001,
		},
	}
}

// RunMigrations runs all migrations for the staking indexer database.
func RunMigrations(dbPath string) error {
	return db.RunMigrations(dbPath, all())
}

// RunMigrationsDB runs all migrations against an already opened database.
func RunMigrationsDB(log *logger.Logger, sqlDB *sql.DB) error {
	return db.RunMigrationsDB(log, sqlDB, all())
}
