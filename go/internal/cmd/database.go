package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mcdev12/basta/go/internal/dbconfig"
	"github.com/mcdev12/basta/go/internal/migrations"
)

func setupDatabase(ctx context.Context) (*sql.DB, dbconfig.Config, error) {
	dbCfg := dbconfig.NewConfigFromEnv()
	database, err := dbCfg.Open(ctx)
	if err != nil {
		return nil, dbCfg, err
	}
	return database, dbCfg, nil
}

func runMigrations(ctx context.Context, dbCfg dbconfig.Config) error {
	if err := migrations.Migrate(ctx, dbCfg.DSN()); err != nil {
		return fmt.Errorf("migrate %s: %w", dbCfg.Database, err)
	}
	return nil
}
