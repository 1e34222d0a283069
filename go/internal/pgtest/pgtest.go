// Package pgtest starts a throwaway Postgres for repository tests.
package pgtest

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/lib/pq"
	"github.com/mcdev12/basta/go/internal/migrations"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// New returns a migrated database. It skips under -short or when no
// container runtime is reachable.
func New(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres integration test skipped in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("basta_test"),
		postgres.WithUsername("basta"),
		postgres.WithPassword("basta"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, ctr.Terminate(context.Background())) })

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, migrations.Migrate(ctx, dsn))

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.PingContext(ctx))

	return db
}

// SeedWords inserts approved dictionary entries for a category.
func SeedWords(t *testing.T, db *sql.DB, slug string, words ...string) {
	t.Helper()
	for _, w := range words {
		_, err := db.Exec(
			`INSERT INTO dictionary (word, category_slug) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			w, slug,
		)
		require.NoError(t, err)
	}
}
