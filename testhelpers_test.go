package proposta_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/agencykit/proposta"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupTestDB(t *testing.T) *bun.DB {
	t.Helper()

	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())

	_, err = bunDB.Exec("PRAGMA foreign_keys = ON;")
	require.NoError(t, err)

	require.NoError(t, proposta.RunMigrations(context.Background(), bunDB, nil))

	t.Cleanup(func() {
		_ = bunDB.Close()
		_ = db.Close()
	})

	return bunDB
}

func setupTestRepo(t *testing.T) proposta.RepositoryManager {
	t.Helper()

	repo := proposta.NewRepositoryManager(setupTestDB(t))
	require.NoError(t, repo.Validate())
	return repo
}
