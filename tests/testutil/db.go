// Package testutil provides test utilities for the LLM gateway proxy.
package testutil

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/user/llm-gateway-proxy/internal/database"
)

// NewTestDB creates an in-memory SQLite database with full schema for testing.
// The database is automatically closed when the test completes.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:?_foreign_keys=ON")
	require.NoError(t, err, "failed to open test database")

	t.Cleanup(func() {
		db.Close()
	})

	require.NoError(t, database.RunMigrations(db), "failed to run migrations")

	return db
}
