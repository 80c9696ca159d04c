// Package testdb connects integration tests to a real Postgres
// instance. Tests are skipped unless TEST_DATABASE_URL is set, so the
// suite stays green on machines without a database.
package testdb

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/alexanderselivanov/botfleet/internal/adapters/database"
)

// Setup connects to TEST_DATABASE_URL, applies the migrations and
// truncates the given tables so every test starts clean. Callers list
// only the tables their package touches; test binaries for different
// packages run concurrently. The connection is closed via t.Cleanup.
func Setup(t *testing.T, tables ...string) *sqlx.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping database integration test")
	}

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("warning: failed to close database: %v", err)
		}
	})

	if err := database.RunMigrations(db.DB, migrationsDir(t)); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	if len(tables) > 0 {
		if _, err := db.Exec("TRUNCATE " + strings.Join(tables, ", ")); err != nil {
			t.Fatalf("failed to truncate tables: %v", err)
		}
	}

	return db
}

// migrationsDir resolves the migrations directory relative to this
// file, so tests pass regardless of the working directory.
func migrationsDir(t *testing.T) string {
	t.Helper()

	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("failed to resolve helper path")
	}
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "..", "migrations")
}
