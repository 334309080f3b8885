package postgres_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// newTestDB starts a Postgres container, applies the migration, and returns
// a connected *sqlx.DB. The container is automatically terminated when the
// test ends.
func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	// Locate migration file relative to this source file.
	_, thisFile, _, _ := runtime.Caller(0)
	migrationDir := filepath.Join(filepath.Dir(thisFile), "migrations")

	migrationSQL, err := os.ReadFile(filepath.Join(migrationDir, "001_initial.sql"))
	if err != nil {
		t.Fatalf("reading migration: %v", err)
	}

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("bidbot_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		tcpostgres.WithInitScripts(), // no bundled init scripts
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}

	connStr, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("getting connection string: %v", err)
	}

	db, err := sqlx.Connect("postgres", connStr)
	if err != nil {
		t.Fatalf("connecting to test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// Apply migration.
	if _, err := db.ExecContext(ctx, string(migrationSQL)); err != nil {
		t.Fatalf("applying migration: %v", err)
	}

	return db
}

// seedClan inserts a clan row directly. Clans are provisioned out of band in
// production, so the repository has no Create method.
func seedClan(t *testing.T, db *sqlx.DB, tag, name string, points decimal.Decimal) {
	t.Helper()
	_, err := db.Exec(
		`INSERT INTO clans (tag, name, leader_role_id, points, placeholder_points)
		 VALUES ($1, $2, $3, $4, 0)`,
		tag, name, "role-"+tag, points)
	if err != nil {
		t.Fatalf("seeding clan %s: %v", tag, err)
	}
}

// seedRecruit inserts a recruit row directly.
func seedRecruit(t *testing.T, db *sqlx.DB, id, userID, playerTag string) {
	t.Helper()
	_, err := db.Exec(
		`INSERT INTO recruits (id, discord_user_id, player_name, player_tag, town_hall_level)
		 VALUES ($1, $2, $3, $4, 15)`,
		id, userID, "Player "+id, playerTag)
	if err != nil {
		t.Fatalf("seeding recruit %s: %v", id, err)
	}
}
