// Package testutil provides shared testing utilities for the bookchat
// project: a pgvector-enabled PostgreSQL container, mock Genkit model and
// embedder, and an SSE stream parser.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Bushraturk/ragchatbot/db"
)

// TestDB wraps a PostgreSQL test container with a ready connection pool.
// The schema is migrated before SetupTestDB returns.
type TestDB struct {
	Container *postgres.PostgresContainer
	Pool      *pgxpool.Pool
	ConnStr   string
}

// SetupTestDB starts an isolated PostgreSQL container with the pgvector
// extension, runs the embedded migrations, and registers cleanup with t.
//
// Example:
//
//	tdb := testutil.SetupTestDB(t)
//	var count int
//	err := tdb.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM chunks").Scan(&count)
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"pgvector/pgvector:pg16",
		postgres.WithDatabase("bookchat_test"),
		postgres.WithUsername("bookchat_test"),
		postgres.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		_ = pgContainer.Terminate(context.Background())
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	// Migrations are embedded in the db package, so the container schema is
	// always the one the code under test expects.
	if err := db.Migrate(connStr); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("failed to create connection pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}

	return &TestDB{
		Container: pgContainer,
		Pool:      pool,
		ConnStr:   connStr,
	}
}
