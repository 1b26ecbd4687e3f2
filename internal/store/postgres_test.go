//go:build integration

package store

import (
	"context"
	"os"
	"testing"

	"github.com/keyfold/keyfold/internal/auth"
	authpg "github.com/keyfold/keyfold/internal/auth/postgres"
)

func TestConnectAndMigrate_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()

	pool, err := Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer pool.Close()

	migrator, err := NewMigrator(dsn)
	if err != nil {
		t.Fatalf("NewMigrator failed: %v", err)
	}
	defer func() { _ = migrator.Close() }()

	if err := migrator.Up(); err != nil {
		t.Fatalf("Up failed: %v", err)
	}

	version, dirty, err := migrator.Version()
	if err != nil {
		t.Fatalf("Version failed: %v", err)
	}
	if dirty {
		t.Error("schema should not be dirty after Up")
	}
	if version == 0 {
		t.Error("expected a non-zero schema version after Up")
	}

	// Round-trip a user through the real schema.
	repo := authpg.NewUserRepository(pool)
	user, err := auth.NewUser("integration@example.com", "$argon2id$hash")
	if err != nil {
		t.Fatalf("NewUser failed: %v", err)
	}
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	got, err := repo.GetByEmail(ctx, user.Email)
	if err != nil {
		t.Fatalf("GetByEmail failed: %v", err)
	}
	if got.ID != user.ID {
		t.Errorf("expected id %v, got %v", user.ID, got.ID)
	}
}
