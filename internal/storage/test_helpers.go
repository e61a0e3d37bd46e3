package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/uptime-rewards/internal/config"
)

// testContext creates a context with timeout for tests
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// newTestRedis starts a miniredis instance and wraps a client around it.
func newTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewRedisCacheFromClient(client)
	t.Cleanup(func() {
		_ = cache.Close()
		mr.Close()
	})
	return cache, mr
}

// testPostgresConfig points at the local development database.
func testPostgresConfig() *config.PostgresConfig {
	password := os.Getenv("POSTGRES_PASSWORD")
	if password == "" {
		password = "rewards_dev_password"
	}
	return &config.PostgresConfig{
		Host:           "localhost",
		Port:           "5432",
		Database:       "uptime_rewards",
		User:           "rewards",
		Password:       password,
		MaxConnections: 5,
	}
}

// newTestRepository connects to Postgres and applies migrations, skipping
// the test when no database is reachable.
func newTestRepository(t *testing.T) *AccountRepository {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := testPostgresConfig()
	db, err := NewPostgresDB(testContext(t), cfg)
	if err != nil {
		t.Skipf("Skipping test - Postgres not available: %v", err)
	}
	t.Cleanup(db.Close)

	if err := RunMigrations(cfg.URL(), "../../migrations/postgres"); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	return NewAccountRepository(db)
}
