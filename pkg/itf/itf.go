// Package itf provisions throwaway postgres databases for integration tests.
package itf

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/schemagov/pkg/commands"
	"github.com/iota-uz/schemagov/pkg/configuration"
)

const (
	// PostgreSQL database name maximum length is 63 characters
	maxDBNameLength = 63
	// 8 hash chars plus the underscore
	hashSuffixLength = 9
)

// Options controls what NewDatabase writes after migrating.
type Options struct {
	// Seed tenant; zero skips seeding.
	SeedTenantID int
}

// NewDatabase creates a database named after the test, applies all migrations and returns a pool.
// The database is dropped on cleanup. When postgres is unreachable the test is skipped, except on CI.
func NewDatabase(tb testing.TB, opts Options) *pgxpool.Pool {
	tb.Helper()
	ctx := context.Background()

	db := configuration.Use().Database
	adminConn, err := pgx.Connect(ctx, dsn(db, "postgres"))
	if err != nil {
		skipOrFail(tb, err, "postgres is not reachable; skipping integration test")
	}
	tb.Cleanup(func() { _ = adminConn.Close(ctx) })

	dbName := sanitizeDBName("itf_" + tb.Name())
	ident := pgx.Identifier{dbName}.Sanitize()
	_, _ = adminConn.Exec(ctx, "DROP DATABASE IF EXISTS "+ident)
	if _, err := adminConn.Exec(ctx, "CREATE DATABASE "+ident); err != nil {
		skipOrFail(tb, err, "failed to create test database; skipping integration test")
	}

	target := dsn(db, dbName)
	require.NoError(tb, commands.Migrate(ctx, target, commands.DirectionUp))

	pool := NewPool(tb, target)
	tb.Cleanup(func() {
		pool.Close()
		_, _ = adminConn.Exec(ctx, "DROP DATABASE IF EXISTS "+ident)
	})

	if opts.SeedTenantID > 0 {
		require.NoError(tb, commands.Seed(ctx, pool, commands.SeedOptions{TenantID: opts.SeedTenantID}))
	}
	return pool
}

func NewPool(tb testing.TB, dbOpts string) *pgxpool.Pool {
	tb.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	config, err := pgxpool.ParseConfig(dbOpts)
	require.NoError(tb, err)
	config.MaxConns = 4
	config.MinConns = 1
	config.MaxConnLifetime = time.Minute * 5
	config.MaxConnIdleTime = time.Second * 30

	pool, err := pgxpool.NewWithConfig(ctx, config)
	require.NoError(tb, err)
	return pool
}

func dsn(db configuration.DatabaseOptions, name string) string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		db.Host, db.Port, db.User, name, db.Password,
	)
}

func isCI() bool {
	return strings.TrimSpace(os.Getenv("CI")) != "" ||
		strings.EqualFold(strings.TrimSpace(os.Getenv("GITHUB_ACTIONS")), "true")
}

func skipOrFail(tb testing.TB, err error, msg string) {
	tb.Helper()
	if isCI() {
		require.NoError(tb, err)
	}
	tb.Skip(msg)
}

// sanitizeDBName lowercases name, maps anything outside [a-z0-9_] to an underscore
// and keeps the result within postgres' 63 character limit.
func sanitizeDBName(name string) string {
	sanitized := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '_'
	}, strings.ToLower(name))

	for strings.Contains(sanitized, "__") {
		sanitized = strings.ReplaceAll(sanitized, "__", "_")
	}
	sanitized = strings.Trim(sanitized, "_")
	if sanitized == "" {
		sanitized = "test_db"
	}
	if len(sanitized) <= maxDBNameLength {
		return sanitized
	}
	return truncateWithHash(sanitized, name)
}

// truncateWithHash keeps the head of sanitized and appends a hash of original so
// long subtest names stay unique.
func truncateWithHash(sanitized, original string) string {
	sum := sha256.Sum256([]byte(original))
	hash := fmt.Sprintf("%x", sum)[:8]
	truncated := strings.TrimRight(sanitized[:maxDBNameLength-hashSuffixLength], "_")
	return truncated + "_" + hash
}
